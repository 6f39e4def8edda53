package metadata

// PolicyKind is the row-level-security policy applied to a role on an entity.
type PolicyKind string

const (
	// PolicyOwnRecordOnly restricts the role to rows whose owner column
	// matches the caller's identity.
	PolicyOwnRecordOnly PolicyKind = "own_record_only"
	// PolicyAllRecords grants unrestricted row visibility.
	PolicyAllRecords PolicyKind = "all_records"
	// PolicyNone denies access outright.
	PolicyNone PolicyKind = "none"
)

// FieldKind selects which allow-list a field is checked against.
type FieldKind string

const (
	FieldSearch FieldKind = "search"
	FieldFilter FieldKind = "filter"
	FieldSort   FieldKind = "sort"
)

// RelationshipType describes how a related collection links to its parent.
type RelationshipType string

const (
	HasMany   RelationshipType = "has_many"
	BelongsTo RelationshipType = "belongs_to"
)

// Relationship declares a join to a related table. Fields is the closed list
// of related columns exposed through the include; nothing else leaks through
// the join.
type Relationship struct {
	Type       RelationshipType
	Table      string
	ForeignKey string
	Fields     []string
}

// Sort is a default ordering for an entity.
type Sort struct {
	Field string
	Order string
}

// EntityMetadata is the declarative capability record for one business
// entity. It is the single source of truth for what is queryable: any field a
// request references must appear in the relevant allow-list or the request is
// rejected before SQL is built.
type EntityMetadata struct {
	Name          string
	TableName     string
	PrimaryKey    string
	IdentityField string

	Fields         []string
	WritableFields []string

	SearchableFields []string
	FilterableFields []string
	SortableFields   []string
	DefaultSort      Sort

	// ExcludedFields are stripped from every response regardless of caller.
	ExcludedFields []string
	// RestrictedFields may only be filtered, sorted on, or written by
	// elevated callers.
	RestrictedFields []string

	// OwnerField is the column compared against the caller's identity when a
	// role's policy is own_record_only.
	OwnerField string

	Relationships map[string]Relationship
	RLSPolicy     map[string]PolicyKind
}

// HasField reports whether the column is part of the entity's exposed set.
func (m *EntityMetadata) HasField(field string) bool {
	return contains(m.Fields, field)
}

// IsExcluded reports whether the column must never be returned.
func (m *EntityMetadata) IsExcluded(field string) bool {
	return contains(m.ExcludedFields, field)
}

// IsRestricted reports whether the column requires elevated permission.
func (m *EntityMetadata) IsRestricted(field string) bool {
	return contains(m.RestrictedFields, field)
}

// IsWritable reports whether the column accepts caller-supplied values.
func (m *EntityMetadata) IsWritable(field string) bool {
	return contains(m.WritableFields, field)
}

func contains(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
