package metadata

import (
	"fmt"

	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

// Registry is the load-once catalog of entity metadata. It is immutable after
// NewRegistry returns, so concurrent readers need no locking.
type Registry struct {
	entities map[string]*EntityMetadata
}

// NewRegistry validates and indexes the provided metadata records. A record
// that contradicts itself (unsortable default sort, missing owner column for
// an own_record_only policy, excluded searchable field) fails startup rather
// than failing requests later.
func NewRegistry(records []*EntityMetadata) (*Registry, error) {
	entities := make(map[string]*EntityMetadata, len(records))
	for _, m := range records {
		if err := validate(m); err != nil {
			return nil, err
		}
		if _, exists := entities[m.Name]; exists {
			return nil, fmt.Errorf("metadata: duplicate entity %q", m.Name)
		}
		entities[m.Name] = m
	}
	return &Registry{entities: entities}, nil
}

// Get returns the metadata for an entity name.
func (r *Registry) Get(entity string) (*EntityMetadata, error) {
	m, ok := r.entities[entity]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown entity %q", entity))
	}
	return m, nil
}

// Entities lists the registered entity names.
func (r *Registry) Entities() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	return names
}

// ValidateField decides allow-list membership for a field. This is the only
// place that decision is made.
func (r *Registry) ValidateField(entity, field string, kind FieldKind) (bool, error) {
	m, err := r.Get(entity)
	if err != nil {
		return false, err
	}

	switch kind {
	case FieldSearch:
		return contains(m.SearchableFields, field), nil
	case FieldFilter:
		return contains(m.FilterableFields, field), nil
	case FieldSort:
		return contains(m.SortableFields, field), nil
	default:
		return false, fmt.Errorf("metadata: unknown field kind %q", kind)
	}
}

func validate(m *EntityMetadata) error {
	if m.Name == "" || m.TableName == "" || m.PrimaryKey == "" {
		return fmt.Errorf("metadata: entity %q missing name, table or primary key", m.Name)
	}
	if !m.HasField(m.PrimaryKey) {
		return fmt.Errorf("metadata: entity %q primary key %q not in fields", m.Name, m.PrimaryKey)
	}
	if m.IdentityField != "" && !m.HasField(m.IdentityField) {
		return fmt.Errorf("metadata: entity %q identity field %q not in fields", m.Name, m.IdentityField)
	}

	for _, group := range []struct {
		kind   string
		fields []string
	}{
		{"searchable", m.SearchableFields},
		{"filterable", m.FilterableFields},
		{"sortable", m.SortableFields},
		{"writable", m.WritableFields},
		{"excluded", m.ExcludedFields},
		{"restricted", m.RestrictedFields},
	} {
		for _, f := range group.fields {
			if !m.HasField(f) {
				return fmt.Errorf("metadata: entity %q %s field %q not in fields", m.Name, group.kind, f)
			}
		}
	}

	for _, f := range m.SearchableFields {
		if m.IsExcluded(f) {
			return fmt.Errorf("metadata: entity %q field %q is both searchable and excluded", m.Name, f)
		}
	}

	if m.DefaultSort.Field == "" {
		return fmt.Errorf("metadata: entity %q missing default sort", m.Name)
	}
	if !contains(m.SortableFields, m.DefaultSort.Field) {
		return fmt.Errorf("metadata: entity %q default sort %q not sortable", m.Name, m.DefaultSort.Field)
	}
	if m.DefaultSort.Order != "ASC" && m.DefaultSort.Order != "DESC" {
		return fmt.Errorf("metadata: entity %q default sort order %q invalid", m.Name, m.DefaultSort.Order)
	}

	for role, policy := range m.RLSPolicy {
		switch policy {
		case PolicyOwnRecordOnly:
			if m.OwnerField == "" {
				return fmt.Errorf("metadata: entity %q role %q is own_record_only but no owner field declared", m.Name, role)
			}
			if !m.HasField(m.OwnerField) {
				return fmt.Errorf("metadata: entity %q owner field %q not in fields", m.Name, m.OwnerField)
			}
		case PolicyAllRecords, PolicyNone:
		default:
			return fmt.Errorf("metadata: entity %q role %q has unknown policy %q", m.Name, role, policy)
		}
	}

	for name, rel := range m.Relationships {
		if rel.Table == "" || rel.ForeignKey == "" {
			return fmt.Errorf("metadata: entity %q relationship %q missing table or foreign key", m.Name, name)
		}
		if len(rel.Fields) == 0 {
			return fmt.Errorf("metadata: entity %q relationship %q declares no fields", m.Name, name)
		}
	}

	return nil
}
