package models

// FilterOp enumerates the comparison operators accepted by list endpoints.
type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"
	OpIn  FilterOp = "in"
	OpNot FilterOp = "not"
)

// Valid reports whether the operator is one of the supported set.
func (op FilterOp) Valid() bool {
	switch op {
	case OpEq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNot:
		return true
	}
	return false
}

// Filter targets a single field with an operator and one or more values.
// Values carries multiple entries only for OpIn.
type Filter struct {
	Field  string
	Op     FilterOp
	Values []string
}

// ListParams are the untrusted, already-parsed request parameters for a list
// operation. Field names inside are validated against entity metadata before
// any SQL is built.
type ListParams struct {
	Search    string
	Filters   []Filter
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
	Include   []string

	// Elevated marks callers allowed to touch restricted fields.
	Elevated bool
}

// Record is a dynamically-shaped entity row.
type Record map[string]interface{}
