package access

import (
	"strings"

	"github.com/noah-isme/fieldops-api/internal/metadata"
	"github.com/noah-isme/fieldops-api/internal/models"
)

// Operation is a CRUD verb checked against an entity's policy.
type Operation string

const (
	OpList   Operation = "list"
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Mutating reports whether the operation changes state.
func (op Operation) Mutating() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Constraint is a row-ownership predicate AND-ed into queries on behalf of
// the caller. The caller cannot see or override it.
type Constraint struct {
	Column string
	Value  string
}

// Decision is the transient outcome of a permission check. It is recomputed
// per request and never persisted.
type Decision struct {
	Resource      string
	Operation     Operation
	Allowed       bool
	RowConstraint *Constraint
}

// Resolver answers "may this role perform this operation on this resource"
// from entity metadata and the role directory. Missing policies, unknown
// roles and inactive roles all resolve to denial.
type Resolver struct {
	registry *metadata.Registry
	roles    map[string]models.Role
}

// NewResolver builds a resolver over the registry and the roles loaded at
// startup. Role names are matched case-insensitively.
func NewResolver(registry *metadata.Registry, roles []models.Role) *Resolver {
	index := make(map[string]models.Role, len(roles))
	for _, r := range roles {
		index[strings.ToLower(r.Name)] = r
	}
	return &Resolver{registry: registry, roles: index}
}

// Resolve computes the access decision for role/resource/operation. For
// own_record_only policies the returned constraint carries the owner column
// and the caller's identity; enforcement happens uniformly downstream.
func (r *Resolver) Resolve(role, resource, identity string, op Operation) Decision {
	denied := Decision{Resource: resource, Operation: op, Allowed: false}

	roleRow, ok := r.lookupRole(role)
	if !ok || !roleRow.IsActive {
		return denied
	}

	meta, err := r.registry.Get(resource)
	if err != nil {
		return denied
	}

	policy, ok := meta.RLSPolicy[strings.ToLower(roleRow.Name)]
	if !ok {
		return denied
	}

	switch policy {
	case metadata.PolicyAllRecords:
		return Decision{Resource: resource, Operation: op, Allowed: true}
	case metadata.PolicyOwnRecordOnly:
		return Decision{
			Resource:  resource,
			Operation: op,
			Allowed:   true,
			RowConstraint: &Constraint{
				Column: meta.OwnerField,
				Value:  identity,
			},
		}
	default:
		return denied
	}
}

// MeetsMinimumRole reports whether the role's priority reaches the
// threshold role's priority. Unknown roles on either side fail the check.
func (r *Resolver) MeetsMinimumRole(role, threshold string) bool {
	have, ok := r.lookupRole(role)
	if !ok || !have.IsActive {
		return false
	}
	want, ok := r.lookupRole(threshold)
	if !ok {
		return false
	}
	return have.Priority >= want.Priority
}

// ExactRole is a case-insensitive role equality check.
func (r *Resolver) ExactRole(role, required string) bool {
	roleRow, ok := r.lookupRole(role)
	if !ok || !roleRow.IsActive {
		return false
	}
	return strings.EqualFold(roleRow.Name, required)
}

func (r *Resolver) lookupRole(name string) (models.Role, bool) {
	row, ok := r.roles[strings.ToLower(name)]
	return row, ok
}
