package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/fieldops-api/internal/access"
	"github.com/noah-isme/fieldops-api/internal/metadata"
	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

// Query is a parameterized statement ready for execution. Caller-supplied
// values only ever appear in Args; identifiers in SQL come exclusively from
// entity metadata.
type Query struct {
	SQL  string
	Args []interface{}
}

// Builder turns validated request parameters plus metadata into parameterized
// SQL. It holds no per-request state and is safe for concurrent use.
type Builder struct {
	defaultLimit int
	maxLimit     int
}

// NewBuilder constructs a Builder with pagination bounds.
func NewBuilder(defaultLimit, maxLimit int) *Builder {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Builder{defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// BuildList produces the page query and the matching count query for a list
// request. The row constraint, when present, is AND-ed in exactly like a
// system filter.
func (b *Builder) BuildList(m *metadata.EntityMetadata, params models.ListParams, rc *access.Constraint) (Query, Query, error) {
	where, args, err := b.buildWhere(m, params, rc)
	if err != nil {
		return Query{}, Query{}, err
	}

	orderBy, err := b.buildOrder(m, params)
	if err != nil {
		return Query{}, Query{}, err
	}

	limit, offset, err := b.buildBounds(params)
	if err != nil {
		return Query{}, Query{}, err
	}

	base := fmt.Sprintf("FROM %s%s", m.TableName, where)
	list := Query{
		SQL:  fmt.Sprintf("SELECT * %s ORDER BY %s LIMIT %d OFFSET %d", base, orderBy, limit, offset),
		Args: args,
	}
	count := Query{
		SQL:  fmt.Sprintf("SELECT COUNT(*) %s", base),
		Args: args,
	}
	return list, count, nil
}

// BuildGet fetches a single row by primary key within the caller's RLS window.
func (b *Builder) BuildGet(m *metadata.EntityMetadata, id string, rc *access.Constraint) Query {
	args := []interface{}{id}
	sqlText := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", m.TableName, m.PrimaryKey)
	if rc != nil {
		args = append(args, rc.Value)
		sqlText += fmt.Sprintf(" AND %s = $2", rc.Column)
	}
	return Query{SQL: sqlText + " LIMIT 1", Args: args}
}

// BuildInsert produces an INSERT for the record. Every key must be a known
// column; the caller is responsible for restricting keys to writable fields
// before merging in system columns.
func (b *Builder) BuildInsert(m *metadata.EntityMetadata, record models.Record) (Query, error) {
	keys, err := recordColumns(m, record)
	if err != nil {
		return Query{}, err
	}

	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = record[k]
	}

	sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		m.TableName, strings.Join(keys, ", "), strings.Join(placeholders, ", "))
	return Query{SQL: sqlText, Args: args}, nil
}

// BuildUpdate produces an UPDATE by primary key, constrained to the caller's
// RLS window when a constraint is present.
func (b *Builder) BuildUpdate(m *metadata.EntityMetadata, id string, record models.Record, rc *access.Constraint) (Query, error) {
	keys, err := recordColumns(m, record)
	if err != nil {
		return Query{}, err
	}
	if len(keys) == 0 {
		return Query{}, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}

	assignments := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys)+2)
	for i, k := range keys {
		assignments[i] = fmt.Sprintf("%s = $%d", k, i+1)
		args = append(args, record[k])
	}

	args = append(args, id)
	sqlText := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		m.TableName, strings.Join(assignments, ", "), m.PrimaryKey, len(args))
	if rc != nil {
		args = append(args, rc.Value)
		sqlText += fmt.Sprintf(" AND %s = $%d", rc.Column, len(args))
	}
	return Query{SQL: sqlText, Args: args}, nil
}

// BuildDelete produces a DELETE by primary key within the RLS window.
func (b *Builder) BuildDelete(m *metadata.EntityMetadata, id string, rc *access.Constraint) Query {
	args := []interface{}{id}
	sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", m.TableName, m.PrimaryKey)
	if rc != nil {
		args = append(args, rc.Value)
		sqlText += fmt.Sprintf(" AND %s = $2", rc.Column)
	}
	return Query{SQL: sqlText, Args: args}
}

// BuildRelated fetches the declared columns of a relationship for a page of
// parent keys. The foreign key rides along so rows can be grouped by parent.
func (b *Builder) BuildRelated(rel metadata.Relationship, parentIDs []interface{}) Query {
	columns := rel.Fields
	if !containsColumn(columns, rel.ForeignKey) {
		columns = append(append([]string{}, columns...), rel.ForeignKey)
	}

	placeholders := make([]string, len(parentIDs))
	for i := range parentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sqlText := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		strings.Join(columns, ", "), rel.Table, rel.ForeignKey, strings.Join(placeholders, ", "))
	return Query{SQL: sqlText, Args: parentIDs}
}

func (b *Builder) buildWhere(m *metadata.EntityMetadata, params models.ListParams, rc *access.Constraint) (string, []interface{}, error) {
	var conditions []string
	var args []interface{}

	if params.Search != "" {
		if len(m.SearchableFields) == 0 {
			return "", nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("entity %q does not support search", m.Name))
		}
		args = append(args, "%"+strings.ToLower(params.Search)+"%")
		idx := len(args)
		matches := make([]string, len(m.SearchableFields))
		for i, field := range m.SearchableFields {
			matches[i] = fmt.Sprintf("LOWER(%s::text) LIKE $%d", field, idx)
		}
		conditions = append(conditions, "("+strings.Join(matches, " OR ")+")")
	}

	for _, f := range params.Filters {
		cond, filterArgs, err := b.buildFilter(m, f, len(args), params.Elevated)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, cond)
		args = append(args, filterArgs...)
	}

	if rc != nil {
		args = append(args, rc.Value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", rc.Column, len(args)))
	}

	if len(conditions) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

func (b *Builder) buildFilter(m *metadata.EntityMetadata, f models.Filter, argOffset int, elevated bool) (string, []interface{}, error) {
	if !containsColumn(m.FilterableFields, f.Field) {
		return "", nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("field %q is not filterable on %q", f.Field, m.Name))
	}
	if m.IsRestricted(f.Field) && !elevated {
		return "", nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("field %q requires elevated permission", f.Field))
	}
	if !f.Op.Valid() {
		return "", nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("unsupported filter operator %q", f.Op))
	}

	switch f.Op {
	case models.OpIn:
		if len(f.Values) == 0 {
			return "", nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("filter %q requires at least one value", f.Field))
		}
		placeholders := make([]string, len(f.Values))
		args := make([]interface{}, len(f.Values))
		for i, v := range f.Values {
			placeholders[i] = fmt.Sprintf("$%d", argOffset+i+1)
			args[i] = v
		}
		return fmt.Sprintf("%s IN (%s)", f.Field, strings.Join(placeholders, ", ")), args, nil
	default:
		if len(f.Values) != 1 {
			return "", nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("filter %q expects exactly one value", f.Field))
		}
		op, ok := comparators[f.Op]
		if !ok {
			return "", nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("unsupported filter operator %q", f.Op))
		}
		return fmt.Sprintf("%s %s $%d", f.Field, op, argOffset+1), []interface{}{f.Values[0]}, nil
	}
}

var comparators = map[models.FilterOp]string{
	models.OpEq:  "=",
	models.OpNot: "<>",
	models.OpGt:  ">",
	models.OpGte: ">=",
	models.OpLt:  "<",
	models.OpLte: "<=",
}

func (b *Builder) buildOrder(m *metadata.EntityMetadata, params models.ListParams) (string, error) {
	field := m.DefaultSort.Field
	order := m.DefaultSort.Order

	if params.SortBy != "" {
		if !containsColumn(m.SortableFields, params.SortBy) {
			// Unknown sort fields fall back to the default rather than erroring;
			// restricted ones still need elevation.
			field = m.DefaultSort.Field
		} else if m.IsRestricted(params.SortBy) && !params.Elevated {
			return "", appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("field %q requires elevated permission", params.SortBy))
		} else {
			field = params.SortBy
		}
	}

	if params.SortOrder != "" {
		switch strings.ToUpper(params.SortOrder) {
		case "ASC":
			order = "ASC"
		case "DESC":
			order = "DESC"
		default:
			return "", appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("invalid sort order %q", params.SortOrder))
		}
	}

	return field + " " + order, nil
}

func (b *Builder) buildBounds(params models.ListParams) (limit, offset int, err error) {
	page := params.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "page must be at least 1")
	}

	limit = params.Limit
	if limit == 0 {
		limit = b.defaultLimit
	}
	if limit < 0 || limit > b.maxLimit {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("limit must be between 1 and %d", b.maxLimit))
	}

	return limit, (page - 1) * limit, nil
}

func recordColumns(m *metadata.EntityMetadata, record models.Record) ([]string, error) {
	keys := make([]string, 0, len(record))
	for k := range record {
		if !m.HasField(k) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("unknown field %q for %q", k, m.Name))
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func containsColumn(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
