package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/access"
	"github.com/noah-isme/fieldops-api/internal/metadata"
	"github.com/noah-isme/fieldops-api/internal/models"
)

func workOrderMeta(t *testing.T) *metadata.EntityMetadata {
	t.Helper()
	reg, err := metadata.NewRegistry(metadata.Entities())
	require.NoError(t, err)
	m, err := reg.Get("work_order")
	require.NoError(t, err)
	return m
}

func customerMeta(t *testing.T) *metadata.EntityMetadata {
	t.Helper()
	reg, err := metadata.NewRegistry(metadata.Entities())
	require.NoError(t, err)
	m, err := reg.Get("customer")
	require.NoError(t, err)
	return m
}

func TestBuildListDefaults(t *testing.T) {
	b := NewBuilder(20, 100)

	list, count, err := b.BuildList(workOrderMeta(t), models.ListParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM work_orders ORDER BY scheduled_at DESC LIMIT 20 OFFSET 0", list.SQL)
	assert.Empty(t, list.Args)
	assert.Equal(t, "SELECT COUNT(*) FROM work_orders", count.SQL)
}

func TestBuildListSearch(t *testing.T) {
	b := NewBuilder(20, 100)

	list, _, err := b.BuildList(workOrderMeta(t), models.ListParams{Search: "Boiler"}, nil)
	require.NoError(t, err)
	assert.Contains(t, list.SQL, "(LOWER(title::text) LIKE $1 OR LOWER(description::text) LIKE $1)")
	require.Len(t, list.Args, 1)
	assert.Equal(t, "%boiler%", list.Args[0])
}

func TestBuildListSearchRejectedWithoutSearchableFields(t *testing.T) {
	b := NewBuilder(20, 100)
	m := workOrderMeta(t)
	bare := *m
	bare.SearchableFields = nil

	_, _, err := b.BuildList(&bare, models.ListParams{Search: "x"}, nil)
	assert.Error(t, err)
}

func TestBuildListFilters(t *testing.T) {
	b := NewBuilder(20, 100)

	params := models.ListParams{
		Filters: []models.Filter{
			{Field: "status", Op: models.OpEq, Values: []string{"open"}},
			{Field: "priority", Op: models.OpGte, Values: []string{"3"}},
			{Field: "technician_id", Op: models.OpIn, Values: []string{"t1", "t2"}},
			{Field: "status", Op: models.OpNot, Values: []string{"cancelled"}},
		},
	}
	list, _, err := b.BuildList(workOrderMeta(t), params, nil)
	require.NoError(t, err)
	assert.Contains(t, list.SQL, "status = $1")
	assert.Contains(t, list.SQL, "priority >= $2")
	assert.Contains(t, list.SQL, "technician_id IN ($3, $4)")
	assert.Contains(t, list.SQL, "status <> $5")
	assert.Equal(t, []interface{}{"open", "3", "t1", "t2", "cancelled"}, list.Args)
}

func TestBuildListRejectsUnknownFilterField(t *testing.T) {
	b := NewBuilder(20, 100)

	_, _, err := b.BuildList(workOrderMeta(t), models.ListParams{
		Filters: []models.Filter{{Field: "total_amount", Op: models.OpGt, Values: []string{"0"}}},
	}, nil)
	assert.Error(t, err)

	_, _, err = b.BuildList(workOrderMeta(t), models.ListParams{
		Filters: []models.Filter{{Field: "id; DROP TABLE work_orders", Op: models.OpEq, Values: []string{"x"}}},
	}, nil)
	assert.Error(t, err)
}

func TestBuildListRejectsBadOperator(t *testing.T) {
	b := NewBuilder(20, 100)

	_, _, err := b.BuildList(workOrderMeta(t), models.ListParams{
		Filters: []models.Filter{{Field: "status", Op: models.FilterOp("like"), Values: []string{"x"}}},
	}, nil)
	assert.Error(t, err)
}

func TestBuildListRestrictedFilterNeedsElevation(t *testing.T) {
	b := NewBuilder(20, 100)
	m := customerMeta(t)
	filter := []models.Filter{{Field: "internal_rating", Op: models.OpGte, Values: []string{"4"}}}

	_, _, err := b.BuildList(m, models.ListParams{Filters: filter}, nil)
	assert.Error(t, err)

	_, _, err = b.BuildList(m, models.ListParams{Filters: filter, Elevated: true}, nil)
	assert.NoError(t, err)
}

func TestBuildListSortFallback(t *testing.T) {
	b := NewBuilder(20, 100)

	list, _, err := b.BuildList(workOrderMeta(t), models.ListParams{SortBy: "total_amount"}, nil)
	require.NoError(t, err)
	assert.Contains(t, list.SQL, "ORDER BY scheduled_at DESC")

	list, _, err = b.BuildList(workOrderMeta(t), models.ListParams{SortBy: "priority", SortOrder: "asc"}, nil)
	require.NoError(t, err)
	assert.Contains(t, list.SQL, "ORDER BY priority ASC")

	_, _, err = b.BuildList(workOrderMeta(t), models.ListParams{SortOrder: "sideways"}, nil)
	assert.Error(t, err)
}

func TestBuildListPaginationBounds(t *testing.T) {
	b := NewBuilder(20, 100)

	list, _, err := b.BuildList(workOrderMeta(t), models.ListParams{Page: 3, Limit: 10}, nil)
	require.NoError(t, err)
	assert.Contains(t, list.SQL, "LIMIT 10 OFFSET 20")

	_, _, err = b.BuildList(workOrderMeta(t), models.ListParams{Limit: 101}, nil)
	assert.Error(t, err)

	_, _, err = b.BuildList(workOrderMeta(t), models.ListParams{Page: -1}, nil)
	assert.Error(t, err)
}

func TestBuildListRowConstraint(t *testing.T) {
	b := NewBuilder(20, 100)
	rc := &access.Constraint{Column: "customer_id", Value: "u-9"}

	list, count, err := b.BuildList(workOrderMeta(t), models.ListParams{
		Filters: []models.Filter{{Field: "status", Op: models.OpEq, Values: []string{"open"}}},
	}, rc)
	require.NoError(t, err)
	assert.Contains(t, list.SQL, "customer_id = $2")
	assert.Equal(t, []interface{}{"open", "u-9"}, list.Args)
	assert.Contains(t, count.SQL, "customer_id = $2")
}

// Adversarial values must only change bound args, never the SQL shape.
func TestQueryShapeStableUnderAdversarialValues(t *testing.T) {
	b := NewBuilder(20, 100)
	m := workOrderMeta(t)

	benign := models.ListParams{
		Search:  "pump",
		Filters: []models.Filter{{Field: "status", Op: models.OpEq, Values: []string{"open"}}},
	}
	hostile := models.ListParams{
		Search:  "pump'; DROP TABLE work_orders; --",
		Filters: []models.Filter{{Field: "status", Op: models.OpEq, Values: []string{"open' OR '1'='1"}}},
	}

	benignList, _, err := b.BuildList(m, benign, nil)
	require.NoError(t, err)
	hostileList, _, err := b.BuildList(m, hostile, nil)
	require.NoError(t, err)

	assert.Equal(t, benignList.SQL, hostileList.SQL)
	assert.Len(t, hostileList.Args, len(benignList.Args))
	assert.False(t, strings.Contains(hostileList.SQL, "DROP"))
}

func TestBuildGet(t *testing.T) {
	b := NewBuilder(20, 100)
	m := workOrderMeta(t)

	q := b.BuildGet(m, "wo-1", nil)
	assert.Equal(t, "SELECT * FROM work_orders WHERE id = $1 LIMIT 1", q.SQL)
	assert.Equal(t, []interface{}{"wo-1"}, q.Args)

	q = b.BuildGet(m, "wo-1", &access.Constraint{Column: "customer_id", Value: "u-2"})
	assert.Equal(t, "SELECT * FROM work_orders WHERE id = $1 AND customer_id = $2 LIMIT 1", q.SQL)
}

func TestBuildInsertAndUpdate(t *testing.T) {
	b := NewBuilder(20, 100)
	m := workOrderMeta(t)

	q, err := b.BuildInsert(m, models.Record{"id": "wo-1", "title": "Fix boiler", "status": "open"})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO work_orders (id, status, title) VALUES ($1, $2, $3)", q.SQL)
	assert.Equal(t, []interface{}{"wo-1", "open", "Fix boiler"}, q.Args)

	_, err = b.BuildInsert(m, models.Record{"bogus": 1})
	assert.Error(t, err)

	q, err = b.BuildUpdate(m, "wo-1", models.Record{"status": "done"}, &access.Constraint{Column: "customer_id", Value: "u-2"})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE work_orders SET status = $1 WHERE id = $2 AND customer_id = $3", q.SQL)
	assert.Equal(t, []interface{}{"done", "wo-1", "u-2"}, q.Args)

	_, err = b.BuildUpdate(m, "wo-1", models.Record{}, nil)
	assert.Error(t, err)
}

func TestBuildDelete(t *testing.T) {
	b := NewBuilder(20, 100)
	m := workOrderMeta(t)

	q := b.BuildDelete(m, "wo-1", &access.Constraint{Column: "customer_id", Value: "u-2"})
	assert.Equal(t, "DELETE FROM work_orders WHERE id = $1 AND customer_id = $2", q.SQL)
}

func TestBuildRelated(t *testing.T) {
	b := NewBuilder(20, 100)
	m := workOrderMeta(t)
	rel := m.Relationships["invoices"]

	q := b.BuildRelated(rel, []interface{}{"wo-1", "wo-2"})
	assert.Equal(t, "SELECT id, invoice_number, status, total, due_date, work_order_id FROM invoices WHERE work_order_id IN ($1, $2)", q.SQL)
	assert.Equal(t, []interface{}{"wo-1", "wo-2"}, q.Args)
}
