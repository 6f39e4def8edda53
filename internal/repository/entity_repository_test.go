package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/query"
)

func newEntityRepoMock(t *testing.T) (*EntityRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewEntityRepository(sqlx.NewDb(db, "sqlmock")), mock, func() { db.Close() }
}

func TestEntityRepositorySelect(t *testing.T) {
	repo, mock, cleanup := newEntityRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "title", "status"}).
		AddRow("wo-1", []byte("Fix boiler"), "open").
		AddRow("wo-2", []byte("Service AC"), "done")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM work_orders")).
		WithArgs("open").
		WillReturnRows(rows)

	records, err := repo.Select(context.Background(), query.Query{
		SQL:  "SELECT * FROM work_orders WHERE status = $1",
		Args: []interface{}{"open"},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Byte slices are normalised to strings.
	assert.Equal(t, "Fix boiler", records[0]["title"])
	assert.Equal(t, "wo-1", records[0]["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityRepositoryGetNotFound(t *testing.T) {
	repo, mock, cleanup := newEntityRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM work_orders WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), query.Query{
		SQL:  "SELECT * FROM work_orders WHERE id = $1 LIMIT 1",
		Args: []interface{}{"missing"},
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityRepositoryCountAndExec(t *testing.T) {
	repo, mock, cleanup := newEntityRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM work_orders")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	total, err := repo.Count(context.Background(), query.Query{SQL: "SELECT COUNT(*) FROM work_orders"})
	require.NoError(t, err)
	assert.Equal(t, 42, total)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM work_orders WHERE id = $1")).
		WithArgs("wo-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.Exec(context.Background(), query.Query{
		SQL:  "DELETE FROM work_orders WHERE id = $1",
		Args: []interface{}{"wo-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
