package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/query"
)

// EntityRepository executes the parameterized queries produced by the query
// builder. It is entity-agnostic: rows come back as dynamically-shaped
// records so one repository serves every registered entity.
type EntityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository constructs an EntityRepository.
func NewEntityRepository(db *sqlx.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// Select runs a list query and scans each row into a record.
func (r *EntityRepository) Select(ctx context.Context, q query.Query) ([]models.Record, error) {
	rows, err := r.db.QueryxContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	for rows.Next() {
		record := models.Record{}
		if err := rows.MapScan(record); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		normalizeRecord(record)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Get runs a single-row query. sql.ErrNoRows passes through untouched so the
// service can map it to not-found.
func (r *EntityRepository) Get(ctx context.Context, q query.Query) (models.Record, error) {
	rows, err := r.db.QueryxContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get record: %w", err)
		}
		return nil, sql.ErrNoRows
	}

	record := models.Record{}
	if err := rows.MapScan(record); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	normalizeRecord(record)
	return record, nil
}

// Count runs a count query.
func (r *EntityRepository) Count(ctx context.Context, q query.Query) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, q.SQL, q.Args...); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return total, nil
}

// Exec runs a mutation and returns the number of affected rows.
func (r *EntityRepository) Exec(ctx context.Context, q query.Query) (int64, error) {
	res, err := r.db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, fmt.Errorf("exec mutation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mutation rows affected: %w", err)
	}
	return affected, nil
}

// normalizeRecord converts driver byte slices to strings so records marshal
// as text rather than base64.
func normalizeRecord(record models.Record) {
	for k, v := range record {
		if b, ok := v.([]byte); ok {
			record[k] = string(b)
		}
	}
}
