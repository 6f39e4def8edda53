package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldops-api/internal/models"
)

// SessionRepository persists refresh-token sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = "id, user_id, token_id, token_hash, ip_address, user_agent, expires_at, last_used_at, revoked_at, created_at"

// Create inserts a new session row. Concurrent creates for the same user are
// independent inserts; there is no serialization point between them.
func (r *SessionRepository) Create(ctx context.Context, session *models.RefreshSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_sessions (id, user_id, token_id, token_hash, ip_address, user_agent, expires_at, last_used_at, revoked_at, created_at)
		VALUES (:id, :user_id, :token_id, :token_hash, :ip_address, :user_agent, :expires_at, :last_used_at, :revoked_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create refresh session: %w", err)
	}
	return nil
}

// Rotate atomically consumes the active session identified by tokenID and
// replaces it with next. The row is locked for the duration of the
// transaction so two concurrent uses of the same refresh token cannot both
// succeed: the loser observes no active row and gets sql.ErrNoRows.
//
// verify runs inside the transaction against the locked row; returning an
// error aborts the rotation without mutating anything.
func (r *SessionRepository) Rotate(ctx context.Context, tokenID string, now time.Time, verify func(*models.RefreshSession) error, next *models.RefreshSession) (*models.RefreshSession, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM refresh_sessions WHERE token_id = $1 AND revoked_at IS NULL AND expires_at > $2 FOR UPDATE`, sessionColumns)
	var current models.RefreshSession
	if err := tx.GetContext(ctx, &current, query, tokenID, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock session for rotation: %w", err)
	}

	if err := verify(&current); err != nil {
		return nil, err
	}

	const consume = `UPDATE refresh_sessions SET last_used_at = $2, revoked_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, consume, current.ID, now, now); err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}

	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	const insert = `INSERT INTO refresh_sessions (id, user_id, token_id, token_hash, ip_address, user_agent, expires_at, last_used_at, revoked_at, created_at)
		VALUES (:id, :user_id, :token_id, :token_hash, :ip_address, :user_agent, :expires_at, :last_used_at, :revoked_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, next); err != nil {
		return nil, fmt.Errorf("insert rotated session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rotation: %w", err)
	}
	return &current, nil
}

// Revoke marks a session revoked by token id. It is idempotent: revoking an
// already-revoked or unknown session reports false without error.
func (r *SessionRepository) Revoke(ctx context.Context, tokenID string, revokedAt time.Time) (bool, error) {
	const query = `UPDATE refresh_sessions SET revoked_at = $2 WHERE token_id = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, tokenID, revokedAt)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke session rows: %w", err)
	}
	return affected > 0, nil
}

// RevokeAllForUser revokes every active session of a user and returns the
// count revoked.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	const query = `UPDATE refresh_sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions rows: %w", err)
	}
	return affected, nil
}

// DeleteExpiredBefore purges rows whose expiry passed before the cutoff.
// Revoked-but-unexpired rows are retained for audit; only expiry plus the
// retention window removes a row.
func (r *SessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM refresh_sessions WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions rows: %w", err)
	}
	return deleted, nil
}

// ListForUser returns the user's sessions, newest first.
func (r *SessionRepository) ListForUser(ctx context.Context, userID string) ([]models.RefreshSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM refresh_sessions WHERE user_id = $1 ORDER BY created_at DESC`, sessionColumns)
	var sessions []models.RefreshSession
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	return sessions, nil
}
