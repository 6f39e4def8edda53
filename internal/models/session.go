package models

import "time"

// RefreshSession is a persisted refresh-token session. The raw refresh token
// is never stored; TokenHash holds a salted one-way hash of it.
type RefreshSession struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	TokenID    string     `db:"token_id" json:"token_id"`
	TokenHash  string     `db:"token_hash" json:"-"`
	IPAddress  *string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  *string    `db:"user_agent" json:"user_agent,omitempty"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Active reports whether the session may still mint access tokens.
func (s *RefreshSession) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// SessionInfo is the safe, displayable view of a session for the
// list-sessions endpoint. It never carries the token hash.
type SessionInfo struct {
	ID         string     `json:"id"`
	TokenID    string     `json:"token_id"`
	IPAddress  *string    `json:"ip_address,omitempty"`
	UserAgent  *string    `json:"user_agent,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Info converts a session row to its displayable form.
func (s *RefreshSession) Info() SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		TokenID:    s.TokenID,
		IPAddress:  s.IPAddress,
		UserAgent:  s.UserAgent,
		ExpiresAt:  s.ExpiresAt,
		LastUsedAt: s.LastUsedAt,
		RevokedAt:  s.RevokedAt,
		CreatedAt:  s.CreatedAt,
	}
}
