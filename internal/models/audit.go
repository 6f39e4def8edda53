package models

import "time"

// Audit actions recorded by the API.
const (
	AuditActionLogin          = "login"
	AuditActionLogout         = "logout"
	AuditActionLogoutAll      = "logout_all"
	AuditActionRefresh        = "token_refresh"
	AuditActionPasswordChange = "password_change"
	AuditActionCreate         = "create"
	AuditActionUpdate         = "update"
	AuditActionDelete         = "delete"
)

// AuditLog captures a mutating action for the audit sink. The sink owns its
// own schema and delivery guarantees; this core only emits.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
