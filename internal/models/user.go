package models

import "time"

// UserRole enumerates the built-in roles ordered by priority.
type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleManager    UserRole = "manager"
	RoleDispatcher UserRole = "dispatcher"
	RoleTechnician UserRole = "technician"
	RoleCustomer   UserRole = "customer"
)

// User represents an account able to authenticate against the API.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Provider     string     `db:"provider" json:"provider"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Role is a row of the roles table. Priority is a total order (1-5) used for
// "minimum role" checks; there is no inheritance between roles.
type Role struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Priority int    `db:"priority" json:"priority"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
