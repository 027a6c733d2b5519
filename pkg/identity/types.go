// Package identity owns user accounts: credentials, roles and the
// signed session tokens that establish a request principal.
package identity

import "time"

// Role is the account-level role. Administrators bypass all
// entitlement checks.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User represents an account
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"` // never serialized
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Principal is the authenticated actor attached to a request context.
type Principal struct {
	UserID int64
	Role   Role
}

// CreateUserRequest represents a provisioning request (admin only)
type CreateUserRequest struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"`
}

// UpdateUserRequest represents a role or password change (admin only)
type UpdateUserRequest struct {
	Role     *Role   `json:"role,omitempty"`
	Password *string `json:"password,omitempty"`
}
