// Package directory holds the role/permission catalog and the
// time-bounded links between users, roles, and permissions.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("directory: not found")
	ErrConflict     = errors.New("directory: already exists")
	ErrInvalidInput = errors.New("directory: invalid input")
)

// Role is a stable catalog entry, created and deleted administratively.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission is a stable catalog entry identifying one capability.
type Permission struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleAssignment links a user to a role. A nil ExpiresAt means the
// assignment never expires. Revocation only flips Active to false;
// deactivated rows are kept as history and a re-grant inserts a new row.
type RoleAssignment struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	RoleID     string     `json:"role_id"`
	RoleName   string     `json:"role_name"`
	AssignedAt time.Time  `json:"assigned_at"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Active     bool       `json:"active"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Expired reports whether the assignment's expiry instant has passed.
// Expiry is evaluated lazily at read time; an expired row may stay
// Active=true forever and is simply ignored by resolution.
func (a RoleAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// RoleGrant links a role to a permission, with the same active-row
// semantics as RoleAssignment but no expiry.
type RoleGrant struct {
	ID             string     `json:"id"`
	RoleID         string     `json:"role_id"`
	PermissionID   string     `json:"permission_id"`
	PermissionCode string     `json:"permission_code"`
	AssignedAt     time.Time  `json:"assigned_at"`
	AssignedBy     string     `json:"assigned_by,omitempty"`
	Active         bool       `json:"active"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

// Store describes the persistence operations the directory requires.
//
// InsertAssignment and InsertGrant must execute their
// active-row-exists check and the insert as one atomic unit per
// (subject, target) pair, reporting false without error when an active
// row already exists. Deactivate operations report whether a row was
// actually deactivated.
type Store interface {
	CreateRole(ctx context.Context, role Role) (Role, error)
	RoleByName(ctx context.Context, name string) (Role, error)
	DeleteRole(ctx context.Context, name string) error

	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	PermissionByCode(ctx context.Context, code string) (Permission, error)
	DeletePermission(ctx context.Context, code string) error
	EnsurePermissions(ctx context.Context, perms []Permission) error

	ActiveAssignments(ctx context.Context, userID string) ([]RoleAssignment, error)
	ActiveGrants(ctx context.Context, roleID string) ([]Permission, error)

	InsertAssignment(ctx context.Context, a RoleAssignment) (bool, error)
	DeactivateAssignment(ctx context.Context, userID, roleID string, at time.Time) (bool, error)
	InsertGrant(ctx context.Context, g RoleGrant) (bool, error)
	DeactivateGrant(ctx context.Context, roleID, permissionID string, at time.Time) (bool, error)
}
