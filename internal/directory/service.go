package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"authcore.org/internal/ids"
)

// Service provides the directory's query and mutation operations. All
// mutations are idempotent: assigning an already-active pair or revoking
// an already-inactive one is a no-op, never an error.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over the given store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureBuiltins makes sure the predefined permission catalog exists.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	perms := make([]Permission, 0, len(BuiltinPermissions))
	for _, perm := range BuiltinPermissions {
		perm.ID = ids.New()
		perm.CreatedAt = s.now().UTC()
		perms = append(perms, perm)
	}
	return s.store.EnsurePermissions(ctx, perms)
}

// CreateRole adds a catalog role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC(),
	})
}

// DeleteRole removes a catalog role.
func (s *Service) DeleteRole(ctx context.Context, name string) error {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, name)
}

// CreatePermission adds a catalog permission.
func (s *Service) CreatePermission(ctx context.Context, code, category string) (Permission, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Permission{}, fmt.Errorf("%w: permission code is required", ErrInvalidInput)
	}
	return s.store.CreatePermission(ctx, Permission{
		ID:        ids.New(),
		Code:      code,
		Category:  strings.TrimSpace(category),
		CreatedAt: s.now().UTC(),
	})
}

// DeletePermission removes a catalog permission.
func (s *Service) DeletePermission(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: permission code is required", ErrInvalidInput)
	}
	return s.store.DeletePermission(ctx, code)
}

// FindActiveRoles returns the user's active role assignments. Rows whose
// expiry has passed are included; expiry filtering happens at resolution
// time, since grants carry no expiry of their own.
func (s *Service) FindActiveRoles(ctx context.Context, userID string) ([]RoleAssignment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.ActiveAssignments(ctx, userID)
}

// FindActiveGrants returns the permissions actively granted to a role.
func (s *Service) FindActiveGrants(ctx context.Context, roleID string) ([]Permission, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.ActiveGrants(ctx, roleID)
}

// AssignRole links a user to a role. Passing a nil expiresAt makes the
// assignment permanent. Fails with ErrNotFound when the role name is
// unknown; a second call while an active assignment exists is a no-op.
func (s *Service) AssignRole(ctx context.Context, userID, roleName, assignedBy string, expiresAt *time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	role, err := s.store.RoleByName(ctx, strings.ToUpper(strings.TrimSpace(roleName)))
	if err != nil {
		return err
	}
	_, err = s.store.InsertAssignment(ctx, RoleAssignment{
		ID:         ids.New(),
		UserID:     userID,
		RoleID:     role.ID,
		RoleName:   role.Name,
		AssignedAt: s.now().UTC(),
		AssignedBy: strings.TrimSpace(assignedBy),
		ExpiresAt:  expiresAt,
		Active:     true,
	})
	return err
}

// AssignTemporaryRole assigns a role that expires after the given duration.
func (s *Service) AssignTemporaryRole(ctx context.Context, userID, roleName, assignedBy string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: duration must be greater than zero", ErrInvalidInput)
	}
	expiresAt := s.now().UTC().Add(d)
	return s.AssignRole(ctx, userID, roleName, assignedBy, &expiresAt)
}

// RevokeRole deactivates the user's active assignment for the role, if
// any. Revoking an inactive pair is a no-op.
func (s *Service) RevokeRole(ctx context.Context, userID, roleName string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	role, err := s.store.RoleByName(ctx, strings.ToUpper(strings.TrimSpace(roleName)))
	if err != nil {
		return err
	}
	_, err = s.store.DeactivateAssignment(ctx, userID, role.ID, s.now().UTC())
	return err
}

// GrantPermission links a permission to a role, idempotently.
func (s *Service) GrantPermission(ctx context.Context, roleName, permissionCode, assignedBy string) error {
	role, err := s.store.RoleByName(ctx, strings.ToUpper(strings.TrimSpace(roleName)))
	if err != nil {
		return err
	}
	perm, err := s.store.PermissionByCode(ctx, strings.TrimSpace(permissionCode))
	if err != nil {
		return err
	}
	_, err = s.store.InsertGrant(ctx, RoleGrant{
		ID:             ids.New(),
		RoleID:         role.ID,
		PermissionID:   perm.ID,
		PermissionCode: perm.Code,
		AssignedAt:     s.now().UTC(),
		AssignedBy:     strings.TrimSpace(assignedBy),
		Active:         true,
	})
	return err
}

// RevokePermission deactivates the role's active grant for the
// permission, if any.
func (s *Service) RevokePermission(ctx context.Context, roleName, permissionCode string) error {
	role, err := s.store.RoleByName(ctx, strings.ToUpper(strings.TrimSpace(roleName)))
	if err != nil {
		return err
	}
	perm, err := s.store.PermissionByCode(ctx, strings.TrimSpace(permissionCode))
	if err != nil {
		return err
	}
	_, err = s.store.DeactivateGrant(ctx, role.ID, perm.ID, s.now().UTC())
	return err
}
