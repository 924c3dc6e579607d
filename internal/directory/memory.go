package directory

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node setups.
// The mutex makes every check-then-write a single atomic unit, which is
// what upholds the one-active-row intent without a database constraint.
type MemoryStore struct {
	mu          sync.Mutex
	roles       map[string]Role       // by name
	permissions map[string]Permission // by code
	assignments []RoleAssignment
	grants      []RoleGrant
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:       make(map[string]Role),
		permissions: make(map[string]Permission),
	}
}

func (s *MemoryStore) CreateRole(_ context.Context, role Role) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.Name]; ok {
		return Role{}, ErrConflict
	}
	s.roles[role.Name] = role
	return role, nil
}

func (s *MemoryStore) RoleByName(_ context.Context, name string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[name]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (s *MemoryStore) DeleteRole(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[name]; !ok {
		return ErrNotFound
	}
	delete(s.roles, name)
	return nil
}

func (s *MemoryStore) CreatePermission(_ context.Context, perm Permission) (Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[perm.Code]; ok {
		return Permission{}, ErrConflict
	}
	s.permissions[perm.Code] = perm
	return perm, nil
}

func (s *MemoryStore) PermissionByCode(_ context.Context, code string) (Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.permissions[code]
	if !ok {
		return Permission{}, ErrNotFound
	}
	return perm, nil
}

func (s *MemoryStore) DeletePermission(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[code]; !ok {
		return ErrNotFound
	}
	delete(s.permissions, code)
	return nil
}

func (s *MemoryStore) EnsurePermissions(_ context.Context, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, perm := range perms {
		if _, ok := s.permissions[perm.Code]; ok {
			continue
		}
		s.permissions[perm.Code] = perm
	}
	return nil
}

func (s *MemoryStore) ActiveAssignments(_ context.Context, userID string) ([]RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []RoleAssignment
	for _, a := range s.assignments {
		if a.UserID == userID && a.Active {
			result = append(result, a)
		}
	}
	return result, nil
}

func (s *MemoryStore) ActiveGrants(_ context.Context, roleID string) ([]Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Permission
	for _, g := range s.grants {
		if g.RoleID != roleID || !g.Active {
			continue
		}
		for _, perm := range s.permissions {
			if perm.ID == g.PermissionID {
				result = append(result, perm)
				break
			}
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertAssignment(_ context.Context, a RoleAssignment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if existing.UserID == a.UserID && existing.RoleID == a.RoleID && existing.Active {
			return false, nil
		}
	}
	s.assignments = append(s.assignments, a)
	return true, nil
}

func (s *MemoryStore) DeactivateAssignment(_ context.Context, userID, roleID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assignments {
		a := &s.assignments[i]
		if a.UserID == userID && a.RoleID == roleID && a.Active {
			a.Active = false
			revokedAt := at
			a.RevokedAt = &revokedAt
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) InsertGrant(_ context.Context, g RoleGrant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.grants {
		if existing.RoleID == g.RoleID && existing.PermissionID == g.PermissionID && existing.Active {
			return false, nil
		}
	}
	s.grants = append(s.grants, g)
	return true, nil
}

func (s *MemoryStore) DeactivateGrant(_ context.Context, roleID, permissionID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.grants {
		g := &s.grants[i]
		if g.RoleID == roleID && g.PermissionID == permissionID && g.Active {
			g.Active = false
			revokedAt := at
			g.RevokedAt = &revokedAt
			return true, nil
		}
	}
	return false, nil
}

// AssignmentHistory returns every assignment row ever inserted for the
// pair, active or not. Used by tests to check the audit-trail behavior.
func (s *MemoryStore) AssignmentHistory(userID, roleID string) []RoleAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []RoleAssignment
	for _, a := range s.assignments {
		if a.UserID == userID && a.RoleID == roleID {
			result = append(result, a)
		}
	}
	return result
}

var _ Store = (*MemoryStore)(nil)
