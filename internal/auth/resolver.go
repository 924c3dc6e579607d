package auth

import (
	"context"
	"errors"
	"sort"
	"time"

	"authcore.org/internal/directory"
)

// Resolver computes a user's effective roles and permissions from the
// directory at call time. It never caches: authorization decisions must
// see role and permission revocations immediately, not at token expiry.
type Resolver struct {
	dir *directory.Service
	now func() time.Time
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the time source (useful for tests).
func WithResolverClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver constructs a Resolver over the directory.
func NewResolver(dir *directory.Service, opts ...ResolverOption) (*Resolver, error) {
	if dir == nil {
		return nil, errors.New("auth: directory is required")
	}
	r := &Resolver{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the live principal for the user. Assignments past
// their expiry instant are skipped even when still flagged active; a
// user with no effective roles resolves to an empty (not missing)
// principal.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Principal, error) {
	assignments, err := r.dir.FindActiveRoles(ctx, userID)
	if err != nil {
		return Principal{}, err
	}

	now := r.now().UTC()
	var roles []directory.Role
	permsByCode := make(map[string]directory.Permission)
	for _, a := range assignments {
		if a.Expired(now) {
			continue
		}
		roles = append(roles, directory.Role{ID: a.RoleID, Name: a.RoleName})
		grants, err := r.dir.FindActiveGrants(ctx, a.RoleID)
		if err != nil {
			return Principal{}, err
		}
		for _, perm := range grants {
			permsByCode[perm.Code] = perm
		}
	}

	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	perms := make([]directory.Permission, 0, len(permsByCode))
	for _, perm := range permsByCode {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Code < perms[j].Code })

	return Principal{UserID: userID, Roles: roles, Permissions: perms}, nil
}
