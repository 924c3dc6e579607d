package auth

import (
	"sort"

	"authcore.org/internal/directory"
)

// RolePrefix marks role names inside an authority set, distinguishing
// them from raw permission codes.
const RolePrefix = "ROLE_"

// Principal is the resolved identity and authority set for a user. It is
// an immutable value: mutation happens behind the directory, never here.
type Principal struct {
	UserID      string
	Email       string
	Roles       []directory.Role
	Permissions []directory.Permission
}

// Authorities flattens the principal into the sorted string set embedded
// in access tokens and used for access decisions: prefixed role names
// plus raw permission codes.
func (p Principal) Authorities() []string {
	seen := make(map[string]struct{}, len(p.Roles)+len(p.Permissions))
	out := make([]string, 0, len(p.Roles)+len(p.Permissions))
	for _, role := range p.Roles {
		a := RolePrefix + role.Name
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	for _, perm := range p.Permissions {
		if _, ok := seen[perm.Code]; ok {
			continue
		}
		seen[perm.Code] = struct{}{}
		out = append(out, perm.Code)
	}
	sort.Strings(out)
	return out
}

// HasRole reports whether the principal currently holds the role.
func (p Principal) HasRole(name string) bool {
	for _, role := range p.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// HasPermission reports whether the principal currently holds the
// permission code.
func (p Principal) HasPermission(code string) bool {
	for _, perm := range p.Permissions {
		if perm.Code == code {
			return true
		}
	}
	return false
}
