package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Principal represents a user with resolved permissions.
type Principal struct {
	User        *User
	Permissions map[string]struct{}
}

// NewPrincipal combines the static permissions of the user's role with any extra
// grants coming from group membership.
func NewPrincipal(user *User, extra []string) Principal {
	set := make(map[string]struct{})
	if user != nil {
		for _, p := range PermissionsFor(user.Role) {
			set[p] = struct{}{}
		}
	}
	for _, p := range extra {
		set[p] = struct{}{}
	}
	return Principal{User: user, Permissions: set}
}

// IsAdmin reports whether the principal holds the administrative bypass.
func (p Principal) IsAdmin() bool {
	return p.User != nil && p.User.IsSuperuser
}

// HasPermission reports whether the principal can execute action identified by key.
func (p Principal) HasPermission(key string) bool {
	if p.IsAdmin() {
		return true
	}
	_, ok := p.Permissions[key]
	return ok
}

// HasRole reports whether the principal's role is one of roles.
func (p Principal) HasRole(roles ...Role) bool {
	if p.User == nil {
		return false
	}
	for _, r := range roles {
		if p.User.Role == r {
			return true
		}
	}
	return false
}

// PermissionList returns the effective permissions sorted by key. Admins hold the whole catalog.
func (p Principal) PermissionList() []string {
	var out []string
	if p.IsAdmin() {
		for _, perm := range catalog {
			out = append(out, perm.Key)
		}
	} else {
		out = make([]string, 0, len(p.Permissions))
		for k := range p.Permissions {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Requirement is a single authorization predicate applied after authentication.
type Requirement struct {
	name  string
	allow func(p *Principal) bool
}

func (r Requirement) String() string { return r.name }

// Authenticated only requires an active, authenticated principal.
func Authenticated() Requirement {
	return Requirement{name: "authenticated", allow: func(*Principal) bool { return true }}
}

// RoleIn requires one of roles. Admins bypass it.
func RoleIn(roles ...Role) Requirement {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return Requirement{
		name: "role in {" + strings.Join(names, ",") + "}",
		allow: func(p *Principal) bool {
			return p.IsAdmin() || p.HasRole(roles...)
		},
	}
}

// RequirePermission requires the named permission.
func RequirePermission(key string) Requirement {
	return Requirement{
		name:  "permission " + key,
		allow: func(p *Principal) bool { return p.HasPermission(key) },
	}
}

// OwnerOrAdmin allows the owner of a resource, or an admin through an explicit bypass.
func OwnerOrAdmin(ownerID string) Requirement {
	return Requirement{
		name: "owner or admin",
		allow: func(p *Principal) bool {
			if p.IsAdmin() {
				return true
			}
			return ownerID != "" && p.User.ID == ownerID
		},
	}
}

// AdminOnly requires the administrative bypass.
func AdminOnly() Requirement {
	return Requirement{name: "admin", allow: func(p *Principal) bool { return p.IsAdmin() }}
}

// Authorize applies reqs in order after checking authentication and the active flag.
// It fails closed with ErrUnauthenticated, ErrInactive or a wrapped ErrForbidden.
func Authorize(p *Principal, reqs ...Requirement) error {
	if p == nil || p.User == nil {
		return ErrUnauthenticated
	}
	if !p.User.IsActive {
		return ErrInactive
	}
	for _, req := range reqs {
		if req.allow == nil || !req.allow(p) {
			return fmt.Errorf("%w: requires %s", ErrForbidden, req.name)
		}
	}
	return nil
}
