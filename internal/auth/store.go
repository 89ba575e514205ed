package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Groups(ctx context.Context) GroupStore
	Blacklist(ctx context.Context) Blacklist
}

// UserStore manages users.
type UserStore interface {
	// Create inserts u and joins it to the group of u.Role. Duplicate emails yield ErrConflict.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter UserFilter) ([]*User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error)
	SetActive(ctx context.Context, id string, active bool) (*User, error)
	// ChangeRole updates the role and replaces every group membership with the
	// role's group as one atomic unit.
	ChangeRole(ctx context.Context, id string, role Role) (*User, error)
}

// GroupStore manages group-based permission assignment.
type GroupStore interface {
	Sync(ctx context.Context, groups []Group) error
	PermissionsForUser(ctx context.Context, userID string) ([]string, error)
}

// Blacklist records revoked refresh token identifiers.
type Blacklist interface {
	// Add reports whether jti was newly inserted. Adding an existing jti is not an error.
	Add(ctx context.Context, jti, userID string, expiresAt time.Time) (bool, error)
	Contains(ctx context.Context, jti string) (bool, error)
}
