package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campuslink.app/internal/audit"
)

// ListUsers returns users matching filter. Admin only.
func (s *Service) ListUsers(ctx context.Context, actor Principal, filter UserFilter) ([]*User, error) {
	if err := Authorize(&actor, AdminOnly()); err != nil {
		return nil, err
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, fieldError("role", fmt.Sprintf("Invalid role %q", filter.Role))
	}
	users, err := s.store.Users(ctx).List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ChangeRole moves the target user to role. The role column and group membership
// are replaced together by the store. Admin only.
func (s *Service) ChangeRole(ctx context.Context, actor Principal, targetID, role string, meta audit.Meta) (*User, error) {
	if err := Authorize(&actor, AdminOnly()); err != nil {
		return nil, err
	}
	ve := &ValidationError{}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		ve.Add("user_id", "User ID is required")
	}
	newRole, err := ParseRole(role)
	if err != nil {
		ve.Add("role", fmt.Sprintf("Invalid role. Must be one of: %s", roleNames()))
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	users := s.store.Users(ctx)
	current, err := users.Find(ctx, targetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	updated, err := users.ChangeRole(ctx, targetID, newRole)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, fmt.Errorf("change role: %w", err)
	}
	s.audit.LogRoleChange(ctx, actor.User.ID, targetID, string(current.Role), string(newRole), meta)
	return updated, nil
}

// ToggleActive flips the target user's active flag. Admins cannot toggle themselves.
func (s *Service) ToggleActive(ctx context.Context, actor Principal, targetID string, meta audit.Meta) (*User, error) {
	if err := Authorize(&actor, AdminOnly()); err != nil {
		return nil, err
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, fieldError("user_id", "User ID is required")
	}
	if targetID == actor.User.ID {
		return nil, ErrSelfAction
	}
	users := s.store.Users(ctx)
	current, err := users.Find(ctx, targetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	updated, err := users.SetActive(ctx, targetID, !current.IsActive)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, fmt.Errorf("set active: %w", err)
	}
	s.audit.LogStatusChange(ctx, actor.User.ID, targetID, updated.IsActive, meta)
	return updated, nil
}

// CreateSuperuser provisions an administrative account from the command line.
func (s *Service) CreateSuperuser(ctx context.Context, email, name, password string) (*User, error) {
	in := RegisterInput{Email: email, Name: name, Password: password, PasswordConfirm: password}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         DefaultRole,
		IsActive:     true,
		IsVerified:   true,
		IsSuperuser:  true,
	}
	if err := s.store.Users(ctx).Create(ctx, u); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fieldError("email", "A user with this email already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func roleNames() string {
	roles := Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
