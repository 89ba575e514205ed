package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"campuslink.app/internal/auth"
	"campuslink.app/internal/ids"
)

// SmokeResult summarizes a passing smoke run.
type SmokeResult struct {
	UserID      string
	Email       string
	Permissions int
	Rotated     bool
}

// Smoke registers a throwaway student and walks the token lifecycle:
// login, current user, refresh, logout, and rejection of the revoked token.
func Smoke(ctx context.Context, c *Client, password string) (SmokeResult, error) {
	email := "smoke-" + strings.ToLower(ids.New()) + "@campus.edu"
	var res SmokeResult

	reg, err := c.Register(ctx, auth.RegisterInput{
		Email:           email,
		Name:            "Smoke Test",
		Password:        password,
		PasswordConfirm: password,
	})
	if err != nil {
		return res, fmt.Errorf("register: %w", err)
	}
	if reg.User == nil || reg.User.Role != auth.RoleStudent {
		return res, errors.New("register: expected a student account")
	}
	res.UserID, res.Email = reg.User.ID, email

	sess, err := c.Login(ctx, email, password)
	if err != nil {
		return res, fmt.Errorf("login: %w", err)
	}

	me, perms, err := c.CurrentUser(ctx, sess.Access)
	if err != nil {
		return res, fmt.Errorf("current user: %w", err)
	}
	if me == nil || me.ID != res.UserID {
		return res, errors.New("current user: identity mismatch")
	}
	res.Permissions = len(perms)

	refreshed, err := c.Refresh(ctx, sess.Refresh)
	if err != nil {
		return res, fmt.Errorf("refresh: %w", err)
	}
	refresh := sess.Refresh
	if refreshed.Refresh != "" {
		res.Rotated = true
		refresh = refreshed.Refresh
	}

	if err := c.Logout(ctx, refreshed.Access, refresh); err != nil {
		return res, fmt.Errorf("logout: %w", err)
	}
	_, err = c.Refresh(ctx, refresh)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return res, fmt.Errorf("revoked refresh token: expected 401, got %v", err)
	}
	return res, nil
}
