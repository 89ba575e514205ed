package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campuslink.app/internal/audit"
	"campuslink.app/internal/obs"
)

// Auditor receives security-relevant outcomes. *audit.Logger implements it.
type Auditor interface {
	LogLogin(ctx context.Context, userID, email string, success bool, meta audit.Meta)
	LogLogout(ctx context.Context, userID string, meta audit.Meta)
	LogRegister(ctx context.Context, userID, email string, meta audit.Meta)
	LogRoleChange(ctx context.Context, actorID, targetID, oldRole, newRole string, meta audit.Meta)
	LogStatusChange(ctx context.Context, actorID, targetID string, active bool, meta audit.Meta)
	LogProfileUpdate(ctx context.Context, actorID, targetID string, fields []string, meta audit.Meta)
	LogDataAccess(ctx context.Context, actorID, resource, resourceID string, meta audit.Meta)
	LogUnauthorizedAccess(ctx context.Context, userID, resource, reason string, meta audit.Meta)
}

// Service implements the account operations on top of the store and token service.
type Service struct {
	store  Store
	tokens *TokenService
	hasher PasswordHasher
	audit  Auditor
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithHasher overrides the password hasher.
func WithHasher(h PasswordHasher) ServiceOption {
	return func(s *Service) error {
		if h == nil {
			return errors.New("auth: hasher is nil")
		}
		s.hasher = h
		return nil
	}
}

// WithAuditor sets the audit sink.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) error {
		if a != nil {
			s.audit = a
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if store == nil || tokens == nil {
		return nil, errors.New("auth: store and token service are required")
	}
	svc := &Service{
		store:  store,
		tokens: tokens,
		hasher: BcryptHasher{},
		audit:  audit.NewLogger(nil),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Tokens exposes the token service.
func (s *Service) Tokens() *TokenService { return s.tokens }

// SyncGroups makes sure every role's group exists with the registry's permissions.
func (s *Service) SyncGroups(ctx context.Context) error {
	return s.store.Groups(ctx).Sync(ctx, BuiltinGroups())
}

// Register creates a student account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta audit.Meta) (*User, TokenPair, error) {
	if err := in.Validate(); err != nil {
		return nil, TokenPair{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Phone:        in.Phone,
		ImageURL:     in.ImageURL,
		Role:         DefaultRole,
		IsActive:     true,
	}
	if err := s.store.Users(ctx).Create(ctx, u); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, TokenPair{}, fieldError("email", "A user with this email already exists")
		}
		return nil, TokenPair{}, fmt.Errorf("create user: %w", err)
	}
	pair, err := s.tokens.Issue(u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.audit.LogRegister(ctx, u.ID, u.Email, meta)
	return u, pair, nil
}

// Login authenticates credentials. Every failure is audited and raises a MEDIUM
// security event; inactive accounts are refused with ErrInactive.
func (s *Service) Login(ctx context.Context, email, password string, meta audit.Meta) (*User, TokenPair, error) {
	email = NormalizeEmail(email)
	ve := &ValidationError{}
	if email == "" {
		ve.Add("email", "Email is required")
	}
	if password == "" {
		ve.Add("password", "Password is required")
	}
	if err := ve.Err(); err != nil {
		return nil, TokenPair{}, err
	}

	u, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, fmt.Errorf("find user: %w", err)
		}
		s.loginFailed(ctx, email, "failure", meta)
		return nil, TokenPair{}, ErrBadCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		s.loginFailed(ctx, email, "failure", meta)
		return nil, TokenPair{}, ErrBadCredentials
	}
	if !u.IsActive {
		s.loginFailed(ctx, email, "inactive", meta)
		return nil, TokenPair{}, ErrInactive
	}

	pair, err := s.tokens.Issue(u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	obs.LoginAttempt("success")
	s.audit.LogLogin(ctx, u.ID, email, true, meta)
	return u, pair, nil
}

func (s *Service) loginFailed(ctx context.Context, email, outcome string, meta audit.Meta) {
	obs.LoginAttempt(outcome)
	s.audit.LogLogin(ctx, "", email, false, meta)
}

// Refresh exchanges a refresh token for a new access token (and a new refresh
// token when rotation is enabled).
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, nil, fieldError("refresh", "Refresh token is required")
	}
	return s.tokens.Refresh(ctx, refreshToken)
}

// Logout revokes the refresh token. It succeeds for tokens that are already invalid.
func (s *Service) Logout(ctx context.Context, actor Principal, refreshToken string, meta audit.Meta) error {
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	if actor.User != nil {
		s.audit.LogLogout(ctx, actor.User.ID, meta)
	}
	return nil
}

// Principal loads the user with its effective permissions.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	u, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUserNotFound
		}
		return Principal{}, fmt.Errorf("load user: %w", err)
	}
	extra, err := s.store.Groups(ctx).PermissionsForUser(ctx, u.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("load permissions: %w", err)
	}
	return NewPrincipal(u, extra), nil
}

// Authenticate verifies an access token and reloads the user it names, so the
// active flag and group grants are always current.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, *Claims, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return Principal{}, nil, err
	}
	p, err := s.Principal(ctx, claims.Subject)
	if err != nil {
		return Principal{}, nil, err
	}
	return p, claims, nil
}

// CheckPermission reports whether actor holds key.
func (s *Service) CheckPermission(actor Principal, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fieldError("permission", "Permission parameter is required")
	}
	if err := Authorize(&actor, Authenticated()); err != nil {
		return false, err
	}
	return actor.HasPermission(key), nil
}

// GetProfile returns the target user's profile to its owner or an admin.
func (s *Service) GetProfile(ctx context.Context, actor Principal, targetID string, meta audit.Meta) (*User, error) {
	if err := Authorize(&actor, OwnerOrAdmin(targetID)); err != nil {
		return nil, err
	}
	u, err := s.store.Users(ctx).Find(ctx, targetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u.ID != actor.User.ID {
		s.audit.LogDataAccess(ctx, actor.User.ID, "user", u.ID, meta)
	}
	return u, nil
}

// UpdateProfile applies self-service edits for the owner or an admin.
func (s *Service) UpdateProfile(ctx context.Context, actor Principal, targetID string, upd ProfileUpdate, meta audit.Meta) (*User, error) {
	if err := Authorize(&actor, OwnerOrAdmin(targetID)); err != nil {
		return nil, err
	}
	if err := ValidateProfile(&upd); err != nil {
		return nil, err
	}
	u, err := s.store.Users(ctx).UpdateProfile(ctx, targetID, upd)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.audit.LogProfileUpdate(ctx, actor.User.ID, u.ID, upd.Fields(), meta)
	return u, nil
}
