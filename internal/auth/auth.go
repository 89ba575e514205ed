package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"campuslink.app/internal/obs"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	defaultIssuer     = "campuslink"
	defaultAccessTTL  = 60 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	minSecretLength   = 16
)

// TokenConfig is the immutable configuration of the token service.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Rotate blacklists the presented refresh token on every refresh and issues a new one.
	Rotate bool
}

// Claims carried by access and refresh tokens. Refresh tokens only set UserID and TokenType.
type Claims struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	Role        Role   `json:"role,omitempty"`
	Name        string `json:"name,omitempty"`
	IsSuperuser bool   `json:"is_superuser,omitempty"`
	TokenType   string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	// Rotated is set when RefreshToken differs from the token presented to Refresh.
	Rotated bool
}

// TokenService issues, verifies, refreshes and revokes session tokens.
type TokenService struct {
	cfg       TokenConfig
	users     UserStore
	blacklist Blacklist
	now       func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService) error

// WithTokenClock overrides time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewTokenService validates cfg and fills in defaults.
func NewTokenService(cfg TokenConfig, users UserStore, blacklist Blacklist, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("auth: token secret must be at least %d bytes", minSecretLength)
	}
	if users == nil || blacklist == nil {
		return nil, errors.New("auth: user store and blacklist are required")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	svc := &TokenService{cfg: cfg, users: users, blacklist: blacklist, now: time.Now}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Rotates reports whether refresh rotation is enabled.
func (s *TokenService) Rotates() bool { return s.cfg.Rotate }

// Issue mints a new access and refresh pair for u.
func (s *TokenService) Issue(u *User) (TokenPair, error) {
	if u == nil || u.ID == "" {
		return TokenPair{}, ErrUserNotFound
	}
	if !u.IsActive {
		return TokenPair{}, ErrInactive
	}
	now := s.now().UTC()
	access, accessExp, err := s.signAccess(u, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.signRefresh(u.ID, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks an access token's signature and expiry without touching the store.
func (s *TokenService) Verify(token string) (*Claims, error) {
	return s.parse(token, TokenTypeAccess)
}

// Refresh mints a new access token from a refresh token. The role is re-read from
// the store, so role changes take effect here rather than at issuance.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, nil, err
	}
	revoked, err := s.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return TokenPair{}, nil, ErrTokenRevoked
	}

	user, err := s.users.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrUserNotFound
		}
		return TokenPair{}, nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return TokenPair{}, nil, ErrInactive
	}

	now := s.now().UTC()
	pair := TokenPair{
		RefreshToken:     refreshToken,
		RefreshExpiresAt: claims.ExpiresAt.Time,
	}
	if s.cfg.Rotate {
		// Claiming the jti first makes concurrent refreshes of one token lose the race.
		added, err := s.blacklist.Add(ctx, claims.ID, user.ID, claims.ExpiresAt.Time)
		if err != nil {
			return TokenPair{}, nil, fmt.Errorf("blacklist refresh token: %w", err)
		}
		if !added {
			return TokenPair{}, nil, ErrTokenRevoked
		}
		refresh, exp, err := s.signRefresh(user.ID, now)
		if err != nil {
			return TokenPair{}, nil, err
		}
		pair.RefreshToken = refresh
		pair.RefreshExpiresAt = exp
		pair.Rotated = true
	}

	access, accessExp, err := s.signAccess(user, now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	pair.AccessToken = access
	pair.AccessExpiresAt = accessExp
	return pair, user, nil
}

// Revoke blacklists a refresh token. Tokens that are already revoked, expired or
// unparseable are ignored.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil
	}
	if _, err := s.blacklist.Add(ctx, claims.ID, claims.Subject, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("blacklist refresh token: %w", err)
	}
	return nil
}

func (s *TokenService) signAccess(u *User, now time.Time) (string, time.Time, error) {
	claims := Claims{
		UserID:           u.ID,
		Email:            u.Email,
		Role:             u.Role,
		Name:             u.Name,
		IsSuperuser:      u.IsSuperuser,
		TokenType:        TokenTypeAccess,
		RegisteredClaims: s.registered(u.ID, now, s.cfg.AccessTTL),
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	obs.TokenIssued(TokenTypeAccess)
	return signed, claims.ExpiresAt.Time, nil
}

func (s *TokenService) signRefresh(userID string, now time.Time) (string, time.Time, error) {
	claims := Claims{
		UserID:           userID,
		TokenType:        TokenTypeRefresh,
		RegisteredClaims: s.registered(userID, now, s.cfg.RefreshTTL),
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	obs.TokenIssued(TokenTypeRefresh)
	return signed, claims.ExpiresAt.Time, nil
}

func (s *TokenService) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (s *TokenService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(raw, tokenType string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenInvalid
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != tokenType {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.Subject != claims.UserID || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
