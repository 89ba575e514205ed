package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"campuslink.app/internal/audit"
	"campuslink.app/internal/auth"
	"campuslink.app/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Protect mounts h behind the guard. Every requirement must pass.
func (a *API) Protect(pattern string, h http.Handler, reqs ...auth.Requirement) {
	a.mux.Handle(pattern, a.guard(false, reqs...)(h))
}

// ProtectSensitive is Protect for resources where every 401 and 403 is
// written to the audit trail as unauthorized access.
func (a *API) ProtectSensitive(pattern string, h http.Handler, reqs ...auth.Requirement) {
	a.mux.Handle(pattern, a.guard(true, reqs...)(h))
}

// guard authenticates the bearer token, reloads the user and applies reqs.
// Decisions: missing or bad token 401, inactive user 403 "inactive",
// failed requirement 403. Failed requirements are always audited; 401 and
// inactive only on sensitive routes.
func (a *API) guard(sensitive bool, reqs ...auth.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r.Header.Get(authHeader))
			if err != nil {
				a.unauthenticated(w, r, err, sensitive)
				return
			}
			principal, claims, err := a.svc.Authenticate(r.Context(), token)
			if err != nil {
				a.unauthenticated(w, r, err, sensitive)
				return
			}

			ctx := auth.ContextWithPrincipal(r.Context(), principal)
			ctx = auth.ContextWithClaims(ctx, claims)
			ctx = audit.WithActor(ctx, principal.User.ID)
			r = r.WithContext(ctx)

			if err := auth.Authorize(&principal, reqs...); err != nil {
				if errors.Is(err, auth.ErrInactive) {
					obs.GuardDecision("inactive")
					if sensitive {
						a.recordDenial(r, err)
					}
				} else {
					obs.GuardDecision("forbidden")
				}
				a.fail(w, r, err)
				return
			}
			obs.GuardDecision("allowed")
			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) unauthenticated(w http.ResponseWriter, r *http.Request, err error, sensitive bool) {
	obs.GuardDecision("unauthenticated")
	if sensitive {
		a.recordDenial(r, err)
	}
	a.fail(w, r, err)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, strings.TrimSpace(bearer)) {
		return "", auth.ErrUnauthenticated
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", auth.ErrTokenInvalid
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", auth.ErrUnauthenticated
	}
	return token, nil
}

func principalFrom(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
