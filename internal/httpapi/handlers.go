package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campuslink.app/internal/audit"
	"campuslink.app/internal/auth"
	"campuslink.app/internal/obs"
	"campuslink.app/internal/stream"
)

const serviceName = "campuslink-auth"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the configured backends. Nil backends are skipped.
type ReadyProbe struct {
	DB    *sql.DB
	Redis *goredis.Client
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Options tunes the HTTP layer.
type Options struct {
	Version        string
	RateBurst      int
	RatePerSecond  float64
	MaxBodyBytes   int64
	TrustedProxies []netip.Prefix // peers whose X-Forwarded-For is believed
}

// API is the HTTP surface of the auth core.
type API struct {
	mux       *http.ServeMux
	readiness readinessChecker
	version   string

	svc     *auth.Service
	audit   *audit.Logger
	events  *stream.Stream
	limiter *RateLimiter
	maxBody int64
	proxies []netip.Prefix
}

// New wires routes. events may be nil, which disables the security event stream.
func New(rp readinessChecker, svc *auth.Service, auditLog *audit.Logger, events *stream.Stream, opts Options) *API {
	if opts.RateBurst <= 0 {
		opts.RateBurst = 5
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 0.2
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(nil)
	}
	a := &API{
		mux:       http.NewServeMux(),
		readiness: rp,
		version:   opts.Version,
		svc:       svc,
		audit:     auditLog,
		events:    events,
		limiter:   NewRateLimiter(opts.RateBurst, opts.RatePerSecond),
		maxBody:   opts.MaxBodyBytes,
		proxies:   opts.TrustedProxies,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.Handle("POST /api/auth/register", a.limiter.Limit(http.HandlerFunc(a.handleRegister)))
	a.mux.Handle("POST /api/auth/login", a.limiter.Limit(http.HandlerFunc(a.handleLogin)))
	a.mux.HandleFunc("POST /api/auth/refresh", a.handleRefresh)

	a.Protect("POST /api/auth/logout", http.HandlerFunc(a.handleLogout), auth.Authenticated())
	a.Protect("GET /api/auth/current-user", http.HandlerFunc(a.handleCurrentUser), auth.Authenticated())
	a.Protect("GET /api/auth/check-permission", http.HandlerFunc(a.handleCheckPermission), auth.Authenticated())
	a.Protect("GET /api/auth/permissions", http.HandlerFunc(a.handlePermissions), auth.Authenticated())
	a.ProtectSensitive("GET /api/auth/profile/{id}", http.HandlerFunc(a.handleGetProfile), auth.Authenticated())
	a.ProtectSensitive("PATCH /api/auth/profile/{id}", http.HandlerFunc(a.handleUpdateProfile), auth.Authenticated())

	a.ProtectSensitive("GET /api/auth/admin/users", http.HandlerFunc(a.handleListUsers), auth.AdminOnly())
	a.ProtectSensitive("POST /api/auth/admin/users/change-role", http.HandlerFunc(a.handleChangeRole), auth.AdminOnly())
	a.ProtectSensitive("POST /api/auth/admin/users/toggle-status", http.HandlerFunc(a.handleToggleStatus), auth.AdminOnly())
	a.ProtectSensitive("GET /api/auth/admin/security-events", http.HandlerFunc(a.handleSecurityEvents), auth.AdminOnly())
	a.ProtectSensitive("POST /api/auth/admin/security-events/{id}/resolve", http.HandlerFunc(a.handleResolveEvent), auth.AdminOnly())
	a.ProtectSensitive("GET /api/auth/admin/security-events/stream", http.HandlerFunc(a.SecurityEventStream), auth.AdminOnly())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
}

// Handler returns the full middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = Recover(h)
	h = RequestID(h)
	h = RealIP(h, a.proxies)
	return obs.Instrument(h)
}

// Close stops background work owned by the API.
func (a *API) Close() {
	a.limiter.Stop()
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.readiness != nil {
		if err := a.readiness.Check(r.Context()); err != nil {
			obs.SetReady(false)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]any{"success": false, "error": msg}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, code, body)
}

func writeValidation(w http.ResponseWriter, r *http.Request, ve *auth.ValidationError) {
	body := map[string]any{"success": false, "errors": ve.Fields}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, http.StatusBadRequest, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("invalid JSON body: %v", err)
		}
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func requestMeta(r *http.Request) audit.Meta {
	return audit.Meta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: audit.RequestIDFromContext(r.Context()),
	}
}

// fail maps a service error to a response. Forbidden outcomes are audited as
// unauthorized access; unexpected errors are logged and hidden.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *auth.ValidationError
	switch {
	case errors.As(err, &ve):
		writeValidation(w, r, ve)
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, clientMessage(err, "invalid request"))
	case errors.Is(err, auth.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", `Bearer realm="campuslink"`)
		writeError(w, r, http.StatusUnauthorized, clientMessage(err, auth.ErrUnauthenticated.Error()))
	case errors.Is(err, auth.ErrForbidden):
		if !errors.Is(err, auth.ErrInactive) {
			a.recordDenial(r, err)
		}
		writeError(w, r, http.StatusForbidden, clientMessage(err, auth.ErrForbidden.Error()))
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, audit.ErrNotFound):
		writeError(w, r, http.StatusNotFound, clientMessage(err, "resource not found"))
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, clientMessage(err, "resource already exists"))
	default:
		obs.Logger().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func (a *API) recordDenial(r *http.Request, err error) {
	var userID string
	if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.User != nil {
		userID = p.User.ID
	}
	a.audit.LogUnauthorizedAccess(r.Context(), userID, r.Method+" "+r.URL.Path, err.Error(), requestMeta(r))
}

func clientMessage(err error, fallback string) string {
	var ae *auth.Error
	if errors.As(err, &ae) {
		return ae.Message()
	}
	return fallback
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
