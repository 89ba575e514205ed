package audit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"campuslink.app/internal/ids"
	"campuslink.app/internal/obs"
)

// Logger records audit entries and security events. Write failures are logged
// and counted but never returned, so auditing cannot fail the audited operation.
type Logger struct {
	store Store
	pub   Publisher
	now   func() time.Time
}

// Option configures Logger.
type Option func(*Logger)

// WithPublisher fans stored security events out to pub.
func WithPublisher(pub Publisher) Option {
	return func(l *Logger) {
		l.pub = pub
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Logger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLogger constructs a Logger. A nil store only emits log lines.
func NewLogger(store Store, opts ...Option) *Logger {
	l := &Logger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends e synchronously.
func (l *Logger) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	fields := map[string]any{
		"action":  string(e.Action),
		"success": e.Success,
	}
	if e.UserID != "" {
		fields["subject_user_id"] = e.UserID
	}
	if e.Resource != "" {
		fields["resource"] = e.Resource
	}
	if e.ResourceID != "" {
		fields["resource_id"] = e.ResourceID
	}
	if e.IP != "" {
		fields["ip"] = e.IP
	}
	for k, v := range e.Details {
		fields[k] = v
	}
	_ = LogEvent(ctx, "audit."+strings.ToLower(string(e.Action)), fields)

	if l.store == nil {
		return
	}
	if err := l.store.AppendEntry(ctx, &e); err != nil {
		obs.AuditWriteFailed()
		obs.Logger().Error("audit entry write failed",
			zap.String("action", string(e.Action)),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Error(err))
	}
}

// RaiseSecurityEvent appends ev and publishes it to subscribers.
func (l *Logger) RaiseSecurityEvent(ctx context.Context, ev SecurityEvent) {
	if ev.ID == "" {
		ev.ID = ids.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = l.now().UTC()
	}
	_ = LogEvent(ctx, "security."+strings.ToLower(ev.EventType), map[string]any{
		"severity":    string(ev.Severity),
		"description": ev.Description,
		"ip":          ev.IP,
	})

	if l.store != nil {
		if err := l.store.AppendSecurityEvent(ctx, &ev); err != nil {
			obs.AuditWriteFailed()
			obs.Logger().Error("security event write failed",
				zap.String("event_type", ev.EventType),
				zap.String("request_id", RequestIDFromContext(ctx)),
				zap.Error(err))
			return
		}
	}
	if l.pub != nil {
		l.pub.Publish(ev)
	}
}

// LogLogin records a login attempt. A failed attempt is stored without a user
// and additionally raises a MEDIUM security event.
func (l *Logger) LogLogin(ctx context.Context, userID, email string, success bool, meta Meta) {
	entry := Entry{
		Action:    ActionLogin,
		Resource:  "auth",
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Details:   map[string]any{"email": email},
		Success:   success,
	}
	if success {
		entry.UserID = userID
	}
	l.Record(ctx, entry)
	if success {
		return
	}
	l.RaiseSecurityEvent(ctx, SecurityEvent{
		EventType:   EventFailedLogin,
		Severity:    SeverityMedium,
		IP:          meta.IP,
		Description: "Failed login attempt for " + email,
		Details:     map[string]any{"email": email, "user_agent": meta.UserAgent},
	})
}

// LogLogout records a logout.
func (l *Logger) LogLogout(ctx context.Context, userID string, meta Meta) {
	l.Record(ctx, Entry{
		UserID:    userID,
		Action:    ActionLogout,
		Resource:  "auth",
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})
}

// LogRegister records a new account.
func (l *Logger) LogRegister(ctx context.Context, userID, email string, meta Meta) {
	l.Record(ctx, Entry{
		UserID:     userID,
		Action:     ActionRegister,
		Resource:   "user",
		ResourceID: userID,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Details:    map[string]any{"email": email},
		Success:    true,
	})
}

// LogRoleChange records an admin changing another user's role.
func (l *Logger) LogRoleChange(ctx context.Context, actorID, targetID, oldRole, newRole string, meta Meta) {
	l.Record(ctx, Entry{
		UserID:     actorID,
		Action:     ActionRoleChange,
		Resource:   "user",
		ResourceID: targetID,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Details: map[string]any{
			"target_user": targetID,
			"old_role":    oldRole,
			"new_role":    newRole,
		},
		Success: true,
	})
}

// LogStatusChange records an admin activating or deactivating a user.
func (l *Logger) LogStatusChange(ctx context.Context, actorID, targetID string, active bool, meta Meta) {
	l.LogDataModification(ctx, actorID, "user", targetID, map[string]any{
		"field":     "is_active",
		"is_active": active,
	}, meta)
}

// LogProfileUpdate records a profile edit.
func (l *Logger) LogProfileUpdate(ctx context.Context, actorID, targetID string, fields []string, meta Meta) {
	l.Record(ctx, Entry{
		UserID:     actorID,
		Action:     ActionProfileUpdate,
		Resource:   "user",
		ResourceID: targetID,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Details:    map[string]any{"fields": fields},
		Success:    true,
	})
}

// LogDataAccess records a read of another user's data.
func (l *Logger) LogDataAccess(ctx context.Context, actorID, resource, resourceID string, meta Meta) {
	l.Record(ctx, Entry{
		UserID:     actorID,
		Action:     ActionDataAccess,
		Resource:   resource,
		ResourceID: resourceID,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Success:    true,
	})
}

// LogDataModification records a write to a resource.
func (l *Logger) LogDataModification(ctx context.Context, actorID, resource, resourceID string, details map[string]any, meta Meta) {
	l.Record(ctx, Entry{
		UserID:     actorID,
		Action:     ActionDataModify,
		Resource:   resource,
		ResourceID: resourceID,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Details:    details,
		Success:    true,
	})
}

// LogUnauthorizedAccess records a denied request and always raises a HIGH security event.
// userID may be empty when the caller never authenticated.
func (l *Logger) LogUnauthorizedAccess(ctx context.Context, userID, resource, reason string, meta Meta) {
	l.Record(ctx, Entry{
		UserID:    userID,
		Action:    ActionUnauthorizedAccess,
		Resource:  resource,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Details:   map[string]any{"reason": reason},
		Success:   false,
	})
	l.RaiseSecurityEvent(ctx, SecurityEvent{
		EventType:   EventUnauthorizedAccess,
		Severity:    SeverityHigh,
		UserID:      userID,
		IP:          meta.IP,
		Description: "Unauthorized access attempt to " + resource,
		Details:     map[string]any{"resource": resource, "reason": reason},
	})
}

// SecurityEvents lists stored security events, newest first.
func (l *Logger) SecurityEvents(ctx context.Context, filter EventFilter) ([]SecurityEvent, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.ListSecurityEvents(ctx, filter)
}

// Resolve marks a security event as handled.
func (l *Logger) Resolve(ctx context.Context, id string) error {
	if l.store == nil {
		return ErrNotFound
	}
	return l.store.ResolveSecurityEvent(ctx, id)
}
