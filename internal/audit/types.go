package audit

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced security event does not exist.
var ErrNotFound = errors.New("audit: not found")

// Action is the kind of security-relevant operation being recorded.
type Action string

const (
	ActionLogin              Action = "LOGIN"
	ActionLogout             Action = "LOGOUT"
	ActionRegister           Action = "REGISTER"
	ActionProfileUpdate      Action = "PROFILE_UPDATE"
	ActionPasswordChange     Action = "PASSWORD_CHANGE"
	ActionRoleChange         Action = "ROLE_CHANGE"
	ActionPermissionGrant    Action = "PERMISSION_GRANT"
	ActionPermissionRevoke   Action = "PERMISSION_REVOKE"
	ActionDataAccess         Action = "DATA_ACCESS"
	ActionDataModify         Action = "DATA_MODIFY"
	ActionUnauthorizedAccess Action = "UNAUTHORIZED_ACCESS"
	ActionSuspiciousActivity Action = "SUSPICIOUS_ACTIVITY"
)

// Severity grades security events.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Security event types.
const (
	EventFailedLogin        = "FAILED_LOGIN"
	EventUnauthorizedAccess = "UNAUTHORIZED_ACCESS"
)

// Meta describes the request that triggered an audit record.
type Meta struct {
	IP        string
	UserAgent string
	RequestID string
}

// Entry is an immutable audit record. An empty UserID is stored as null.
type Entry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id,omitempty"`
	Action     Action         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	IP         string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Success    bool           `json:"success"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SecurityEvent is raised for failures that deserve operator attention.
type SecurityEvent struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	Severity    Severity       `json:"severity"`
	UserID      string         `json:"user_id,omitempty"`
	IP          string         `json:"ip_address,omitempty"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	Resolved    bool           `json:"resolved"`
	CreatedAt   time.Time      `json:"created_at"`
}

// EventFilter narrows security event listings.
type EventFilter struct {
	UnresolvedOnly bool
	Limit          int
}

// Store persists audit records. Entries and events are append-only; only the
// resolved flag of an event may change.
type Store interface {
	AppendEntry(ctx context.Context, e *Entry) error
	AppendSecurityEvent(ctx context.Context, ev *SecurityEvent) error
	ListSecurityEvents(ctx context.Context, filter EventFilter) ([]SecurityEvent, error)
	ResolveSecurityEvent(ctx context.Context, id string) error
}

// Publisher receives every security event after it has been stored.
type Publisher interface {
	Publish(ev SecurityEvent)
}
