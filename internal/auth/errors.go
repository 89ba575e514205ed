package auth

import (
	"errors"
	"sort"
	"strings"
)

// Error classes. Every error returned by this package matches exactly one of
// them with errors.Is, which is what the transport layer maps to a status code.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("you do not have permission to perform this action")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// Specific failures. Each carries a client-safe message and unwraps to its class.
var (
	ErrBadCredentials = &Error{kind: ErrUnauthenticated, msg: "invalid email or password"}
	ErrTokenExpired   = &Error{kind: ErrUnauthenticated, msg: "token expired"}
	ErrTokenInvalid   = &Error{kind: ErrUnauthenticated, msg: "token invalid"}
	ErrTokenRevoked   = &Error{kind: ErrUnauthenticated, msg: "token has been revoked"}
	ErrUserNotFound   = &Error{kind: ErrUnauthenticated, msg: "user not found"}
	ErrInactive       = &Error{kind: ErrForbidden, msg: "inactive"}
	ErrNoSuchUser     = &Error{kind: ErrNotFound, msg: "user not found"}
	ErrSelfAction     = &Error{kind: ErrInvalidInput, msg: "cannot change your own status"}
)

// Error is a classified failure with a message that is safe to return to clients.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Message returns the client-facing text.
func (e *Error) Message() string { return e.msg }

// ValidationError collects field-scoped input problems.
type ValidationError struct {
	Fields map[string][]string
}

// Add records a message for field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Has reports whether field already has an error.
func (e *ValidationError) Has(field string) bool {
	return len(e.Fields[field]) > 0
}

// Err returns nil when no field failed, so callers can return it directly.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func fieldError(field, msg string) error {
	ve := &ValidationError{}
	ve.Add(field, msg)
	return ve
}
