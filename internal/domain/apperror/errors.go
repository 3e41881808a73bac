// Package apperror defines the typed failures returned across the application boundary.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can render a stable, actionable response.
type Kind string

const (
	KindUnauthenticated     Kind = "UNAUTHENTICATED"
	KindForbidden           Kind = "FORBIDDEN"
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidAction       Kind = "INVALID_ACTION"
	KindPreconditionFailed  Kind = "PRECONDITION_FAILED"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindInvalidArgument     Kind = "INVALID_ARGUMENT"
	KindPersistenceFailure  Kind = "PERSISTENCE_FAILURE"
	KindNotificationFailure Kind = "NOTIFICATION_FAILURE"
	KindInternal            Kind = "INTERNAL"
)

// Error is a typed application failure
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error renders the message, falling back to the kind
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, apperror.Forbidden) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is comparisons by kind
var (
	Unauthenticated     = &Error{Kind: KindUnauthenticated}
	Forbidden           = &Error{Kind: KindForbidden}
	NotFound            = &Error{Kind: KindNotFound}
	InvalidAction       = &Error{Kind: KindInvalidAction}
	PreconditionFailed  = &Error{Kind: KindPreconditionFailed}
	InvalidTransition   = &Error{Kind: KindInvalidTransition}
	InvalidArgument     = &Error{Kind: KindInvalidArgument}
	PersistenceFailure  = &Error{Kind: KindPersistenceFailure}
	NotificationFailure = &Error{Kind: KindNotificationFailure}
)

// New builds an Error of the given kind
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around cause
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Persistence wraps a store failure. An error that is already typed is returned unchanged.
func Persistence(cause error, op string) error {
	var appErr *Error
	if errors.As(cause, &appErr) {
		return cause
	}
	return &Error{Kind: KindPersistenceFailure, Message: op, Cause: cause}
}

// KindOf returns the kind of err, or KindInternal for untyped errors
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
