// Package apperr defines the application error taxonomy and its mapping to
// HTTP status codes. Services return these; the HTTP layer translates them
// into the response envelope in exactly one place.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindPayloadTooLarge
)

// Error is an application error with a classification and a client-facing
// message. Wrapped causes are preserved for logging but never serialized.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is comparisons against another *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Message == "" || t.Message == e.Message)
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not_found error.
func NotFoundf(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

// Conflictf builds a conflict error.
func Conflictf(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

// BadRequestf builds a bad_request error.
func BadRequestf(format string, args ...any) *Error {
	return newf(KindBadRequest, format, args...)
}

// Forbiddenf builds a forbidden error.
func Forbiddenf(format string, args ...any) *Error {
	return newf(KindForbidden, format, args...)
}

// PayloadTooLargef builds a payload_too_large error.
func PayloadTooLargef(format string, args ...any) *Error {
	return newf(KindPayloadTooLarge, format, args...)
}

// Internalf builds an internal error.
func Internalf(format string, args ...any) *Error {
	return newf(KindInternal, format, args...)
}

// Wrap attaches a cause to an internal error with a client-facing message.
func Wrap(err error, message string) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// HTTPStatus maps an error to its HTTP status code. Non-application errors
// map to 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage returns the message safe to send to clients. Non-application
// errors collapse to a generic message so internals never leak.
func ClientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}
