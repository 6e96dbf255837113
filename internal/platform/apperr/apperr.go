// Package apperr defines the error kinds returned by domain services and the
// mapping from those kinds onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindInternal covers store failures and anything unclassified.
	KindInternal Kind = iota
	KindInput
	KindNotFound
	KindForbidden
	KindPolicy
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindPolicy:
		return "policy"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// Policy codes.
const (
	CodeSchedulingConflict = "scheduling_conflict"
	CodeCancellationWindow = "cancellation_window"
)

// Error is a classified error. Message is safe to show to API clients.
type Error struct {
	Kind    Kind
	Code    string
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

// HTTPStatus maps the error kind onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPolicy:
		if e.Code == CodeSchedulingConflict {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func Input(format string, args ...any) *Error {
	return &Error{Kind: KindInput, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func Policy(code, format string, args ...any) *Error {
	return &Error{Kind: KindPolicy, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict is the policy error for an overlapping appointment.
func Conflict() *Error {
	return Policy(CodeSchedulingConflict, "the physician already has an appointment in that time range")
}

// Internal wraps a store or infrastructure failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the policy code carried by err, if any.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
