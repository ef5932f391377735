// Package domainerrors defines the coded error type every core operation
// returns. Codes form a closed taxonomy so transport layers can map them to
// status codes without inspecting message text.
package domainerrors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a domain error.
type ErrorCode string

const (
	// CodeValidation marks an operation the domain rules forbid (illegal
	// transition, wrong dose position, disease does not support the request).
	// Never retried automatically.
	CodeValidation ErrorCode = "validation_error"
	// CodeConflict marks a lost race (slot full, concurrent booking). The
	// caller may retry with a different selection.
	CodeConflict ErrorCode = "conflict"
	// CodeNotFound marks an absent entity.
	CodeNotFound ErrorCode = "not_found"
	// CodeInvariantViolation marks corrupted internal state (an appointment
	// with no backing slot). Fatal, logged, surfaced as a generic failure.
	CodeInvariantViolation ErrorCode = "invariant_violation"

	CodeBadRequest   ErrorCode = "bad_request"
	CodeInvalidInput ErrorCode = "invalid_input"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeForbidden    ErrorCode = "forbidden"
	CodeTimeout      ErrorCode = "timeout"
	CodeInternal     ErrorCode = "internal_error"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two domain errors by code and message, so tests can
// compare against a freshly constructed error value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a domain error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause remains
// reachable through errors.Is/errors.As.
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Code extracts the error code, or CodeInternal for non-domain errors.
func Code(err error) ErrorCode {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// Is is a readability alias for HasCode used throughout handlers.
func Is(err error, code ErrorCode) bool {
	return HasCode(err, code)
}
