// Package wferrors defines the error taxonomy shared across the workflow
// conductor: compile errors, gateway errors, and store errors all carry a
// Type that the HTTP surface maps onto a status code, and a Suggestion
// that is safe to return to a caller.
package wferrors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Type classifies an Error for status-code mapping and retry decisions.
type Type string

const (
	// TypeValidation covers compile-pipeline failures (§4.7 steps 1-9):
	// bad shape, unresolved references, cycles, rule violations.
	TypeValidation Type = "validation"
	// TypeNotFound covers a missing workflow_id.
	TypeNotFound Type = "not_found"
	// TypeConflict covers invalid state transitions (cancel on terminal,
	// submit on non-planned).
	TypeConflict Type = "conflict"
	// TypeSubmission covers a JSON-RPC error envelope from the scheduler's
	// start_app2, or a local defensive-gate rejection before it.
	TypeSubmission Type = "submission"
	// TypeTransient covers timeouts, connection failures, and 5xx
	// transport errors talking to the scheduler or MongoDB; callers may
	// retry.
	TypeTransient Type = "transient"
	// TypeInternal covers unexpected failures (JSON encode/decode errors,
	// processing panics caught at the workflow boundary).
	TypeInternal Type = "internal"
)

// Error is the error type returned by every exported operation in this
// module. It carries enough context for an HTTP handler to pick a status
// code and for a log line to include a correlation id without leaking
// secrets.
type Error struct {
	Type          Type
	Message       string
	Suggestion    string
	CorrelationID string
	Cause         error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, redact(e.Message), e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, redact(e.Message))
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether the caller may retry the operation that
// produced this error: true only for TypeTransient (spec §7).
func (e *Error) IsRetryable() bool {
	return e.Type == TypeTransient
}

// StatusCode maps the error Type to the HTTP status the surface should
// return, per spec §6/§7.
func (e *Error) StatusCode() int {
	switch e.Type {
	case TypeNotFound:
		return 404
	case TypeConflict, TypeValidation, TypeSubmission:
		return 400
	case TypeTransient:
		return 503
	default:
		return 500
	}
}

// New constructs an Error of the given type.
func New(t Type, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf constructs an Error of the given type with a formatted message.
func Newf(t Type, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error of the given type.
func Wrap(t Type, cause error, message string) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// Batch joins multiple compile-time validation errors into one
// TypeValidation error whose message joins the violations with "; ", per
// spec §4.7's "report as a batch" requirement.
func Batch(messages []string) *Error {
	return &Error{
		Type:    TypeValidation,
		Message: strings.Join(messages, "; "),
	}
}

// As is a thin re-export of errors.As for callers that don't want to
// import the stdlib errors package solely for this.
func As(err error, target any) bool {
	return errors.As(err, target)
}

var tokenPattern = regexp.MustCompile(`(?i)(bearer\s+|token[=:]\s*)[A-Za-z0-9._-]{8,}`)

// redact masks bearer tokens and similarly-shaped credentials that might
// otherwise leak into a message built from user input or scheduler
// responses.
func redact(s string) string {
	return tokenPattern.ReplaceAllStringFunc(s, func(m string) string {
		idx := strings.IndexAny(m, " :=")
		if idx < 0 {
			return "[REDACTED]"
		}
		return m[:idx+1] + "[REDACTED]"
	})
}
