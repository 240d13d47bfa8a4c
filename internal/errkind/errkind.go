// Package errkind classifies sync-engine errors by kind rather than by
// matching on error strings, so the runtime's retry policy and the
// continue-as-new detector never have to parse messages.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named in the sync orchestrator design.
type Kind string

const (
	// Validation marks input the caller must fix; never retried.
	Validation Kind = "validation"
	// NotFound marks a missing remote resource; never retried.
	NotFound Kind = "not_found"
	// Conflict marks a detected write conflict; never retried.
	Conflict Kind = "conflict"
	// Retryable marks transient failures (network, 5xx, timeout).
	Retryable Kind = "retryable"
)

// Error wraps an underlying error with a Kind so callers can classify it
// with errors.As instead of inspecting the message.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind and operation name.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validationf builds a non-retryable validation error.
func Validationf(op, format string, args ...any) error {
	return New(Validation, op, fmt.Errorf(format, args...))
}

// NotFoundf builds a non-retryable not-found error.
func NotFoundf(op, format string, args ...any) error {
	return New(NotFound, op, fmt.Errorf(format, args...))
}

// Conflictf builds a non-retryable conflict error.
func Conflictf(op, format string, args ...any) error {
	return New(Conflict, op, fmt.Errorf(format, args...))
}

// IsRetryable reports whether err should be retried by the runtime's
// activity retry policy. Errors with no Kind attached (plain errors from
// adapters, e.g. network failures) default to retryable, matching spec
// §7: only the three named kinds are non-retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ke *Error
	if errors.As(err, &ke) {
		switch ke.Kind {
		case Validation, NotFound, Conflict:
			return false
		default:
			return true
		}
	}
	return true
}

// KindOf extracts the Kind from err, or "" if err carries none.
func KindOf(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}
