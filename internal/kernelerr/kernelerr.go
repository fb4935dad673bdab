// Package kernelerr defines the error taxonomy the kernel returns across
// component boundaries. Validation and dispatch failures are always
// returned as a *kernelerr.Error, never panicked or logged-and-swallowed.
package kernelerr

import (
	"errors"
	"fmt"
)

// Kind classifies a kernel error the way every control endpoint surfaces it.
type Kind string

const (
	NotFound          Kind = "NOT_FOUND"
	InvalidArgument   Kind = "INVALID_ARGUMENT"
	FailedPrecondition Kind = "FAILED_PRECONDITION"
	Unavailable       Kind = "UNAVAILABLE"
	DeadlineExceeded  Kind = "DEADLINE_EXCEEDED"
	Internal          Kind = "INTERNAL"
	AlreadyExists     Kind = "ALREADY_EXISTS"
	// OutOfRange is folded into InvalidArgument at the boundary (§7); it
	// exists here only so callers can still distinguish the cause.
	OutOfRange Kind = "OUT_OF_RANGE"
)

// Error is the error type returned across every kernel component boundary.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a kernel error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a kernel error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a kernel error that carries an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal when err is not
// (or does not wrap) a *Error.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	if err == nil {
		return ""
	}
	return Internal
}

// ProviderStatusKind maps a provider transport status code (§4.4, §6) to a
// kernel error Kind. OUT_OF_RANGE folds into InvalidArgument and
// RESOURCE_EXHAUSTED folds into Unavailable at this boundary, per spec.
func ProviderStatusKind(status string) Kind {
	switch status {
	case "OK":
		return ""
	case "INVALID_ARGUMENT", "OUT_OF_RANGE":
		return InvalidArgument
	case "NOT_FOUND":
		return NotFound
	case "FAILED_PRECONDITION":
		return FailedPrecondition
	case "UNAVAILABLE", "RESOURCE_EXHAUSTED":
		return Unavailable
	case "DEADLINE_EXCEEDED":
		return DeadlineExceeded
	default:
		return Internal
	}
}
