// Package roomerr is the error taxonomy shared by every room component.
//
// Every error returned across a component boundary wraps exactly one of the
// kind sentinels below, so callers branch with errors.Is.
package roomerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a malformed or out-of-state action. The action was a no-op.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks a lost race. It is expected and never a fault.
	ErrConflict = errors.New("conflict")
	// ErrTransport marks an unreachable or failing store.
	ErrTransport = errors.New("transport error")
	// ErrFatal marks a room that no longer exists or is unusable.
	ErrFatal = errors.New("fatal error")
)

// Error carries a kind sentinel, a message and an optional cause.
type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// Message returns the human readable part without the kind prefix.
func (e *Error) Message() string { return e.msg }

func Validation(format string, args ...any) error {
	return &Error{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

func Transport(cause error, format string, args ...any) error {
	return &Error{kind: ErrTransport, msg: fmt.Sprintf(format, args...), cause: cause}
}

func Fatal(cause error, format string, args ...any) error {
	return &Error{kind: ErrFatal, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Kind returns the name of the kind wrapped by err, or "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrFatal):
		return "fatal"
	}
	return "internal"
}
