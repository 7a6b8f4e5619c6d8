// Package apperr defines the error taxonomy shared by the workspace and the
// execution layers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind defines the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	KindValidation
	// KindNotFound is returned when a path is absent from every source.
	KindNotFound
	// KindExecutionUnavailable covers unreachable or non-2xx execution endpoints.
	KindExecutionUnavailable
	// KindSocket is a transport failure of an established interactive socket.
	KindSocket
	// KindUserCancelled marks an aborted picker-style action. Never displayed.
	KindUserCancelled
	// KindTimeout is a batch run exceeding the client-side bound.
	KindTimeout
	// KindUnavailable is an unreachable or failing workspace service.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExecutionUnavailable:
		return "execution_unavailable"
	case KindSocket:
		return "socket"
	case KindUserCancelled:
		return "user_cancelled"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a categorized error.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is an *Error of the same kind. This lets callers
// write errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Underlying == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrExecutionUnavailable = &Error{Kind: KindExecutionUnavailable}
	ErrSocket               = &Error{Kind: KindSocket}
	ErrUserCancelled        = &Error{Kind: KindUserCancelled}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrUnavailable          = &Error{Kind: KindUnavailable}
)

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error as a new Error of the specified kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
