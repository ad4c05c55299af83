// Package apperror defines the error kinds surfaced by the subject engine.
// Every public operation fails with an *Error whose Kind can be tested with
// errors.Is against the package sentinels.
package apperror

import "fmt"

// Kind classifies a failure.
type Kind string

const (
	KindNotReady                Kind = "NOT_READY"
	KindTypeMismatch            Kind = "TYPE_MISMATCH"
	KindUnsupportedOperation    Kind = "UNSUPPORTED_OPERATION"
	KindStoreFailure            Kind = "STORE_FAILURE"
	KindAnnotationShapeMismatch Kind = "ANNOTATION_SHAPE_MISMATCH"
	KindCyclicIdentity          Kind = "CYCLIC_IDENTITY"
	KindInvalidPattern          Kind = "INVALID_PATTERN"
)

// Error is an engine error with a kind, the failing operation and an
// optional wrapped cause.
type Error struct {
	Kind     Kind
	Op       string
	Message  string
	Internal error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Internal != nil {
		msg += fmt.Sprintf(" (%v)", e.Internal)
	}
	return msg
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// Is reports whether target is an *Error of the same kind. Sentinels carry
// only a kind, so errors.Is(err, ErrNotReady) matches any NotReady failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	return &Error{Kind: e.Kind, Op: e.Op, Message: e.Message, Internal: err}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	return &Error{Kind: e.Kind, Op: e.Op, Message: message, Internal: e.Internal}
}

// WithOp returns a copy of the error attributed to op
func (e *Error) WithOp(op string) *Error {
	return &Error{Kind: e.Kind, Op: op, Message: e.Message, Internal: e.Internal}
}

// New creates an error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Sentinels for errors.Is.
var (
	ErrNotReady                = &Error{Kind: KindNotReady}
	ErrTypeMismatch            = &Error{Kind: KindTypeMismatch}
	ErrUnsupportedOperation    = &Error{Kind: KindUnsupportedOperation}
	ErrStoreFailure            = &Error{Kind: KindStoreFailure}
	ErrAnnotationShapeMismatch = &Error{Kind: KindAnnotationShapeMismatch}
	ErrCyclicIdentity          = &Error{Kind: KindCyclicIdentity}
	ErrInvalidPattern          = &Error{Kind: KindInvalidPattern}
)
