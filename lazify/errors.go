package lazify

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why a lazification operation failed.
type Kind int

const (
	// NotLazifiable means the call-site argument is not a candidate
	// for lazification at all (e.g. it is already a bare parameter,
	// or the call is indirect so the callee cannot be cloned).
	NotLazifiable Kind = iota + 1
	// UnsafeSlice means a slice was extracted but failed the outline
	// safety check (4.D): it may throw, touch memory, not return, or
	// escape a stack allocation.
	UnsafeSlice
	// MalformedSSA means the synthesized function failed verification:
	// a use is not dominated by its definition, or a phi's incoming
	// blocks don't match its parent's predecessors.
	MalformedSSA
)

func (k Kind) String() string {
	switch k {
	case NotLazifiable:
		return "not lazifiable"
	case UnsafeSlice:
		return "unsafe slice"
	case MalformedSSA:
		return "malformed SSA"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by every lazify entry point. It
// carries a Kind so callers can distinguish "this argument just isn't
// a candidate" from "something is actually broken."
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.err) }

// Cause supports github.com/pkg/errors.Cause.
func (e *Error) Cause() error { return e.err }

// Unwrap supports errors.Is/errors.As from the standard library.
func (e *Error) Unwrap() error { return e.err }

func notLazifiable(f string, vs ...interface{}) *Error {
	return &Error{Kind: NotLazifiable, err: errors.Errorf(f, vs...)}
}

func unsafeSlice(f string, vs ...interface{}) *Error {
	return &Error{Kind: UnsafeSlice, err: errors.Errorf(f, vs...)}
}

func malformedSSA(f string, vs ...interface{}) *Error {
	return &Error{Kind: MalformedSSA, err: errors.Errorf(f, vs...)}
}

func wrap(k Kind, cause error, f string, vs ...interface{}) *Error {
	return &Error{Kind: k, err: errors.Wrapf(cause, f, vs...)}
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}
