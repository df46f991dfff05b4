// Package apperr defines the machine-readable error kinds surfaced to
// clients. Services declare sentinel errors with E and typed errors that
// implement Kinded; transports resolve any error chain with KindOf.
package apperr

import (
	"context"
	"errors"
)

type Kind string

const (
	NotFound         Kind = "NOT_FOUND"
	InvalidState     Kind = "INVALID_STATE"
	CapacityExceeded Kind = "CAPACITY_EXCEEDED"
	AlreadyExists    Kind = "ALREADY_EXISTS"
	Conflict         Kind = "CONFLICT"
	OutOfWindow      Kind = "OUT_OF_WINDOW"
	Unauthorized     Kind = "UNAUTHORIZED"
	Forbidden        Kind = "FORBIDDEN"
	InvalidArgument  Kind = "INVALID_ARGUMENT"
	Unavailable      Kind = "UNAVAILABLE"
	RateLimited      Kind = "RATE_LIMITED"
	Internal         Kind = "INTERNAL"
)

// Kinded is implemented by errors that carry their own kind.
type Kinded interface {
	error
	Kind() Kind
}

// Detailed is implemented by errors with a structured payload for clients.
type Detailed interface {
	Details() map[string]any
}

type Error struct {
	kind Kind
	msg  string
}

// E returns a new sentinel error. Compare with errors.Is.
func E(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Kind() Kind { return e.kind }

// KindOf resolves the first kind found in err's chain. Deadline and
// cancellation map to Unavailable; anything else unknown is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Unavailable
	}

	return Internal
}

// Message returns the client-facing message for err. Internal errors never
// leak their underlying text.
func Message(err error) string {
	var k Kinded
	if errors.As(err, &k) {
		return k.Error()
	}

	if KindOf(err) == Unavailable {
		return "request timed out, retry later"
	}

	return "internal error"
}

// DetailsOf returns the structured payload of the first Detailed error in
// err's chain, or nil.
func DetailsOf(err error) map[string]any {
	var d Detailed
	if errors.As(err, &d) {
		return d.Details()
	}
	return nil
}
