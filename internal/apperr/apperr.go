// Package apperr implements the error taxonomy from the error handling
// design: a typed result discriminated by error kind rather than
// exception-style control flow.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds from the error handling design.
type Kind string

const (
	Validation Kind = "validation" // malformed input; never retried
	Auth       Kind = "auth"       // unauthenticated/unauthorized/wrong tenant; never retried
	Quota      Kind = "quota"      // quota check failure; never retried by the system
	NotFound   Kind = "not_found"  // entity missing or filtered out by tenant scoping
	Conflict   Kind = "conflict"   // version/lock contention; retried once with jitter
	Transient  Kind = "transient"  // network/timeout/5xx; retried with backoff
	Permanent  Kind = "permanent"  // schema/constraint/programmer error; logged, not retried
)

// Error carries a Kind alongside the usual message/wrapped cause.
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

// Is reports a match for any *Error target of the same Kind; checks
// against a bare Kind go through the package-level Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func new_(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func NewValidation(msg string, cause error) error { return new_(Validation, msg, cause) }
func NewAuth(msg string, cause error) error        { return new_(Auth, msg, cause) }
func NewQuota(msg string, cause error) error       { return new_(Quota, msg, cause) }
func NewNotFound(msg string, cause error) error    { return new_(NotFound, msg, cause) }
func NewConflict(msg string, cause error) error    { return new_(Conflict, msg, cause) }
func NewTransient(msg string, cause error) error   { return new_(Transient, msg, cause) }
func NewPermanent(msg string, cause error) error   { return new_(Permanent, msg, cause) }

// KindOf extracts the Kind of err, or "" if err is not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
