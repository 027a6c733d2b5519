// Package errs defines the error taxonomy shared across the service.
// Handlers map each Kind to an HTTP status; internal code wraps causes
// with fmt.Errorf and %w so Kind survives the chain.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary handling.
type Kind int

const (
	// KindNotFound means an entity ID did not resolve.
	KindNotFound Kind = iota
	// KindAccessDenied means an entitlement check failed.
	KindAccessDenied
	// KindUnauthorized means the request carried no valid principal.
	KindUnauthorized
	// KindValidation means malformed or incomplete input.
	KindValidation
	// KindConflict means a duplicate unique key on create.
	KindConflict
	// KindConfiguration means an internal invariant was violated.
	KindConfiguration
	// KindUpstream means the BI provider call failed.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindConfiguration:
		return "configuration"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is a classified error. Message is safe to surface to clients
// except for KindConfiguration, which handlers render opaquely.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// UpstreamStatus carries the provider HTTP status for KindUpstream.
	UpstreamStatus int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports that the named entity does not exist.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// AccessDenied reports a failed entitlement check.
func AccessDenied(format string, args ...any) *Error {
	return &Error{Kind: KindAccessDenied, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a missing or invalid principal.
func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a duplicate unique key.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Configuration reports a broken internal invariant. The message is
// logged, never returned to clients verbatim.
func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Upstream reports a failed BI provider call, keeping the provider
// status and message for diagnostics.
func Upstream(status int, format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, UpstreamStatus: status, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a classified error.
func Wrap(err error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report KindConfiguration so they surface as opaque server faults.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindConfiguration
}

// Is reports whether the error chain contains a classified error of
// the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
