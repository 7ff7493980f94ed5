// Package storeerr provides the structured error type shared by every
// fleetcache component.
//
// All store-facing operations wrap failures in *storeerr.Error so that
// callers can distinguish operational failure from absence: a missing
// session, token, or cache entry is reported as a nil result with a nil
// error, never as an Error. It integrates with Go's standard errors
// package for error wrapping and unwrapping.
package storeerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrMissingCredentials indicates a required store credential was not
	// present in the environment at construction time.
	ErrMissingCredentials = errors.New("missing store credentials")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownLimitClass indicates a rate-limit check named a class that is
	// not present in the configuration.
	ErrUnknownLimitClass = errors.New("unknown rate limit class")
)

// Error kinds categorize errors by their type.
const (
	// KindConfiguration represents errors related to configuration or credentials.
	KindConfiguration = "configuration"

	// KindNetwork represents errors talking to the backing store.
	KindNetwork = "network"

	// KindSerialization represents errors encoding or decoding stored records.
	KindSerialization = "serialization"

	// KindInternal represents internal library errors.
	KindInternal = "internal"
)

// Error is a structured error type that wraps underlying errors with
// the operation that failed and the category of error.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
type Error struct {
	// Op is the operation that failed (e.g., "session.Set", "cache.Invalidate").
	Op string

	// Kind categorizes the error (e.g., KindNetwork, KindSerialization).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	// This can include keys, patterns, or identifiers for debugging.
	Context map[string]any
}

// Error implements the error interface, returning a formatted message that
// includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fleetcache: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("fleetcache: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("fleetcache: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching, allowing comparison based on the underlying
// error or on another Error's Op/Kind.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the provided context merged in.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// Configuration creates a new Error with KindConfiguration.
func Configuration(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// Network creates a new Error with KindNetwork.
func Network(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNetwork, Err: err}
}

// Serialization creates a new Error with KindSerialization.
func Serialization(op string, err error) *Error {
	return &Error{Op: op, Kind: KindSerialization, Err: err}
}

// Internal creates a new Error with KindInternal.
func Internal(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Err: err}
}
