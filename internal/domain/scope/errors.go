package scope

import (
	"errors"
	"fmt"
)

// Lifecycle misuse. These are programming errors: they are returned
// unmodified and are meant to be fixed, not handled.
var (
	ErrNotInitialized     = errors.New("scoped context is not initialized")
	ErrAlreadyInitialized = errors.New("scoped context is already initialized")
	ErrDisposed           = errors.New("scoped context has been disposed")
	ErrNoScope            = errors.New("no scoped context bound to this context")
)

// ErrInvalidArgument is wrapped by every ValidationError.
var ErrInvalidArgument = errors.New("invalid argument")

// LifecycleError reports use of a scoped context outside its lifecycle.
type LifecycleError struct {
	Op  string
	Err error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("scope: %s: %v (%s)", e.Op, e.Err, hint(e.Err))
}

func (e *LifecycleError) Unwrap() error { return e.Err }

func hint(err error) string {
	switch {
	case errors.Is(err, ErrNotInitialized):
		return "no transport boundary initialized this scope; check that the scope middleware, interceptor or runner wraps this code path"
	case errors.Is(err, ErrAlreadyInitialized):
		return "Initialize runs exactly once, at the transport boundary"
	case errors.Is(err, ErrDisposed):
		return "the owning request, job or message has finished; the scope must not outlive it"
	case errors.Is(err, ErrNoScope):
		return "the call is not running inside a scope boundary; check that the scope middleware, interceptor or runner wraps this code path"
	default:
		return "lifecycle violation"
	}
}

// ValidationError reports a blank or malformed caller-supplied argument.
type ValidationError struct {
	Op     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scope: %s: invalid %s: %s", e.Op, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// IsLifecycle reports whether err is a lifecycle misuse error.
func IsLifecycle(err error) bool {
	var le *LifecycleError
	return errors.As(err, &le)
}

// IsValidation reports whether err is an argument validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func lifecycle(op string, err error) error {
	return &LifecycleError{Op: op, Err: err}
}

func required(op, field string) error {
	return &ValidationError{Op: op, Field: field, Reason: "must not be blank"}
}
