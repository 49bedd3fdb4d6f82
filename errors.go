// Package gofiber provides a single-threaded cooperative fiber runtime.
package gofiber

import (
	"errors"
	"fmt"
)

// Namespace prefixes the sentinel errors below, in the style of a
// namespaced-error-var package rather than a typed hierarchy.
const Namespace = "gofiber"

var (
	// ErrClosed is returned by operations on an already-closed Channel or Publisher.
	ErrClosed = errors.New(Namespace + ": closed")
	// ErrFiberNotRunning names the error for an operation that requires the
	// calling goroutine to be the currently-running fiber when it is not.
	// No function in this package returns it.
	ErrFiberNotRunning = errors.New(Namespace + ": not the running fiber")
	// ErrDriverStopped names the error for work submitted to a Driver that
	// has already terminated. No function in this package returns it.
	ErrDriverStopped = errors.New(Namespace + ": driver stopped")
	// ErrNoSelectables is returned by Select when called with zero selectables.
	ErrNoSelectables = errors.New(Namespace + ": select with no selectables")
)

// UsageError reports a misuse of the runtime's API contract, such as
// activating a Channel or Publisher from the fiber that created it before
// any other fiber has used it.
type UsageError struct {
	Message string
	Cause   error
}

func (e *UsageError) Error() string {
	if e.Message == "" {
		return "usage error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *UsageError) Unwrap() error { return e.Cause }

// DeadlockError reports a cycle detected among awaiting fibers: fiber A
// awaits B, which (transitively) awaits A, so neither can ever make progress.
type DeadlockError struct {
	Cycle []uint64 // fiber IDs in the cycle, in await order
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("gofiber: circular await detected across %d fibers", len(e.Cycle))
}

// ClosedError wraps ErrClosed with the identity of the Channel or Publisher
// that was closed, for diagnostics.
type ClosedError struct {
	Resource string
}

func (e *ClosedError) Error() string {
	if e.Resource == "" {
		return ErrClosed.Error()
	}
	return fmt.Sprintf("gofiber: %s: %v", e.Resource, ErrClosed)
}

func (e *ClosedError) Unwrap() error { return ErrClosed }

// PanicError wraps a value recovered from a fiber body panic (panics in
// deferred callbacks are only logged). If Value is itself an error, Unwrap exposes it so
// [errors.Is] and [errors.As] can see through to the original cause.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("gofiber: panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// AggregateError combines multiple errors raised independently, such as
// more than one unhandled fiber error reaching a Context's sink during one
// Run.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "gofiber: aggregate error (empty)"
	}
	return fmt.Sprintf("gofiber: %d errors occurred, first: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every contained error for multi-error [errors.Is]/[errors.As].
func (e *AggregateError) Unwrap() []error { return e.Errors }

// Is reports whether target is an *AggregateError (contents notwithstanding);
// use Unwrap for matching individual contained errors.
func (e *AggregateError) Is(target error) bool {
	var aggTarget *AggregateError
	return errors.As(target, &aggTarget)
}

// WrapError wraps cause with a message, preserving errors.Is/As through cause.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
