package hook

import (
	"errors"
	"fmt"
)

// Sentinel errors for the hook subsystem.
var (
	// ErrDuplicateHandle is returned when a generated handle collides with a live one.
	ErrDuplicateHandle = errors.New("duplicate hook handle")

	// ErrUnknownPoint is returned for names that are neither builtin nor Custom points.
	ErrUnknownPoint = errors.New("unknown hook point")

	// ErrNilHook is returned when registering a nil hook.
	ErrNilHook = errors.New("hook cannot be nil")

	// ErrDuplicateName is returned when a named hook is registered twice at one point.
	ErrDuplicateName = errors.New("duplicate hook name")

	// ErrNoAdapter is returned by Run when a guest hook's language has no adapter.
	ErrNoAdapter = errors.New("no adapter for hook language")

	// ErrAdapterFault is returned by Run when an adapter panics.
	ErrAdapterFault = errors.New("adapter fault")

	// ErrNilContext is returned by Run when called without a Context.
	ErrNilContext = errors.New("hook context cannot be nil")
)

// HookError records a fault raised by a hook body. The executor logs it
// and continues the chain.
type HookError struct {
	Hook  string
	Point Point
	Err   error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s at %s: %v", e.Hook, e.Point, e.Err)
}

// Unwrap returns the underlying error.
func (e *HookError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking hook.
type PanicError struct {
	Value any
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("hook panicked: %v", e.Value)
}
