package lua

import "errors"

// Errors for Lua runtime operations.
var (
	// ErrRuntimeClosed is returned when operating on a closed runtime.
	ErrRuntimeClosed = errors.New("lua runtime is closed")

	// ErrExecutionTimeout is returned when a call outlives its deadline.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrNotFunction is returned by Call for globals that are not functions.
	ErrNotFunction = errors.New("lua global is not a function")
)
