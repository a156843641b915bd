package js

import "errors"

var (
	// ErrRuntimeClosed is returned when operating on a closed runtime.
	ErrRuntimeClosed = errors.New("js runtime is closed")

	// ErrExecutionTimeout is returned when a call outlives its deadline.
	ErrExecutionTimeout = errors.New("js execution timeout")

	// ErrNotFunction is returned by Call for globals that are not functions.
	ErrNotFunction = errors.New("js global is not a function")
)
