package starlark

import "errors"

var (
	ErrRuntimeClosed    = errors.New("starlark runtime is closed")
	ErrExecutionTimeout = errors.New("starlark execution timeout")
	// ErrStepLimit is returned when a call exceeds the configured number of
	// interpreter steps.
	ErrStepLimit   = errors.New("starlark step limit exceeded")
	ErrNotFunction = errors.New("starlark global is not callable")
)
