package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates Start was called twice.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNotRunning indicates Shutdown was called before Start.
	ErrNotRunning = errors.New("application not running")

	// ErrUnknownBackend indicates an unsupported persistence backend.
	ErrUnknownBackend = errors.New("unknown persistence backend")
)

// ComponentError reports which subsystem failed while the application was
// being assembled, started or stopped.
type ComponentError struct {
	Component string
	Action    string
	Err       error
}

func (e *ComponentError) Error() string {
	msg := e.Component
	if e.Action != "" {
		msg += " " + e.Action
	}
	return fmt.Sprintf("%s failed: %v", msg, e.Err)
}

func (e *ComponentError) Unwrap() error { return e.Err }
