package adapter

import (
	"errors"
	"fmt"

	"github.com/dshills/conductor/internal/core"
)

// ErrAdapt is matched by every AdaptError.
var ErrAdapt = errors.New("adapt error")

// AdaptError reports a value that could not be converted between the host
// and a guest language.
type AdaptError struct {
	Language core.Language
	Field    string
	Err      error
}

// Error implements the error interface.
func (e *AdaptError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s adapter: %v", e.Language, e.Err)
	}
	return fmt.Sprintf("%s adapter: %s: %v", e.Language, e.Field, e.Err)
}

// Unwrap exposes both ErrAdapt and the cause to errors.Is.
func (e *AdaptError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAdapt}
	}
	return []error{ErrAdapt, e.Err}
}

func adaptErr(lang core.Language, field, format string, args ...any) error {
	return &AdaptError{Language: lang, Field: field, Err: fmt.Errorf(format, args...)}
}
