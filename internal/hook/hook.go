package hook

import (
	"context"
	"fmt"

	"github.com/dshills/conductor/internal/core"
)

// Hook is a synchronous interceptor registered at a Point.
type Hook interface {
	// Execute inspects or alters hc and returns the hook's decision.
	// A returned error is treated as a fault: it is logged and the chain
	// continues as if the hook returned Continue.
	Execute(ctx context.Context, hc *Context) (Result, error)
}

// Func adapts a function to Hook.
type Func func(ctx context.Context, hc *Context) (Result, error)

// Execute implements Hook.
func (f Func) Execute(ctx context.Context, hc *Context) (Result, error) {
	return f(ctx, hc)
}

// Conditional is implemented by hooks that only apply to some contexts.
// When ShouldExecute returns false the hook reports Skipped{"condition"}.
type Conditional interface {
	ShouldExecute(hc *Context) bool
}

// Adapter converts between the host representation and one guest
// language's values. AdaptContext and AdaptResult must be called on the
// guest runtime's own thread; GuestHook.Invoke is responsible for that.
type Adapter interface {
	Language() core.Language
	AdaptContext(hc *Context) (any, error)
	AdaptResult(v any) (Result, error)
	AdaptEventData(v any) (any, error)
}

// GuestHook is a hook implemented in an embedded language. The executor
// hands it the Adapter registered for its language.
type GuestHook interface {
	Hook
	Language() core.Language
	Invoke(ctx context.Context, hc *Context, a Adapter) (Result, error)
}

// AdapterFault wraps a value recovered from a panicking adapter so that the
// executor surfaces it as an infrastructure error rather than a hook fault.
func AdapterFault(lang core.Language, recovered any) error {
	return fmt.Errorf("%w: %s: %v", ErrAdapterFault, lang, recovered)
}
