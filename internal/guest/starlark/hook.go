package starlark

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/hook"
)

// scriptHook is a Starlark callable registered through Hook.register.
type scriptHook struct {
	rt *Runtime
	fn starlark.Callable
}

var _ hook.GuestHook = (*scriptHook)(nil)

// Language implements hook.GuestHook.
func (h *scriptHook) Language() core.Language { return core.LanguageStarlark }

// Execute implements hook.Hook using the runtime's own adapter.
func (h *scriptHook) Execute(ctx context.Context, hc *hook.Context) (hook.Result, error) {
	return h.Invoke(ctx, hc, h.rt.adapter)
}

// Invoke adapts hc, calls fn on a fresh thread and adapts its return value.
func (h *scriptHook) Invoke(ctx context.Context, hc *hook.Context, a hook.Adapter) (hook.Result, error) {
	var res hook.Result
	err := h.rt.guarded(ctx, func(thread *starlark.Thread) error {
		arg, err := a.AdaptContext(hc)
		if err != nil {
			return err
		}
		sv, ok := arg.(starlark.Value)
		if !ok {
			return fmt.Errorf("starlark adapter produced %T", arg)
		}
		ret, err := starlark.Call(thread, h.fn, starlark.Tuple{sv}, nil)
		if err != nil {
			return err
		}
		res, err = a.AdaptResult(ret)
		return err
	})
	return res, err
}
