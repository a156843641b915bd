package js

import (
	"context"

	"github.com/dop251/goja"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/hook"
)

// scriptHook is a JavaScript function registered through Hook.register.
type scriptHook struct {
	rt *Runtime
	fn goja.Callable
}

var _ hook.GuestHook = (*scriptHook)(nil)

// Language implements hook.GuestHook.
func (h *scriptHook) Language() core.Language { return core.LanguageJavaScript }

// Execute implements hook.Hook using the runtime's own adapter.
func (h *scriptHook) Execute(ctx context.Context, hc *hook.Context) (hook.Result, error) {
	return h.Invoke(ctx, hc, h.rt.adapter)
}

// Invoke adapts hc, calls the function under the VM lock and adapts its
// return value.
func (h *scriptHook) Invoke(ctx context.Context, hc *hook.Context, a hook.Adapter) (hook.Result, error) {
	var res hook.Result
	err := h.rt.guarded(ctx, func(vm *goja.Runtime) error {
		arg, err := a.AdaptContext(hc)
		if err != nil {
			return err
		}
		ret, err := h.fn(goja.Undefined(), vm.ToValue(arg))
		if err != nil {
			return err
		}
		res, err = a.AdaptResult(ret)
		return err
	})
	return res, err
}
