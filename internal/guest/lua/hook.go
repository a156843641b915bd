package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/hook"
)

// scriptHook is a Lua function registered through Hook.register.
type scriptHook struct {
	rt *Runtime
	fn *lua.LFunction
}

var _ hook.GuestHook = (*scriptHook)(nil)

// Language implements hook.GuestHook.
func (h *scriptHook) Language() core.Language { return core.LanguageLua }

// Execute implements hook.Hook using the runtime's own adapter.
func (h *scriptHook) Execute(ctx context.Context, hc *hook.Context) (hook.Result, error) {
	return h.Invoke(ctx, hc, h.rt.adapter)
}

// Invoke adapts hc on the calling goroutine, calls the function on the
// runtime's worker and adapts the first return value. The queued call never
// touches hc, so a call abandoned on timeout cannot race with the host.
func (h *scriptHook) Invoke(ctx context.Context, hc *hook.Context, a hook.Adapter) (hook.Result, error) {
	arg, err := a.AdaptContext(hc)
	if err != nil {
		return nil, err
	}
	lv, ok := arg.(lua.LValue)
	if !ok {
		return nil, fmt.Errorf("lua adapter produced %T", arg)
	}

	out := make(chan hook.Result, 1)
	err = h.rt.exec.execute(ctx, func(L *lua.LState) error {
		// The caller may have given up while this call was queued.
		if err := ctx.Err(); err != nil {
			return err
		}
		var ret lua.LValue = lua.LNil
		err := h.rt.bounded(ctx, L, func() error {
			if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 1, Protect: true}, lv); err != nil {
				return err
			}
			ret = L.Get(-1)
			L.Pop(1)
			return nil
		})
		if err != nil {
			return err
		}
		res, err := a.AdaptResult(ret)
		if err != nil {
			return err
		}
		out <- res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return <-out, nil
}
