package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/conductor/internal/adapter"
	"github.com/dshills/conductor/internal/guest"
)

// DefaultExecutionTimeout bounds one script load or one hook call.
const DefaultExecutionTimeout = 5 * time.Second

// Runtime is one sandboxed Lua state bound to a guest.Host.
type Runtime struct {
	host    *guest.Host
	adapter *adapter.Adapter
	L       *lua.LState
	exec    *executor

	timeout   time.Duration
	queueSize int

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithExecutionTimeout bounds every script load and hook call. Zero
// disables the bound.
func WithExecutionTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.timeout = d
	}
}

// WithQueueSize sets how many calls may wait for the worker.
func WithQueueSize(n int) Option {
	return func(r *Runtime) {
		r.queueSize = n
	}
}

// New creates a sandboxed state with the Hook and Event globals installed
// and starts its worker.
func New(host *guest.Host, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		host:    host,
		adapter: NewAdapter(),
		timeout: DefaultExecutionTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	if err := NewSandbox(L, host.Owner(), host.Logger()).Install(); err != nil {
		L.Close()
		return nil, fmt.Errorf("install sandbox: %w", err)
	}
	r.L = L
	r.installAPI(L)

	r.exec = newExecutor(L, r.queueSize)
	go r.exec.run()
	return r, nil
}

// Host returns the host the runtime registers through.
func (r *Runtime) Host() *guest.Host { return r.host }

// Adapter returns the Lua hook adapter.
func (r *Runtime) Adapter() *adapter.Adapter { return r.adapter }

// DoString executes a chunk of Lua source.
func (r *Runtime) DoString(ctx context.Context, code string) error {
	return r.exec.execute(ctx, func(L *lua.LState) error {
		return r.bounded(ctx, L, func() error { return L.DoString(code) })
	})
}

// DoFile executes a Lua file.
func (r *Runtime) DoFile(ctx context.Context, path string) error {
	return r.exec.execute(ctx, func(L *lua.LState) error {
		return r.bounded(ctx, L, func() error { return L.DoFile(path) })
	})
}

// Call calls a global function with normalized arguments and returns its
// normalized results.
func (r *Runtime) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	var out []any
	err := r.exec.execute(ctx, func(L *lua.LState) error {
		fn, ok := L.GetGlobal(name).(*lua.LFunction)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotFunction, name)
		}
		lvs := make([]lua.LValue, len(args))
		for i, a := range args {
			v, err := Codec{}.ToGuest(a)
			if err != nil {
				return fmt.Errorf("argument %d: %w", i+1, err)
			}
			lvs[i] = v.(lua.LValue)
		}
		return r.bounded(ctx, L, func() error {
			top := L.GetTop()
			if err := L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true}, lvs...); err != nil {
				return err
			}
			n := L.GetTop() - top
			out = make([]any, 0, n)
			for i := 1; i <= n; i++ {
				v, err := FromLua(L.Get(top + i))
				if err != nil {
					L.Pop(n)
					return fmt.Errorf("result %d: %w", i, err)
				}
				out = append(out, v)
			}
			L.Pop(n)
			return nil
		})
	})
	return out, err
}

// bounded runs fn with ctx, narrowed by the execution timeout, installed
// on L so that a long-running script is interrupted.
func (r *Runtime) bounded(ctx context.Context, L *lua.LState, fn func() error) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	L.SetContext(ctx)
	defer L.RemoveContext()

	err := fn()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
	}
	return err
}

// Close releases every hook and subscription the script created, stops
// the worker and closes the state.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.host.Close()
		r.exec.close()
		<-r.exec.stopped
		r.L.Close()
	})
	return r.closeErr
}
