// Package starlark runs guest hooks and event consumers written in
// Starlark. Scripts see Hook and Event modules with the same functions as
// the Lua and JavaScript runtimes, plus the json and math modules. Hook
// functions receive the context as a dict and return None, a string or a
// result dict such as {"type": "modified", "data": {...}}.
//
// Module globals stay mutable after a script is loaded, so every call on
// a Runtime is serialized. Each call runs on a fresh starlark.Thread that
// is cancelled when its deadline passes.
package starlark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.starlark.net/starlark"

	"github.com/dshills/conductor/internal/adapter"
	"github.com/dshills/conductor/internal/guest"
)

// DefaultExecutionTimeout bounds one script load or one hook call.
const DefaultExecutionTimeout = 5 * time.Second

const contextLocal = "conductor.context"

// Runtime is one Starlark environment bound to a guest.Host.
type Runtime struct {
	host        *guest.Host
	adapter     *adapter.Adapter
	predeclared starlark.StringDict
	timeout     time.Duration
	maxSteps    uint64

	mu       sync.Mutex
	globals  starlark.StringDict
	closed   bool
	closeErr error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithExecutionTimeout bounds every script load and hook call. Zero
// disables it.
func WithExecutionTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.timeout = d
	}
}

// WithMaxSteps caps the interpreter steps of a single call. Zero means no
// limit.
func WithMaxSteps(n uint64) Option {
	return func(r *Runtime) {
		r.maxSteps = n
	}
}

// New creates a runtime with the Hook, Event, json and math modules
// predeclared.
func New(host *guest.Host, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		host:    host,
		adapter: NewAdapter(),
		timeout: DefaultExecutionTimeout,
		globals: starlark.StringDict{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.predeclared = r.api()
	return r, nil
}

// Host returns the host the runtime registers through.
func (r *Runtime) Host() *guest.Host { return r.host }

// Adapter returns the Starlark hook adapter.
func (r *Runtime) Adapter() *adapter.Adapter { return r.adapter }

// ExecString runs src as a module named filename. Its globals join the
// runtime's globals and are visible to later loads.
func (r *Runtime) ExecString(ctx context.Context, filename, src string) error {
	return r.guarded(ctx, func(thread *starlark.Thread) error {
		env := make(starlark.StringDict, len(r.predeclared)+len(r.globals))
		for k, v := range r.predeclared {
			env[k] = v
		}
		for k, v := range r.globals {
			env[k] = v
		}

		_, prog, err := starlark.SourceProgram(filename, src, env.Has)
		if err != nil {
			return err
		}
		globals, err := prog.Init(thread, env)
		if err != nil {
			return err
		}
		for k, v := range globals {
			r.globals[k] = v
		}
		return nil
	})
}

// ExecFile runs the script at path.
func (r *Runtime) ExecFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return r.ExecString(ctx, path, string(src))
}

// Call calls a global with normalized arguments and returns its normalized
// result.
func (r *Runtime) Call(ctx context.Context, name string, args ...any) (any, error) {
	var out any
	err := r.guarded(ctx, func(thread *starlark.Thread) error {
		fn, ok := r.globals[name].(starlark.Callable)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotFunction, name)
		}
		tuple := make(starlark.Tuple, len(args))
		for i, a := range args {
			sv, err := Codec{}.ToGuest(a)
			if err != nil {
				return fmt.Errorf("argument %d: %w", i+1, err)
			}
			tuple[i] = sv.(starlark.Value)
		}
		v, err := starlark.Call(thread, fn, tuple, nil)
		if err != nil {
			return err
		}
		out, err = FromStarlark(v)
		return err
	})
	return out, err
}

// guarded runs fn under mu on a new thread whose lifetime is bound to ctx
// narrowed by the execution timeout.
func (r *Runtime) guarded(ctx context.Context, fn func(thread *starlark.Thread) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRuntimeClosed
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	thread := r.newThread(ctx)
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	defer stop()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("starlark panic: %v", p)
		}
	}()

	err = fn(thread)
	switch {
	case err == nil:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
	case ctx.Err() != nil:
		return ctx.Err()
	case r.maxSteps > 0 && thread.ExecutionSteps() >= r.maxSteps:
		return fmt.Errorf("%w: %v", ErrStepLimit, err)
	}
	return err
}

func (r *Runtime) newThread(ctx context.Context) *starlark.Thread {
	thread := &starlark.Thread{
		Name: r.host.Owner(),
		Print: func(_ *starlark.Thread, msg string) {
			r.host.Logger().Info(ctx, "script output", "script", r.host.Owner(), "message", msg)
		},
	}
	if r.maxSteps > 0 {
		thread.SetMaxExecutionSteps(r.maxSteps)
	}
	thread.SetLocal(contextLocal, ctx)
	return thread
}

// threadContext returns the context of the call the thread serves.
func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextLocal).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// Close releases every hook and subscription the script created.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.closeErr
	}
	r.closed = true
	r.closeErr = r.host.Close()
	r.globals = nil
	return r.closeErr
}
