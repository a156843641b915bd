package js

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/dshills/conductor/internal/adapter"
	"github.com/dshills/conductor/internal/guest"
)

// DefaultExecutionTimeout bounds one script run or one hook call.
const DefaultExecutionTimeout = 5 * time.Second

// Runtime is one goja VM bound to a guest.Host. The VM is not safe for
// concurrent use; every entry point holds mu.
type Runtime struct {
	host    *guest.Host
	adapter *adapter.Adapter
	vm      *goja.Runtime
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	closed bool

	closeErr error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithExecutionTimeout bounds every run and hook call. Zero disables it.
func WithExecutionTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.timeout = d
	}
}

// New creates a VM with the Hook, Event and console globals installed.
func New(host *guest.Host, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		host:    host,
		adapter: NewAdapter(),
		vm:      goja.New(),
		timeout: DefaultExecutionTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.installAPI(); err != nil {
		return nil, fmt.Errorf("install api: %w", err)
	}
	return r, nil
}

// Host returns the host the runtime registers through.
func (r *Runtime) Host() *guest.Host { return r.host }

// Adapter returns the JavaScript hook adapter.
func (r *Runtime) Adapter() *adapter.Adapter { return r.adapter }

// RunString evaluates source.
func (r *Runtime) RunString(ctx context.Context, src string) error {
	return r.guarded(ctx, func(vm *goja.Runtime) error {
		_, err := vm.RunString(src)
		return err
	})
}

// RunFile evaluates the script at path.
func (r *Runtime) RunFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return r.guarded(ctx, func(vm *goja.Runtime) error {
		_, err := vm.RunScript(path, string(src))
		return err
	})
}

// Call calls a global function with normalized arguments and returns its
// normalized result.
func (r *Runtime) Call(ctx context.Context, name string, args ...any) (any, error) {
	var out any
	err := r.guarded(ctx, func(vm *goja.Runtime) error {
		fn, ok := goja.AssertFunction(vm.Get(name))
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotFunction, name)
		}
		vals := make([]goja.Value, len(args))
		for i, a := range args {
			n, err := Codec{}.ToGuest(a)
			if err != nil {
				return fmt.Errorf("argument %d: %w", i+1, err)
			}
			vals[i] = vm.ToValue(n)
		}
		v, err := fn(goja.Undefined(), vals...)
		if err != nil {
			return err
		}
		out, err = FromJS(v)
		return err
	})
	return out, err
}

// guarded runs fn under mu with ctx, narrowed by the execution timeout,
// wired to the VM's interrupt.
func (r *Runtime) guarded(ctx context.Context, fn func(vm *goja.Runtime) error) (err error) {
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
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		r.vm.Interrupt(ctx.Err())
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
		}
		r.vm.ClearInterrupt()
	}()

	r.ctx = ctx
	defer func() { r.ctx = nil }()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("js panic: %v", p)
		}
	}()

	err = fn(r.vm)
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
		}
		return ctx.Err()
	}
	return err
}

// callContext returns the context of the call in progress. Callers hold mu.
func (r *Runtime) callContext() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// Close releases every hook and subscription the script created and
// disables the VM.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.closeErr
	}
	r.closed = true
	r.closeErr = r.host.Close()
	return r.closeErr
}
