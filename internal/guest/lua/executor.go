package lua

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// call is one operation queued for the worker.
type call struct {
	fn     func(L *lua.LState) error
	result chan error
}

// executor serializes every operation on an LState through one goroutine.
//
// gopher-lua's LState is NOT goroutine-safe. Hooks fire from whatever
// goroutine runs the chain, so their bodies are shipped here.
type executor struct {
	L       *lua.LState
	queue   chan *call
	closed  atomic.Bool
	done    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
}

func newExecutor(L *lua.LState, queueSize int) *executor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &executor{
		L:       L,
		queue:   make(chan *call, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// run processes queued operations until close is called. It must be the
// only goroutine touching L while it runs.
func (e *executor) run() {
	defer close(e.stopped)
	for {
		select {
		case <-e.done:
			e.drain()
			return
		case c := <-e.queue:
			c.result <- e.invoke(c)
		}
	}
}

func (e *executor) invoke(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return c.fn(e.L)
}

func (e *executor) drain() {
	for {
		select {
		case c := <-e.queue:
			c.result <- ErrRuntimeClosed
		default:
			return
		}
	}
}

// execute runs fn on the worker and waits for it. If ctx ends first the
// operation still runs; fn is expected to observe ctx itself.
func (e *executor) execute(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrRuntimeClosed
	}
	c := &call{fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrRuntimeClosed
	case e.queue <- c:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.result:
		return err
	case <-e.stopped:
		select {
		case err := <-c.result:
			return err
		default:
			return ErrRuntimeClosed
		}
	}
}

func (e *executor) close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}
