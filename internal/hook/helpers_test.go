package hook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/conductor/internal/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type logLine struct {
	level string
	msg   string
	kv    []any
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *recordingLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, msg: msg, kv: kv})
}

func (l *recordingLogger) Debug(_ context.Context, msg string, kv ...any) { l.add("debug", msg, kv) }
func (l *recordingLogger) Info(_ context.Context, msg string, kv ...any)  { l.add("info", msg, kv) }
func (l *recordingLogger) Warn(_ context.Context, msg string, kv ...any)  { l.add("warn", msg, kv) }
func (l *recordingLogger) Error(_ context.Context, msg string, kv ...any) { l.add("error", msg, kv) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ln := range l.lines {
		if ln.level == level {
			n++
		}
	}
	return n
}

// recorder returns a hook that appends label to *order and returns res.
func recorder(order *[]string, label string, res Result) Hook {
	return Func(func(context.Context, *Context) (Result, error) {
		*order = append(*order, label)
		return res, nil
	})
}

func mustRegister(r *Registry, p Point, prio Priority, h Hook, opts ...RegisterOption) Handle {
	handle, err := r.Register(p, prio, h, opts...)
	if err != nil {
		panic(fmt.Sprintf("register: %v", err))
	}
	return handle
}

func systemComponent() core.ComponentID {
	return core.SystemComponent
}
