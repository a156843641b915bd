package js

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/guest"
	"github.com/dshills/conductor/internal/hook"
)

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

func (l *recordingLogger) messages(msg string) []logLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logLine
	for _, ln := range l.lines {
		if ln.msg == msg {
			out = append(out, ln)
		}
	}
	return out
}

type fixture struct {
	exec   *hook.Executor
	bus    *event.Bus
	logger *recordingLogger
	rt     *Runtime
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		exec:   hook.NewExecutor(hook.NewRegistry()),
		bus:    event.NewBus(),
		logger: &recordingLogger{},
	}
	f.exec.RegisterAdapter(NewAdapter())

	host := guest.NewHost("test.js", core.LanguageJavaScript, f.exec, f.bus, guest.WithLogger(f.logger))
	rt, err := New(host, opts...)
	require.NoError(t, err)
	f.rt = rt
	t.Cleanup(func() {
		_ = rt.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_ = f.bus.Close(ctx)
	})
	return f
}

func (f *fixture) run(t *testing.T, code string) {
	t.Helper()
	require.NoError(t, f.rt.RunString(context.Background(), code))
}
