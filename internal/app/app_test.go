package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/conductor/internal/config"
	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/hook"
	"github.com/dshills/conductor/internal/telemetry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Persistence.Backend = config.BackendMemory
	cfg.Scripts.Dirs = []string{t.TempDir()}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, opts ...Option) *Application {
	t.Helper()
	opts = append([]Option{WithLogger(telemetry.NoopLogger{})}, opts...)
	app, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = app.Close(ctx)
	})
	return app
}

func writeScript(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

func TestStartLoadsScripts(t *testing.T) {
	cfg := testConfig(t)
	dir := cfg.Scripts.Dirs[0]
	writeScript(t, dir, "guard.lua", `Hook.register("BeforeToolExecution", function(ctx) return "denied" end)`)
	writeScript(t, dir, "audit.js", `Hook.register("AfterToolExecution", function(ctx) { Event.publish("audit.tool", ctx.data); });`)
	writeScript(t, dir, "broken.star", `def (`)

	app := newApp(t, cfg)
	require.NoError(t, app.Start(context.Background()))
	assert.True(t, app.IsRunning())
	require.ErrorIs(t, app.Start(context.Background()), ErrAlreadyRunning)

	assert.Len(t, app.Scripts().Scripts(), 2)

	hc := hook.NewContext(hook.BeforeToolExecution, core.NewComponentID("shell", core.KindTool))
	res, _, err := app.Executor().Run(context.Background(), hook.BeforeToolExecution, hc)
	require.NoError(t, err)
	assert.Equal(t, hook.Cancel{Reason: "denied"}, res)

	sub, err := app.Bus().Subscribe("audit.*")
	require.NoError(t, err)
	hc = hook.NewContext(hook.AfterToolExecution, core.NewComponentID("shell", core.KindTool)).
		WithData(map[string]any{"tool": "ls"})
	_, _, err = app.Executor().Run(context.Background(), hook.AfterToolExecution, hc)
	require.NoError(t, err)

	e, ok := app.Bus().Receive(context.Background(), sub, time.Second)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"tool": "ls"}, e.Data)
	assert.Equal(t, core.LanguageJavaScript, e.Source.Language)

	require.NoError(t, app.Shutdown(context.Background()))
	assert.False(t, app.IsRunning())
	assert.Equal(t, 0, app.Registry().Count(hook.BeforeToolExecution))
	assert.True(t, app.Bus().IsClosed())
	require.ErrorIs(t, app.Shutdown(context.Background()), ErrNotRunning)
}

func TestExecutionEventsReachTheBus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hooks.ExecutionEvents = true
	app := newApp(t, cfg)

	sub, err := app.Bus().Subscribe("hook.execution.*")
	require.NoError(t, err)

	_, err = app.Registry().Register(hook.SessionStart, hook.PriorityNormal,
		hook.Func(func(context.Context, *hook.Context) (hook.Result, error) { return hook.Continue{}, nil }))
	require.NoError(t, err)

	hc := hook.NewContext(hook.SessionStart, core.SystemComponent)
	_, _, err = app.Executor().Run(context.Background(), hook.SessionStart, hc)
	require.NoError(t, err)

	var events []*event.UniversalEvent
	for len(events) < 2 {
		ev, ok := app.Bus().Receive(context.Background(), sub, time.Second)
		require.True(t, ok, "execution events not delivered")
		events = append(events, ev)
	}
	assert.Equal(t, hook.EventExecutionStart, events[0].Type)
	assert.Equal(t, hook.EventExecutionComplete, events[1].Type)
	assert.Equal(t, hc.CorrelationID, events[1].Source.CorrelationID)
}

func TestExecutionEventsDoNotWaitForBlockedSubscribers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hooks.ExecutionEvents = true
	app := newApp(t, cfg)

	sub, err := app.Bus().Subscribe("hook.**",
		event.WithBackpressure(event.Block),
		event.WithCapacity(1),
		event.WithSubscriptionBlockTimeout(2*time.Second))
	require.NoError(t, err)

	_, err = app.Registry().Register(hook.SessionStart, hook.PriorityNormal,
		hook.Func(func(context.Context, *hook.Context) (hook.Result, error) { return hook.Continue{}, nil }))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		start := time.Now()
		_, _, err := app.Executor().Run(context.Background(), hook.SessionStart, hook.NewContext(hook.SessionStart, core.SystemComponent))
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 500*time.Millisecond, "run %d waited on the subscriber", i)
	}

	ev, ok := app.Bus().Receive(context.Background(), sub, time.Second)
	require.True(t, ok)
	assert.Equal(t, hook.EventExecutionStart, ev.Type)
}

func TestPersistencePatterns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Persistence.Patterns = []string{"agent.**"}
	app := newApp(t, cfg)

	ctx := context.Background()
	require.NoError(t, app.Bus().Publish(ctx, "agent.planner.started", nil))
	require.NoError(t, app.Bus().Publish(ctx, "tool.done", nil))
	require.NoError(t, app.Bus().Publish(ctx, "tool.failed", nil, event.WithPersistent()))

	got, err := app.Bus().Query(ctx, event.Query{})
	require.NoError(t, err)
	var types []string
	for _, e := range got {
		types = append(types, e.Type)
	}
	assert.ElementsMatch(t, []string{"agent.planner.started", "tool.failed"}, types)
}

func TestRetentionCleanup(t *testing.T) {
	cfg := testConfig(t)
	cfg.Persistence.Retention = config.Duration(time.Hour)
	cfg.Persistence.CleanupInterval = config.Duration(10 * time.Millisecond)

	store := event.NewMemoryStore(100)
	now := time.Now()
	app := newApp(t, cfg, WithStore(store), WithClock(func() time.Time { return now }))

	old := event.NewEvent("agent.old", nil)
	old.Timestamp = now.Add(-2 * time.Hour)
	require.NoError(t, store.Append(context.Background(), old))
	fresh := event.NewEvent("agent.fresh", nil)
	fresh.Timestamp = now
	require.NoError(t, store.Append(context.Background(), fresh))

	require.NoError(t, app.Start(context.Background()))
	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Events.Capacity = 0

	_, err := New(context.Background(), cfg, WithLogger(telemetry.NoopLogger{}))
	require.ErrorIs(t, err, config.ErrInvalid)
	var ce *ComponentError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "config", ce.Component)
}

func TestNewSQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Persistence.Backend = config.BackendSQLite
	cfg.Persistence.SQLite.Path = filepath.Join(t.TempDir(), "events.db")
	app := newApp(t, cfg)

	ctx := context.Background()
	require.NoError(t, app.Bus().Publish(ctx, "session.saved", map[string]any{"n": 1}, event.WithPersistent()))
	got, err := app.Bus().Query(ctx, event.Query{Pattern: "session.*"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "session.saved", got[0].Type)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(context.Background(), config.LoggingConfig{Level: "loud", Format: "text"}, nil)
	require.Error(t, err)
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	_, err := openStore(context.Background(), config.PersistenceConfig{Backend: "cassandra"})
	require.ErrorIs(t, err, ErrUnknownBackend)
}
