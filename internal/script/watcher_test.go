package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/conductor/internal/hook"
)

func newWatcher(t *testing.T, e *env) *Watcher {
	t.Helper()
	w, err := NewWatcher(e.loader, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.Watch(e.dir))
	return w
}

func cancelReason(t *testing.T, e *env) string {
	t.Helper()
	res, _, err := e.exec.Run(context.Background(), hook.BeforeToolExecution, toolContext())
	if err != nil {
		return ""
	}
	if c, ok := res.(hook.Cancel); ok {
		return c.Reason
	}
	return ""
}

func TestWatcherLoadsReloadsAndUnloads(t *testing.T) {
	e := newEnv(t)
	newWatcher(t, e)

	p := e.write(t, "guard.lua", `Hook.register("BeforeToolExecution", function() return "v1" end)`)
	require.Eventually(t, func() bool { return cancelReason(t, e) == "v1" }, 2*time.Second, 10*time.Millisecond)

	e.write(t, "guard.lua", `Hook.register("BeforeToolExecution", function() return "v2" end)`)
	require.Eventually(t, func() bool { return cancelReason(t, e) == "v2" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, e.exec.Registry().Count(hook.BeforeToolExecution))

	require.NoError(t, os.Remove(p))
	require.Eventually(t, func() bool { return len(e.loader.Scripts()) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, e.exec.Registry().Count(hook.BeforeToolExecution))
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	e := newEnv(t)
	newWatcher(t, e)

	sub := filepath.Join(e.dir, "team")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to add the new directory.
	time.Sleep(100 * time.Millisecond)
	e.write(t, "team/allow.js", jsScript)

	require.Eventually(t, func() bool { return len(e.loader.Scripts()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	e := newEnv(t)
	newWatcher(t, e)

	e.write(t, "notes.txt", "hello")
	e.write(t, ".draft.lua", luaScript)
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, e.loader.Scripts())
}

func TestWatcherClose(t *testing.T) {
	e := newEnv(t)
	w := newWatcher(t, e)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Watch(e.dir), ErrWatcherClosed)
}
