package hook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/conductor/internal/core"
)

func newTestContext(data map[string]any) *Context {
	return NewContext(BeforeAgentExecution, core.NewComponentID("agent-1", core.KindAgent)).WithData(data)
}

func TestRunEmptyChain(t *testing.T) {
	exec := NewExecutor(NewRegistry())

	res, hc, err := exec.Run(context.Background(), ToolError, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, Continue{}, res)
	assert.Equal(t, ToolError, hc.Point)
	assert.NotNil(t, hc.Data)
}

func TestRunNilContext(t *testing.T) {
	_, _, err := NewExecutor(NewRegistry()).Run(context.Background(), ToolError, nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestRunModifiedScenario(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)

	var seen any
	mustRegister(reg, BeforeAgentExecution, PriorityHigh, Func(func(_ context.Context, hc *Context) (Result, error) {
		seen = hc.Data["x"]
		return Continue{}, nil
	}))
	mustRegister(reg, BeforeAgentExecution, PriorityNormal, Func(func(context.Context, *Context) (Result, error) {
		return Modified{Data: map[string]any{"x": 1}}, nil
	}))

	res, hc, err := exec.Run(context.Background(), BeforeAgentExecution, newTestContext(map[string]any{"x": 0}))
	require.NoError(t, err)
	assert.Equal(t, Modified{Data: map[string]any{"x": 1}}, res)
	assert.Equal(t, 0, seen)
	assert.Equal(t, 1, hc.Data["x"])
}

func TestRunModifiedVisibleToNextHook(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)

	var seen any
	mustRegister(reg, BeforeAgentExecution, PriorityHigh, Func(func(context.Context, *Context) (Result, error) {
		return Modified{Data: map[string]any{"step": "one"}}, nil
	}))
	mustRegister(reg, BeforeAgentExecution, PriorityNormal, Func(func(_ context.Context, hc *Context) (Result, error) {
		seen = hc.Data["step"]
		return Modified{Data: map[string]any{"step": "two"}}, nil
	}))
	mustRegister(reg, BeforeAgentExecution, PriorityLow, nop)

	res, _, err := exec.Run(context.Background(), BeforeAgentExecution, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "one", seen)
	assert.Equal(t, Modified{Data: map[string]any{"step": "two"}}, res)
}

func TestRunCancelStopsChain(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)

	var order []string
	var cancelSaw any
	mustRegister(reg, BeforeToolExecution, PriorityHighest, Func(func(context.Context, *Context) (Result, error) {
		order = append(order, "modify")
		return Modified{Data: map[string]any{"tool": "safe"}}, nil
	}))
	mustRegister(reg, BeforeToolExecution, PriorityHighest, Func(func(_ context.Context, hc *Context) (Result, error) {
		order = append(order, "cancel")
		cancelSaw = hc.Data["tool"]
		return Cancel{Reason: "x"}, nil
	}))
	mustRegister(reg, BeforeToolExecution, PriorityNormal, recorder(&order, "after", Continue{}))

	res, _, err := exec.Run(context.Background(), BeforeToolExecution, newTestContext(map[string]any{"tool": "rm"}))
	require.NoError(t, err)
	assert.Equal(t, Cancel{Reason: "x"}, res)
	assert.Equal(t, []string{"modify", "cancel"}, order)
	assert.Equal(t, "safe", cancelSaw)
}

func TestRunTerminalResults(t *testing.T) {
	results := []Result{
		Redirect{Target: "fallback"},
		Replace{Component: map[string]any{"name": "other"}},
		Retry{MaxAttempts: 2, Backoff: time.Second},
		Fork{Branches: []Branch{{Name: "a"}}},
		Cache{TTL: time.Minute, Value: "cached"},
	}
	for _, want := range results {
		t.Run(string(want.Kind()), func(t *testing.T) {
			reg := NewRegistry()
			exec := NewExecutor(reg)
			var order []string
			mustRegister(reg, AfterToolExecution, PriorityNormal, recorder(&order, "first", want))
			mustRegister(reg, AfterToolExecution, PriorityLow, recorder(&order, "second", Cancel{Reason: "late"}))

			res, _, err := exec.Run(context.Background(), AfterToolExecution, newTestContext(nil))
			require.NoError(t, err)
			assert.Equal(t, want, res)
			assert.Equal(t, []string{"first"}, order)
		})
	}
}

func TestRunSkippedDoesNotStopChain(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)
	var order []string
	mustRegister(reg, SessionStart, PriorityHigh, recorder(&order, "skip", Skipped{Reason: "n/a"}))
	mustRegister(reg, SessionStart, PriorityNormal, recorder(&order, "run", Continue{}))

	res, _, err := exec.Run(context.Background(), SessionStart, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, Continue{}, res)
	assert.Equal(t, []string{"skip", "run"}, order)
}

func TestRunFaultsBecomeContinue(t *testing.T) {
	reg := NewRegistry()
	logger := &recordingLogger{}
	exec := NewExecutor(reg, WithLogger(logger))

	var order []string
	mustRegister(reg, AgentError, PriorityHighest, Func(func(context.Context, *Context) (Result, error) {
		return Cancel{Reason: "ignored"}, errors.New("boom")
	}))
	mustRegister(reg, AgentError, PriorityHigh, Func(func(context.Context, *Context) (Result, error) {
		panic("kaboom")
	}))
	mustRegister(reg, AgentError, PriorityNormal, recorder(&order, "survivor", Continue{}))

	res, _, err := exec.Run(context.Background(), AgentError, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, Continue{}, res)
	assert.Equal(t, []string{"survivor"}, order)
	assert.Equal(t, 2, logger.count("warn"))

	var faults uint64
	for _, s := range exec.Monitor().Hooks() {
		faults += s.Faults
	}
	assert.Equal(t, uint64(2), faults)
}

func TestRunTimeoutIsFault(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)
	mustRegister(reg, ToolValidation, PriorityNormal, Func(func(ctx context.Context, _ *Context) (Result, error) {
		<-ctx.Done()
		return Cancel{Reason: "too late"}, nil
	}), WithTimeout(10*time.Millisecond))

	res, _, err := exec.Run(context.Background(), ToolValidation, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, Continue{}, res)
}

type conditionalHook struct {
	Func
	apply bool
}

func (c conditionalHook) ShouldExecute(*Context) bool { return c.apply }

func TestRunConditional(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)
	var order []string
	mustRegister(reg, SessionEnd, PriorityNormal, conditionalHook{
		Func: func(context.Context, *Context) (Result, error) {
			order = append(order, "ran")
			return Cancel{Reason: "no"}, nil
		},
	})

	res, _, err := exec.Run(context.Background(), SessionEnd, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, Continue{}, res)
	assert.Empty(t, order)
}

func TestRunDisabled(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)
	var order []string
	h := mustRegister(reg, SessionEnd, PriorityNormal, recorder(&order, "a", Cancel{Reason: "a"}))

	reg.SetEnabled(h, false)
	res, _, _ := exec.Run(context.Background(), SessionEnd, newTestContext(nil))
	assert.Equal(t, Continue{}, res)

	reg.SetEnabled(h, true)
	reg.SetGlobalEnabled(false)
	res, _, _ = exec.Run(context.Background(), SessionEnd, newTestContext(nil))
	assert.Equal(t, Continue{}, res)
	assert.Empty(t, order)

	reg.SetGlobalEnabled(true)
	res, _, _ = exec.Run(context.Background(), SessionEnd, newTestContext(nil))
	assert.Equal(t, Cancel{Reason: "a"}, res)
}

func TestRunSnapshotAtStart(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)
	var order []string
	mustRegister(reg, WorkflowCheckpoint, PriorityHighest, Func(func(context.Context, *Context) (Result, error) {
		order = append(order, "first")
		if len(order) == 1 {
			mustRegister(reg, WorkflowCheckpoint, PriorityLowest, recorder(&order, "late", Continue{}))
		}
		return Continue{}, nil
	}))

	_, _, err := exec.Run(context.Background(), WorkflowCheckpoint, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, order)

	_, _, err = exec.Run(context.Background(), WorkflowCheckpoint, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "first", "late"}, order)
}

func TestRunResetsState(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)
	var seen []int
	mustRegister(reg, BeforeStateRead, PriorityNormal, Func(func(_ context.Context, hc *Context) (Result, error) {
		seen = append(seen, len(hc.State))
		hc.State["touched"] = true
		return Continue{}, nil
	}))

	hc := newTestContext(nil)
	_, _, _ = exec.Run(context.Background(), BeforeStateRead, hc)
	_, _, _ = exec.Run(context.Background(), BeforeStateRead, hc)
	assert.Equal(t, []int{0, 0}, seen)
}

func TestRunBreakerSkipsSlowHook(t *testing.T) {
	clk := newFakeClock()
	reg := NewRegistry()
	exec := NewExecutor(reg, WithClock(clk.Now))

	calls := 0
	slow := true
	h := mustRegister(reg, BeforeToolExecution, PriorityNormal, Func(func(context.Context, *Context) (Result, error) {
		calls++
		if slow {
			clk.Advance(150 * time.Millisecond)
		}
		return Continue{}, nil
	}))

	for i := 0; i < 5; i++ {
		_, _, err := exec.Run(context.Background(), BeforeToolExecution, newTestContext(nil))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, calls)
	d, _ := reg.Lookup(h)
	assert.Equal(t, BreakerOpen, d.Breaker.Status)

	_, _, err := exec.Run(context.Background(), BeforeToolExecution, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, 5, calls, "sixth invocation must be skipped")
	st, _ := exec.Monitor().Hook(h)
	assert.Equal(t, uint64(1), st.Skips)

	// Cooldown elapses; one fast trial closes the breaker.
	clk.Advance(30 * time.Second)
	slow = false
	_, _, err = exec.Run(context.Background(), BeforeToolExecution, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, 6, calls)
	d, _ = reg.Lookup(h)
	assert.Equal(t, BreakerClosed, d.Breaker.Status)
}

func TestRunBreakerEvents(t *testing.T) {
	clk := newFakeClock()
	reg := NewRegistry(WithDefaultBreaker(BreakerConfig{MaxConsecutiveSlow: 1}))

	var mu sync.Mutex
	var events []string
	sink := func(_ context.Context, eventType string, _ core.CorrelationID, _ map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, eventType)
	}
	exec := NewExecutor(reg, WithClock(clk.Now), WithEventSink(sink, true))
	mustRegister(reg, SessionCheckpoint, PriorityNormal, Func(func(context.Context, *Context) (Result, error) {
		clk.Advance(time.Second)
		return Continue{}, nil
	}))

	_, _, err := exec.Run(context.Background(), SessionCheckpoint, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{EventExecutionStart, EventBreakerOpened, EventExecutionComplete}, events)
}

type fakeAdapter struct {
	lang  core.Language
	calls int
}

func (a *fakeAdapter) Language() core.Language { return a.lang }
func (a *fakeAdapter) AdaptContext(hc *Context) (any, error) {
	a.calls++
	return map[string]any{"data": hc.Data}, nil
}
func (a *fakeAdapter) AdaptResult(v any) (Result, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errors.New("bad result")
	}
	return Cancel{Reason: s}, nil
}
func (a *fakeAdapter) AdaptEventData(v any) (any, error) { return v, nil }

type fakeGuestHook struct {
	lang   core.Language
	ret    any
	panics bool
}

func (g fakeGuestHook) Language() core.Language { return g.lang }
func (g fakeGuestHook) Execute(context.Context, *Context) (Result, error) {
	return nil, errors.New("guest hooks run through Invoke")
}
func (g fakeGuestHook) Invoke(_ context.Context, hc *Context, a Adapter) (Result, error) {
	if g.panics {
		return nil, AdapterFault(g.lang, "adapter exploded")
	}
	if _, err := a.AdaptContext(hc); err != nil {
		return nil, err
	}
	return a.AdaptResult(g.ret)
}

func TestRunGuestHookUsesAdapter(t *testing.T) {
	reg := NewRegistry()
	a := &fakeAdapter{lang: core.LanguageLua}
	exec := NewExecutor(reg, WithAdapter(a))
	h := mustRegister(reg, ToolError, PriorityNormal, fakeGuestHook{lang: core.LanguageLua, ret: "nope"})

	res, _, err := exec.Run(context.Background(), ToolError, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, Cancel{Reason: "nope"}, res)
	assert.Equal(t, 1, a.calls)

	d, _ := reg.Lookup(h)
	assert.Equal(t, core.LanguageLua, d.Language)
}

func TestRunGuestAdaptErrorIsFault(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg, WithAdapter(&fakeAdapter{lang: core.LanguageLua}))
	mustRegister(reg, ToolError, PriorityNormal, fakeGuestHook{lang: core.LanguageLua, ret: 42})

	res, _, err := exec.Run(context.Background(), ToolError, newTestContext(nil))
	require.NoError(t, err)
	assert.Equal(t, Continue{}, res)
}

func TestRunGuestInfrastructureFaults(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)
	mustRegister(reg, ToolError, PriorityNormal, fakeGuestHook{lang: core.LanguageStarlark})

	_, _, err := exec.Run(context.Background(), ToolError, newTestContext(nil))
	assert.ErrorIs(t, err, ErrNoAdapter)

	reg2 := NewRegistry()
	exec2 := NewExecutor(reg2, WithAdapter(&fakeAdapter{lang: core.LanguageLua}))
	mustRegister(reg2, ToolError, PriorityNormal, fakeGuestHook{lang: core.LanguageLua, panics: true})

	_, _, err = exec2.Run(context.Background(), ToolError, newTestContext(nil))
	assert.ErrorIs(t, err, ErrAdapterFault)
}

func TestMonitorOverheadTarget(t *testing.T) {
	exec := NewExecutor(NewRegistry(), WithOverheadTarget(0.05))
	m := exec.Monitor()
	assert.True(t, m.OverheadWithinTarget(100*time.Millisecond, 5*time.Millisecond))
	assert.False(t, m.OverheadWithinTarget(100*time.Millisecond, 6*time.Millisecond))
	assert.True(t, m.OverheadWithinTarget(0, 0))
}

func TestRunForkHelper(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	f := Fork{Branches: []Branch{{Name: "a"}, {Name: "b"}, {Name: "c"}}}

	err := RunFork(context.Background(), f, 2, func(_ context.Context, b Branch) error {
		mu.Lock()
		defer mu.Unlock()
		seen[b.Name] = true
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 3)

	boom := errors.New("boom")
	err = RunFork(context.Background(), f, 0, func(_ context.Context, b Branch) error {
		if b.Name == "b" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestExecutorSnapshot(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(reg)
	var order []string
	mustRegister(reg, ToolError, PriorityNormal, recorder(&order, "a", Continue{}), WithName("a"))

	for i := 0; i < 3; i++ {
		_, _, err := exec.Run(context.Background(), ToolError, newTestContext(nil))
		require.NoError(t, err)
	}
	snap := exec.Snapshot()
	require.Len(t, snap.Hooks, 1)
	assert.Equal(t, "a", snap.Hooks[0].Name)
	assert.Equal(t, uint64(3), snap.Hooks[0].Invocations)
	assert.Equal(t, uint64(3), snap.Chains.Runs)
}
