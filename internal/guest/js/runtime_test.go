package js

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/hook"
)

func TestHookModifiesData(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		Hook.register("BeforeAgentExecution", function(ctx) {
			return {type: "modified", data: {x: ctx.data.x + 1, seen: ctx.component_id.name}};
		}, "high");
	`)

	hc := hook.NewContext(hook.BeforeAgentExecution, core.NewComponentID("planner", core.KindAgent)).
		WithData(map[string]any{"x": int64(1)})
	res, out, err := f.exec.Run(context.Background(), hook.BeforeAgentExecution, hc)
	require.NoError(t, err)
	assert.Equal(t, hook.Modified{Data: map[string]any{"x": int64(2), "seen": "planner"}}, res)
	assert.Equal(t, int64(2), out.Data["x"])
}

func TestHookCancelAndSkip(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		Hook.register("BeforeToolExecution", function(ctx) {
			if (ctx.data.tool === "rm") return "tool is blocked";
		}, {priority: "high", name: "guard"});
		Hook.register("BeforeToolExecution", function() { return "skip"; });
	`)

	hc := hook.NewContext(hook.BeforeToolExecution, core.NewComponentID("shell", core.KindTool)).
		WithData(map[string]any{"tool": "rm"})
	res, _, err := f.exec.Run(context.Background(), hook.BeforeToolExecution, hc)
	require.NoError(t, err)
	assert.Equal(t, hook.Cancel{Reason: "tool is blocked"}, res)

	list := f.exec.Registry().List(hook.Filter{Language: core.LanguageJavaScript})
	require.Len(t, list, 2)
	assert.Equal(t, "guard", list[0].Name)
	assert.Equal(t, hook.PriorityHigh, list[0].Priority)
}

func TestHookListAndUnregister(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		var handle = Hook.register("Custom:deploy", function() {}, "low", {tags: ["ops"]});
		var hooks = Hook.list({tag: "ops"});
		if (hooks.length !== 1 || hooks[0].band !== "low") throw new Error("bad list");
		if (Hook.unregister(handle) !== true) throw new Error("first unregister");
		if (Hook.unregister(handle) !== false) throw new Error("second unregister");
	`)
	assert.Empty(t, f.exec.Registry().List(hook.Filter{Tag: "ops"}))
}

func TestHookRegisterErrorsThrow(t *testing.T) {
	f := newFixture(t)

	err := f.rt.RunString(context.Background(), `Hook.register("NotAPoint", function() {})`)
	require.ErrorContains(t, err, "unknown hook point")

	f.run(t, `
		var caught = false;
		try { Hook.register("SessionStart", "not a function"); } catch (e) { caught = true; }
		if (!caught) throw new Error("expected exception");
	`)
}

func TestHookFaultIsContinue(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		Hook.register("AgentError", function() { throw new Error("boom"); }, "highest");
		Hook.register("AgentError", function() { return {type: "bogus"}; }, "high");
		Hook.register("AgentError", function() { return "continue"; });
	`)

	res, _, err := f.exec.Run(context.Background(), hook.AgentError, hook.NewContext(hook.AgentError, core.NewComponentID("a", core.KindAgent)))
	require.NoError(t, err)
	assert.Equal(t, hook.Continue{}, res)

	var faults uint64
	for _, s := range f.exec.Monitor().Hooks() {
		faults += s.Faults
	}
	assert.Equal(t, uint64(2), faults)
}

func TestHookConcurrentRuns(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		var calls = 0;
		Hook.register("AfterStateWrite", function(ctx) {
			calls++;
			return {type: "modified", data: {n: ctx.data.n * 2}};
		});
		function count() { return calls; }
	`)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			hc := hook.NewContext(hook.AfterStateWrite, core.SystemComponent).WithData(map[string]any{"n": n})
			res, _, err := f.exec.Run(context.Background(), hook.AfterStateWrite, hc)
			assert.NoError(t, err)
			assert.Equal(t, hook.Modified{Data: map[string]any{"n": n * 2}}, res)
		}(int64(i))
	}
	wg.Wait()

	out, err := f.rt.Call(context.Background(), "count")
	require.NoError(t, err)
	assert.Equal(t, int64(20), out)
}

func TestEventPublishSubscribe(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		function check(cond, msg) { if (!cond) throw new Error(msg); }

		var sub = Event.subscribe(["agent.*", "tool.done"], {capacity: 8, backpressure: "drop_oldest"});
		Event.publish("agent.started", {name: "planner"}, {correlation_id: "c-1"});
		Event.publish("agent.lifecycle.started", {ignored: true});
		Event.publish("tool.done", 5);

		var e = Event.receive(sub, 50);
		check(e.event_type === "agent.started", e.event_type);
		check(e.data.name === "planner", "data");
		check(e.source.correlation_id === "c-1", "correlation");
		check(e.source.language === "javascript", e.source.language);

		var rest = Event.receive_batch(sub, 10, 50);
		check(rest.length === 1 && rest[0].data === 5, "batch");
		check(Event.receive(sub) === null, "drained");

		var st = Event.stats(sub);
		check(st.received == 2 && st.queue_size == 0, "stats");

		var subs = Event.list_subscriptions();
		check(subs.length === 1 && subs[0].owner === "test.js" && subs[0].capacity == 8, "list");
	`)
}

func TestEventReceiveFromHost(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		function drain(id) {
			var batch = Event.receive_batch(id, 10, 100);
			var out = [];
			for (var i = 0; i < batch.length; i++) out.push(batch[i].data.n);
			return out;
		}
	`)

	sub, err := f.bus.Subscribe("metrics.*")
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.NoError(t, f.bus.Publish(context.Background(), "metrics.tick", map[string]any{"n": i}))
	}

	out, err := f.rt.Call(context.Background(), "drain", sub.ID())
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, out)
}

func TestEventErrorsThrow(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		function throws(fn) { try { fn(); } catch (e) { return true; } return false; }
		if (!throws(function() { Event.publish("Bad Type!", {}); })) throw new Error("publish");
		if (!throws(function() { Event.receive("no-such-id"); })) throw new Error("receive");
		if (!throws(function() { Event.subscribe("a.*", {backpressure: "sideways"}); })) throw new Error("subscribe");
		if (Event.unsubscribe("no-such-id") !== false) throw new Error("unsubscribe");
		if (Event.pause("no-such-id") !== false) throw new Error("pause");
	`)
}

func TestEventPauseResume(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		var sub = Event.subscribe("job.*", {source: "test.js"});
		if (!Event.pause(sub)) throw new Error("pause");
		Event.publish("job.done", 1);
		if (Event.receive(sub) !== null) throw new Error("delivered while paused");
		if (!Event.resume(sub)) throw new Error("resume");
		Event.publish("job.done", 2);
		var e = Event.receive(sub, 50);
		if (!e || e.data !== 2) throw new Error("not delivered after resume");
	`)
}

func TestConsoleLog(t *testing.T) {
	f := newFixture(t)
	f.run(t, `console.log("hello", 42, true)`)

	lines := f.logger.messages("script output")
	require.Len(t, lines, 1)
	assert.Equal(t, []any{"script", "test.js", "message", "hello 42 true"}, lines[0].kv)
}

func TestNoHostAccess(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		if (typeof require !== "undefined") throw new Error("require");
		if (typeof process !== "undefined") throw new Error("process");
	`)
}

func TestCloseReleasesResources(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		Hook.register("SessionEnd", function() {});
		Event.subscribe("session.*");
	`)
	require.Equal(t, 1, f.exec.Registry().Count(hook.SessionEnd))

	require.NoError(t, f.rt.Close())
	assert.Equal(t, 0, f.exec.Registry().Count(hook.SessionEnd))
	assert.Empty(t, f.bus.ListSubscriptions())
	require.ErrorIs(t, f.rt.RunString(context.Background(), `1`), ErrRuntimeClosed)
}

func TestExecutionTimeout(t *testing.T) {
	f := newFixture(t, WithExecutionTimeout(50*time.Millisecond))

	err := f.rt.RunString(context.Background(), `while (true) {}`)
	require.ErrorIs(t, err, ErrExecutionTimeout)

	f.run(t, `var x = 1`)
}

func TestCallerCancellation(t *testing.T) {
	f := newFixture(t, WithExecutionTimeout(0))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := f.rt.RunString(ctx, `while (true) {}`)
	require.Error(t, err)
}

func TestCallUnknownFunction(t *testing.T) {
	f := newFixture(t)
	_, err := f.rt.Call(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFunction)
}
