// Package hook implements the synchronous interception pipeline: a
// priority-ordered registry of hooks per Point, a per-hook circuit breaker
// and an executor that reduces a chain to one Result.
//
// # Points and Priorities
//
// A Point names where interception occurs (BeforeToolExecution,
// WorkflowCheckpoint, ...). Custom("name") covers everything else. Within a
// point, hooks run in ascending Priority order:
//
//	PriorityHighest = -1000
//	PriorityHigh    = -100
//	PriorityNormal  = 0
//	PriorityLow     = 100
//	PriorityLowest  = 1000
//
// Equal priorities run in registration order.
//
// # Results
//
// A hook returns one of nine Result variants. Continue and Skipped let the
// chain proceed. Modified replaces Context.Data for the remaining hooks and
// for the operation. Cancel, Redirect, Replace, Retry, Fork and Cache stop
// the chain and are handed to the caller, which is responsible for acting
// on them.
//
// # Faults
//
// A hook that panics, returns an error, or overruns its timeout is logged
// and treated as Continue. Only infrastructure problems (missing adapter,
// adapter panic) make Run return an error.
//
// # Circuit Breaker
//
// Every registration owns a Breaker. Five consecutive invocations slower
// than 100ms open it; an open breaker makes the executor report
// Skipped{Reason: "circuit_open"} without calling the hook. After 30s one
// trial invocation is admitted: a fast trial closes the breaker, a slow or
// faulting one reopens it.
//
// # Guest Languages
//
// Hooks written in an embedded language implement GuestHook. The executor
// looks up the Adapter registered for the hook's language and passes it to
// Invoke, so the executor itself never depends on a guest runtime.
//
// # Usage
//
//	reg := hook.NewRegistry()
//	exec := hook.NewExecutor(reg, hook.WithLogger(logger))
//
//	reg.Register(hook.BeforeToolExecution, hook.PriorityHigh, hook.Func(
//		func(ctx context.Context, hc *hook.Context) (hook.Result, error) {
//			if hc.Data["tool"] == "rm" {
//				return hook.Cancel{Reason: "denied"}, nil
//			}
//			return hook.Continue{}, nil
//		}))
//
//	res, hc, err := exec.Run(ctx, hook.BeforeToolExecution, hc)
package hook
