package js

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

const defaultBatchSize = 100

type builtin = func(call goja.FunctionCall) goja.Value

func (r *Runtime) installAPI() error {
	modules := map[string]map[string]builtin{
		"Hook": {
			"register":   r.hookRegister,
			"unregister": r.hookUnregister,
			"list":       r.hookList,
		},
		"Event": {
			"publish":            r.eventPublish,
			"subscribe":          r.eventSubscribe,
			"receive":            r.eventReceive,
			"receive_batch":      r.eventReceiveBatch,
			"unsubscribe":        r.eventUnsubscribe,
			"pause":              r.eventPause,
			"resume":             r.eventResume,
			"list_subscriptions": r.eventListSubscriptions,
			"stats":              r.eventStats,
		},
		"console": {
			"log": r.consoleLog,
		},
	}
	for name, funcs := range modules {
		obj := r.vm.NewObject()
		for fname, fn := range funcs {
			if err := obj.Set(fname, fn); err != nil {
				return err
			}
		}
		if err := r.vm.Set(name, obj); err != nil {
			return err
		}
	}
	return nil
}

// throw raises err as a JavaScript exception.
func (r *Runtime) throw(format string, args ...any) {
	panic(r.vm.NewGoError(fmt.Errorf(format, args...)))
}

func (r *Runtime) arg(call goja.FunctionCall, i int) any {
	v, err := FromJS(call.Argument(i))
	if err != nil {
		r.throw("argument %d: %v", i+1, err)
	}
	return v
}

func (r *Runtime) optMap(call goja.FunctionCall, i int) map[string]any {
	v := r.arg(call, i)
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		r.throw("argument %d: object expected, got %T", i+1, v)
	}
	return m
}

// Hook.register(point, fn [, priority | opts [, opts]])
func (r *Runtime) hookRegister(call goja.FunctionCall) goja.Value {
	point := call.Argument(0).String()
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		r.throw("Hook.register: function expected")
	}

	var priority any
	opts := map[string]any{}
	switch v := r.arg(call, 2).(type) {
	case map[string]any:
		opts = v
		priority = v["priority"]
	case nil:
	default:
		priority = v
	}
	for k, v := range r.optMap(call, 3) {
		opts[k] = v
	}

	handle, err := r.host.RegisterHook(point, priority, &scriptHook{rt: r, fn: fn}, opts)
	if err != nil {
		r.throw("Hook.register: %v", err)
	}
	return r.vm.ToValue(string(handle))
}

// Hook.unregister(handle) -> bool
func (r *Runtime) hookUnregister(call goja.FunctionCall) goja.Value {
	return r.vm.ToValue(r.host.UnregisterHook(call.Argument(0).String()))
}

// Hook.list([filter]) -> [descriptor]
func (r *Runtime) hookList(call goja.FunctionCall) goja.Value {
	list, err := r.host.ListHooks(r.optMap(call, 0))
	if err != nil {
		r.throw("Hook.list: %v", err)
	}
	return r.vm.ToValue(list)
}

// Event.publish(type, data [, opts])
func (r *Runtime) eventPublish(call goja.FunctionCall) goja.Value {
	eventType := call.Argument(0).String()
	if err := r.host.Publish(r.callContext(), eventType, r.arg(call, 1), r.optMap(call, 2)); err != nil {
		r.throw("Event.publish: %v", err)
	}
	return goja.Undefined()
}

// Event.subscribe(pattern | [patterns] [, config]) -> id
func (r *Runtime) eventSubscribe(call goja.FunctionCall) goja.Value {
	id, err := r.host.Subscribe(r.arg(call, 0), r.optMap(call, 1))
	if err != nil {
		r.throw("Event.subscribe: %v", err)
	}
	return r.vm.ToValue(id)
}

// Event.receive(id [, timeout_ms]) -> event | null
func (r *Runtime) eventReceive(call goja.FunctionCall) goja.Value {
	e, err := r.host.Receive(r.callContext(), call.Argument(0).String(), call.Argument(1).ToInteger())
	if err != nil {
		r.throw("Event.receive: %v", err)
	}
	if e == nil {
		return goja.Null()
	}
	return r.vm.ToValue(e)
}

// Event.receive_batch(id [, max [, timeout_ms]]) -> [event]
func (r *Runtime) eventReceiveBatch(call goja.FunctionCall) goja.Value {
	limit := defaultBatchSize
	if n := call.Argument(1); !goja.IsUndefined(n) && !goja.IsNull(n) {
		limit = int(n.ToInteger())
	}
	events, err := r.host.ReceiveBatch(r.callContext(), call.Argument(0).String(), limit, call.Argument(2).ToInteger())
	if err != nil {
		r.throw("Event.receive_batch: %v", err)
	}
	return r.vm.ToValue(events)
}

// Event.unsubscribe(id) -> bool
func (r *Runtime) eventUnsubscribe(call goja.FunctionCall) goja.Value {
	return r.vm.ToValue(r.host.Unsubscribe(call.Argument(0).String()))
}

// Event.pause(id) -> bool
func (r *Runtime) eventPause(call goja.FunctionCall) goja.Value {
	return r.vm.ToValue(r.host.Pause(call.Argument(0).String()))
}

// Event.resume(id) -> bool
func (r *Runtime) eventResume(call goja.FunctionCall) goja.Value {
	return r.vm.ToValue(r.host.Resume(call.Argument(0).String()))
}

// Event.list_subscriptions() -> [info]
func (r *Runtime) eventListSubscriptions(goja.FunctionCall) goja.Value {
	list, err := r.host.ListSubscriptions()
	if err != nil {
		r.throw("Event.list_subscriptions: %v", err)
	}
	return r.vm.ToValue(list)
}

// Event.stats(id) -> stats
func (r *Runtime) eventStats(call goja.FunctionCall) goja.Value {
	st, err := r.host.SubscriptionStats(call.Argument(0).String())
	if err != nil {
		r.throw("Event.stats: %v", err)
	}
	return r.vm.ToValue(st)
}

func (r *Runtime) consoleLog(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		parts[i] = a.String()
	}
	r.host.Logger().Info(r.callContext(), "script output", "script", r.host.Owner(), "message", strings.Join(parts, " "))
	return goja.Undefined()
}
