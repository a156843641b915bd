package lua

import (
	"context"

	lua "github.com/yuin/gopher-lua"
)

// Defaults for Event.receive_batch.
const defaultBatchSize = 100

func (r *Runtime) installAPI(L *lua.LState) {
	L.SetGlobal("Hook", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"register":   r.hookRegister,
		"unregister": r.hookUnregister,
		"list":       r.hookList,
	}))
	L.SetGlobal("Event", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"publish":            r.eventPublish,
		"subscribe":          r.eventSubscribe,
		"receive":            r.eventReceive,
		"receive_batch":      r.eventReceiveBatch,
		"unsubscribe":        r.eventUnsubscribe,
		"pause":              r.eventPause,
		"resume":             r.eventResume,
		"list_subscriptions": r.eventListSubscriptions,
		"stats":              r.eventStats,
	}))
}

// Hook.register(point, fn [, priority | opts [, opts]])
func (r *Runtime) hookRegister(L *lua.LState) int {
	point := L.CheckString(1)
	fn := L.CheckFunction(2)

	var priority any
	opts := map[string]any{}
	switch v := L.Get(3).(type) {
	case *lua.LTable:
		opts = optMap(L, 3)
		priority = opts["priority"]
	case lua.LString:
		priority = string(v)
	case lua.LNumber:
		priority = float64(v)
	}
	for k, v := range optMap(L, 4) {
		opts[k] = v
	}

	handle, err := r.host.RegisterHook(point, priority, &scriptHook{rt: r, fn: fn}, opts)
	if err != nil {
		L.RaiseError("Hook.register: %v", err)
		return 0
	}
	L.Push(lua.LString(handle))
	return 1
}

// Hook.unregister(handle) -> bool
func (r *Runtime) hookUnregister(L *lua.LState) int {
	L.Push(lua.LBool(r.host.UnregisterHook(L.CheckString(1))))
	return 1
}

// Hook.list([filter]) -> {descriptor, ...}
func (r *Runtime) hookList(L *lua.LState) int {
	list, err := r.host.ListHooks(optMap(L, 1))
	if err != nil {
		L.RaiseError("Hook.list: %v", err)
		return 0
	}
	L.Push(ToLua(list))
	return 1
}

// Event.publish(type, data [, opts])
func (r *Runtime) eventPublish(L *lua.LState) int {
	eventType := L.CheckString(1)
	data := argValue(L, 2)
	if err := r.host.Publish(luaContext(L), eventType, data, optMap(L, 3)); err != nil {
		L.RaiseError("Event.publish: %v", err)
		return 0
	}
	return 0
}

// Event.subscribe(pattern | {patterns} [, config]) -> id
func (r *Runtime) eventSubscribe(L *lua.LState) int {
	if L.Get(1) == lua.LNil {
		L.ArgError(1, "pattern expected")
		return 0
	}
	id, err := r.host.Subscribe(argValue(L, 1), optMap(L, 2))
	if err != nil {
		L.RaiseError("Event.subscribe: %v", err)
		return 0
	}
	L.Push(lua.LString(id))
	return 1
}

// Event.receive(id [, timeout_ms]) -> event | nil
func (r *Runtime) eventReceive(L *lua.LState) int {
	id := L.CheckString(1)
	timeout := L.OptInt64(2, 0)
	e, err := r.host.Receive(luaContext(L), id, timeout)
	if err != nil {
		L.RaiseError("Event.receive: %v", err)
		return 0
	}
	if e == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(ToLua(e))
	return 1
}

// Event.receive_batch(id [, max [, timeout_ms]]) -> {event, ...}
func (r *Runtime) eventReceiveBatch(L *lua.LState) int {
	id := L.CheckString(1)
	limit := L.OptInt(2, defaultBatchSize)
	timeout := L.OptInt64(3, 0)
	events, err := r.host.ReceiveBatch(luaContext(L), id, limit, timeout)
	if err != nil {
		L.RaiseError("Event.receive_batch: %v", err)
		return 0
	}
	L.Push(ToLua(events))
	return 1
}

// Event.unsubscribe(id) -> bool
func (r *Runtime) eventUnsubscribe(L *lua.LState) int {
	L.Push(lua.LBool(r.host.Unsubscribe(L.CheckString(1))))
	return 1
}

// Event.pause(id) -> bool
func (r *Runtime) eventPause(L *lua.LState) int {
	L.Push(lua.LBool(r.host.Pause(L.CheckString(1))))
	return 1
}

// Event.resume(id) -> bool
func (r *Runtime) eventResume(L *lua.LState) int {
	L.Push(lua.LBool(r.host.Resume(L.CheckString(1))))
	return 1
}

// Event.list_subscriptions() -> {info, ...}
func (r *Runtime) eventListSubscriptions(L *lua.LState) int {
	list, err := r.host.ListSubscriptions()
	if err != nil {
		L.RaiseError("Event.list_subscriptions: %v", err)
		return 0
	}
	L.Push(ToLua(list))
	return 1
}

// Event.stats(id) -> stats
func (r *Runtime) eventStats(L *lua.LState) int {
	st, err := r.host.SubscriptionStats(L.CheckString(1))
	if err != nil {
		L.RaiseError("Event.stats: %v", err)
		return 0
	}
	L.Push(ToLua(st))
	return 1
}

func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// argValue converts argument n or raises an argument error.
func argValue(L *lua.LState, n int) any {
	v, err := FromLua(L.Get(n))
	if err != nil {
		L.ArgError(n, err.Error())
		return nil
	}
	return v
}

// optMap converts an optional table argument. nil yields nil.
func optMap(L *lua.LState, n int) map[string]any {
	lv := L.Get(n)
	if lv == lua.LNil {
		return nil
	}
	if _, ok := lv.(*lua.LTable); !ok {
		L.ArgError(n, "table expected")
		return nil
	}
	m, ok := argValue(L, n).(map[string]any)
	if !ok {
		L.ArgError(n, "table with named fields expected")
		return nil
	}
	return m
}
