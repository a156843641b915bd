package starlark

import (
	"fmt"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const defaultBatchSize = 100

type builtinFunc = func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func (r *Runtime) api() starlark.StringDict {
	return starlark.StringDict{
		"Hook": module("Hook", map[string]builtinFunc{
			"register":   r.hookRegister,
			"unregister": r.hookUnregister,
			"list":       r.hookList,
		}),
		"Event": module("Event", map[string]builtinFunc{
			"publish":            r.eventPublish,
			"subscribe":          r.eventSubscribe,
			"receive":            r.eventReceive,
			"receive_batch":      r.eventReceiveBatch,
			"unsubscribe":        r.eventUnsubscribe,
			"pause":              r.eventPause,
			"resume":             r.eventResume,
			"list_subscriptions": r.eventListSubscriptions,
			"stats":              r.eventStats,
		}),
		"json": starlarkjson.Module,
		"math": starlarkmath.Module,
	}
}

func module(name string, funcs map[string]builtinFunc) *starlarkstruct.Module {
	members := make(starlark.StringDict, len(funcs))
	for fname, fn := range funcs {
		members[fname] = starlark.NewBuiltin(name+"."+fname, fn)
	}
	return &starlarkstruct.Module{Name: name, Members: members}
}

func toValue(b *starlark.Builtin, v any) (starlark.Value, error) {
	sv, err := ToStarlark(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return sv, nil
}

// optMap converts an optional dict argument. None yields nil.
func optMap(b *starlark.Builtin, v starlark.Value) (map[string]any, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	if _, ok := v.(*starlark.Dict); !ok {
		return nil, fmt.Errorf("%s: got %s, want dict", b.Name(), v.Type())
	}
	m, err := FromStarlark(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return m.(map[string]any), nil
}

// Hook.register(point, fn, priority=None, opts=None)
func (r *Runtime) hookRegister(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		point      string
		fn         starlark.Callable
		prio, opts starlark.Value = starlark.None, starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "point", &point, "fn", &fn, "priority?", &prio, "opts?", &opts); err != nil {
		return nil, err
	}

	options := map[string]any{}
	var priority any
	if d, ok := prio.(*starlark.Dict); ok {
		m, err := optMap(b, d)
		if err != nil {
			return nil, err
		}
		options = m
		priority = m["priority"]
	} else {
		p, err := FromStarlark(prio)
		if err != nil {
			return nil, fmt.Errorf("%s: priority: %w", b.Name(), err)
		}
		priority = p
	}
	extra, err := optMap(b, opts)
	if err != nil {
		return nil, err
	}
	for k, v := range extra {
		options[k] = v
	}

	handle, err := r.host.RegisterHook(point, priority, &scriptHook{rt: r, fn: fn}, options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(handle), nil
}

// Hook.unregister(handle) -> bool
func (r *Runtime) hookUnregister(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var handle string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "handle", &handle); err != nil {
		return nil, err
	}
	return starlark.Bool(r.host.UnregisterHook(handle)), nil
}

// Hook.list(filter=None) -> [descriptor]
func (r *Runtime) hookList(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var filter starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "filter?", &filter); err != nil {
		return nil, err
	}
	m, err := optMap(b, filter)
	if err != nil {
		return nil, err
	}
	list, err := r.host.ListHooks(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return toValue(b, list)
}

// Event.publish(type, data, opts=None)
func (r *Runtime) eventPublish(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		eventType  string
		data, opts starlark.Value = starlark.None, starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "type", &eventType, "data?", &data, "opts?", &opts); err != nil {
		return nil, err
	}
	payload, err := FromStarlark(data)
	if err != nil {
		return nil, fmt.Errorf("%s: data: %w", b.Name(), err)
	}
	m, err := optMap(b, opts)
	if err != nil {
		return nil, err
	}
	if err := r.host.Publish(threadContext(thread), eventType, payload, m); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

// Event.subscribe(patterns, config=None) -> id
func (r *Runtime) eventSubscribe(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var patterns, config starlark.Value = starlark.None, starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "patterns", &patterns, "config?", &config); err != nil {
		return nil, err
	}
	p, err := FromStarlark(patterns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	cfg, err := optMap(b, config)
	if err != nil {
		return nil, err
	}
	id, err := r.host.Subscribe(p, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(id), nil
}

// Event.receive(id, timeout_ms=0) -> event | None
func (r *Runtime) eventReceive(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		id      string
		timeout int
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id, "timeout_ms?", &timeout); err != nil {
		return nil, err
	}
	e, err := r.host.Receive(threadContext(thread), id, int64(timeout))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if e == nil {
		return starlark.None, nil
	}
	return toValue(b, e)
}

// Event.receive_batch(id, max=100, timeout_ms=0) -> [event]
func (r *Runtime) eventReceiveBatch(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		id      string
		limit   = defaultBatchSize
		timeout int
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id, "max?", &limit, "timeout_ms?", &timeout); err != nil {
		return nil, err
	}
	events, err := r.host.ReceiveBatch(threadContext(thread), id, limit, int64(timeout))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return toValue(b, events)
}

// Event.unsubscribe(id) -> bool
func (r *Runtime) eventUnsubscribe(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id); err != nil {
		return nil, err
	}
	return starlark.Bool(r.host.Unsubscribe(id)), nil
}

// Event.pause(id) -> bool
func (r *Runtime) eventPause(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id); err != nil {
		return nil, err
	}
	return starlark.Bool(r.host.Pause(id)), nil
}

// Event.resume(id) -> bool
func (r *Runtime) eventResume(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id); err != nil {
		return nil, err
	}
	return starlark.Bool(r.host.Resume(id)), nil
}

// Event.list_subscriptions() -> [info]
func (r *Runtime) eventListSubscriptions(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	list, err := r.host.ListSubscriptions()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return toValue(b, list)
}

// Event.stats(id) -> stats
func (r *Runtime) eventStats(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id); err != nil {
		return nil, err
	}
	st, err := r.host.SubscriptionStats(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return toValue(b, st)
}
