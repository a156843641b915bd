// Package guest holds the language-neutral half of the scripting surface:
// the Hook and Event operations every guest runtime exposes, expressed over
// normalized values. Each language package binds these operations to its
// own globals and converts arguments with its adapter codec.
package guest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/event/topic"
	"github.com/dshills/conductor/internal/hook"
	"github.com/dshills/conductor/internal/telemetry"
)

var (
	// ErrNoBus is returned by event operations on a host built without a bus.
	ErrNoBus = errors.New("event bus not available")

	// ErrHostClosed is returned after Close.
	ErrHostClosed = errors.New("guest host closed")
)

// Host exposes the hook executor and the event bus to one script runtime.
// It records every hook and subscription the runtime creates so that Close
// releases them.
type Host struct {
	owner    string
	lang     core.Language
	executor *hook.Executor
	bus      *event.Bus
	logger   telemetry.Logger

	mu     sync.Mutex
	hooks  map[hook.Handle]struct{}
	subs   map[string]*event.Subscription
	closed bool
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger used for script output and release failures.
func WithLogger(l telemetry.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHost returns a Host for the runtime named owner. bus may be nil, in
// which case every Event operation returns ErrNoBus.
func NewHost(owner string, lang core.Language, executor *hook.Executor, bus *event.Bus, opts ...Option) *Host {
	h := &Host{
		owner:    owner,
		lang:     lang,
		executor: executor,
		bus:      bus,
		logger:   telemetry.NoopLogger{},
		hooks:    make(map[hook.Handle]struct{}),
		subs:     make(map[string]*event.Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Owner returns the runtime name hooks and subscriptions are tagged with.
func (h *Host) Owner() string { return h.owner }

// Language returns the guest language of the runtime.
func (h *Host) Language() core.Language { return h.lang }

// Logger returns the host logger.
func (h *Host) Logger() telemetry.Logger { return h.logger }

// RegisterHook registers gh at the named point. priority is nil, a band
// name or a number. opts may carry name, description, tags and timeout_ms.
func (h *Host) RegisterHook(point string, priority any, gh hook.Hook, opts map[string]any) (hook.Handle, error) {
	p, err := hook.ParsePoint(point)
	if err != nil {
		return "", err
	}
	prio, err := ParsePriority(priority)
	if err != nil {
		return "", err
	}
	regOpts, err := registerOptions(opts)
	if err != nil {
		return "", err
	}
	regOpts = append(regOpts, hook.WithTags("script:"+h.owner))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrHostClosed
	}
	handle, err := h.executor.Registry().Register(p, prio, gh, regOpts...)
	if err != nil {
		return "", err
	}
	h.hooks[handle] = struct{}{}
	return handle, nil
}

// UnregisterHook removes a hook this runtime registered. Handles of other
// runtimes are left alone and report false.
func (h *Host) UnregisterHook(handle string) bool {
	h.mu.Lock()
	_, owned := h.hooks[hook.Handle(handle)]
	delete(h.hooks, hook.Handle(handle))
	h.mu.Unlock()
	if !owned {
		return false
	}
	return h.executor.Unregister(hook.Handle(handle))
}

// ListHooks returns descriptors matching filter, which may carry point,
// priority (a band name), tag and language.
func (h *Host) ListHooks(filter map[string]any) ([]any, error) {
	var f hook.Filter
	if s, ok := filter["point"].(string); ok && s != "" {
		p, err := hook.ParsePoint(s)
		if err != nil {
			return nil, err
		}
		f.Point = p
	}
	if s, ok := filter["priority"].(string); ok {
		f.Band = s
	}
	if s, ok := filter["tag"].(string); ok {
		f.Tag = s
	}
	if s, ok := filter["language"].(string); ok {
		f.Language = core.Language(s)
	}

	descs := h.executor.Registry().List(f)
	out := make([]any, 0, len(descs))
	for _, d := range descs {
		out = append(out, DescriptorMap(d))
	}
	return out, nil
}

// DescriptorMap renders a hook descriptor for guests.
func DescriptorMap(d hook.Descriptor) map[string]any {
	tags := make([]any, len(d.Tags))
	for i, t := range d.Tags {
		tags[i] = t
	}
	return map[string]any{
		"handle":      string(d.Handle),
		"name":        d.Name,
		"description": d.Description,
		"point":       string(d.Point),
		"priority":    int64(d.Priority),
		"band":        d.Priority.Band(),
		"language":    d.Language.String(),
		"tags":        tags,
		"enabled":     d.Enabled,
		"breaker":     d.Breaker.Status.String(),
	}
}

// Publish publishes an event on behalf of the runtime. opts may carry
// language, correlation_id, ttl_seconds, persistent, source and metadata.
func (h *Host) Publish(ctx context.Context, eventType string, data any, opts map[string]any) error {
	if h.bus == nil {
		return ErrNoBus
	}
	pubOpts, err := h.publishOptions(opts)
	if err != nil {
		return err
	}
	return h.bus.Publish(ctx, eventType, data, pubOpts...)
}

func (h *Host) publishOptions(opts map[string]any) ([]event.PublishOption, error) {
	out := []event.PublishOption{
		event.WithLanguage(h.lang),
		event.WithSource(h.owner),
	}
	if s, ok := opts["language"].(string); ok && s != "" {
		out = append(out, event.WithLanguage(core.Language(s)))
	}
	if s, ok := opts["source"].(string); ok && s != "" {
		out = append(out, event.WithSource(s))
	}
	if s, ok := opts["correlation_id"].(string); ok && s != "" {
		out = append(out, event.WithCorrelation(core.CorrelationID(s)))
	}
	if raw, ok := opts["ttl_seconds"]; ok && raw != nil {
		secs, err := number(raw)
		if err != nil {
			return nil, fmt.Errorf("ttl_seconds: %w", err)
		}
		out = append(out, event.WithTTL(time.Duration(secs*float64(time.Second))))
	}
	if b, ok := opts["persistent"].(bool); ok && b {
		out = append(out, event.WithPersistent())
	}
	if raw, ok := opts["metadata"]; ok && raw != nil {
		md, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("metadata: expected map, got %T", raw)
		}
		out = append(out, event.WithMetadata(md))
	}
	return out, nil
}

// Subscribe subscribes to patterns, a string or a list of strings. cfg may
// carry backpressure, capacity and block_timeout_ms, plus delivery filters:
//
//	filter          map of gjson paths to expected values
//	not             map of paths whose values must not all match
//	exists          a path that must be present
//	source          component name, or a list of accepted names
//	source_prefix   component name prefix
//	correlation_id  only events of one correlation
//	language        only events published from one guest language
//	exclude         pattern or list of patterns to drop
func (h *Host) Subscribe(patterns any, cfg map[string]any) (string, error) {
	if h.bus == nil {
		return "", ErrNoBus
	}
	list, err := patternList(patterns)
	if err != nil {
		return "", err
	}
	subOpts, err := subscribeOptions(cfg)
	if err != nil {
		return "", err
	}
	subOpts = append(subOpts, event.WithOwner(h.owner))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrHostClosed
	}
	sub, err := h.bus.SubscribeAll(list, subOpts...)
	if err != nil {
		return "", err
	}
	h.subs[sub.ID()] = sub
	return sub.ID(), nil
}

func patternList(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("pattern: expected string, got %T", e)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, errors.New("pattern list is empty")
		}
		return out, nil
	}
	return nil, fmt.Errorf("pattern: expected string or list, got %T", v)
}

func subscribeOptions(cfg map[string]any) ([]event.SubscribeOption, error) {
	var out []event.SubscribeOption
	if s, ok := cfg["backpressure"].(string); ok {
		st, err := event.ParseStrategy(s)
		if err != nil {
			return nil, err
		}
		out = append(out, event.WithBackpressure(st))
	}
	if raw, ok := cfg["capacity"]; ok && raw != nil {
		n, err := number(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("capacity: expected positive number, got %v", raw)
		}
		out = append(out, event.WithCapacity(int(n)))
	}
	if raw, ok := cfg["block_timeout_ms"]; ok && raw != nil {
		n, err := number(raw)
		if err != nil {
			return nil, fmt.Errorf("block_timeout_ms: %w", err)
		}
		out = append(out, event.WithSubscriptionBlockTimeout(time.Duration(n)*time.Millisecond))
	}
	if raw, ok := cfg["filter"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("filter: expected map, got %T", raw)
		}
		out = append(out, event.WithDataFilter(m))
	}
	if raw, ok := cfg["not"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("not: expected map, got %T", raw)
		}
		out = append(out, event.WithFilter(event.FilterNot(event.FilterData(m))))
	}
	if s, ok := cfg["exists"].(string); ok && s != "" {
		out = append(out, event.WithFilter(event.FilterDataExists(s)))
	}
	if raw, ok := cfg["source"]; ok && raw != nil {
		names, err := stringList("source", raw)
		if err != nil {
			return nil, err
		}
		accept := make([]event.FilterFunc, len(names))
		for i, n := range names {
			accept[i] = event.FilterBySource(n)
		}
		out = append(out, event.WithFilter(event.FilterOr(accept...)))
	}
	if s, ok := cfg["source_prefix"].(string); ok && s != "" {
		out = append(out, event.WithFilter(event.FilterBySourcePrefix(s)))
	}
	if s, ok := cfg["correlation_id"].(string); ok && s != "" {
		out = append(out, event.WithFilter(event.FilterByCorrelation(core.CorrelationID(s))))
	}
	if s, ok := cfg["language"].(string); ok && s != "" {
		out = append(out, event.WithFilter(event.FilterByLanguage(core.Language(s))))
	}
	if raw, ok := cfg["exclude"]; ok && raw != nil {
		patterns, err := stringList("exclude", raw)
		if err != nil {
			return nil, err
		}
		for _, p := range patterns {
			if _, err := topic.Compile(p); err != nil {
				return nil, fmt.Errorf("exclude: %w", err)
			}
			out = append(out, event.WithFilter(event.FilterExcludeTopic(p)))
		}
	}
	return out, nil
}

func stringList(key string, v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%s: expected string, got %T", key, e)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: expected string or list, got %T", key, v)
}

func (h *Host) lookup(id string) (*event.Subscription, error) {
	if h.bus == nil {
		return nil, ErrNoBus
	}
	sub, ok := h.bus.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", event.ErrSubscriptionNotFound, id)
	}
	return sub, nil
}

// Receive waits up to timeoutMs for one event. A nil map means no event
// arrived in time.
func (h *Host) Receive(ctx context.Context, id string, timeoutMs int64) (map[string]any, error) {
	sub, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	e, ok := h.bus.Receive(ctx, sub, time.Duration(timeoutMs)*time.Millisecond)
	if !ok {
		return nil, nil
	}
	return e.Map(), nil
}

// ReceiveBatch returns up to max events, waiting up to timeoutMs for the first.
func (h *Host) ReceiveBatch(ctx context.Context, id string, max int, timeoutMs int64) ([]any, error) {
	sub, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	events := h.bus.ReceiveBatch(ctx, sub, max, time.Duration(timeoutMs)*time.Millisecond)
	out := make([]any, len(events))
	for i, e := range events {
		out[i] = e.Map()
	}
	return out, nil
}

// Unsubscribe closes a subscription this runtime created. It reports false
// for unknown ids and for subscriptions owned by someone else.
func (h *Host) Unsubscribe(id string) bool {
	if h.bus == nil {
		return false
	}
	h.mu.Lock()
	_, owned := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if !owned {
		return false
	}
	return h.bus.UnsubscribeID(id) == nil
}

// Pause stops enqueueing events on an owned subscription until Resume.
// Queued events stay receivable.
func (h *Host) Pause(id string) bool {
	sub := h.owned(id)
	if sub == nil {
		return false
	}
	sub.Pause()
	return true
}

// Resume restarts delivery on an owned subscription.
func (h *Host) Resume(id string) bool {
	sub := h.owned(id)
	if sub == nil {
		return false
	}
	sub.Resume()
	return true
}

func (h *Host) owned(id string) *event.Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs[id]
}

// ListSubscriptions describes every subscription on the bus.
func (h *Host) ListSubscriptions() ([]any, error) {
	if h.bus == nil {
		return nil, ErrNoBus
	}
	infos := h.bus.ListSubscriptions()
	out := make([]any, len(infos))
	for i, info := range infos {
		patterns := make([]any, len(info.Patterns))
		for j, p := range info.Patterns {
			patterns[j] = p
		}
		out[i] = map[string]any{
			"id":         info.ID,
			"patterns":   patterns,
			"owner":      info.Owner,
			"strategy":   info.Strategy.String(),
			"capacity":   int64(info.Capacity),
			"state":      info.State.String(),
			"created_at": info.CreatedAt.UTC().Format(time.RFC3339Nano),
			"stats":      StatsMap(info.Stats),
		}
	}
	return out, nil
}

// SubscriptionStats returns the counters of one subscription.
func (h *Host) SubscriptionStats(id string) (map[string]any, error) {
	if h.bus == nil {
		return nil, ErrNoBus
	}
	st, err := h.bus.SubscriptionStats(id)
	if err != nil {
		return nil, err
	}
	return StatsMap(st), nil
}

// StatsMap renders subscription counters for guests.
func StatsMap(st event.SubscriptionStats) map[string]any {
	return map[string]any{
		"received":   int64(st.Received),
		"delivered":  int64(st.Delivered),
		"dropped":    int64(st.Dropped),
		"rejected":   int64(st.Rejected),
		"expired":    int64(st.Expired),
		"filtered":   int64(st.Filtered),
		"queue_size": int64(st.QueueSize),
		"high_water": int64(st.HighWater),
	}
}

// Owned returns the handles and subscription ids the runtime still holds.
func (h *Host) Owned() (hooks []hook.Handle, subs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for handle := range h.hooks {
		hooks = append(hooks, handle)
	}
	for id := range h.subs {
		subs = append(subs, id)
	}
	sort.Slice(hooks, func(i, j int) bool { return hooks[i] < hooks[j] })
	sort.Strings(subs)
	return hooks, subs
}

// Close unregisters every hook and closes every subscription the runtime
// created. Later registrations fail with ErrHostClosed.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	hooks := h.hooks
	subs := h.subs
	h.hooks = make(map[hook.Handle]struct{})
	h.subs = make(map[string]*event.Subscription)
	h.mu.Unlock()

	for handle := range hooks {
		h.executor.Unregister(handle)
	}
	var errs []error
	for _, sub := range subs {
		if err := h.bus.Unsubscribe(sub); err != nil && !errors.Is(err, event.ErrSubscriptionNotFound) {
			errs = append(errs, err)
		}
	}
	if len(hooks) > 0 || len(subs) > 0 {
		h.logger.Debug(context.Background(), "released script resources",
			"script", h.owner,
			"hooks", len(hooks),
			"subscriptions", len(subs),
		)
	}
	return errors.Join(errs...)
}

// ParsePriority accepts nil, a band name, a numeric string or a number.
func ParsePriority(v any) (hook.Priority, error) {
	switch t := v.(type) {
	case nil:
		return hook.PriorityNormal, nil
	case string:
		return hook.ParsePriority(t)
	}
	n, err := number(v)
	if err != nil {
		return 0, fmt.Errorf("priority: %w", err)
	}
	return hook.Priority(int(n)), nil
}

func registerOptions(opts map[string]any) ([]hook.RegisterOption, error) {
	var out []hook.RegisterOption
	if s, ok := opts["name"].(string); ok && s != "" {
		out = append(out, hook.WithName(s))
	}
	if s, ok := opts["description"].(string); ok {
		out = append(out, hook.WithDescription(s))
	}
	if raw, ok := opts["tags"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("tags: expected list, got %T", raw)
		}
		tags := make([]string, 0, len(list))
		for _, t := range list {
			s, ok := t.(string)
			if !ok {
				return nil, fmt.Errorf("tags: expected string, got %T", t)
			}
			tags = append(tags, s)
		}
		out = append(out, hook.WithTags(tags...))
	}
	if raw, ok := opts["timeout_ms"]; ok && raw != nil {
		n, err := number(raw)
		if err != nil {
			return nil, fmt.Errorf("timeout_ms: %w", err)
		}
		out = append(out, hook.WithTimeout(time.Duration(n)*time.Millisecond))
	}
	return out, nil
}

func number(v any) (float64, error) {
	switch t := v.(type) {
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
