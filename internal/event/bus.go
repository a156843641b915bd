package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event/topic"
	"github.com/dshills/conductor/internal/telemetry"
)

// Stats is a snapshot of bus-wide counters.
type Stats struct {
	Published      uint64
	Delivered      uint64
	Dropped        uint64
	Rejected       uint64
	Filtered       uint64
	Persisted      uint64
	PersistErrors  uint64
	RateLimited    uint64
	Subscriptions  int
	MatchCacheHits uint64
	MatchCacheMiss uint64
}

// Bus routes published events to the queues of subscriptions whose
// patterns match the event type. Publishing never waits on consumers
// except under the Block strategy.
//
// Bus is safe for concurrent use.
type Bus struct {
	cfg     busConfig
	matcher *topic.Matcher
	limiter *rate.Limiter
	persist []*topic.Pattern

	mu   sync.RWMutex
	subs map[string]*Subscription

	seq    atomic.Uint64
	closed atomic.Bool

	published     atomic.Uint64
	persisted     atomic.Uint64
	persistErrors atomic.Uint64
	rateLimited   atomic.Uint64
}

// NewBus creates an event bus. Invalid persist patterns are logged and ignored.
func NewBus(opts ...BusOption) *Bus {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &Bus{
		cfg:     cfg,
		matcher: topic.NewMatcher(cfg.cacheSize),
		subs:    make(map[string]*Subscription),
	}
	if cfg.ratePerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.ratePerSecond), cfg.rateBurst)
	}
	for _, p := range cfg.persistPatterns {
		c, err := topic.Compile(p)
		if err != nil {
			cfg.logger.Warn(context.Background(), "ignoring persist pattern", "pattern", p, "err", err)
			continue
		}
		b.persist = append(b.persist, c)
	}
	return b
}

// NewEvent builds an event with a fresh id. The bus stamps timestamp,
// sequence and instance id when it is published.
func NewEvent(eventType string, data any, opts ...PublishOption) *UniversalEvent {
	e := &UniversalEvent{
		ID:      uuid.New(),
		Type:    eventType,
		Version: Version,
		Data:    data,
		Source: Source{
			Component: "system",
			Language:  core.LanguageNative,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Publish builds an event and delivers it to every matching subscription.
// The returned error joins any Block or Reject refusals; the event was
// still delivered to the other subscribers.
func (b *Bus) Publish(ctx context.Context, eventType string, data any, opts ...PublishOption) error {
	return b.PublishEvent(ctx, NewEvent(eventType, data, opts...))
}

// PublishEvent validates e, persists it when configured and enqueues it on
// every matching subscription.
func (b *Bus) PublishEvent(ctx context.Context, e *UniversalEvent) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if !topic.Topic(e.Type).IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, e.Type)
	}
	if err := b.prepare(e); err != nil {
		return err
	}
	if b.limiter != nil && !b.limiter.Allow() {
		b.rateLimited.Add(1)
		return ErrRateLimited
	}

	e.Sequence = b.seq.Add(1)
	if e.Timestamp.IsZero() {
		e.Timestamp = b.cfg.now()
	}
	if e.Source.InstanceID == "" {
		e.Source.InstanceID = b.cfg.instanceID
	}
	if e.Version == "" {
		e.Version = Version
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	b.published.Add(1)
	b.cfg.metrics.IncCounter(telemetry.MetricEventPublished, 1, "language", e.Source.Language.String())

	if b.shouldPersist(e) {
		b.store(ctx, e)
	}

	ids := b.matcher.Match(e.Type)
	if len(ids) == 0 {
		return nil
	}
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(ids))
	for _, id := range ids {
		if s, ok := b.subs[id]; ok {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, s := range targets {
		if err := s.offer(ctx, e); err != nil && !errors.Is(err, ErrSubscriptionClosed) {
			b.cfg.metrics.IncCounter(telemetry.MetricEventRejected, 1, "strategy", s.Strategy().String())
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// prepare normalizes the payload and enforces the size limit.
func (b *Bus) prepare(e *UniversalEvent) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if b.cfg.maxPayloadBytes > 0 && len(raw) > b.cfg.maxPayloadBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(raw), b.cfg.maxPayloadBytes)
	}
	data, err := core.Normalize(e.Data)
	if err != nil {
		// Structs and other encodable values go through their JSON form.
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if data, err = core.Normalize(decoded); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	e.Data = data
	e.raw = raw
	if e.Metadata != nil {
		md, err := core.Normalize(e.Metadata)
		if err != nil {
			return fmt.Errorf("%w: metadata: %v", ErrInvalidPayload, err)
		}
		e.Metadata, _ = md.(map[string]any)
	}
	return nil
}

func (b *Bus) shouldPersist(e *UniversalEvent) bool {
	if b.cfg.store == nil {
		return false
	}
	if e.Persistent {
		return true
	}
	for _, p := range b.persist {
		if p.Match(e.Type) {
			return true
		}
	}
	return false
}

// store appends e to the configured store. Failures are logged; they never
// fail the publish.
func (b *Bus) store(ctx context.Context, e *UniversalEvent) {
	if err := b.cfg.store.Append(ctx, e); err != nil {
		b.persistErrors.Add(1)
		b.cfg.logger.Warn(ctx, "event persist failed", "event_type", e.Type, "event_id", e.ID.String(), "err", err)
		return
	}
	b.persisted.Add(1)
}

// Subscribe registers a subscription for one pattern.
func (b *Bus) Subscribe(pattern string, opts ...SubscribeOption) (*Subscription, error) {
	return b.SubscribeAll([]string{pattern}, opts...)
}

// SubscribeAll registers one subscription matching any of patterns. An
// event matching several patterns is enqueued once.
func (b *Bus) SubscribeAll(patterns []string, opts ...SubscribeOption) (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}
	sc := subscribeConfig{
		flow: FlowConfig{
			Capacity:     b.cfg.capacity,
			Strategy:     b.cfg.strategy,
			BlockTimeout: b.cfg.blockTimeout,
			Now:          b.cfg.now,
		},
	}
	for _, opt := range opts {
		opt(&sc)
	}
	if sc.flow.Strategy != "" && !sc.flow.Strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, sc.flow.Strategy)
	}

	id := uuid.NewString()
	s := &Subscription{
		id:        id,
		patterns:  append([]string(nil), patterns...),
		owner:     sc.owner,
		filter:    sc.filter,
		createdAt: b.cfg.now(),
	}
	sc.flow.OnPressure = func(p Pressure) { b.pressure(s, p) }
	s.flow = NewFlowController(id, sc.flow)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()
	for _, p := range compiled {
		b.matcher.Add(id, p)
	}
	return s, nil
}

func (b *Bus) pressure(s *Subscription, p Pressure) {
	ctx := context.Background()
	b.cfg.metrics.RecordGauge(telemetry.MetricQueueDepth, float64(p.Depth), "subscription", s.id)
	if p.High {
		b.cfg.logger.Warn(ctx, "subscription queue above high watermark",
			"subscription", s.id, "owner", s.owner, "depth", p.Depth, "capacity", p.Capacity)
		return
	}
	b.cfg.logger.Debug(ctx, "subscription queue below low watermark",
		"subscription", s.id, "depth", p.Depth)
}

// Lookup returns the subscription with id.
func (b *Bus) Lookup(id string) (*Subscription, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.subs[id]
	return s, ok
}

// Receive pulls the next event for sub, waiting up to timeout.
func (b *Bus) Receive(ctx context.Context, sub *Subscription, timeout time.Duration) (*UniversalEvent, bool) {
	e, ok := sub.Receive(ctx, timeout)
	if ok {
		b.cfg.metrics.IncCounter(telemetry.MetricEventDelivered, 1)
	}
	return e, ok
}

// ReceiveBatch pulls up to max events for sub.
func (b *Bus) ReceiveBatch(ctx context.Context, sub *Subscription, max int, timeout time.Duration) []*UniversalEvent {
	out := sub.ReceiveBatch(ctx, max, timeout)
	if len(out) > 0 {
		b.cfg.metrics.IncCounter(telemetry.MetricEventDelivered, float64(len(out)))
	}
	return out
}

// Unsubscribe removes sub. Events already queued remain receivable.
func (b *Bus) Unsubscribe(sub *Subscription) error {
	return b.UnsubscribeID(sub.ID())
}

// UnsubscribeID removes the subscription with id.
func (b *Bus) UnsubscribeID(id string) error {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if !ok {
		return ErrSubscriptionNotFound
	}
	b.matcher.Remove(id)
	s.close()
	return nil
}

// ListSubscriptions returns every subscription ordered by creation time.
func (b *Bus) ListSubscriptions() []SubscriptionInfo {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].createdAt.Equal(subs[j].createdAt) {
			return subs[i].id < subs[j].id
		}
		return subs[i].createdAt.Before(subs[j].createdAt)
	})
	out := make([]SubscriptionInfo, len(subs))
	for i, s := range subs {
		out[i] = s.Info()
	}
	return out
}

// SubscriptionStats returns the counters of the subscription with id.
func (b *Bus) SubscriptionStats(id string) (SubscriptionStats, error) {
	s, ok := b.Lookup(id)
	if !ok {
		return SubscriptionStats{}, ErrSubscriptionNotFound
	}
	return s.Stats(), nil
}

// Stats returns bus-wide counters.
func (b *Bus) Stats() Stats {
	st := Stats{
		Published:     b.published.Load(),
		Persisted:     b.persisted.Load(),
		PersistErrors: b.persistErrors.Load(),
		RateLimited:   b.rateLimited.Load(),
	}
	st.MatchCacheHits, st.MatchCacheMiss = b.matcher.CacheStats()
	b.mu.RLock()
	defer b.mu.RUnlock()
	st.Subscriptions = len(b.subs)
	for _, s := range b.subs {
		ss := s.Stats()
		st.Delivered += ss.Delivered
		st.Dropped += ss.Dropped
		st.Rejected += ss.Rejected
		st.Filtered += ss.Filtered
	}
	return st
}

// Query reads persisted events.
func (b *Bus) Query(ctx context.Context, q Query) ([]*UniversalEvent, error) {
	if b.cfg.store == nil {
		return nil, ErrNoStore
	}
	return b.cfg.store.Query(ctx, q)
}

// Pending returns the number of queued events across subscriptions.
func (b *Bus) Pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		n += s.Len()
	}
	return n
}

// Close stops accepting publishes and waits for consumers to drain the
// queues until ctx is done, then closes every subscription. It returns
// ctx's error when events were left undelivered.
func (b *Bus) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrBusClosed
	}
	var err error
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
drain:
	for b.Pending() > 0 {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			b.cfg.logger.Warn(ctx, "event bus closed with undelivered events", "pending", b.Pending())
			break drain
		case <-ticker.C:
		}
	}

	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()
	for id, s := range subs {
		b.matcher.Remove(id)
		s.close()
	}
	return err
}

// IsClosed reports whether Close was called.
func (b *Bus) IsClosed() bool { return b.closed.Load() }
