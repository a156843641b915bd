package event

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dshills/conductor/internal/event/topic"
)

// SubscriptionState represents the state of a subscription.
type SubscriptionState int32

const (
	// SubscriptionStateActive means the subscription is receiving events.
	SubscriptionStateActive SubscriptionState = iota

	// SubscriptionStatePaused means matched events are skipped.
	SubscriptionStatePaused

	// SubscriptionStateClosed means the subscription was removed from the bus.
	SubscriptionStateClosed
)

// String returns a human-readable state name.
func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionStateActive:
		return "active"
	case SubscriptionStatePaused:
		return "paused"
	case SubscriptionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SubscriptionStats is a snapshot of one subscription's counters.
type SubscriptionStats struct {
	Received  uint64
	Dropped   uint64
	Rejected  uint64
	Delivered uint64
	Expired   uint64
	Filtered  uint64
	QueueSize int
	HighWater int
}

// SubscriptionInfo describes a subscription for listings.
type SubscriptionInfo struct {
	ID        string
	Patterns  []string
	Owner     string
	Strategy  Strategy
	Capacity  int
	State     SubscriptionState
	CreatedAt time.Time
	Stats     SubscriptionStats
}

// Subscription is a bounded queue of events whose types matched one of its
// patterns. Consumers pull with Receive.
type Subscription struct {
	id        string
	patterns  []string
	owner     string
	filter    FilterFunc
	flow      *FlowController
	createdAt time.Time

	state    atomic.Int32
	filtered atomic.Uint64
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Patterns returns the subscribed patterns as given.
func (s *Subscription) Patterns() []string {
	out := make([]string, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// Owner returns the owner label, typically the guest runtime that created it.
func (s *Subscription) Owner() string { return s.owner }

// Strategy returns the backpressure strategy.
func (s *Subscription) Strategy() Strategy { return s.flow.cfg.Strategy }

// Capacity returns the queue capacity.
func (s *Subscription) Capacity() int { return s.flow.cfg.Capacity }

// State returns the current state.
func (s *Subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// IsActive reports whether matched events are enqueued.
func (s *Subscription) IsActive() bool {
	return s.State() == SubscriptionStateActive
}

// Pause stops enqueueing matched events until Resume. Queued events remain
// receivable.
func (s *Subscription) Pause() {
	s.state.CompareAndSwap(int32(SubscriptionStateActive), int32(SubscriptionStatePaused))
}

// Resume restarts delivery after Pause.
func (s *Subscription) Resume() {
	s.state.CompareAndSwap(int32(SubscriptionStatePaused), int32(SubscriptionStateActive))
}

// Len returns the number of queued events.
func (s *Subscription) Len() int { return s.flow.Len() }

// Receive returns the next event, waiting up to timeout.
func (s *Subscription) Receive(ctx context.Context, timeout time.Duration) (*UniversalEvent, bool) {
	return s.flow.Poll(ctx, timeout)
}

// ReceiveBatch returns up to max events, waiting up to timeout for the first.
func (s *Subscription) ReceiveBatch(ctx context.Context, max int, timeout time.Duration) []*UniversalEvent {
	return s.flow.PollBatch(ctx, max, timeout)
}

// Stats returns a snapshot of the subscription counters.
func (s *Subscription) Stats() SubscriptionStats {
	fs := s.flow.Stats()
	return SubscriptionStats{
		Received:  fs.Received,
		Dropped:   fs.Dropped,
		Rejected:  fs.Rejected,
		Delivered: fs.Delivered,
		Expired:   fs.Expired,
		Filtered:  s.filtered.Load(),
		QueueSize: fs.Depth,
		HighWater: fs.HighWater,
	}
}

// Info returns a listing entry for the subscription.
func (s *Subscription) Info() SubscriptionInfo {
	return SubscriptionInfo{
		ID:        s.id,
		Patterns:  s.Patterns(),
		Owner:     s.owner,
		Strategy:  s.Strategy(),
		Capacity:  s.Capacity(),
		State:     s.State(),
		CreatedAt: s.createdAt,
		Stats:     s.Stats(),
	}
}

// offer runs the filter and enqueues e.
func (s *Subscription) offer(ctx context.Context, e *UniversalEvent) error {
	if !s.IsActive() {
		return nil
	}
	if s.filter != nil && !s.filter(e) {
		s.filtered.Add(1)
		return nil
	}
	return s.flow.Offer(ctx, e)
}

func (s *Subscription) close() {
	s.state.Store(int32(SubscriptionStateClosed))
	s.flow.Close()
}

func compilePatterns(patterns []string) ([]*topic.Pattern, error) {
	if len(patterns) == 0 {
		return nil, topic.ErrInvalidPattern
	}
	out := make([]*topic.Pattern, 0, len(patterns))
	for _, p := range patterns {
		c, err := topic.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
