package event

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Strategy selects what a subscription does when its queue is full.
type Strategy string

const (
	// DropOldest evicts the oldest queued event to make room.
	DropOldest Strategy = "drop_oldest"
	// DropNewest discards the incoming event.
	DropNewest Strategy = "drop_newest"
	// Block waits for space up to the block timeout, then refuses.
	Block Strategy = "block"
	// Reject refuses the incoming event immediately.
	Reject Strategy = "reject"
)

// Defaults for subscription queues.
const (
	DefaultCapacity      = 10000
	DefaultBlockTimeout  = time.Second
	DefaultHighWatermark = 0.8
	DefaultLowWatermark  = 0.5
)

func (s Strategy) String() string { return string(s) }

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case DropOldest, DropNewest, Block, Reject:
		return true
	}
	return false
}

// ParseStrategy parses a strategy name. Both "drop_oldest" and
// "DropOldest" spellings are accepted.
func ParseStrategy(s string) (Strategy, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(s, "-", ""), "_", ""))
	switch norm {
	case "", "dropoldest":
		return DropOldest, nil
	case "dropnewest":
		return DropNewest, nil
	case "block":
		return Block, nil
	case "reject":
		return Reject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
}

// Pressure is a watermark crossing reported by a FlowController.
type Pressure struct {
	High     bool
	Depth    int
	Capacity int
}

// FlowConfig configures a FlowController.
type FlowConfig struct {
	Capacity      int
	Strategy      Strategy
	BlockTimeout  time.Duration
	HighWatermark float64
	LowWatermark  float64
	OnPressure    func(Pressure)
	Now           func() time.Time
}

func (c FlowConfig) withDefaults() FlowConfig {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if !c.Strategy.Valid() {
		c.Strategy = DropOldest
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = DefaultBlockTimeout
	}
	if c.HighWatermark <= 0 || c.HighWatermark > 1 {
		c.HighWatermark = DefaultHighWatermark
	}
	if c.LowWatermark <= 0 || c.LowWatermark >= c.HighWatermark {
		c.LowWatermark = DefaultLowWatermark
		if c.LowWatermark >= c.HighWatermark {
			c.LowWatermark = c.HighWatermark / 2
		}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// FlowStats is a snapshot of queue counters.
type FlowStats struct {
	Received  uint64
	Dropped   uint64
	Rejected  uint64
	Delivered uint64
	Expired   uint64
	Depth     int
	HighWater int
}

// FlowController is a bounded FIFO of events with a backpressure strategy.
// Producers call Offer; consumers call Poll.
type FlowController struct {
	cfg   FlowConfig
	owner string

	mu        sync.Mutex
	buf       []*UniversalEvent
	head      int
	size      int
	highWater int
	pressured bool

	space     chan struct{}
	avail     chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	received  atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	delivered atomic.Uint64
	expired   atomic.Uint64
}

// NewFlowController creates a queue. owner names the subscription in
// overflow errors.
func NewFlowController(owner string, cfg FlowConfig) *FlowController {
	cfg = cfg.withDefaults()
	return &FlowController{
		cfg:   cfg,
		owner: owner,
		buf:   make([]*UniversalEvent, min(cfg.Capacity, 64)),
		space: make(chan struct{}, 1),
		avail: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (f *FlowController) Config() FlowConfig { return f.cfg }

func (f *FlowController) overflow() error {
	return &OverflowError{SubscriptionID: f.owner, Strategy: f.cfg.Strategy}
}

// Offer enqueues e according to the strategy. DropOldest and DropNewest
// never fail; Block and Reject return an error wrapping ErrQueueOverflow
// when the event is refused.
func (f *FlowController) Offer(ctx context.Context, e *UniversalEvent) error {
	if f.closed() {
		return ErrSubscriptionClosed
	}
	f.received.Add(1)

	f.mu.Lock()
	if f.size < f.cfg.Capacity {
		p := f.pushLocked(e)
		f.mu.Unlock()
		f.notify(p)
		return nil
	}
	switch f.cfg.Strategy {
	case DropNewest:
		f.mu.Unlock()
		f.dropped.Add(1)
		return nil
	case Reject:
		f.mu.Unlock()
		f.rejected.Add(1)
		return f.overflow()
	case Block:
		f.mu.Unlock()
		return f.offerBlocking(ctx, e)
	default:
		f.popLocked()
		f.dropped.Add(1)
		p := f.pushLocked(e)
		f.mu.Unlock()
		f.notify(p)
		return nil
	}
}

func (f *FlowController) offerBlocking(ctx context.Context, e *UniversalEvent) error {
	timer := time.NewTimer(f.cfg.BlockTimeout)
	defer timer.Stop()
	for {
		select {
		case <-f.space:
		case <-timer.C:
			f.rejected.Add(1)
			return f.overflow()
		case <-ctx.Done():
			f.rejected.Add(1)
			return fmt.Errorf("%w: %w", f.overflow(), ctx.Err())
		case <-f.done:
			return ErrSubscriptionClosed
		}
		f.mu.Lock()
		if f.size < f.cfg.Capacity {
			p := f.pushLocked(e)
			more := f.size < f.cfg.Capacity
			f.mu.Unlock()
			if more {
				signal(f.space)
			}
			f.notify(p)
			return nil
		}
		f.mu.Unlock()
	}
}

// Poll returns the next unexpired event, waiting up to timeout. A zero
// timeout does not wait. After Close, Poll drains what remains and then
// returns false without waiting.
func (f *FlowController) Poll(ctx context.Context, timeout time.Duration) (*UniversalEvent, bool) {
	if e, ok := f.tryPop(); ok {
		return e, true
	}
	if timeout <= 0 || f.closed() {
		return nil, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-f.avail:
			if e, ok := f.tryPop(); ok {
				return e, true
			}
		case <-timer.C:
			return f.tryPop()
		case <-ctx.Done():
			return nil, false
		case <-f.done:
			return f.tryPop()
		}
	}
}

// PollBatch waits up to timeout for the first event and then takes up to
// max events without waiting.
func (f *FlowController) PollBatch(ctx context.Context, max int, timeout time.Duration) []*UniversalEvent {
	if max <= 0 {
		return nil
	}
	first, ok := f.Poll(ctx, timeout)
	if !ok {
		return nil
	}
	out := []*UniversalEvent{first}
	for len(out) < max {
		e, ok := f.tryPop()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

func (f *FlowController) tryPop() (*UniversalEvent, bool) {
	now := f.cfg.Now()
	f.mu.Lock()
	for f.size > 0 {
		e := f.popLocked()
		if e.Expired(now) {
			f.expired.Add(1)
			continue
		}
		p := f.lowLocked()
		more := f.size > 0
		f.mu.Unlock()
		f.delivered.Add(1)
		signal(f.space)
		if more {
			signal(f.avail)
		}
		f.notify(p)
		return e, true
	}
	f.mu.Unlock()
	return nil, false
}

func (f *FlowController) pushLocked(e *UniversalEvent) *Pressure {
	if f.size == len(f.buf) {
		f.grow()
	}
	f.buf[(f.head+f.size)%len(f.buf)] = e
	f.size++
	if f.size > f.highWater {
		f.highWater = f.size
	}
	signal(f.avail)
	if !f.pressured && float64(f.size) >= f.cfg.HighWatermark*float64(f.cfg.Capacity) {
		f.pressured = true
		return &Pressure{High: true, Depth: f.size, Capacity: f.cfg.Capacity}
	}
	return nil
}

func (f *FlowController) popLocked() *UniversalEvent {
	e := f.buf[f.head]
	f.buf[f.head] = nil
	f.head = (f.head + 1) % len(f.buf)
	f.size--
	return e
}

func (f *FlowController) lowLocked() *Pressure {
	if f.pressured && float64(f.size) <= f.cfg.LowWatermark*float64(f.cfg.Capacity) {
		f.pressured = false
		return &Pressure{Depth: f.size, Capacity: f.cfg.Capacity}
	}
	return nil
}

func (f *FlowController) grow() {
	n := min(max(len(f.buf)*2, 1), f.cfg.Capacity)
	buf := make([]*UniversalEvent, n)
	for i := 0; i < f.size; i++ {
		buf[i] = f.buf[(f.head+i)%len(f.buf)]
	}
	f.buf = buf
	f.head = 0
}

func (f *FlowController) notify(p *Pressure) {
	if p != nil && f.cfg.OnPressure != nil {
		f.cfg.OnPressure(*p)
	}
}

// Len returns the number of queued events.
func (f *FlowController) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Stats returns a snapshot of the counters.
func (f *FlowController) Stats() FlowStats {
	f.mu.Lock()
	depth, hw := f.size, f.highWater
	f.mu.Unlock()
	return FlowStats{
		Received:  f.received.Load(),
		Dropped:   f.dropped.Load(),
		Rejected:  f.rejected.Load(),
		Delivered: f.delivered.Load(),
		Expired:   f.expired.Load(),
		Depth:     depth,
		HighWater: hw,
	}
}

// Close stops accepting events and wakes blocked producers and consumers.
func (f *FlowController) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *FlowController) closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
