package hook

import (
	"sync"
	"time"
)

// BreakerStatus is the state of a Breaker.
type BreakerStatus int

const (
	BreakerClosed BreakerStatus = iota
	BreakerOpen
	BreakerHalfOpen
)

// String returns the status name.
func (s BreakerStatus) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// SlowThreshold is the duration above which an invocation counts as slow.
	SlowThreshold time.Duration

	// MaxConsecutiveSlow is the number of consecutive slow invocations that opens the breaker.
	MaxConsecutiveSlow int

	// Cooldown is how long an open breaker rejects invocations before allowing a trial.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns 100ms / 5 / 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		SlowThreshold:      100 * time.Millisecond,
		MaxConsecutiveSlow: 5,
		Cooldown:           30 * time.Second,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = d.SlowThreshold
	}
	if c.MaxConsecutiveSlow <= 0 {
		c.MaxConsecutiveSlow = d.MaxConsecutiveSlow
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

// Transition reports a state change caused by Record.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionOpened
	TransitionClosed
)

// BreakerState is a snapshot of a Breaker.
type BreakerState struct {
	Status          BreakerStatus
	ConsecutiveSlow uint32
	OpenedAt        time.Time
	Trips           uint64
}

// Breaker removes a hook from its chain after repeated slow invocations
// and lets it back in after a cooldown and one successful trial.
//
// Every registered hook owns exactly one Breaker.
type Breaker struct {
	mu              sync.Mutex
	cfg             BreakerConfig
	status          BreakerStatus
	consecutiveSlow uint32
	openedAt        time.Time
	trialInFlight   bool
	trips           uint64
}

// NewBreaker returns a closed Breaker. Zero fields in cfg take defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (b *Breaker) Config() BreakerConfig {
	return b.cfg
}

// Allow reports whether an invocation may proceed at now. An open breaker
// whose cooldown has elapsed moves to half-open and admits one trial; other
// callers are refused until that trial is recorded.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case BreakerOpen:
		if now.Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.status = BreakerHalfOpen
		b.trialInFlight = true
		return true
	case BreakerHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return true
	}
}

// Record accounts for an admitted invocation that took d. failed marks a
// faulting invocation; it only matters for a half-open trial.
func (b *Breaker) Record(d time.Duration, failed bool, now time.Time) Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	slow := d > b.cfg.SlowThreshold

	if b.status == BreakerHalfOpen {
		b.trialInFlight = false
		if slow || failed {
			b.open(now)
			return TransitionOpened
		}
		b.status = BreakerClosed
		b.consecutiveSlow = 0
		b.openedAt = time.Time{}
		return TransitionClosed
	}
	if b.status == BreakerOpen {
		return TransitionNone
	}

	if !slow {
		b.consecutiveSlow = 0
		return TransitionNone
	}
	b.consecutiveSlow++
	if int(b.consecutiveSlow) >= b.cfg.MaxConsecutiveSlow {
		b.open(now)
		return TransitionOpened
	}
	return TransitionNone
}

func (b *Breaker) open(now time.Time) {
	b.status = BreakerOpen
	b.openedAt = now
	b.consecutiveSlow = 0
	b.trips++
}

// State returns a snapshot.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		Status:          b.status,
		ConsecutiveSlow: b.consecutiveSlow,
		OpenedAt:        b.openedAt,
		Trips:           b.trips,
	}
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = BreakerClosed
	b.consecutiveSlow = 0
	b.openedAt = time.Time{}
	b.trialInFlight = false
}
