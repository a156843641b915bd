package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event/topic"
	"github.com/dshills/conductor/internal/telemetry"
)

// DefaultMaxPayloadBytes bounds the JSON size of event data.
const DefaultMaxPayloadBytes = 1 << 20

// BusOption configures a Bus.
type BusOption func(*busConfig)

type busConfig struct {
	capacity        int
	strategy        Strategy
	blockTimeout    time.Duration
	maxPayloadBytes int
	cacheSize       int
	ratePerSecond   float64
	rateBurst       int
	store           Store
	persistPatterns []string
	instanceID      string
	logger          telemetry.Logger
	metrics         telemetry.Metrics
	now             func() time.Time
}

func defaultBusConfig() busConfig {
	return busConfig{
		capacity:        DefaultCapacity,
		strategy:        DropOldest,
		blockTimeout:    DefaultBlockTimeout,
		maxPayloadBytes: DefaultMaxPayloadBytes,
		cacheSize:       topic.DefaultCacheSize,
		instanceID:      uuid.NewString(),
		logger:          telemetry.NoopLogger{},
		metrics:         telemetry.NoopMetrics{},
		now:             time.Now,
	}
}

// WithDefaultCapacity sets the queue capacity for subscriptions that do not set one.
func WithDefaultCapacity(n int) BusOption {
	return func(c *busConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithDefaultStrategy sets the backpressure strategy for subscriptions that do not set one.
func WithDefaultStrategy(s Strategy) BusOption {
	return func(c *busConfig) {
		if s.Valid() {
			c.strategy = s
		}
	}
}

// WithBlockTimeout sets how long the Block strategy waits for space.
func WithBlockTimeout(d time.Duration) BusOption {
	return func(c *busConfig) {
		if d > 0 {
			c.blockTimeout = d
		}
	}
}

// WithMaxPayloadBytes bounds the encoded size of event data. Zero or less
// disables the check.
func WithMaxPayloadBytes(n int) BusOption {
	return func(c *busConfig) {
		c.maxPayloadBytes = n
	}
}

// WithMatchCacheSize sets the number of event types whose subscriber sets are cached.
func WithMatchCacheSize(n int) BusOption {
	return func(c *busConfig) {
		c.cacheSize = n
	}
}

// WithRateLimit caps publishes per second with a token bucket. Publishes
// over the limit fail with ErrRateLimited.
func WithRateLimit(perSecond float64, burst int) BusOption {
	return func(c *busConfig) {
		c.ratePerSecond = perSecond
		c.rateBurst = max(burst, 1)
	}
}

// WithStore persists events. Events published with Persistent, or whose
// type matches one of patterns, are appended to store.
func WithStore(store Store, patterns ...string) BusOption {
	return func(c *busConfig) {
		c.store = store
		c.persistPatterns = append(c.persistPatterns, patterns...)
	}
}

// WithInstanceID sets the instance id stamped into event sources.
func WithInstanceID(id string) BusOption {
	return func(c *busConfig) {
		if id != "" {
			c.instanceID = id
		}
	}
}

// WithBusLogger sets the logger.
func WithBusLogger(l telemetry.Logger) BusOption {
	return func(c *busConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBusMetrics sets the metrics sink.
func WithBusMetrics(m telemetry.Metrics) BusOption {
	return func(c *busConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithBusClock sets the time source used for timestamps and TTL checks.
func WithBusClock(now func() time.Time) BusOption {
	return func(c *busConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// PublishOption configures a single publish.
type PublishOption func(*UniversalEvent)

// WithLanguage records the publishing language. The default is native.
func WithLanguage(lang core.Language) PublishOption {
	return func(e *UniversalEvent) { e.Source.Language = lang }
}

// WithCorrelation sets the correlation id.
func WithCorrelation(id core.CorrelationID) PublishOption {
	return func(e *UniversalEvent) { e.Source.CorrelationID = id }
}

// WithSource sets the publishing component name.
func WithSource(component string) PublishOption {
	return func(e *UniversalEvent) { e.Source.Component = component }
}

// WithTTL makes the event expire from queues after d.
func WithTTL(d time.Duration) PublishOption {
	return func(e *UniversalEvent) { e.TTL = d }
}

// WithPersistent marks the event for the store.
func WithPersistent() PublishOption {
	return func(e *UniversalEvent) { e.Persistent = true }
}

// WithMetadata attaches metadata to the event.
func WithMetadata(md map[string]any) PublishOption {
	return func(e *UniversalEvent) { e.Metadata = core.CloneMap(md) }
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	flow   FlowConfig
	filter FilterFunc
	owner  string
}

// WithBackpressure sets the overflow strategy.
func WithBackpressure(s Strategy) SubscribeOption {
	return func(c *subscribeConfig) { c.flow.Strategy = s }
}

// WithCapacity sets the queue capacity.
func WithCapacity(n int) SubscribeOption {
	return func(c *subscribeConfig) { c.flow.Capacity = n }
}

// WithSubscriptionBlockTimeout overrides the bus block timeout.
func WithSubscriptionBlockTimeout(d time.Duration) SubscribeOption {
	return func(c *subscribeConfig) { c.flow.BlockTimeout = d }
}

// WithWatermarks sets the high and low pressure thresholds as fractions of capacity.
func WithWatermarks(high, low float64) SubscribeOption {
	return func(c *subscribeConfig) {
		c.flow.HighWatermark = high
		c.flow.LowWatermark = low
	}
}

// WithFilter adds a delivery filter. Multiple filters are ANDed.
func WithFilter(f FilterFunc) SubscribeOption {
	return func(c *subscribeConfig) {
		if f == nil {
			return
		}
		if c.filter == nil {
			c.filter = f
			return
		}
		c.filter = FilterAnd(c.filter, f)
	}
}

// WithDataFilter is shorthand for WithFilter(FilterData(conditions)).
func WithDataFilter(conditions map[string]any) SubscribeOption {
	return WithFilter(FilterData(conditions))
}

// WithOwner labels the subscription with its creator.
func WithOwner(owner string) SubscribeOption {
	return func(c *subscribeConfig) { c.owner = owner }
}
