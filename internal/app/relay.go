package app

import (
	"context"
	"sync"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/telemetry"
)

const (
	executorSource = "hook.executor"

	// relayQueueSize bounds executor notifications waiting for the bus.
	relayQueueSize = 1024
)

type relayedEvent struct {
	eventType   string
	correlation core.CorrelationID
	data        map[string]any
}

// executionRelay moves executor notifications onto the bus from its own
// goroutine. send never waits: when the queue is full the notification is
// dropped and counted, so a slow Block subscriber on "hook.**" cannot hold
// up a hook chain.
type executionRelay struct {
	bus     *event.Bus
	logger  telemetry.Logger
	metrics telemetry.Metrics

	queue chan relayedEvent
	stop  chan struct{}
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newExecutionRelay(bus *event.Bus, logger telemetry.Logger, metrics telemetry.Metrics, size int) *executionRelay {
	ctx, cancel := context.WithCancel(context.Background())
	r := &executionRelay{
		bus:     bus,
		logger:  logger,
		metrics: metrics,
		queue:   make(chan relayedEvent, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.run()
	return r
}

// send is the executor's EventSink.
func (r *executionRelay) send(ctx context.Context, eventType string, cid core.CorrelationID, data map[string]any) {
	select {
	case <-r.stop:
		return
	default:
	}
	select {
	case r.queue <- relayedEvent{eventType: eventType, correlation: cid, data: data}:
	default:
		r.metrics.IncCounter(telemetry.MetricExecutionEventsDropped, 1, "event_type", eventType)
		r.logger.Debug(ctx, "executor event dropped, relay queue full", "event_type", eventType)
	}
}

func (r *executionRelay) run() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.queue:
			r.publish(ev)
		case <-r.stop:
			for {
				select {
				case ev := <-r.queue:
					r.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *executionRelay) publish(ev relayedEvent) {
	if r.bus.IsClosed() {
		return
	}
	err := r.bus.Publish(r.ctx, ev.eventType, ev.data,
		event.WithCorrelation(ev.correlation), event.WithSource(executorSource))
	if err != nil {
		r.logger.Debug(r.ctx, "executor event not published", "event_type", ev.eventType, "err", err)
	}
}

// close publishes what is queued until ctx is done, then abandons the rest.
func (r *executionRelay) close(ctx context.Context) {
	r.once.Do(func() { close(r.stop) })
	select {
	case <-r.done:
	case <-ctx.Done():
		r.cancel()
		<-r.done
	}
	r.cancel()
}
