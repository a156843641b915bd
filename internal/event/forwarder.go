package event

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler processes an event pulled from a subscription.
type Handler func(ctx context.Context, e *UniversalEvent) error

// Forwarder pumps subscriptions into handlers on background goroutines.
// The first handler error stops every pump.
type Forwarder struct {
	bus    *Bus
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
	poll   time.Duration
	batch  int
}

// NewForwarder creates a forwarder bound to ctx.
func NewForwarder(ctx context.Context, bus *Bus) *Forwarder {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	return &Forwarder{
		bus:    bus,
		ctx:    gctx,
		cancel: cancel,
		g:      g,
		poll:   100 * time.Millisecond,
		batch:  64,
	}
}

// Forward starts pumping sub into h until the forwarder stops or sub is
// closed and drained.
func (f *Forwarder) Forward(sub *Subscription, h Handler) {
	f.g.Go(func() error {
		for {
			if f.ctx.Err() != nil {
				return nil
			}
			batch := f.bus.ReceiveBatch(f.ctx, sub, f.batch, f.poll)
			if len(batch) == 0 && sub.State() == SubscriptionStateClosed {
				return nil
			}
			for _, e := range batch {
				if err := h(f.ctx, e); err != nil {
					return err
				}
			}
		}
	})
}

// Wait blocks until every pump has returned.
func (f *Forwarder) Wait() error {
	err := f.g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop cancels the pumps and waits for them.
func (f *Forwarder) Stop() error {
	f.cancel()
	return f.Wait()
}
