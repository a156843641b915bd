package event

import (
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func labeled(label string) *UniversalEvent {
	return NewEvent("test.event", label)
}

func labels(events []*UniversalEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i], _ = e.Data.(string)
	}
	return out
}
