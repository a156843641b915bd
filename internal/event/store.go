package event

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event/topic"
)

// ErrNoStore is returned by Bus.Query when no store is configured.
var ErrNoStore = errors.New("event store not configured")

// Query selects persisted events. Zero fields match everything. Results are
// ordered oldest first; with Limit set, the most recent Limit events are
// returned.
type Query struct {
	Pattern       string
	CorrelationID core.CorrelationID
	Since         time.Time
	Until         time.Time
	Limit         int
}

// Matcher returns a predicate for q. The pattern is compiled once.
func (q Query) Matcher() (func(*UniversalEvent) bool, error) {
	var p *topic.Pattern
	if q.Pattern != "" {
		var err error
		if p, err = topic.Compile(q.Pattern); err != nil {
			return nil, err
		}
	}
	return func(e *UniversalEvent) bool {
		if p != nil && !p.Match(e.Type) {
			return false
		}
		if q.CorrelationID != "" && e.Source.CorrelationID != q.CorrelationID {
			return false
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			return false
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			return false
		}
		return true
	}, nil
}

// Store persists events for history queries.
type Store interface {
	Append(ctx context.Context, e *UniversalEvent) error
	Query(ctx context.Context, q Query) ([]*UniversalEvent, error)
	// Cleanup deletes events older than before and returns how many were removed.
	Cleanup(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// MemoryStore is an in-process Store bounded to max events.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*UniversalEvent
	max    int
}

// NewMemoryStore creates a store keeping at most max events; older events
// are discarded first. max <= 0 means unbounded.
func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{max: max}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, e *UniversalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Timestamp.After(e.Timestamp)
	})
	s.events = append(s.events, nil)
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = e
	if s.max > 0 && len(s.events) > s.max {
		s.events = append(s.events[:0:0], s.events[len(s.events)-s.max:]...)
	}
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, q Query) ([]*UniversalEvent, error) {
	match, err := q.Matcher()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*UniversalEvent
	for _, e := range s.events {
		if match(e) {
			out = append(out, e)
		}
	}
	return Limit(out, q.Limit), nil
}

// Cleanup implements Store.
func (s *MemoryStore) Cleanup(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].Timestamp.Before(before)
	})
	s.events = append(s.events[:0:0], s.events[i:]...)
	return i, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Limit keeps the last n events of an oldest-first slice.
func Limit(events []*UniversalEvent, n int) []*UniversalEvent {
	if n > 0 && len(events) > n {
		return events[len(events)-n:]
	}
	return events
}
