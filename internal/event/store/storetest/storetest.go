// Package storetest checks that an event.Store implementation behaves like
// the in-memory reference store.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) event.Store

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(typ string, offset time.Duration, cid core.CorrelationID, seq uint64) *event.UniversalEvent {
	e := event.NewEvent(typ, map[string]any{"n": int64(seq), "tags": []any{"a", "b"}},
		event.WithCorrelation(cid), event.WithLanguage(core.LanguageLua), event.WithSource("tester"))
	e.Timestamp = base.Add(offset)
	e.Sequence = seq
	e.Source.InstanceID = "node-1"
	return e
}

func typesOf(events []*event.UniversalEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func seed(t *testing.T, s event.Store) []*event.UniversalEvent {
	t.Helper()
	events := []*event.UniversalEvent{
		at("agent.started", 2*time.Second, "c1", 2),
		at("agent.finished", 4*time.Second, "c1", 4),
		at("tool.called", time.Second, "c2", 1),
		at("agent.step.done", 3*time.Second, "c2", 3),
	}
	for _, e := range events {
		require.NoError(t, s.Append(context.Background(), e))
	}
	return events
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTrip", func(t *testing.T) {
		s := open(t, newStore)
		events := seed(t, s)

		got, err := s.Query(context.Background(), event.Query{Pattern: "tool.called"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		want := events[2]
		assert.Equal(t, want.ID, got[0].ID)
		assert.True(t, want.Timestamp.Equal(got[0].Timestamp))
		assert.Equal(t, want.Source, got[0].Source)
		assert.Equal(t, want.Data, got[0].Data)
		assert.Equal(t, want.Sequence, got[0].Sequence)
	})

	t.Run("OrderedByTimestamp", func(t *testing.T) {
		s := open(t, newStore)
		seed(t, s)

		got, err := s.Query(context.Background(), event.Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"tool.called", "agent.started", "agent.step.done", "agent.finished"}, typesOf(got))
	})

	t.Run("Filters", func(t *testing.T) {
		s := open(t, newStore)
		seed(t, s)
		ctx := context.Background()

		got, err := s.Query(ctx, event.Query{Pattern: "agent.*"})
		require.NoError(t, err)
		assert.Equal(t, []string{"agent.started", "agent.finished"}, typesOf(got))

		got, err = s.Query(ctx, event.Query{Pattern: "agent.**", CorrelationID: "c2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"agent.step.done"}, typesOf(got))

		got, err = s.Query(ctx, event.Query{Since: base.Add(2 * time.Second), Until: base.Add(3 * time.Second)})
		require.NoError(t, err)
		assert.Equal(t, []string{"agent.started", "agent.step.done"}, typesOf(got))
	})

	t.Run("LimitKeepsMostRecent", func(t *testing.T) {
		s := open(t, newStore)
		seed(t, s)
		ctx := context.Background()

		got, err := s.Query(ctx, event.Query{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"agent.step.done", "agent.finished"}, typesOf(got))

		got, err = s.Query(ctx, event.Query{Pattern: "agent.**", Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"agent.finished"}, typesOf(got))
	})

	t.Run("Cleanup", func(t *testing.T) {
		s := open(t, newStore)
		seed(t, s)
		ctx := context.Background()

		n, err := s.Cleanup(ctx, base.Add(3*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := s.Query(ctx, event.Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"agent.step.done", "agent.finished"}, typesOf(got))

		got, err = s.Query(ctx, event.Query{CorrelationID: "c1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"agent.finished"}, typesOf(got))
	})

	t.Run("InvalidPattern", func(t *testing.T) {
		s := open(t, newStore)
		_, err := s.Query(context.Background(), event.Query{Pattern: "a.{b"})
		assert.Error(t, err)
	})
}

func open(t *testing.T, newStore Factory) event.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
