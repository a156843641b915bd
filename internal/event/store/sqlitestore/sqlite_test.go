package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/event/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:): %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return store
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) event.Store { return newTestStore(t) })
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	e := event.NewEvent("audit.login", map[string]any{"user": "u1"})
	e.Timestamp = time.Now()
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate after reopen: %v", err)
	}
	got, err := s.Query(ctx, event.Query{Pattern: "audit.*"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != e.ID {
		t.Fatalf("got %v, want event %s", got, e.ID)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
