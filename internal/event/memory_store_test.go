package event_test

import (
	"testing"

	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/event/store/storetest"
)

func TestMemoryStoreBehavior(t *testing.T) {
	storetest.Run(t, func(*testing.T) event.Store { return event.NewMemoryStore(0) })
}
