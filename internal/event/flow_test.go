package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func drain(f *FlowController) []*UniversalEvent {
	var out []*UniversalEvent
	for {
		e, ok := f.Poll(context.Background(), 0)
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func offerAll(t *testing.T, f *FlowController, names ...string) []error {
	t.Helper()
	errs := make([]error, len(names))
	for i, n := range names {
		errs[i] = f.Offer(context.Background(), labeled(n))
	}
	return errs
}

func equalLabels(t *testing.T, got []*UniversalEvent, want ...string) {
	t.Helper()
	g := labels(got)
	if fmt.Sprint(g) != fmt.Sprint(want) {
		t.Fatalf("labels = %v, want %v", g, want)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"", DropOldest},
		{"drop_oldest", DropOldest},
		{"DropOldest", DropOldest},
		{"drop-newest", DropNewest},
		{"BLOCK", Block},
		{"reject", Reject},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseStrategy(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseStrategy("sometimes"); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("expected ErrInvalidStrategy, got %v", err)
	}
}

func TestFlowDropOldest(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 2, Strategy: DropOldest})
	for _, err := range offerAll(t, f, "A", "B", "C") {
		if err != nil {
			t.Fatalf("Offer: %v", err)
		}
	}
	equalLabels(t, drain(f), "B", "C")
	if st := f.Stats(); st.Dropped != 1 || st.Received != 3 || st.Delivered != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestFlowDropNewest(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 2, Strategy: DropNewest})
	for _, err := range offerAll(t, f, "A", "B", "C") {
		if err != nil {
			t.Fatalf("Offer: %v", err)
		}
	}
	equalLabels(t, drain(f), "A", "B")
	if st := f.Stats(); st.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", st.Dropped)
	}
}

func TestFlowReject(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 2, Strategy: Reject})
	errs := offerAll(t, f, "A", "B", "C")
	if errs[0] != nil || errs[1] != nil {
		t.Fatalf("unexpected errors %v", errs[:2])
	}
	if !errors.Is(errs[2], ErrQueueOverflow) {
		t.Fatalf("third offer error = %v, want ErrQueueOverflow", errs[2])
	}
	var oe *OverflowError
	if !errors.As(errs[2], &oe) || oe.SubscriptionID != "s1" || oe.Strategy != Reject {
		t.Errorf("overflow error = %#v", oe)
	}
	equalLabels(t, drain(f), "A", "B")
	if st := f.Stats(); st.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", st.Rejected)
	}
}

func TestFlowBlockWaitsForSpace(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 1, Strategy: Block, BlockTimeout: 2 * time.Second})
	offerAll(t, f, "A")

	done := make(chan error, 1)
	go func() { done <- f.Offer(context.Background(), labeled("B")) }()

	time.Sleep(20 * time.Millisecond)
	first, ok := f.Poll(context.Background(), 0)
	if !ok || first.Data != "A" {
		t.Fatalf("first poll = %v, %v", first, ok)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked Offer: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked producer was not released")
	}
	equalLabels(t, drain(f), "B")
}

func TestFlowBlockTimeout(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 1, Strategy: Block, BlockTimeout: 30 * time.Millisecond})
	offerAll(t, f, "A")

	start := time.Now()
	err := f.Offer(context.Background(), labeled("B"))
	if !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("err = %v, want ErrQueueOverflow", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("returned after %v, before the block timeout", elapsed)
	}
	equalLabels(t, drain(f), "A")
	if st := f.Stats(); st.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", st.Rejected)
	}
}

func TestFlowBlockContextCancel(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 1, Strategy: Block, BlockTimeout: time.Minute})
	offerAll(t, f, "A")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := f.Offer(ctx, labeled("B"))
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("err = %v", err)
	}
}

func TestFlowPollTimeout(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 4})
	start := time.Now()
	if _, ok := f.Poll(context.Background(), 20*time.Millisecond); ok {
		t.Fatal("expected no event")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Poll returned after %v", elapsed)
	}
}

func TestFlowPollWakesOnOffer(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 4})
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = f.Offer(context.Background(), labeled("A"))
	}()
	e, ok := f.Poll(context.Background(), time.Second)
	if !ok || e.Data != "A" {
		t.Fatalf("Poll = %v, %v", e, ok)
	}
}

func TestFlowExpiredEventsSkipped(t *testing.T) {
	clock := newFakeClock()
	f := NewFlowController("s1", FlowConfig{Capacity: 4, Now: clock.Now})

	old := labeled("old")
	old.Timestamp = clock.Now()
	old.TTL = time.Second
	fresh := labeled("fresh")
	fresh.Timestamp = clock.Now().Add(2 * time.Second)
	fresh.TTL = time.Second

	_ = f.Offer(context.Background(), old)
	_ = f.Offer(context.Background(), fresh)
	clock.Advance(2 * time.Second)

	equalLabels(t, drain(f), "fresh")
	if st := f.Stats(); st.Expired != 1 || st.Delivered != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestFlowWatermarks(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Pressure
	)
	f := NewFlowController("s1", FlowConfig{
		Capacity:      10,
		HighWatermark: 0.8,
		LowWatermark:  0.5,
		OnPressure: func(p Pressure) {
			mu.Lock()
			events = append(events, p)
			mu.Unlock()
		},
	})
	for i := 0; i < 8; i++ {
		_ = f.Offer(context.Background(), labeled(fmt.Sprint(i)))
	}
	for i := 0; i < 3; i++ {
		f.Poll(context.Background(), 0)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("pressure events = %+v, want 2", events)
	}
	if !events[0].High || events[0].Depth != 8 {
		t.Errorf("first = %+v", events[0])
	}
	if events[1].High || events[1].Depth != 5 {
		t.Errorf("second = %+v", events[1])
	}
}

func TestFlowPreservesOrderAcrossGrowth(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 300})
	var want []string
	for i := 0; i < 150; i++ {
		want = append(want, fmt.Sprint(i))
		_ = f.Offer(context.Background(), labeled(fmt.Sprint(i)))
		if i%7 == 0 {
			got, _ := f.Poll(context.Background(), 0)
			if got.Data != want[0] {
				t.Fatalf("poll = %v, want %v", got.Data, want[0])
			}
			want = want[1:]
		}
	}
	equalLabels(t, drain(f), want...)
	if hw := f.Stats().HighWater; hw == 0 || hw > 150 {
		t.Errorf("HighWater = %d", hw)
	}
}

func TestFlowBatch(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 10})
	offerAll(t, f, "A", "B", "C")
	equalLabels(t, f.PollBatch(context.Background(), 2, 0), "A", "B")
	equalLabels(t, f.PollBatch(context.Background(), 5, 0), "C")
	if got := f.PollBatch(context.Background(), 5, 0); got != nil {
		t.Errorf("empty batch = %v", got)
	}
}

func TestFlowClose(t *testing.T) {
	f := NewFlowController("s1", FlowConfig{Capacity: 1, Strategy: Block, BlockTimeout: time.Minute})
	offerAll(t, f, "A")

	done := make(chan error, 1)
	go func() { done <- f.Offer(context.Background(), labeled("B")) }()
	time.Sleep(10 * time.Millisecond)
	f.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSubscriptionClosed) {
			t.Errorf("blocked Offer after Close = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the blocked producer")
	}

	if err := f.Offer(context.Background(), labeled("C")); !errors.Is(err, ErrSubscriptionClosed) {
		t.Errorf("Offer after Close = %v", err)
	}
	start := time.Now()
	equalLabels(t, f.PollBatch(context.Background(), 10, time.Minute), "A")
	if _, ok := f.Poll(context.Background(), time.Minute); ok {
		t.Error("Poll after drain returned an event")
	}
	if time.Since(start) > time.Second {
		t.Error("Poll on a closed queue waited")
	}
}
