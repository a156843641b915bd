package hook

import (
	"sort"
	"sync"
	"time"
)

// DefaultOverheadTarget is the share of an operation's duration that hook
// chains may consume.
const DefaultOverheadTarget = 0.05

// HookStats aggregates the invocations of one hook.
type HookStats struct {
	Handle      Handle
	Name        string
	Point       Point
	Invocations uint64
	Faults      uint64
	Skips       uint64
	Total       time.Duration
	Max         time.Duration
}

// Average returns the mean duration of executed invocations.
func (s HookStats) Average() time.Duration {
	if s.Invocations == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Invocations)
}

// ChainStats aggregates chain runs.
type ChainStats struct {
	Runs  uint64
	Total time.Duration
	Max   time.Duration
}

// Monitor records per-hook and per-chain timings.
type Monitor struct {
	mu     sync.Mutex
	hooks  map[Handle]*HookStats
	chains ChainStats
	target float64
}

func newMonitor() *Monitor {
	return &Monitor{
		hooks:  make(map[Handle]*HookStats),
		target: DefaultOverheadTarget,
	}
}

type outcome int

const (
	outcomeRan outcome = iota
	outcomeFault
	outcomeSkip
)

func (m *Monitor) record(e *entry, d time.Duration, o outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.hooks[e.handle]
	if !ok {
		s = &HookStats{Handle: e.handle, Name: e.name, Point: e.point}
		m.hooks[e.handle] = s
	}
	switch o {
	case outcomeSkip:
		s.Skips++
		return
	case outcomeFault:
		s.Faults++
	}
	s.Invocations++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}
}

func (m *Monitor) recordChain(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains.Runs++
	m.chains.Total += d
	if d > m.chains.Max {
		m.chains.Max = d
	}
}

// Forget drops the statistics of an unregistered hook.
func (m *Monitor) Forget(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hooks, h)
}

// Hook returns the statistics for one hook.
func (m *Monitor) Hook(h Handle) (HookStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.hooks[h]
	if !ok {
		return HookStats{}, false
	}
	return *s, true
}

// Hooks returns all per-hook statistics, slowest average first.
func (m *Monitor) Hooks() []HookStats {
	m.mu.Lock()
	out := make([]HookStats, 0, len(m.hooks))
	for _, s := range m.hooks {
		out = append(out, *s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Average() > out[j].Average() })
	return out
}

// Chains returns aggregate chain statistics.
func (m *Monitor) Chains() ChainStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chains
}

// OverheadWithinTarget reports whether chain took no more than the target
// share of operation.
func (m *Monitor) OverheadWithinTarget(operation, chain time.Duration) bool {
	if operation <= 0 {
		return chain <= 0
	}
	return float64(chain) <= float64(operation)*m.target
}

// Snapshot is a point-in-time copy of the monitor.
type Snapshot struct {
	Hooks  []HookStats
	Chains ChainStats
}

// Snapshot returns the executor's performance data.
func (e *Executor) Snapshot() Snapshot {
	return Snapshot{Hooks: e.monitor.Hooks(), Chains: e.monitor.Chains()}
}
