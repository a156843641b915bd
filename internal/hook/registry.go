package hook

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/conductor/internal/core"
)

// Handle identifies a registration.
type Handle string

// Descriptor describes a registered hook.
type Descriptor struct {
	Handle       Handle
	Name         string
	Description  string
	Point        Point
	Priority     Priority
	Language     core.Language
	Tags         []string
	Enabled      bool
	Timeout      time.Duration
	Breaker      BreakerState
	RegisteredAt time.Time
}

// Filter selects hooks in List. Zero fields match everything.
type Filter struct {
	Point    Point
	Band     string
	Tag      string
	Language core.Language
}

// entry is one registration. Everything except enabled and the breaker is
// immutable after Register.
type entry struct {
	handle       Handle
	name         string
	description  string
	point        Point
	priority     Priority
	seq          uint64
	hook         Hook
	language     core.Language
	tags         []string
	timeout      time.Duration
	breaker      *Breaker
	registeredAt time.Time
	enabled      atomic.Bool
}

func (e *entry) descriptor() Descriptor {
	return Descriptor{
		Handle:       e.handle,
		Name:         e.name,
		Description:  e.description,
		Point:        e.point,
		Priority:     e.priority,
		Language:     e.language,
		Tags:         append([]string(nil), e.tags...),
		Enabled:      e.enabled.Load(),
		Timeout:      e.timeout,
		Breaker:      e.breaker.State(),
		RegisteredAt: e.registeredAt,
	}
}

func (e *entry) hasTag(tag string) bool {
	for _, t := range e.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Registry stores hooks per point in priority order.
//
// The slice stored for a point is never mutated in place: writers build a
// new slice and swap it in. A reader that took a snapshot keeps seeing the
// chain as it was when the snapshot was taken.
type Registry struct {
	mu       sync.RWMutex
	byPoint  map[Point][]*entry
	byHandle map[Handle]*entry
	seq      uint64

	enabled    atomic.Bool
	breakerCfg BreakerConfig
	now        func() time.Time
}

// NewRegistry creates an empty, globally enabled registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byPoint:    make(map[Point][]*entry),
		byHandle:   make(map[Handle]*entry),
		breakerCfg: DefaultBreakerConfig(),
		now:        time.Now,
	}
	r.enabled.Store(true)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds h at point. Hooks run in ascending priority order; equal
// priorities run in registration order.
func (r *Registry) Register(point Point, priority Priority, h Hook, opts ...RegisterOption) (Handle, error) {
	if h == nil {
		return "", ErrNilHook
	}
	if !point.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPoint, point)
	}

	var reg registration
	for _, opt := range opts {
		opt(&reg)
	}
	if gh, ok := h.(GuestHook); ok {
		reg.language = gh.Language()
	}
	if reg.language == "" {
		reg.language = core.LanguageNative
	}
	cfg := r.breakerCfg
	if reg.breaker != nil {
		cfg = reg.breaker.withDefaults()
	}

	handle := Handle(uuid.NewString())
	e := &entry{
		handle:       handle,
		name:         reg.name,
		description:  reg.description,
		point:        point,
		priority:     priority,
		hook:         h,
		language:     reg.language,
		tags:         reg.tags,
		timeout:      reg.timeout,
		breaker:      NewBreaker(cfg),
		registeredAt: r.now(),
	}
	e.enabled.Store(true)
	if e.name == "" {
		e.name = "hook-" + string(handle)[:8]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byHandle[handle]; exists {
		return "", ErrDuplicateHandle
	}
	if reg.name != "" {
		for _, other := range r.byPoint[point] {
			if other.name == reg.name {
				return "", fmt.Errorf("%w: %q at %s", ErrDuplicateName, reg.name, point)
			}
		}
	}

	r.seq++
	e.seq = r.seq

	cur := r.byPoint[point]
	// First index whose priority is strictly greater keeps ties FIFO.
	idx := sort.Search(len(cur), func(i int) bool { return cur[i].priority > priority })
	next := make([]*entry, 0, len(cur)+1)
	next = append(next, cur[:idx]...)
	next = append(next, e)
	next = append(next, cur[idx:]...)
	r.byPoint[point] = next
	r.byHandle[handle] = e

	return handle, nil
}

// Unregister removes a hook. It returns false if the handle is unknown.
func (r *Registry) Unregister(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byHandle[h]
	if !ok {
		return false
	}
	delete(r.byHandle, h)

	cur := r.byPoint[e.point]
	next := make([]*entry, 0, len(cur))
	for _, other := range cur {
		if other != e {
			next = append(next, other)
		}
	}
	if len(next) == 0 {
		delete(r.byPoint, e.point)
	} else {
		r.byPoint[e.point] = next
	}
	return true
}

// snapshot returns the ordered chain for point. The slice must not be modified.
func (r *Registry) snapshot(point Point) []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byPoint[point]
}

// Lookup returns the descriptor for a handle.
func (r *Registry) Lookup(h Handle) (Descriptor, bool) {
	r.mu.RLock()
	e, ok := r.byHandle[h]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, false
	}
	return e.descriptor(), true
}

// List returns descriptors matching f, grouped by point and in execution
// order within a point.
func (r *Registry) List(f Filter) []Descriptor {
	r.mu.RLock()
	points := make([]Point, 0, len(r.byPoint))
	for p := range r.byPoint {
		if f.Point == "" || f.Point == p {
			points = append(points, p)
		}
	}
	chains := make(map[Point][]*entry, len(points))
	for _, p := range points {
		chains[p] = r.byPoint[p]
	}
	r.mu.RUnlock()

	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })

	var out []Descriptor
	for _, p := range points {
		for _, e := range chains[p] {
			if f.Band != "" && e.priority.Band() != f.Band {
				continue
			}
			if f.Tag != "" && !e.hasTag(f.Tag) {
				continue
			}
			if f.Language != "" && e.language != f.Language {
				continue
			}
			out = append(out, e.descriptor())
		}
	}
	return out
}

// Count returns the number of hooks registered at point.
func (r *Registry) Count(point Point) int {
	return len(r.snapshot(point))
}

// SetEnabled enables or disables a single hook. Disabled hooks are not run.
func (r *Registry) SetEnabled(h Handle, enabled bool) bool {
	r.mu.RLock()
	e, ok := r.byHandle[h]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.enabled.Store(enabled)
	return true
}

// SetGlobalEnabled turns every chain on or off.
func (r *Registry) SetGlobalEnabled(enabled bool) {
	r.enabled.Store(enabled)
}

// GlobalEnabled reports whether chains run at all.
func (r *Registry) GlobalEnabled() bool {
	return r.enabled.Load()
}

// RegistryStats summarizes the registry.
type RegistryStats struct {
	Total      int
	Enabled    int
	ByPoint    map[Point]int
	ByBand     map[string]int
	ByLanguage map[core.Language]int
}

// Stats counts hooks by point, band and language.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := RegistryStats{
		ByPoint:    make(map[Point]int, len(r.byPoint)),
		ByBand:     make(map[string]int),
		ByLanguage: make(map[core.Language]int),
	}
	for p, chain := range r.byPoint {
		s.ByPoint[p] = len(chain)
		for _, e := range chain {
			s.Total++
			if e.enabled.Load() {
				s.Enabled++
			}
			s.ByBand[e.priority.Band()]++
			s.ByLanguage[e.language]++
		}
	}
	return s
}
