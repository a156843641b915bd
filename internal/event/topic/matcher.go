package topic

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of event types whose match sets are cached.
const DefaultCacheSize = 4096

// Matcher maps event types to the ids of subscriptions whose patterns match
// them. Literal patterns are kept in a hash map and answered without
// touching the trie; wildcard patterns live in a segment trie. Results are
// cached per event type and the cache is purged on every Add or Remove.
//
// Matcher is safe for concurrent use.
type Matcher struct {
	mu       sync.RWMutex
	exact    map[string]map[string]int
	root     *trieNode
	wildcard int
	byID     map[string][]*Pattern

	cache  *lru.Cache[string, []string]
	hits   atomic.Uint64
	misses atomic.Uint64
}

type trieNode struct {
	children map[string]*trieNode
	star     *trieNode
	globstar *trieNode
	globs    []*globChild
	ids      map[string]int
}

type globChild struct {
	seg  segment
	node *trieNode
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

func (n *trieNode) isEmpty() bool {
	return len(n.children) == 0 && n.star == nil && n.globstar == nil && len(n.globs) == 0 && len(n.ids) == 0
}

// NewMatcher creates a matcher whose LRU cache holds cacheSize event types.
// cacheSize <= 0 disables caching.
func NewMatcher(cacheSize int) *Matcher {
	m := &Matcher{
		exact: make(map[string]map[string]int),
		root:  newTrieNode(),
		byID:  make(map[string][]*Pattern),
	}
	if cacheSize > 0 {
		// lru.New only fails for non-positive sizes.
		m.cache, _ = lru.New[string, []string](cacheSize)
	}
	return m
}

// Add registers pattern under id. An id may hold several patterns.
func (m *Matcher) Add(id string, p *Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range p.alts {
		if a.literal {
			set := m.exact[a.text]
			if set == nil {
				set = make(map[string]int)
				m.exact[a.text] = set
			}
			set[id]++
			continue
		}
		node := m.root
		for _, seg := range a.segments {
			node = node.child(seg, true)
		}
		if node.ids == nil {
			node.ids = make(map[string]int)
		}
		node.ids[id]++
		m.wildcard++
	}
	m.byID[id] = append(m.byID[id], p)
	m.purge()
}

// Remove drops every pattern registered under id. It returns false if id
// was unknown.
func (m *Matcher) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	patterns, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byID, id)

	for _, p := range patterns {
		for _, a := range p.alts {
			if a.literal {
				set := m.exact[a.text]
				if set[id]--; set[id] <= 0 {
					delete(set, id)
				}
				if len(set) == 0 {
					delete(m.exact, a.text)
				}
				continue
			}
			m.removeWildcard(m.root, a.segments, id)
			m.wildcard--
		}
	}
	m.purge()
	return true
}

// removeWildcard walks to the terminal node of segs, decrements id and
// prunes nodes left empty on the way back up.
func (m *Matcher) removeWildcard(node *trieNode, segs []segment, id string) {
	if len(segs) == 0 {
		if node.ids[id]--; node.ids[id] <= 0 {
			delete(node.ids, id)
		}
		return
	}
	next := node.child(segs[0], false)
	if next == nil {
		return
	}
	m.removeWildcard(next, segs[1:], id)
	if next.isEmpty() {
		node.drop(segs[0])
	}
}

func (n *trieNode) child(seg segment, create bool) *trieNode {
	switch seg.kind {
	case segStar:
		if n.star == nil && create {
			n.star = newTrieNode()
		}
		return n.star
	case segGlobStar:
		if n.globstar == nil && create {
			n.globstar = newTrieNode()
		}
		return n.globstar
	case segGlob:
		for _, gc := range n.globs {
			if gc.seg.text == seg.text {
				return gc.node
			}
		}
		if !create {
			return nil
		}
		gc := &globChild{seg: seg, node: newTrieNode()}
		n.globs = append(n.globs, gc)
		return gc.node
	default:
		c := n.children[seg.text]
		if c == nil && create {
			c = newTrieNode()
			n.children[seg.text] = c
		}
		return c
	}
}

func (n *trieNode) drop(seg segment) {
	switch seg.kind {
	case segStar:
		n.star = nil
	case segGlobStar:
		n.globstar = nil
	case segGlob:
		for i, gc := range n.globs {
			if gc.seg.text == seg.text {
				n.globs = append(n.globs[:i], n.globs[i+1:]...)
				return
			}
		}
	default:
		delete(n.children, seg.text)
	}
}

// Match returns the sorted ids whose patterns match eventType. The returned
// slice is shared with the cache and must not be modified.
func (m *Matcher) Match(eventType string) []string {
	if eventType == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cache != nil {
		if ids, ok := m.cache.Get(eventType); ok {
			m.hits.Add(1)
			return ids
		}
		m.misses.Add(1)
	}

	found := make(map[string]struct{})
	for id := range m.exact[eventType] {
		found[id] = struct{}{}
	}
	if m.wildcard > 0 {
		w := &trieWalk{segs: strings.Split(eventType, Separator), found: found, seen: make(map[walkState]struct{})}
		w.visit(m.root, 0)
	}

	var ids []string
	if len(found) > 0 {
		ids = make([]string, 0, len(found))
		for id := range found {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}
	if m.cache != nil {
		m.cache.Add(eventType, ids)
	}
	return ids
}

type walkState struct {
	node  *trieNode
	depth int
}

// trieWalk collects the ids reachable for one event type. Each (node, depth)
// pair is expanded once, so "**" fan-out cannot revisit the same subtree.
type trieWalk struct {
	segs  []string
	found map[string]struct{}
	seen  map[walkState]struct{}
}

func (w *trieWalk) visit(n *trieNode, depth int) {
	st := walkState{n, depth}
	if _, ok := w.seen[st]; ok {
		return
	}
	w.seen[st] = struct{}{}

	if depth == len(w.segs) {
		for id := range n.ids {
			w.found[id] = struct{}{}
		}
		// ** at the end matches zero further segments.
		if n.globstar != nil {
			w.visit(n.globstar, depth)
		}
		return
	}

	seg := w.segs[depth]
	if c := n.children[seg]; c != nil {
		w.visit(c, depth+1)
	}
	if n.star != nil {
		w.visit(n.star, depth+1)
	}
	for _, gc := range n.globs {
		if gc.seg.g.Match(seg) {
			w.visit(gc.node, depth+1)
		}
	}
	if n.globstar != nil {
		for i := depth; i <= len(w.segs); i++ {
			w.visit(n.globstar, i)
		}
	}
}

// Patterns returns the patterns registered under id.
func (m *Matcher) Patterns(id string) []*Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Pattern(nil), m.byID[id]...)
}

// Len returns the number of registered ids.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// CacheStats returns cache hits and misses since creation.
func (m *Matcher) CacheStats() (hits, misses uint64) {
	return m.hits.Load(), m.misses.Load()
}

// purge empties the match cache. Callers hold the write lock.
func (m *Matcher) purge() {
	if m.cache != nil {
		m.cache.Purge()
	}
}
