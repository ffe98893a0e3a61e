package collections

import "container/list"

// LRUSet is a fixed-capacity string set with least-recently-used eviction.
// Used wherever per-session state is keyed by chatter or fingerprint and must
// stay bounded over a multi-hour stream. Not safe for concurrent use; the
// session only touches it between suspension points.
type LRUSet struct {
	capacity int
	order    *list.List               // Front = most recent
	index    map[string]*list.Element // key -> order node
}

// NewLRUSet creates an LRUSet. Capacity must be positive; values <= 0 are
// clamped to 1 so the set never grows unboundedly by misconfiguration.
func NewLRUSet(capacity int) *LRUSet {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Add inserts key, evicting the least recently used entry when full.
// Returns true if the key was newly added, false if it was already present
// (in which case its recency is refreshed).
func (s *LRUSet) Add(key string) bool {
	if el, ok := s.index[key]; ok {
		s.order.MoveToFront(el)
		return false
	}
	if s.order.Len() >= s.capacity {
		s.evictOldest()
	}
	s.index[key] = s.order.PushFront(key)
	return true
}

// Contains reports membership without refreshing recency.
func (s *LRUSet) Contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Remove deletes key if present.
func (s *LRUSet) Remove(key string) {
	if el, ok := s.index[key]; ok {
		s.order.Remove(el)
		delete(s.index, key)
	}
}

// Len returns the number of entries.
func (s *LRUSet) Len() int { return s.order.Len() }

// Clear removes all entries.
func (s *LRUSet) Clear() {
	s.order.Init()
	s.index = make(map[string]*list.Element, s.capacity)
}

func (s *LRUSet) evictOldest() {
	oldest := s.order.Back()
	if oldest == nil {
		return
	}
	s.order.Remove(oldest)
	delete(s.index, oldest.Value.(string))
}

type lruEntry[V any] struct {
	key   string
	value V
}

// LRUMap is a fixed-capacity string-keyed map with least-recently-used
// eviction. Same ownership rules as LRUSet.
type LRUMap[V any] struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

// NewLRUMap creates an LRUMap with the given capacity (clamped to >= 1).
func NewLRUMap[V any](capacity int) *LRUMap[V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUMap[V]{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Put stores value under key, evicting the oldest entry when full.
func (m *LRUMap[V]) Put(key string, value V) {
	if el, ok := m.index[key]; ok {
		el.Value.(*lruEntry[V]).value = value
		m.order.MoveToFront(el)
		return
	}
	if m.order.Len() >= m.capacity {
		m.evictOldest()
	}
	m.index[key] = m.order.PushFront(&lruEntry[V]{key: key, value: value})
}

// Get returns the value for key and refreshes its recency.
func (m *LRUMap[V]) Get(key string) (V, bool) {
	if el, ok := m.index[key]; ok {
		m.order.MoveToFront(el)
		return el.Value.(*lruEntry[V]).value, true
	}
	var zero V
	return zero, false
}

// Peek returns the value for key without refreshing recency.
func (m *LRUMap[V]) Peek(key string) (V, bool) {
	if el, ok := m.index[key]; ok {
		return el.Value.(*lruEntry[V]).value, true
	}
	var zero V
	return zero, false
}

// Delete removes key if present.
func (m *LRUMap[V]) Delete(key string) {
	if el, ok := m.index[key]; ok {
		m.order.Remove(el)
		delete(m.index, key)
	}
}

// Len returns the number of entries.
func (m *LRUMap[V]) Len() int { return m.order.Len() }

// Keys returns keys oldest-first. Intended for snapshots and sweeps.
func (m *LRUMap[V]) Keys() []string {
	keys := make([]string, 0, m.order.Len())
	for el := m.order.Back(); el != nil; el = el.Prev() {
		keys = append(keys, el.Value.(*lruEntry[V]).key)
	}
	return keys
}

// Clear removes all entries.
func (m *LRUMap[V]) Clear() {
	m.order.Init()
	m.index = make(map[string]*list.Element, m.capacity)
}

func (m *LRUMap[V]) evictOldest() {
	oldest := m.order.Back()
	if oldest == nil {
		return
	}
	m.order.Remove(oldest)
	delete(m.index, oldest.Value.(*lruEntry[V]).key)
}
