package cache

import (
	"container/list"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCapacity bounds the number of live entries
const DefaultCapacity = 100

// Memory is the in-process Cache. go-cache owns expiry; Memory adds a
// capacity bound that evicts the oldest stored entry when a new key arrives
// at a full cache.
type Memory struct {
	mu       sync.Mutex
	store    *gocache.Cache
	order    *list.List // oldest first
	index    map[string]*list.Element
	capacity int
}

// NewMemory creates a memory cache. A cleanupInterval <= 0 disables the
// background janitor; expired entries are still never returned.
func NewMemory(capacity int, cleanupInterval time.Duration) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		store:    gocache.New(gocache.NoExpiration, cleanupInterval),
		order:    list.New(),
		index:    make(map[string]*list.Element),
		capacity: capacity,
	}
}

// Get returns a live entry
func (m *Memory) Get(key string) (any, bool) {
	return m.store.Get(key)
}

// Set stores value under key for ttl. A ttl <= 0 stores without expiry.
func (m *Memory) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.index[key]; ok {
		m.order.MoveToBack(el)
	} else {
		m.prune()
		for m.order.Len() >= m.capacity {
			m.remove(m.order.Front())
		}
		m.index[key] = m.order.PushBack(key)
	}
	m.store.Set(key, value, ttl)
}

// Delete drops an entry
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.index[key]; ok {
		m.remove(el)
	}
}

// Len counts live entries
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()
	return m.order.Len()
}

// Flush drops everything
func (m *Memory) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.Flush()
	m.order.Init()
	m.index = make(map[string]*list.Element)
}

// prune forgets keys that expired in the store. Caller holds mu.
func (m *Memory) prune() {
	for el := m.order.Front(); el != nil; {
		next := el.Next()
		if _, ok := m.store.Get(el.Value.(string)); !ok {
			m.remove(el)
		}
		el = next
	}
}

// remove evicts one tracked key. Caller holds mu.
func (m *Memory) remove(el *list.Element) {
	key := m.order.Remove(el).(string)
	delete(m.index, key)
	m.store.Delete(key)
}
