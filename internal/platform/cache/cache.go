// Package cache provides a bounded in-memory cache with TTL expiry and LRU
// eviction. Instances are injected into handlers instead of living as
// package-level singletons so tests and shadow runs can use isolated caches.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a thread-safe bounded cache mapping string keys to values of type V.
type Cache[V any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	maxSize int
	ttl     time.Duration
	clock   func() time.Time
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// New creates a cache holding at most maxSize entries, each valid for ttl.
func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[V]{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		clock:   time.Now,
	}
}

// Get returns the cached value for key and whether a live entry was found.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	item := elem.Value.(*entry[V])
	if c.clock().After(item.expiresAt) {
		c.remove(elem)
		return zero, false
	}
	c.lru.MoveToFront(elem)
	return item.value, true
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *Cache[V]) Set(key string, value V) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		item := elem.Value.(*entry[V])
		item.value = value
		item.expiresAt = expiresAt
		return
	}

	elem := c.lru.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
}

// Delete removes the entry for key, if present.
func (c *Cache[V]) Delete(key string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
}

// Len returns the current number of entries, including any not yet expired-swept.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache[V]) remove(elem *list.Element) {
	c.lru.Remove(elem)
	item := elem.Value.(*entry[V])
	delete(c.items, item.key)
}
