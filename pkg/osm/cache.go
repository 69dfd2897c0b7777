package osm

import (
	"sync"
	"time"
)

// defaultTTLCacheEntries bounds suggestion and place caches; typing sessions
// create many distinct prefixes.
const defaultTTLCacheEntries = 1024

// TTLCache is a small thread-safe cache whose entries expire after a fixed
// TTL. When full, expired entries are purged first and then the entry
// closest to expiry is evicted.
type TTLCache[K comparable, V any] struct {
	mu         sync.RWMutex
	items      map[K]cacheItem[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTLCache creates a new TTL cache with the specified TTL duration
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		items:      make(map[K]cacheItem[V]),
		ttl:        ttl,
		maxEntries: defaultTTLCacheEntries,
		now:        time.Now,
	}
}

// Get retrieves a value if it exists and hasn't expired
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.now().After(item.expiresAt) {
		c.mu.Lock()
		if latest, ok := c.items[key]; ok && c.now().After(latest.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

// Set stores a value with the configured TTL
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxEntries {
		c.purgeLocked()
		if len(c.items) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.items[key] = cacheItem[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Delete removes a value from the cache
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]cacheItem[V])
}

// Size returns the number of items in the cache, expired ones included
func (c *TTLCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Cleanup removes expired items from the cache
func (c *TTLCache[K, V]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
}

func (c *TTLCache[K, V]) purgeLocked() {
	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

func (c *TTLCache[K, V]) evictOldestLocked() {
	var (
		oldest K
		at     time.Time
		found  bool
	)
	for key, item := range c.items {
		if !found || item.expiresAt.Before(at) {
			oldest, at, found = key, item.expiresAt, true
		}
	}
	if found {
		delete(c.items, oldest)
	}
}
