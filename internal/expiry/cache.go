// ABOUTME: Thread-safe TTL cache with size-bounded eviction and an injectable clock.
// ABOUTME: Backs the continuity cache, rate limiter, and provider session token cache.

package expiry

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the value, its expiry deadline, and its position in the
// insertion-order list for O(1) eviction.
type entry[V any] struct {
	value    V
	deadline time.Time
	element  *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited key-value store.
// Every Set fully replaces the prior value and refreshes its TTL.
// Expired entries are never returned by Get; a background goroutine
// additionally sweeps them out so idle keys do not accumulate.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size, using the
// wall clock.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	return NewWithClock[V](ttl, maxSize, time.Now)
}

// NewWithClock creates a cache with an explicit clock so tests can
// advance time deterministically.
func NewWithClock[V any](ttl time.Duration, maxSize int, now func() time.Time) *Cache[V] {
	c := &Cache[V]{
		entries: make(map[string]*entry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the value for key if present and unexpired. The expiry check
// is performed under the same lock as the read, so a caller can never
// observe a value that has already lapsed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.deadline) {
		c.removeLocked(key, e)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any prior value and restarting
// the TTL. If the cache is at capacity the oldest entry is evicted.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(c.ttl)

	if e, exists := c.entries[key]; exists {
		e.value = value
		e.deadline = deadline
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &entry[V]{
		value:    value,
		deadline: deadline,
		element:  elem,
	}
}

// Delete removes key from the cache if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// Len returns the number of entries currently held, including any that
// have expired but not yet been swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// removeLocked removes a known entry. Must be called with mu held.
func (c *Cache[V]) removeLocked(key string, e *entry[V]) {
	c.order.Remove(e.element)
	delete(c.entries, key)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// sweep runs in a background goroutine, periodically removing expired
// entries so idle keys do not pin memory between Gets.
func (c *Cache[V]) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runSweep()
		case <-c.done:
			return
		}
	}
}

// runSweep removes all expired entries.
func (c *Cache[V]) runSweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.deadline) {
			c.removeLocked(key, e)
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
