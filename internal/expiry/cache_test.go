// ABOUTME: Tests for the generic TTL cache backing continuity, rate, and session state.
// ABOUTME: Validates expiry, replacement, eviction, sweeping, and concurrency safety.

package expiry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock for deterministic TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCache_Get_Missing(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	_, ok := cache.Get("never-set")
	assert.False(t, ok)
}

func TestCache_SetGet(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	cache.Set("key", "value")

	got, ok := cache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestCache_Get_Expired(t *testing.T) {
	clock := newFakeClock()
	cache := NewWithClock[string](10*time.Minute, 100, clock.Now)
	defer cache.Close()

	cache.Set("key", "value")

	clock.Advance(9 * time.Minute)
	_, ok := cache.Get("key")
	assert.True(t, ok, "should still be live before TTL")

	clock.Advance(2 * time.Minute)
	_, ok = cache.Get("key")
	assert.False(t, ok, "should be absent after TTL")
}

func TestCache_Set_ReplacesAndRefreshes(t *testing.T) {
	clock := newFakeClock()
	cache := NewWithClock[string](10*time.Minute, 100, clock.Now)
	defer cache.Close()

	cache.Set("key", "first")

	clock.Advance(8 * time.Minute)
	cache.Set("key", "second")

	// Past the original deadline but within the refreshed one.
	clock.Advance(8 * time.Minute)
	got, ok := cache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestCache_Eviction(t *testing.T) {
	cache := New[int](5*time.Minute, 3)
	defer cache.Close()

	cache.Set("key-1", 1)
	cache.Set("key-2", 2)
	cache.Set("key-3", 3)
	cache.Set("key-4", 4)

	_, ok := cache.Get("key-1")
	assert.False(t, ok, "oldest key should be evicted")

	for i := 2; i <= 4; i++ {
		_, ok := cache.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, ok)
	}
}

func TestCache_Eviction_SetMovesToBack(t *testing.T) {
	cache := New[int](5*time.Minute, 2)
	defer cache.Close()

	cache.Set("key-1", 1)
	cache.Set("key-2", 2)
	cache.Set("key-1", 10) // refresh makes key-2 the oldest
	cache.Set("key-3", 3)

	_, ok := cache.Get("key-2")
	assert.False(t, ok)

	got, ok := cache.Get("key-1")
	assert.True(t, ok)
	assert.Equal(t, 10, got)
}

func TestCache_Delete(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	cache.Set("key", "value")
	cache.Delete("key")

	_, ok := cache.Get("key")
	assert.False(t, ok)

	// Deleting an absent key is a no-op.
	cache.Delete("missing")
}

func TestCache_RunSweep(t *testing.T) {
	clock := newFakeClock()
	cache := NewWithClock[string](time.Minute, 100, clock.Now)
	defer cache.Close()

	cache.Set("a", "1")
	cache.Set("b", "2")
	assert.Equal(t, 2, cache.Len())

	clock.Advance(2 * time.Minute)
	cache.runSweep()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_Concurrency(t *testing.T) {
	cache := New[int](time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j)
				cache.Set(key, j)
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()
}

func TestCache_Close_Idempotent(t *testing.T) {
	cache := New[string](time.Minute, 10)
	cache.Close()
	cache.Close()
}
