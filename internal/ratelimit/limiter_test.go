// ABOUTME: Tests for the per-sender rate limiter.
// ABOUTME: Validates the quota, window rollover, rejection semantics, and the unlimited mode.

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

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

func TestLimiter_AdmitsUpToLimit(t *testing.T) {
	limiter := New(5, 10*time.Minute)
	defer limiter.Close()

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Admit("u1"), "request %d should be admitted", i+1)
	}
	assert.False(t, limiter.Admit("u1"), "6th request inside the window should be rejected")
}

func TestLimiter_WindowRollsAfterInterval(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(5, 10*time.Minute, clock.Now)
	defer limiter.Close()

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Admit("u1"))
	}
	assert.False(t, limiter.Admit("u1"))

	clock.Advance(11 * time.Minute)
	assert.True(t, limiter.Admit("u1"), "window should roll after the interval elapses")
}

func TestLimiter_RejectionDoesNotExtendWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(2, 10*time.Minute, clock.Now)
	defer limiter.Close()

	assert.True(t, limiter.Admit("u1"))
	assert.True(t, limiter.Admit("u1"))

	// Hammering a closed window must not keep it open.
	clock.Advance(9 * time.Minute)
	assert.False(t, limiter.Admit("u1"))

	clock.Advance(2 * time.Minute)
	assert.True(t, limiter.Admit("u1"), "rejections must not refresh the window")
}

func TestLimiter_SendersAreIndependent(t *testing.T) {
	limiter := New(1, 10*time.Minute)
	defer limiter.Close()

	assert.True(t, limiter.Admit("u1"))
	assert.False(t, limiter.Admit("u1"))
	assert.True(t, limiter.Admit("u2"))
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := New(Unlimited, 10*time.Minute)
	defer limiter.Close()

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Admit("u1"))
	}
}

func TestLimiter_ConcurrentAdmit(t *testing.T) {
	limiter := New(50, 10*time.Minute)
	defer limiter.Close()

	var wg sync.WaitGroup
	admitted := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- limiter.Admit("u1")
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 50, count, "exactly the limit should be admitted")
}
