// ABOUTME: Per-sender TTL window counter gating admission to the dispatch queue.
// ABOUTME: A rejected admission mutates nothing; the window rolls after the interval idles out.

package ratelimit

import (
	"sync"
	"time"

	"github.com/aowme/chatgirl-gateway/internal/expiry"
)

// maxSenders bounds how many sender windows are tracked at once.
const maxSenders = 1000

// Unlimited disables rate limiting when used as the limit.
const Unlimited = 0

// Limiter counts questions per sender inside a rolling interval. The
// window expires after the interval elapses with no admitted request.
type Limiter struct {
	mu      sync.Mutex // check-and-increment must be atomic across submitters
	limit   int
	windows *expiry.Cache[int]
}

// New creates a limiter allowing limit requests per sender per interval.
// A limit of Unlimited admits everything and keeps no state.
func New(limit int, interval time.Duration) *Limiter {
	return NewWithClock(limit, interval, time.Now)
}

// NewWithClock creates a limiter with an explicit clock for tests.
func NewWithClock(limit int, interval time.Duration, now func() time.Time) *Limiter {
	l := &Limiter{limit: limit}
	if limit != Unlimited {
		l.windows = expiry.NewWithClock[int](interval, maxSenders, now)
	}
	return l
}

// Admit reports whether the sender may ask another question. An admitted
// request increments the sender's count and rolls the window forward; a
// rejected one leaves the window untouched so it expires on schedule.
func (l *Limiter) Admit(senderID string) bool {
	if l.limit == Unlimited {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	count, _ := l.windows.Get(senderID)
	if count >= l.limit {
		return false
	}

	l.windows.Set(senderID, count+1)
	return true
}

// Close releases the limiter's background resources.
func (l *Limiter) Close() {
	if l.windows != nil {
		l.windows.Close()
	}
}
