// ABOUTME: TTL-bounded cache mapping (provider, sender) to conversation continuation tokens.
// ABOUTME: Tokens are replaced whole on every successful answer, never merged.

package continuity

import (
	"time"

	"github.com/aowme/chatgirl-gateway/internal/expiry"
)

// maxSenders bounds how many concurrent conversation threads are tracked.
const maxSenders = 1000

// Token carries the identifiers a provider needs to continue a prior
// conversation. LastMessageID is empty for providers that chain on the
// conversation id alone.
type Token struct {
	ConversationID string
	LastMessageID  string
}

// Cache stores one Token per (provider, sender) pair with an idle TTL
// measured from the last successful use.
type Cache struct {
	tokens *expiry.Cache[Token]
}

// New creates a continuity cache with the given idle TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{tokens: expiry.New[Token](ttl, maxSenders)}
}

// NewWithClock creates a continuity cache with an explicit clock for tests.
func NewWithClock(ttl time.Duration, now func() time.Time) *Cache {
	return &Cache{tokens: expiry.NewWithClock[Token](ttl, maxSenders, now)}
}

// Get returns the token for the sender's conversation with the named
// provider, or false if none exists or the session has idled out.
func (c *Cache) Get(provider, senderID string) (Token, bool) {
	return c.tokens.Get(threadKey(provider, senderID))
}

// Put replaces the sender's token for the named provider and restarts
// the idle TTL.
func (c *Cache) Put(provider, senderID string, token Token) {
	c.tokens.Set(threadKey(provider, senderID), token)
}

// Forget drops the sender's token for the named provider, forcing the
// next question to start a fresh conversation.
func (c *Cache) Forget(provider, senderID string) {
	c.tokens.Delete(threadKey(provider, senderID))
}

// Close releases the cache's background resources.
func (c *Cache) Close() {
	c.tokens.Close()
}

// threadKey builds the cache key. A token is only ever used for the
// provider/sender pair that produced it.
func threadKey(provider, senderID string) string {
	return provider + "#" + senderID
}
