// ABOUTME: Transcript ledger types and the Store interface consumed by the dispatcher.
// ABOUTME: Messages are append-only; a conversation is the unit of continuity replay.

package store

import (
	"context"
	"errors"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrConversationNotFound indicates no messages exist for the conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// Message is one recorded turn in a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           string // RoleUser or RoleAssistant
	Sender         string // sender id for user turns, provider name for assistant turns
	Content        string
	CreatedAt      time.Time
}

// Store is the transcript ledger.
type Store interface {
	// SaveMessage appends a message to its conversation.
	SaveMessage(ctx context.Context, msg *Message) error

	// Transcript returns up to limit of the most recent messages for a
	// conversation, oldest first. Returns ErrConversationNotFound if the
	// conversation has no messages.
	Transcript(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Close releases the underlying database.
	Close() error
}
