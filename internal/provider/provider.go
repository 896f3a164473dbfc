// ABOUTME: ProviderClient contract, error taxonomy, and the name-keyed registry.
// ABOUTME: The dispatcher resolves a client per request instead of branching on provider names.

package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aowme/chatgirl-gateway/internal/continuity"
)

// Provider names as they appear in configuration.
const (
	NameChatGPTWeb = "chatgpt-web"
	NameOpenAI     = "openai"
)

var (
	// ErrAuthExpired indicates the backend rejected our credentials: an
	// expired web session or an invalid API key. The dispatcher maps this
	// to a remediation hint rather than a generic failure notice.
	ErrAuthExpired = errors.New("provider credentials expired or invalid")

	// ErrContentRefused indicates the backend declined the request on
	// content/moderation grounds rather than failing technically.
	ErrContentRefused = errors.New("provider refused the request content")

	// ErrEmptyAnswer indicates the stream completed without producing any
	// answer text.
	ErrEmptyAnswer = errors.New("provider produced no answer")

	// ErrUnknownProvider indicates configuration names a provider this
	// build does not know.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ConverseRequest is one question, optionally continuing a prior
// conversation.
type ConverseRequest struct {
	Prompt string

	// Continuation, when non-nil, carries the identifiers of the prior
	// conversation to extend. Nil starts a fresh conversation.
	Continuation *continuity.Token
}

// ConverseResult is the fully assembled answer and the continuation token
// a follow-up question should present.
type ConverseResult struct {
	Text         string
	Continuation continuity.Token
}

// Client is a conversational backend. Converse blocks until the streamed
// answer is complete or ctx is cancelled; partial output is never exposed.
type Client interface {
	// Name returns the provider's configuration name.
	Name() string

	// Converse sends the prompt and assembles the streamed answer.
	Converse(ctx context.Context, req *ConverseRequest) (*ConverseResult, error)
}

// Registry resolves configured provider names to clients.
type Registry struct {
	clients map[string]Client
}

// NewRegistry creates a registry over the given clients.
func NewRegistry(clients ...Client) *Registry {
	m := make(map[string]Client, len(clients))
	for _, c := range clients {
		m[c.Name()] = c
	}
	return &Registry{clients: m}
}

// Resolve returns the client registered under name.
// Returns ErrUnknownProvider if no such client exists.
func (r *Registry) Resolve(name string) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return c, nil
}
