// ABOUTME: Provider speaking the interactive chat.openai.com web-session protocol.
// ABOUTME: Streams cumulative conversation snapshots over SSE; bearer token comes from the web session.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aowme/chatgirl-gateway/internal/expiry"
	"github.com/aowme/chatgirl-gateway/internal/sse"
)

const (
	defaultChatGPTWebBaseURL = "https://chat.openai.com"
	defaultChatGPTWebModel   = "text-davinci-002-render"

	// Access tokens outlive this comfortably; a short cache keeps us from
	// hammering the session endpoint on every question.
	accessTokenTTL = 5 * time.Minute
	accessTokenKey = "access-token"
)

// ChatGPTWebConfig configures the web-session provider.
type ChatGPTWebConfig struct {
	// BaseURL overrides the backend origin, mainly for tests.
	BaseURL string

	// AccessToken, when set, is used directly as the bearer token.
	AccessToken string

	// SessionCookie is presented to the session endpoint to mint an
	// access token when AccessToken is not set.
	SessionCookie string

	// Model names the conversation model; empty selects the default.
	Model string
}

// ChatGPTWeb converses through the interactive web backend.
type ChatGPTWeb struct {
	cfg        ChatGPTWebConfig
	httpClient *http.Client
	tokens     *expiry.Cache[string]
	logger     *slog.Logger
}

// NewChatGPTWeb creates a web-session provider client.
func NewChatGPTWeb(cfg ChatGPTWebConfig, logger *slog.Logger) *ChatGPTWeb {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultChatGPTWebBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultChatGPTWebModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatGPTWeb{
		cfg:        cfg,
		httpClient: &http.Client{}, // no client timeout: answers stream for a while
		tokens:     expiry.New[string](accessTokenTTL, 1),
		logger:     logger.With("component", "provider", "provider", NameChatGPTWeb),
	}
}

// Name returns the provider's configuration name.
func (c *ChatGPTWeb) Name() string {
	return NameChatGPTWeb
}

// Close releases the token cache.
func (c *ChatGPTWeb) Close() {
	c.tokens.Close()
}

// conversationPayload is the outbound request body.
type conversationPayload struct {
	Action          string                `json:"action"`
	Messages        []conversationMessage `json:"messages"`
	Model           string                `json:"model"`
	ParentMessageID string                `json:"parent_message_id"`
	ConversationID  string                `json:"conversation_id,omitempty"`
}

type conversationMessage struct {
	ID      string              `json:"id"`
	Role    string              `json:"role"`
	Content conversationContent `json:"content"`
}

type conversationContent struct {
	ContentType string   `json:"content_type"`
	Parts       []string `json:"parts"`
}

// conversationEvent is one decoded SSE frame: a cumulative snapshot of the
// conversation so far.
type conversationEvent struct {
	ConversationID string `json:"conversation_id"`
	Message        *struct {
		ID      string `json:"id"`
		Content struct {
			Parts []string `json:"parts"`
		} `json:"content"`
	} `json:"message"`
}

// Converse sends the prompt and assembles the streamed answer. Frames carry
// the full text so far, so the latest snapshot for the answer message wins
// outright; nothing is concatenated.
func (c *ChatGPTWeb) Converse(ctx context.Context, req *ConverseRequest) (*ConverseResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := conversationPayload{
		Action: "next",
		Messages: []conversationMessage{{
			ID:   uuid.New().String(),
			Role: "user",
			Content: conversationContent{
				ContentType: "text",
				Parts:       []string{req.Prompt},
			},
		}},
		Model:           c.cfg.Model,
		ParentMessageID: uuid.New().String(),
	}
	if req.Continuation != nil {
		payload.ConversationID = req.Continuation.ConversationID
		if req.Continuation.LastMessageID != "" {
			payload.ParentMessageID = req.Continuation.LastMessageID
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding conversation payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/backend-api/conversation", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building conversation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("conversation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.conversationError(resp)
	}

	result := &ConverseResult{}
	decoder := sse.NewDecoder(func(data string) {
		if data == "[DONE]" {
			return
		}
		var event conversationEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			// One bad frame must not abort the stream.
			c.logger.Debug("skipping malformed frame", "error", err)
			return
		}
		if event.ConversationID != "" {
			result.Continuation.ConversationID = event.ConversationID
		}
		if event.Message != nil {
			result.Continuation.LastMessageID = event.Message.ID
			if len(event.Message.Content.Parts) > 0 && event.Message.Content.Parts[0] != "" {
				result.Text = event.Message.Content.Parts[0]
			}
		}
	})

	if err := decoder.Stream(ctx, resp.Body); err != nil {
		return nil, fmt.Errorf("reading conversation stream: %w", err)
	}

	if result.Text == "" {
		return nil, ErrEmptyAnswer
	}
	return result, nil
}

// conversationError maps a non-200 conversation response to the error
// taxonomy.
func (c *ChatGPTWeb) conversationError(resp *http.Response) error {
	// A stale token should be re-minted on the next attempt.
	c.tokens.Delete(accessTokenKey)

	detail := readErrorDetail(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: conversation endpoint returned %d", ErrAuthExpired, resp.StatusCode)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrContentRefused, detail)
	default:
		if detail != "" {
			return fmt.Errorf("conversation endpoint returned %d: %s", resp.StatusCode, detail)
		}
		return fmt.Errorf("conversation endpoint returned %d", resp.StatusCode)
	}
}

// readErrorDetail extracts the "detail" field backend errors carry.
func readErrorDetail(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var parsed struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(parsed.Detail, &s); err == nil {
		return s
	}
	return string(parsed.Detail)
}

// sessionResponse is the session endpoint's body.
type sessionResponse struct {
	AccessToken string `json:"accessToken"`
}

// accessToken returns the bearer token for the web backend: the configured
// static token, a cached minted one, or a fresh one from the session
// endpoint.
func (c *ChatGPTWeb) accessToken(ctx context.Context) (string, error) {
	if c.cfg.AccessToken != "" {
		return c.cfg.AccessToken, nil
	}

	if token, ok := c.tokens.Get(accessTokenKey); ok {
		return token, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/auth/session", nil)
	if err != nil {
		return "", fmt.Errorf("building session request: %w", err)
	}
	if c.cfg.SessionCookie != "" {
		httpReq.Header.Set("Cookie", c.cfg.SessionCookie)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("session request: %w", err)
	}
	defer resp.Body.Close()

	// Cloudflare interposes a 403 when the browser session is gone.
	if resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: session endpoint blocked (403)", ErrAuthExpired)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("session endpoint returned %d", resp.StatusCode)
	}

	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("%w: undecodable session response", ErrAuthExpired)
	}
	if session.AccessToken == "" {
		return "", fmt.Errorf("%w: session has no access token", ErrAuthExpired)
	}

	c.tokens.Set(accessTokenKey, session.AccessToken)
	return session.AccessToken, nil
}

var _ Client = (*ChatGPTWeb)(nil)
