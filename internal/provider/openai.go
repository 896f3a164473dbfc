// ABOUTME: Provider speaking the direct OpenAI completions API with stream=true.
// ABOUTME: Rebuilds conversation context from the transcript ledger since the API itself is stateless.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aowme/chatgirl-gateway/internal/continuity"
	"github.com/aowme/chatgirl-gateway/internal/sse"
	"github.com/aowme/chatgirl-gateway/internal/store"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "text-davinci-003"

	// historyTurns caps how many prior ledger messages are replayed.
	historyTurns = 20

	// historyBudget caps the replayed history in characters so the prompt
	// stays within the model's context window alongside max_tokens.
	historyBudget = 6000
)

// TranscriptSource is the slice of the ledger the provider needs to rebuild
// conversation context.
type TranscriptSource interface {
	Transcript(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
}

// OpenAIConfig configures the direct-API provider.
type OpenAIConfig struct {
	// BaseURL overrides the API origin, mainly for tests.
	BaseURL string

	// APIKey is the bearer token for api.openai.com.
	APIKey string

	// Model names the completion model; empty selects the default.
	Model string

	// SystemMessage is prepended to every rebuilt prompt.
	SystemMessage string
}

// OpenAI converses through the completions API, replaying prior turns from
// the transcript ledger when a continuation token is presented.
type OpenAI struct {
	cfg         OpenAIConfig
	httpClient  *http.Client
	transcripts TranscriptSource
	logger      *slog.Logger
}

// NewOpenAI creates a direct-API provider client. transcripts may be nil,
// in which case every question stands alone.
func NewOpenAI(cfg OpenAIConfig, transcripts TranscriptSource, logger *slog.Logger) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		cfg:         cfg,
		httpClient:  &http.Client{},
		transcripts: transcripts,
		logger:      logger.With("component", "provider", "provider", NameOpenAI),
	}
}

// Name returns the provider's configuration name.
func (c *OpenAI) Name() string {
	return NameOpenAI
}

// completionRequest is the outbound request body.
type completionRequest struct {
	Model            string  `json:"model"`
	Prompt           string  `json:"prompt"`
	Stream           bool    `json:"stream"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

// completionChunk is one decoded SSE frame: a text delta.
type completionChunk struct {
	ID      string `json:"id"`
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// apiError is the error envelope the API returns on non-2xx responses.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Converse sends the prompt and concatenates the streamed token deltas into
// the final answer.
func (c *OpenAI) Converse(ctx context.Context, req *ConverseRequest) (*ConverseResult, error) {
	conversationID := uuid.New().String()
	if req.Continuation != nil && req.Continuation.ConversationID != "" {
		conversationID = req.Continuation.ConversationID
	}

	prompt := c.buildPrompt(ctx, conversationID, req)

	body, err := json.Marshal(completionRequest{
		Model:            c.cfg.Model,
		Prompt:           prompt,
		Stream:           true,
		MaxTokens:        2048,
		Temperature:      0.9,
		TopP:             1,
		FrequencyPenalty: 0,
		PresencePenalty:  0.6,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding completion payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, completionError(resp)
	}

	var answer strings.Builder
	lastMessageID := ""
	decoder := sse.NewDecoder(func(data string) {
		if data == "[DONE]" {
			return
		}
		var chunk completionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug("skipping malformed frame", "error", err)
			return
		}
		if len(chunk.Choices) == 0 {
			return
		}
		text := chunk.Choices[0].Text
		if text == "<|im_end|>" || text == "<|im_sep|>" {
			return
		}
		answer.WriteString(text)
		if chunk.ID != "" {
			lastMessageID = chunk.ID
		}
	})

	if err := decoder.Stream(ctx, resp.Body); err != nil {
		return nil, fmt.Errorf("reading completion stream: %w", err)
	}

	text := strings.TrimSpace(answer.String())
	if text == "" {
		return nil, ErrEmptyAnswer
	}

	return &ConverseResult{
		Text: text,
		Continuation: continuity.Token{
			ConversationID: conversationID,
			LastMessageID:  lastMessageID,
		},
	}, nil
}

// buildPrompt assembles system message, replayed history, and the new
// question into a completion prompt.
func (c *OpenAI) buildPrompt(ctx context.Context, conversationID string, req *ConverseRequest) string {
	var b strings.Builder

	if c.cfg.SystemMessage != "" {
		b.WriteString(c.cfg.SystemMessage)
		b.WriteString("\n\n")
	}

	if req.Continuation != nil {
		for _, msg := range c.history(ctx, conversationID) {
			switch msg.Role {
			case store.RoleUser:
				b.WriteString("User: ")
			case store.RoleAssistant:
				b.WriteString("ChatGPT: ")
			default:
				continue
			}
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
	}

	if strings.HasPrefix(c.cfg.Model, "text-chat-davinci") {
		fmt.Fprintf(&b, "Respond conversationally.<|im_end|>\n\nUser: %s<|im_sep|>\nChatGPT:", req.Prompt)
	} else {
		fmt.Fprintf(&b, "User: %s\nChatGPT:", req.Prompt)
	}

	return b.String()
}

// history returns the conversation's prior turns, newest-trimmed to the
// character budget. Ledger failures degrade to a fresh conversation.
func (c *OpenAI) history(ctx context.Context, conversationID string) []*store.Message {
	if c.transcripts == nil {
		return nil
	}

	messages, err := c.transcripts.Transcript(ctx, conversationID, historyTurns)
	if err != nil {
		if !errors.Is(err, store.ErrConversationNotFound) {
			c.logger.Warn("transcript replay failed, starting fresh", "error", err)
		}
		return nil
	}

	// Drop oldest turns until the replay fits the budget.
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	for len(messages) > 0 && total > historyBudget {
		total -= len(messages[0].Content)
		messages = messages[1:]
	}
	return messages
}

// completionError maps a non-200 API response to the error taxonomy.
func completionError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed apiError
	_ = json.Unmarshal(body, &parsed)
	message := parsed.Error.Message

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: completion endpoint returned 401", ErrAuthExpired)
	case strings.Contains(parsed.Error.Code, "content") || strings.Contains(parsed.Error.Type, "content"):
		return fmt.Errorf("%w: %s", ErrContentRefused, message)
	case message != "":
		return fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, message)
	default:
		return fmt.Errorf("completion endpoint returned %d", resp.StatusCode)
	}
}

var _ Client = (*OpenAI)(nil)
