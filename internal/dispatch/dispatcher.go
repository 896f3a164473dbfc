// ABOUTME: Orchestrates one accepted question end to end: admission, continuity, provider call, reply.
// ABOUTME: Always releases the processing slot exactly once, success or failure.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aowme/chatgirl-gateway/internal/continuity"
	"github.com/aowme/chatgirl-gateway/internal/provider"
	"github.com/aowme/chatgirl-gateway/internal/ratelimit"
	"github.com/aowme/chatgirl-gateway/internal/store"
)

// Request is one accepted question from a chat surface.
type Request struct {
	ID          string
	SenderID    string
	DisplayName string
	Text        string

	// Provider overrides the configured backend for this request.
	// Empty selects the active one.
	Provider string

	// Channel delivers the eventual reply and scopes cancellation: when
	// the originating surface disconnects, Channel.Context is cancelled.
	Channel Channel
}

// Outbound is the single message a request produces: a reply, an error
// notice, or a backlog notice.
type Outbound struct {
	Reply        string `json:"reply,omitempty"`
	Error        string `json:"error,omitempty"`
	BacklogDepth int    `json:"backlog_notice,omitempty"`
}

// Channel is the surface-side conduit for one request.
type Channel interface {
	// Context is cancelled when the originating surface disconnects.
	Context() context.Context

	// Send delivers an outbound message to the surface.
	Send(out Outbound) error
}

// Templates are the user-facing notice texts. A %v verb in ErrorNotice is
// replaced with the underlying failure.
type Templates struct {
	RateLimited    string
	AuthExpired    string
	ContentRefused string
	ErrorNotice    string
}

// DefaultTemplates returns the stock notice texts.
func DefaultTemplates() Templates {
	return Templates{
		RateLimited:    "You're asking a little too fast. Give it a few minutes and try again.",
		AuthExpired:    "The assistant's session has expired. Ask the operator to sign in again.",
		ContentRefused: "The assistant declined to answer that one.",
		ErrorNotice:    "The assistant ran into a problem: %v. Please try again shortly.",
	}
}

// Config wires a Dispatcher.
type Config struct {
	Queue          *Queue
	Providers      *provider.Registry
	ActiveProvider string
	Continuity     *continuity.Cache
	Limiter        *ratelimit.Limiter
	Ledger         store.Store // optional; nil disables transcript recording
	Templates      Templates
	Logger         *slog.Logger
}

// Dispatcher drives accepted requests through the pipeline.
type Dispatcher struct {
	queue          *Queue
	providers      *provider.Registry
	activeProvider string
	tokens         *continuity.Cache
	limiter        *ratelimit.Limiter
	ledger         store.Store
	templates      Templates
	logger         *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:          cfg.Queue,
		providers:      cfg.Providers,
		activeProvider: cfg.ActiveProvider,
		tokens:         cfg.Continuity,
		limiter:        cfg.Limiter,
		ledger:         cfg.Ledger,
		templates:      cfg.Templates,
		logger:         logger.With("component", "dispatch"),
	}
}

// Handle admits one inbound question. It never blocks on the provider:
// the round-trip runs on its own goroutine once the queue grants the slot.
func (d *Dispatcher) Handle(req *Request) {
	if strings.TrimSpace(req.Text) == "" {
		d.logger.Debug("dropping empty question", "sender", req.SenderID)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	if !d.limiter.Admit(req.SenderID) {
		d.logger.Info("rate limited", "sender", req.SenderID, "request_id", req.ID)
		d.send(req, Outbound{Reply: d.templates.RateLimited})
		return
	}

	sub := d.queue.Submit(req)
	if sub.Notify {
		d.send(req, Outbound{BacklogDepth: sub.Depth})
	}

	switch sub.Outcome {
	case OutcomeDispatch:
		go d.process(req)
	case OutcomeForced:
		d.logger.Warn("force-dispatching past backlog",
			"request_id", req.ID,
			"dropped", sub.Dropped,
		)
		go d.process(req)
	case OutcomeQueued:
		d.logger.Debug("request queued",
			"request_id", req.ID,
			"depth", sub.Depth,
		)
	}
}

// process runs one provider round-trip. The processing slot is released
// exactly once no matter how the round-trip ends, and the next queued
// request is promoted immediately.
func (d *Dispatcher) process(req *Request) {
	defer func() {
		if next := d.queue.Complete(req); next != nil {
			go d.process(next)
		}
	}()

	ctx := req.Channel.Context()
	if ctx.Err() != nil {
		// The surface went away while this request sat in the queue.
		d.logger.Info("request cancelled before dispatch", "request_id", req.ID)
		return
	}

	providerName := d.activeProvider
	if req.Provider != "" {
		providerName = req.Provider
	}
	client, err := d.providers.Resolve(providerName)
	if err != nil {
		d.logger.Error("provider resolution failed", "provider", providerName, "error", err)
		d.send(req, Outbound{Error: d.errorNotice(err)})
		return
	}

	var cont *continuity.Token
	if token, ok := d.tokens.Get(client.Name(), req.SenderID); ok {
		cont = &token
	}

	started := time.Now()
	result, err := client.Converse(ctx, &provider.ConverseRequest{
		Prompt:       req.Text,
		Continuation: cont,
	})
	if err != nil {
		d.handleFailure(req, err)
		return
	}

	d.logger.Info("answer assembled",
		"request_id", req.ID,
		"provider", client.Name(),
		"sender", req.SenderID,
		"elapsed", time.Since(started),
	)

	// Replace the continuation wholesale; a round-trip that produced no
	// conversation id leaves the previous token untouched.
	if result.Continuation.ConversationID != "" {
		d.tokens.Put(client.Name(), req.SenderID, result.Continuation)
		d.record(req, client.Name(), result)
	}

	d.send(req, Outbound{Reply: result.Text})
}

// handleFailure maps a provider error onto exactly one user-facing notice.
// A cancelled request gets none: its surface is already gone.
func (d *Dispatcher) handleFailure(req *Request, err error) {
	if req.Channel.Context().Err() != nil {
		d.logger.Info("request cancelled mid-flight", "request_id", req.ID)
		return
	}

	switch {
	case errors.Is(err, provider.ErrAuthExpired):
		d.logger.Warn("provider auth expired", "request_id", req.ID, "error", err)
		d.send(req, Outbound{Error: d.templates.AuthExpired})
	case errors.Is(err, provider.ErrContentRefused):
		d.logger.Info("provider refused content", "request_id", req.ID)
		d.send(req, Outbound{Error: d.templates.ContentRefused})
	default:
		d.logger.Error("provider call failed", "request_id", req.ID, "error", err)
		d.send(req, Outbound{Error: d.errorNotice(err)})
	}
}

// record appends the question and answer to the transcript ledger. Ledger
// failures are logged, never surfaced to the sender.
func (d *Dispatcher) record(req *Request, providerName string, result *provider.ConverseResult) {
	if d.ledger == nil {
		return
	}

	// Detached context: a surface disconnect must not lose the record.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	turns := []*store.Message{
		{
			ID:             uuid.New().String(),
			ConversationID: result.Continuation.ConversationID,
			Role:           store.RoleUser,
			Sender:         req.SenderID,
			Content:        req.Text,
			CreatedAt:      now,
		},
		{
			ID:             uuid.New().String(),
			ConversationID: result.Continuation.ConversationID,
			Role:           store.RoleAssistant,
			Sender:         providerName,
			Content:        result.Text,
			CreatedAt:      now.Add(time.Millisecond),
		},
	}
	for _, msg := range turns {
		if err := d.ledger.SaveMessage(ctx, msg); err != nil {
			d.logger.Warn("transcript record failed", "request_id", req.ID, "error", err)
			return
		}
	}
}

// errorNotice renders the generic failure template.
func (d *Dispatcher) errorNotice(err error) string {
	if strings.Contains(d.templates.ErrorNotice, "%v") {
		return fmt.Sprintf(d.templates.ErrorNotice, err)
	}
	return d.templates.ErrorNotice
}

// send delivers an outbound message, logging delivery failures.
func (d *Dispatcher) send(req *Request, out Outbound) {
	if err := req.Channel.Send(out); err != nil {
		d.logger.Warn("outbound delivery failed", "request_id", req.ID, "error", err)
	}
}
