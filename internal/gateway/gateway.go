// ABOUTME: Gateway orchestrator that assembles the dispatch pipeline and HTTP server
// ABOUTME: Manages store, providers, limiter, and websocket surface lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/aowme/chatgirl-gateway/internal/config"
	"github.com/aowme/chatgirl-gateway/internal/continuity"
	"github.com/aowme/chatgirl-gateway/internal/dispatch"
	"github.com/aowme/chatgirl-gateway/internal/provider"
	"github.com/aowme/chatgirl-gateway/internal/ratelimit"
	"github.com/aowme/chatgirl-gateway/internal/store"
	"github.com/aowme/chatgirl-gateway/internal/surface"
)

// Gateway assembles the request pipeline and serves the chat surface.
type Gateway struct {
	config         *config.Config
	store          store.Store
	continuity     *continuity.Cache
	limiter        *ratelimit.Limiter
	dispatcher     *dispatch.Dispatcher
	httpServer     *http.Server
	closeProviders func()
	logger         *slog.Logger
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CHATGIRL_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildProviders constructs every configured backend client. The second
// return value releases client-held resources on shutdown.
func buildProviders(cfg *config.Config, ledger store.Store, logger *slog.Logger) (*provider.Registry, func()) {
	chatgptWeb := provider.NewChatGPTWeb(provider.ChatGPTWebConfig{
		BaseURL:       cfg.Provider.ChatGPTWeb.BaseURL,
		AccessToken:   cfg.Provider.ChatGPTWeb.AccessToken,
		SessionCookie: cfg.Provider.ChatGPTWeb.SessionCookie,
		Model:         cfg.Provider.ChatGPTWeb.Model,
	}, logger)

	openai := provider.NewOpenAI(provider.OpenAIConfig{
		BaseURL:       cfg.Provider.OpenAI.BaseURL,
		APIKey:        cfg.Provider.OpenAI.APIKey,
		Model:         cfg.Provider.OpenAI.Model,
		SystemMessage: cfg.Provider.SystemPrompt,
	}, ledger, logger)

	return provider.NewRegistry(chatgptWeb, openai), chatgptWeb.Close
}

// buildTemplates overlays configured notice texts on the defaults.
func buildTemplates(cfg config.TemplatesConfig) dispatch.Templates {
	t := dispatch.DefaultTemplates()
	if cfg.RateLimited != "" {
		t.RateLimited = cfg.RateLimited
	}
	if cfg.AuthExpired != "" {
		t.AuthExpired = cfg.AuthExpired
	}
	if cfg.ContentRefused != "" {
		t.ContentRefused = cfg.ContentRefused
	}
	if cfg.ErrorNotice != "" {
		t.ErrorNotice = cfg.ErrorNotice
	}
	return t
}

// New creates a Gateway from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ledger, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	tokens := continuity.New(cfg.Limits.SessionTTL)
	limiter := ratelimit.New(cfg.Limits.RateLimit, cfg.Limits.RateInterval)

	queue := dispatch.NewQueue(dispatch.QueueConfig{
		NotifyThreshold: cfg.Dispatch.QueueNotifyThreshold,
		HardCeiling:     cfg.Dispatch.QueueHardCeiling,
	}, logger)

	providers, closeProviders := buildProviders(cfg, ledger, logger)

	dispatcher := dispatch.New(dispatch.Config{
		Queue:          queue,
		Providers:      providers,
		ActiveProvider: cfg.Provider.Active,
		Continuity:     tokens,
		Limiter:        limiter,
		Ledger:         ledger,
		Templates:      buildTemplates(cfg.Templates),
		Logger:         logger,
	})

	g := &Gateway{
		config:         cfg,
		store:          ledger,
		continuity:     tokens,
		limiter:        limiter,
		dispatcher:     dispatcher,
		closeProviders: closeProviders,
		logger:         logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", surface.NewHandler(dispatcher, surface.NewFormatter(cfg.Surface.ReplyFormat), logger))
	mux.HandleFunc("/healthz", g.handleHealth)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Run serves the gateway until the context is cancelled or the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases every pipeline component.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.continuity.Close()
	g.limiter.Close()
	g.closeProviders()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
