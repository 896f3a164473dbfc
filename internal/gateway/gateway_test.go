// ABOUTME: Tests for gateway assembly and the end-to-end request path
// ABOUTME: Exercises websocket question to provider reply through the full pipeline

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aowme/chatgirl-gateway/internal/config"
	"github.com/aowme/chatgirl-gateway/internal/dispatch"
)

// completionsServer streams the given texts as SSE token deltas.
func completionsServer(t *testing.T, deltas ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for i, text := range deltas {
			chunk := map[string]any{
				"id":      fmt.Sprintf("cmpl-%d", i),
				"choices": []map[string]string{{"text": text}},
			}
			data, err := json.Marshal(chunk)
			require.NoError(t, err)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, providerURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Provider.Active = "openai"
	cfg.Provider.OpenAI.BaseURL = providerURL
	cfg.Provider.OpenAI.APIKey = "sk-test"
	cfg.Limits.RateLimit = 0
	cfg.Limits.RateInterval = time.Hour
	cfg.Limits.SessionTTL = 30 * time.Minute
	cfg.Dispatch.QueueNotifyThreshold = 5
	cfg.Dispatch.QueueHardCeiling = 10
	cfg.Database.Path = filepath.Join(t.TempDir(), "gateway.db")
	cfg.Surface.ReplyFormat = "text"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_BuildsPipeline(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	g, err := New(cfg, slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Shutdown(ctx))
}

func TestGateway_EndToEnd(t *testing.T) {
	backend := completionsServer(t, "Hello", " from", " the", " model")
	cfg := testConfig(t, backend.URL)

	g, err := New(cfg, slog.Default())
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = g.Shutdown(ctx)
	}()

	srv := httptest.NewServer(g.httpServer.Handler)
	defer srv.Close()

	// Liveness probe.
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// One question over the websocket surface.
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"sender_id":"u1","display_name":"Ada","text":"say hello"}`))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var out dispatch.Outbound
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "Hello from the model", out.Reply)
	assert.Empty(t, out.Error)
}

func TestGateway_RunStopsOnCancel(t *testing.T) {
	backend := completionsServer(t, "ok")
	cfg := testConfig(t, backend.URL)

	g, err := New(cfg, slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	// Give the listener a moment to come up, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
