// ABOUTME: Websocket chat surface handler
// ABOUTME: Bridges socket frames to dispatch requests and cancels them on disconnect

package surface

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aowme/chatgirl-gateway/internal/dispatch"
)

// Inbound is one question frame from a chat client.
type Inbound struct {
	SenderID    string `json:"sender_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`

	// Provider optionally overrides the configured backend for this
	// question.
	Provider string `json:"provider"`
}

// RequestHandler accepts questions from the surface.
type RequestHandler interface {
	Handle(req *dispatch.Request)
}

// Handler serves the websocket chat endpoint.
type Handler struct {
	dispatcher RequestHandler
	formatter  *Formatter
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewHandler creates a websocket surface handler.
func NewHandler(dispatcher RequestHandler, formatter *Formatter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dispatcher: dispatcher,
		formatter:  formatter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logger.With("component", "surface"),
	}
}

// ServeHTTP upgrades the connection and pumps frames until the client
// disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := &wsChannel{
		ctx:       ctx,
		conn:      conn,
		formatter: h.formatter,
	}

	h.logger.Info("client connected", "remote", r.RemoteAddr)
	h.readLoop(ch, conn)

	// Cancels every request this connection still has pending.
	cancel()
	_ = conn.Close()
	h.logger.Info("client disconnected", "remote", r.RemoteAddr)
}

func (h *Handler) readLoop(ch *wsChannel, conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			h.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		if in.SenderID == "" {
			h.logger.Debug("dropping frame without sender_id")
			continue
		}

		h.dispatcher.Handle(&dispatch.Request{
			SenderID:    in.SenderID,
			DisplayName: in.DisplayName,
			Text:        in.Text,
			Provider:    in.Provider,
			Channel:     ch,
		})
	}
}

// wsChannel delivers one connection's outbound messages. All requests
// from a connection share it, so writes are serialized.
type wsChannel struct {
	ctx       context.Context
	conn      *websocket.Conn
	formatter *Formatter

	writeMu sync.Mutex
}

func (c *wsChannel) Context() context.Context {
	return c.ctx
}

func (c *wsChannel) Send(out dispatch.Outbound) error {
	if out.Reply != "" && c.formatter != nil {
		out.Reply = c.formatter.Render(out.Reply)
	}

	// A plain json.Marshal would escape the formatter's HTML tags as
	// </>; keep them literal in the frame.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return err
	}
	data := bytes.TrimRight(buf.Bytes(), "\n")

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
