package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/codespace/internal/identity"
	"github.com/coder/websocket"
)

// HandlerConfig configures the live-notification endpoint.
type HandlerConfig struct {
	AllowedOrigin string
	IsDev         bool
	WriteTimeout  time.Duration
	PingInterval  time.Duration
}

// WebSocketHandler streams change notifications for one codespace per
// connection. Client frames are ignored.
type WebSocketHandler struct {
	hub *Hub
	cfg HandlerConfig
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, cfg HandlerConfig) *WebSocketHandler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	return &WebSocketHandler{hub: hub, cfg: cfg}
}

// ServeHTTP implements http.Handler for WebSocket upgrade. It expects the
// codespace id in the request context (see identity.Middleware).
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.CodespaceIDFromContext(r.Context())
	if sessionID == "" {
		http.Error(w, "missing codespace id", http.StatusBadRequest)
		return
	}
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}

	sub := h.hub.Subscribe(sessionID)
	defer h.hub.Unsubscribe(sub)

	// The channel is server-to-client only; CloseRead discards client
	// frames and answers pings.
	ctx := ws.CloseRead(r.Context())

	status, reason := h.deliver(ctx, ws, sub)
	if closeErr := ws.Close(status, reason); closeErr != nil {
		slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
	}
	slog.Info("Live connection ended",
		"session_id", sessionID,
		"subscriber_id", sub.ID,
		"last_delivered", sub.LastDelivered(),
		"reason", reason,
	)
}

func (h *WebSocketHandler) deliver(ctx context.Context, ws *websocket.Conn, sub *Subscriber) (websocket.StatusCode, string) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return websocket.StatusNormalClosure, "client gone"

		case <-sub.Done():
			if errors.Is(sub.Err(), ErrSlowConsumer) {
				return websocket.StatusPolicyViolation, ErrSlowConsumer.Error()
			}
			return websocket.StatusGoingAway, "server shutting down"

		case n := <-sub.C():
			if err := h.writeJSON(ctx, ws, n); err != nil {
				slog.Debug("WebSocket write error", "error", err, "session_id", sub.SessionID)
				return websocket.StatusInternalError, "write failed"
			}
			sub.MarkDelivered(n.Version)

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Debug("WebSocket ping failed", "error", err, "session_id", sub.SessionID)
				return websocket.StatusGoingAway, "ping timeout"
			}
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == h.cfg.AllowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
