package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/causal-labs/internal/experiment"
)

const subscriberBuffer = 32

// writeSSE writes a Server-Sent Event.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// HandleEvents streams the chat's state as Server-Sent Events until the
// client disconnects.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", h.opts.RetryDelay.Milliseconds()); err != nil {
		return
	}
	flusher.Flush()

	states, unsubscribe := h.sessions.Machine(chatID).Subscribe(subscriberBuffer)
	defer unsubscribe()

	keepalive := time.NewTicker(h.opts.KeepaliveInterval)
	defer keepalive.Stop()

	h.logger.Debug("[SSE] State feed opened", "chat_id", chatID)
	defer h.logger.Debug("[SSE] State feed closed", "chat_id", chatID)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if err := writeSSE(w, flusher, "ping", map[string]string{"status": "alive"}); err != nil {
				return
			}
		case st, open := <-states:
			if !open {
				return
			}
			if err := writeSSE(w, flusher, "state", st); err != nil {
				h.logger.Debug("[SSE] Write failed", "chat_id", chatID, "error", err)
				return
			}
		}
	}
}

type wsMessage struct {
	Type string `json:"type"`
}

type wsEnvelope struct {
	Type  string            `json:"type"`
	State *experiment.State `json:"state,omitempty"`
	Error string            `json:"error,omitempty"`
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	if origin == h.opts.AllowedOrigin {
		return true
	}
	h.logger.Warn("[WS] Origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigin)
	return false
}

// HandleWebSocket serves the state feed over a WebSocket. Clients may send
// {"type":"ping"}, {"type":"cancel"} or {"type":"reset"}.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("[WS] Failed to accept WebSocket", "error", err, "chat_id", chatID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			h.logger.Debug("[WS] Failed to close websocket", "error", closeErr, "chat_id", chatID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	states, unsubscribe := h.sessions.Machine(chatID).Subscribe(subscriberBuffer)
	defer unsubscribe()

	go h.wsInputLoop(ctx, cancel, ws, chatID)

	keepalive := time.NewTicker(h.opts.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if err := ws.Ping(ctx); err != nil {
				h.logger.Debug("[WS] Ping failed", "chat_id", chatID, "error", err)
				return
			}
		case st, open := <-states:
			if !open {
				return
			}
			if err := h.writeJSON(ctx, ws, wsEnvelope{Type: "state", State: &st}); err != nil {
				h.logger.Debug("[WS] Write failed", "chat_id", chatID, "error", err)
				return
			}
		}
	}
}

func (h *Handler) wsInputLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, chatID string) {
	defer cancel()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("[WS] Closed by client", "chat_id", chatID)
			} else if ctx.Err() == nil {
				h.logger.Warn("[WS] Read error", "chat_id", chatID, "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = h.writeJSON(ctx, ws, wsEnvelope{Type: "error", Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "ping":
			_ = h.writeJSON(ctx, ws, wsEnvelope{Type: "pong"})
		case "cancel":
			if _, err := h.sessions.Cancel(chatID); err != nil {
				_ = h.writeJSON(ctx, ws, wsEnvelope{Type: "error", Error: err.Error()})
			}
		case "reset":
			h.sessions.Reset(chatID)
		default:
			_ = h.writeJSON(ctx, ws, wsEnvelope{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
