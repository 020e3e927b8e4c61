package room

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Handler upgrades viewer connections and processes the room protocol:
// the client sends join messages, the server answers with a joined ack
// and then streams new_upload / evaluation_result events.
type Handler struct {
	registry      *Registry
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new viewer WebSocket handler.
func NewHandler(registry *Registry, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wireEvent is the framing for both directions of the viewer protocol.
type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	SessionID string `json:"session_id"`
}

// wsSubscriber adapts a websocket connection to the Subscriber
// interface. Writes are serialized with a mutex so concurrent
// broadcasts cannot interleave frames.
type wsSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSubscriber) Send(event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(wireEvent{Event: event.Name, Data: data})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(context.Background(), websocket.MessageText, frame)
}

func (s *wsSubscriber) Close(reason string) error {
	return s.conn.Close(websocket.StatusNormalClosure, reason)
}

// ServeHTTP implements http.Handler for the viewer WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("Viewer connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}

	sub := &wsSubscriber{conn: ws}
	defer func() {
		// Disconnect implies leaving every joined room.
		h.registry.Leave(sub)
		if closeErr := ws.Close(websocket.StatusNormalClosure, "connection ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	h.readLoop(r.Context(), ws, sub)
	slog.Info("Viewer connection ended", "ip", r.RemoteAddr)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sub *wsSubscriber) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by viewer")
			} else {
				slog.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg wireEvent
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Warn("Discarding malformed viewer message", "error", err)
			continue
		}

		switch msg.Event {
		case "join":
			var join joinPayload
			if err := json.Unmarshal(msg.Data, &join); err != nil || join.SessionID == "" {
				slog.Warn("Join without session_id")
				continue
			}
			h.registry.Join(join.SessionID, sub)
			ack := Event{Name: EventJoined, Data: map[string]string{"message": "Joined room " + join.SessionID}}
			if err := sub.Send(ack); err != nil {
				slog.Debug("Failed to send joined ack", "error", err)
			}
		case "ping":
			if err := sub.Send(Event{Name: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			slog.Debug("Ignoring unknown viewer event", "event", msg.Event)
		}
	}
}
