package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/docuflow/docuflow/realtime"
)

// wsSink adapts a websocket connection to the registry's sink contract. All
// writes go through the registry's per-connection writer goroutine, so no
// extra write locking is needed here.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) WriteJSON(v interface{}) error {
	return s.conn.WriteJSON(v)
}

func (s *wsSink) Close() error {
	return s.conn.Close()
}

type inboundMessage struct {
	Type       string  `json:"type"`
	DocumentID int64   `json:"document_id,omitempty"`
	Timestamp  float64 `json:"timestamp,omitempty"`
}

// WebSocketHandler serves the real-time endpoints. Clients subscribe to
// per-document status updates or just listen to the global stream.
type WebSocketHandler struct {
	registry *realtime.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(registry *realtime.Registry, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles the general endpoint: ws://host/api/v1/ws
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	c := h.registry.Connect(&wsSink{conn: conn})
	h.readLoop(conn, c.ID)
}

// ServeDocument handles the document-scoped endpoint ws://host/api/v1/ws/{document_id},
// which auto-subscribes the connection to that document's updates.
func (h *WebSocketHandler) ServeDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := strconv.ParseInt(mux.Vars(r)["document_id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid document id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	c := h.registry.Connect(&wsSink{conn: conn})
	h.registry.Subscribe(documentID, c.ID)
	h.registry.SendTo(c.ID, map[string]interface{}{
		"type":        "subscription",
		"status":      "subscribed",
		"document_id": documentID,
		"message":     fmt.Sprintf("Subscribed to updates for document %d", documentID),
	})

	h.readLoop(conn, c.ID)
}

func (h *WebSocketHandler) readLoop(conn *websocket.Conn, connectionID string) {
	defer h.registry.Disconnect(connectionID)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Error("WebSocket read error",
					slog.String("connection_id", connectionID),
					slog.String("error", err.Error()))
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			if msg.DocumentID != 0 {
				h.registry.Subscribe(msg.DocumentID, connectionID)
				h.registry.SendTo(connectionID, map[string]interface{}{
					"type":        "subscription",
					"status":      "subscribed",
					"document_id": msg.DocumentID,
				})
			}

		case "unsubscribe":
			if msg.DocumentID != 0 {
				h.registry.Unsubscribe(msg.DocumentID, connectionID)
				h.registry.SendTo(connectionID, map[string]interface{}{
					"type":        "subscription",
					"status":      "unsubscribed",
					"document_id": msg.DocumentID,
				})
			}

		case "ping":
			h.registry.SendTo(connectionID, map[string]interface{}{
				"type":      "pong",
				"timestamp": msg.Timestamp,
			})

		default:
			// Misbehaving clients get a structured error, never a disconnect.
			h.registry.SendTo(connectionID, map[string]interface{}{
				"type":    "error",
				"message": fmt.Sprintf("Unknown message type: %s", msg.Type),
			})
		}
	}
}
