package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// The event stream is one-directional; inbound frames stay tiny.
	maxMessageSize = 512
)

// EventsHandler upgrades /api/events connections and pumps hub events to
// the client.
type EventsHandler struct {
	log      *slog.Logger
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewEventsHandler creates an EventsHandler bound to the given hub.
func NewEventsHandler(hub *Hub) *EventsHandler {
	return &EventsHandler{
		log: slog.With("component", "events"),
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The engine serves a single local client; the page origin
			// varies by platform shell, so origin checks stay off.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleEvents handles GET /api/events. The socket carries trigger, motion,
// status, position and download events as JSON frames.
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := NewClient(uuid.NewString())
	h.hub.Register(client)

	go h.writePump(client, conn)
	go h.readPump(client, conn)
}

// readPump drains inbound frames until the peer goes away. The stream is
// outbound-only, so everything read is discarded; the read loop exists to
// notice closes and answer pings.
func (h *EventsHandler) readPump(client *Client, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("WebSocket read error", "client", client.ID, "error", err)
			}
			return
		}
	}
}

// writePump forwards queued events and keeps the connection alive with
// pings. Exits when the hub closes the send channel.
func (h *EventsHandler) writePump(client *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
