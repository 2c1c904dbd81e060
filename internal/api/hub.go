package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// clientBufferSize bounds the per-client send queue. A client that cannot
// drain this many events loses the overflow rather than stalling the hub.
const clientBufferSize = 32

// Client is one connected event stream consumer.
type Client struct {
	ID   string
	Send chan []byte
}

// NewClient creates a client with a buffered send queue.
func NewClient(id string) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, clientBufferSize),
	}
}

// Hub fans engine events out to every connected WebSocket client. Writers
// never block on a slow client: the per-client buffer absorbs bursts and
// overflow is dropped, the status endpoints remain the source of truth.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

// NewHub creates a Hub. Call Run before registering clients.
func NewHub() *Hub {
	return &Hub{
		log:        slog.With("component", "events"),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("Client registered", "client", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case data := <-h.broadcast:
			h.fanout(data)
		}
	}
}

// Register queues a client for the hub loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister queues a client for removal. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast marshals the event once and queues it for every client. Never
// blocks; when the hub queue is full the event is dropped with a warning.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("Cannot marshal event", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("Event queue full, dropping broadcast")
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.log.Debug("Client send buffer full, dropping event", "client", client.ID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.log.Debug("Client unregistered", "client", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
}
