package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jeongseonghan/acoustic-modem/internal/station"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the monitor page is served from any local origin
	},
}

// WSMessage is the envelope of every websocket message.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans messages out to every connected websocket client.
type Hub struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// AddClient registers a connection.
func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	log.WithField("clients", len(h.clients)).Debug("WebSocket client connected")
}

// RemoveClient closes and forgets a connection.
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[conn] {
		return
	}
	delete(h.clients, conn)
	conn.Close()
	log.WithField("clients", len(h.clients)).Debug("WebSocket client disconnected")
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every client. Clients that fail the write are
// dropped.
func (h *Hub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Warn("WebSocket marshal failed")
		return
	}

	// Writes to one conn must not interleave, so the whole fan-out holds the lock.
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.WithError(err).Debug("WebSocket write failed")
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// BroadcastEvent sends a station event.
func (h *Hub) BroadcastEvent(e station.Event) {
	h.Broadcast(WSMessage{Type: "event", Payload: e})
}

// BroadcastStatus sends a status update.
func (h *Hub) BroadcastStatus(status, message string) {
	h.Broadcast(WSMessage{
		Type: "status",
		Payload: map[string]string{
			"status":  status,
			"message": message,
		},
	})
}

// BroadcastLog sends a log line.
func (h *Hub) BroadcastLog(level, message string) {
	h.Broadcast(WSMessage{
		Type: "log",
		Payload: map[string]string{
			"level":   level,
			"message": message,
		},
	})
}

// Forward broadcasts events until the channel closes or ctx is done.
func (h *Hub) Forward(ctx context.Context, events <-chan station.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			h.BroadcastEvent(e)
		}
	}
}
