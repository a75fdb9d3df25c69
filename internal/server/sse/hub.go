package sse

import (
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Client is a single connected SSE client.
type Client chan []byte

// Hub manages the set of active SSE clients and broadcasts recognition
// events to them. Run must be started in its own goroutine.
type Hub struct {
	clients    map[Client]bool
	broadcast  chan []byte
	register   chan Client
	unregister chan Client
	mu         sync.Mutex
}

// RecognitionEvent is the payload pushed to the dashboard whenever a
// sighting passes the debounce gate.
type RecognitionEvent struct {
	Name      string    `json:"name"`
	Score     float64   `json:"score"`
	Recorded  bool      `json:"recorded"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionEvent announces session lifecycle changes (started/stopped/reset).
type SessionEvent struct {
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHub creates a hub instance.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 100),
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
	}
}

// Run drives the hub's dispatch loop.
func (h *Hub) Run() {
	log.Info("SSE hub started")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debugf("SSE client registered, %d connected", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Debugf("SSE client unregistered, %d connected", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					// Client channel full or closed; drop the client.
					log.Warn("SSE client not keeping up, removing")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client Client) {
	h.unregister <- client
}

// Broadcast queues a raw message for all clients, dropping it if the hub is
// saturated rather than blocking the processing loop.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// BroadcastRecognition pushes a recognition event to all clients.
func (h *Hub) BroadcastRecognition(event RecognitionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Error("Failed to marshal recognition event for SSE")
		return
	}
	h.Broadcast(data)
}

// BroadcastSessionState pushes a session lifecycle event to all clients.
func (h *Hub) BroadcastSessionState(state string, at time.Time) {
	data, err := json.Marshal(SessionEvent{State: state, Timestamp: at})
	if err != nil {
		log.WithError(err).Error("Failed to marshal session event for SSE")
		return
	}
	h.Broadcast(data)
}
