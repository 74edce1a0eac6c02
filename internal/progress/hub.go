// Package progress fans batch progress out to connected listeners.
package progress

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-listener queue length
const DefaultBuffer = 16

// Message is what listeners receive; it is also the websocket frame
type Message struct {
	Progress int `json:"progress"`
}

// Hub keeps the set of registered listeners. Publish never blocks: a
// listener whose queue is full loses its oldest pending message.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan Message
	buffer  int
	logger  *slog.Logger
}

// NewHub creates an empty hub
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]chan Message),
		buffer:  buffer,
		logger:  logger,
	}
}

// Register adds a listener and returns its id and queue
func (h *Hub) Register() (string, <-chan Message) {
	id := uuid.NewString()
	ch := make(chan Message, h.buffer)

	h.mu.Lock()
	h.clients[id] = ch
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("progress.register", "client", id, "clients", n)
	return id, ch
}

// Deregister removes a listener and closes its queue. Unknown ids are ignored.
func (h *Hub) Deregister(id string) {
	h.mu.Lock()
	ch, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(ch)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("progress.deregister", "client", id, "clients", n)
	}
}

// Publish sends percent, clamped to 0..100, to every listener
func (h *Hub) Publish(percent int) {
	msg := Message{Progress: min(max(percent, 0), 100)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.clients {
		select {
		case ch <- msg:
			continue
		default:
		}
		// full: drop the oldest so the latest value gets through
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- msg:
		default:
			h.logger.Debug("progress.dropped", "client", id, "progress", msg.Progress)
		}
	}
}

// Clients returns the number of registered listeners
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close deregisters every listener
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		delete(h.clients, id)
		close(ch)
	}
}
