// Package websocket pushes audit change events to the owner's connected
// clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	EventAuditCreated = "AUDIT_CREATED"
	EventAuditUpdated = "AUDIT_UPDATED"
	EventAuditDeleted = "AUDIT_DELETED"
)

// AuditEvent is one message on the change feed.
type AuditEvent struct {
	Type      string      `json:"type"`
	AuditID   string      `json:"auditId"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type broadcastMessage struct {
	userID  string
	message []byte
}

// Gauge receives the change in connected clients.
type Gauge interface {
	AddFeedClients(delta float64)
}

// Hub fans messages out to clients grouped by owner. Only Run touches the
// client map.
type Hub struct {
	clients    map[string]map[*Client]bool
	broadcast  chan broadcastMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	gauge      Gauge
	logger     *slog.Logger

	mu    sync.Mutex
	count map[string]int
}

func NewHub(logger *slog.Logger, gauge Gauge) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan broadcastMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		gauge:      gauge,
		logger:     logger,
		count:      make(map[string]int),
	}
}

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("change feed hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.clients {
				for client := range clients {
					h.remove(client)
				}
			}
			return

		case client := <-h.register:
			if _, ok := h.clients[client.userID]; !ok {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.adjust(client.userID, 1)

		case client := <-h.unregister:
			h.remove(client)

		case bm := <-h.broadcast:
			for client := range h.clients[bm.userID] {
				select {
				case client.send <- bm.message:
				default:
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
	h.adjust(client.userID, -1)
}

func (h *Hub) adjust(userID string, delta int) {
	h.mu.Lock()
	h.count[userID] += delta
	if h.count[userID] <= 0 {
		delete(h.count, userID)
	}
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.AddFeedClients(float64(delta))
	}
}

// Connected reports how many clients the owner has open.
func (h *Hub) Connected(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count[userID]
}

// Publish queues an event for every client of userID. It never blocks the
// caller; if the hub is saturated the event is dropped and logged.
func (h *Hub) Publish(userID string, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal feed event", "error", err, "type", event.Type)
		return
	}
	select {
	case h.broadcast <- broadcastMessage{userID: userID, message: data}:
	default:
		h.logger.Warn("change feed saturated, dropping event", "type", event.Type, "audit_id", event.AuditID)
	}
}
