package ws

import (
	"context"
	"encoding/json"
	"sync"

	"sensorhub/backend/services/reading-service/internal/models"
)

// Hub tracks viewer connections and fans snapshots out to them.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{connections: make(map[string]*Connection)}
}

// Add registers new connection.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID()] = conn
}

// Remove removes connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, id)
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Name identifies the sink in logs and metrics.
func (h *Hub) Name() string { return "websocket" }

// Publish queues the snapshot for every viewer without waiting for delivery.
func (h *Hub) Publish(_ context.Context, snapshot models.Snapshot) error {
	payload, err := json.Marshal(snapshot.View())
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.connections {
		conn.Send(payload)
	}
	return nil
}

// Close drops every viewer.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.ws.Close()
	}
}
