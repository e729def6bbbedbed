// Package hub is the transport layer of the chat core: it tracks live
// WebSocket clients, pumps frames in and out, and fans events out to the
// connections a room's registry entries point at. Room membership itself
// lives only in the registry; the hub just resolves connection IDs to
// clients for delivery.
package hub

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sanket2004/text-sharing-app/internal/registry"
)

// Hub indexes live clients by connection ID and delivers payloads to them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	registry *registry.Registry
}

// NewHub creates a Hub backed by the given registry.
func NewHub(reg *registry.Registry) *Hub {
	if reg == nil {
		panic("registry cannot be nil for Hub")
	}
	return &Hub{
		clients:  make(map[string]*Client),
		registry: reg,
	}
}

// add tracks a newly connected client.
func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"conn_id":       c.id,
		"total_clients": total,
	}).Info("Client connected")
}

// remove drops the client and closes its send channel, which stops its write
// pump. Safe to call more than once.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	if present {
		delete(h.clients, c.id)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if present {
		c.closeSend()
		logrus.WithFields(logrus.Fields{
			"conn_id":       c.id,
			"total_clients": total,
		}).Info("Client disconnected")
	}
}

// BroadcastToRoom delivers the payload to every connection currently
// registered in the room. Enqueueing is non-blocking; a client with a full
// send buffer is skipped rather than allowed to stall the fan-out.
func (h *Hub) BroadcastToRoom(roomID string, payload []byte) {
	connIDs := h.registry.Connections(roomID)
	if len(connIDs) == 0 {
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(payload) {
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"conn_id": c.id,
			}).Warn("Client send buffer full during broadcast, dropping event")
		}
	}
}

// SendTo delivers the payload to a single connection. Reports whether the
// connection was known and the enqueue succeeded.
func (h *Hub) SendTo(connID string, payload []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.enqueue(payload)
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
