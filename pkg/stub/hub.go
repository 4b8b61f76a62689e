package stub

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// sendBuffer is how many events a slow client may fall behind before the
// hub drops it.
const sendBuffer = 16

type wsClient struct {
	userID int64
	send   chan []byte
}

// Hub tracks open websocket connections per user and fans events out to
// every connection a user has.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*wsClient]bool
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[int64]map[*wsClient]bool), logger: logger}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*wsClient]bool)
	}
	h.clients[c.userID][c] = true
	h.logger.Debug("websocket registered", zap.Int64("user_id", c.userID))
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove must be called with mu held.
func (h *Hub) remove(c *wsClient) {
	clients, ok := h.clients[c.userID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	h.logger.Debug("websocket unregistered", zap.Int64("user_id", c.userID))
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Notify queues ev on every connection of ev.UserID. Clients whose buffer is
// full are disconnected.
func (h *Hub) Notify(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encoding event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[ev.UserID] {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("dropping slow websocket client", zap.Int64("user_id", c.userID))
			h.remove(c)
		}
	}
}
