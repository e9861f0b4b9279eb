package hub

import (
	"sync"
)

// Hub indexes every live connection by id.
type Hub struct {
	clients map[string]Conn
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]Conn),
	}
}

func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
}

// Unregister removes the connection and reports whether it was present.
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; !ok {
		return false
	}
	delete(h.clients, id)
	return true
}

func (h *Hub) Get(id string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendTo delivers data to the listed connections and returns how many
// accepted it. Unknown ids are skipped.
func (h *Hub) SendTo(ids []string, data []byte) int {
	h.mu.RLock()
	targets := make([]Conn, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	return sendAll(targets, data, nil)
}

// Broadcast delivers data to every active connection except the excluded ids.
func (h *Hub) Broadcast(data []byte, exclude ...string) int {
	return sendAll(h.snapshot(), data, exclude)
}

// CloseAll closes every registered connection with the given code.
func (h *Hub) CloseAll(code int, reason string) {
	for _, c := range h.snapshot() {
		c.Close(code, reason)
	}
}

func (h *Hub) snapshot() []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Conn, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

func sendAll(targets []Conn, data []byte, exclude []string) int {
	sent := 0
	for _, c := range targets {
		if excluded(c.ID(), exclude) || !c.Session().IsActive() {
			continue
		}
		if c.Send(data) {
			sent++
		}
	}
	return sent
}

func excluded(id string, exclude []string) bool {
	for _, e := range exclude {
		if e == id {
			return true
		}
	}
	return false
}
