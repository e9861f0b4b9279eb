package hub

import (
	"sort"
	"sync"
)

// BroadcastGroup is the set of connections subscribed to one room.
type BroadcastGroup struct {
	mu      sync.RWMutex
	members map[string]Conn
}

func NewBroadcastGroup() *BroadcastGroup {
	return &BroadcastGroup{members: make(map[string]Conn)}
}

// Add reports whether the connection was not already a member.
func (g *BroadcastGroup) Add(c Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[c.ID()]; ok {
		return false
	}
	g.members[c.ID()] = c
	return true
}

func (g *BroadcastGroup) Remove(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[id]; !ok {
		return false
	}
	delete(g.members, id)
	return true
}

func (g *BroadcastGroup) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[id]
	return ok
}

func (g *BroadcastGroup) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// Members returns the member connection ids in sorted order.
func (g *BroadcastGroup) Members() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SendAll delivers data to the members present at call time, skipping the
// excluded ids, and returns how many accepted it.
func (g *BroadcastGroup) SendAll(data []byte, exclude ...string) int {
	g.mu.RLock()
	targets := make([]Conn, 0, len(g.members))
	for _, c := range g.members {
		targets = append(targets, c)
	}
	g.mu.RUnlock()

	return sendAll(targets, data, exclude)
}
