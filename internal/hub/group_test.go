package hub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/hub/hubtest"
)

func TestBroadcastGroupMembership(t *testing.T) {
	g := hub.NewBroadcastGroup()
	c1 := hubtest.NewActiveConn("c1", domain.Identity{ID: "u1"})
	c2 := hubtest.NewActiveConn("c2", domain.Identity{ID: "u2"})

	assert.True(t, g.Add(c1))
	assert.False(t, g.Add(c1))
	assert.True(t, g.Add(c2))
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"c1", "c2"}, g.Members())

	assert.True(t, g.Remove("c1"))
	assert.False(t, g.Remove("c1"))
	assert.False(t, g.Has("c1"))
	assert.True(t, g.Has("c2"))
}

func TestBroadcastGroupSendAllExcludes(t *testing.T) {
	g := hub.NewBroadcastGroup()
	c1 := hubtest.NewActiveConn("c1", domain.Identity{ID: "u1"})
	c2 := hubtest.NewActiveConn("c2", domain.Identity{ID: "u1"})
	c3 := hubtest.NewActiveConn("c3", domain.Identity{ID: "u2"})
	g.Add(c1)
	g.Add(c2)
	g.Add(c3)

	assert.Equal(t, 3, g.SendAll([]byte(`{"type":"pong"}`)))
	assert.Equal(t, 2, g.SendAll([]byte(`{"type":"pong"}`), "c1"))

	assert.Len(t, c1.Frames(), 1)
	assert.Len(t, c2.Frames(), 2)
	assert.Len(t, c3.Frames(), 2)
}

func TestBroadcastGroupSkipsRefusingConn(t *testing.T) {
	g := hub.NewBroadcastGroup()
	slow := hubtest.NewActiveConn("slow", domain.Identity{ID: "u1"})
	fast := hubtest.NewActiveConn("fast", domain.Identity{ID: "u2"})
	slow.Refuse()
	g.Add(slow)
	g.Add(fast)

	assert.Equal(t, 1, g.SendAll([]byte(`{}`)))
	assert.Len(t, fast.Frames(), 1)
}

func TestHubRegistry(t *testing.T) {
	h := hub.NewHub()
	c1 := hubtest.NewActiveConn("c1", domain.Identity{ID: "u1"})
	c2 := hubtest.NewActiveConn("c2", domain.Identity{ID: "u2"})
	pending := hubtest.NewConn("c3")
	h.Register(c1)
	h.Register(c2)
	h.Register(pending)
	assert.Equal(t, 3, h.Count())

	// Only active connections receive broadcasts.
	assert.Equal(t, 1, h.Broadcast([]byte(`{}`), "c1"))
	assert.Empty(t, pending.Frames())

	assert.Equal(t, 1, h.SendTo([]string{"c1", "missing"}, []byte(`{}`)))

	got, ok := h.Get("c2")
	assert.True(t, ok)
	assert.Equal(t, "c2", got.ID())

	assert.True(t, h.Unregister("c2"))
	assert.False(t, h.Unregister("c2"))

	h.CloseAll(1001, "shutdown")
	closed, code := c1.Closed()
	assert.True(t, closed)
	assert.Equal(t, 1001, code)
}
