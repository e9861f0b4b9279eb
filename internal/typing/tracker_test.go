package typing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/hub/hubtest"
	"github.com/weiawesome/wes-io-chat/internal/membership"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/protocol"
)

func setup(t *testing.T) (*Tracker, *membership.Manager, []*hubtest.Conn) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	repo.AddRoom(domain.Room{ID: "R", Type: domain.RoomTypeGroup})
	repo.AddMember("R", "alice")
	repo.AddMember("R", "bob")
	members := membership.NewManager(repo.Rooms(), repo)

	c1 := hubtest.NewActiveConn("c1", domain.Identity{ID: "alice", FirstName: "Alice"})
	c2 := hubtest.NewActiveConn("c2", domain.Identity{ID: "alice", FirstName: "Alice"})
	c3 := hubtest.NewActiveConn("c3", domain.Identity{ID: "bob", FirstName: "Bob"})
	require.NoError(t, members.Join(context.Background(), c1, "alice", "R"))
	require.NoError(t, members.Join(context.Background(), c2, "alice", "R"))
	require.NoError(t, members.Join(context.Background(), c3, "bob", "R"))
	return NewTracker(members), members, []*hubtest.Conn{c1, c2, c3}
}

func TestSetTypingExcludesSender(t *testing.T) {
	tracker, _, conns := setup(t)
	c1, c2, c3 := conns[0], conns[1], conns[2]

	assert.Equal(t, 2, tracker.SetTyping(c1, "R", true))
	assert.Empty(t, c1.Frames())

	var ev protocol.TypingEvent
	require.True(t, c3.Last(&ev))
	assert.Equal(t, protocol.TypeTypingStart, ev.Type)
	assert.Equal(t, "R", ev.RoomID)
	assert.Equal(t, "alice", ev.UserID)
	require.NotNil(t, ev.User)
	assert.Equal(t, "Alice", ev.User.DisplayName)
	assert.Len(t, c2.Frames(), 1)

	tracker.SetTyping(c1, "R", false)
	require.True(t, c3.Last(&ev))
	assert.Equal(t, protocol.TypeTypingStop, ev.Type)
}

func TestSetTypingDropsNonMember(t *testing.T) {
	tracker, members, conns := setup(t)
	members.Leave("c3", "R")

	assert.Zero(t, tracker.SetTyping(conns[2], "R", true))
	assert.Zero(t, tracker.SetTyping(conns[0], "unknown", true))
	for _, c := range conns {
		assert.Empty(t, c.Frames())
	}
}

func TestTypingFramesAreWellFormed(t *testing.T) {
	tracker, _, conns := setup(t)
	tracker.SetTyping(conns[2], "R", true)

	frames := conns[0].OfType(protocol.TypeTypingStart)
	require.Len(t, frames, 1)
	msg, err := protocol.DecodeServerMessage(frames[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeTypingStart, msg.MessageType())

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(frames[0], &raw))
	assert.Equal(t, "bob", raw["user_id"])
}
