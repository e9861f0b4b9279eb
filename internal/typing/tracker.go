// Package typing relays typing indicators within a room. Nothing is stored:
// clients own the inactivity timeout and are expected to send an explicit
// stop, so a client that disappears mid-typing leaves peers with a stale
// indicator until their own timer fires.
package typing

import (
	"encoding/json"

	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/pkg/protocol"
)

// Subscriptions is the room membership view the tracker needs.
type Subscriptions interface {
	IsMember(connID, roomID string) bool
	Broadcast(roomID string, data []byte, exclude ...string) int
}

type Tracker struct {
	subs Subscriptions
}

func NewTracker(subs Subscriptions) *Tracker {
	return &Tracker{subs: subs}
}

// SetTyping relays the indicator to every other connection in the room and
// returns the number of deliveries. Non-members are dropped silently.
func (t *Tracker) SetTyping(conn hub.Conn, roomID string, typing bool) int {
	session := conn.Session()
	if !session.IsActive() || !t.subs.IsMember(conn.ID(), roomID) {
		return 0
	}

	frameType := protocol.TypeTypingStop
	if typing {
		frameType = protocol.TypeTypingStart
	}
	identity := session.Identity()
	data, err := json.Marshal(protocol.TypingEvent{
		Type:   frameType,
		RoomID: roomID,
		UserID: identity.ID,
		User:   identity.ToWire(),
	})
	if err != nil {
		return 0
	}
	return t.subs.Broadcast(roomID, data, conn.ID())
}
