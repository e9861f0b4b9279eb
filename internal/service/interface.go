package service

import (
	"context"
	"encoding/json"

	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/pkg/protocol"
)

// RealtimeService drives each connection through
// Connecting -> Authenticated -> Active -> Closed and routes its frames.
type RealtimeService interface {
	Connect(ctx context.Context, conn hub.Conn, token string) error
	JoinRoom(ctx context.Context, conn hub.Conn, req *protocol.JoinRoomRequest) error
	LeaveRoom(ctx context.Context, conn hub.Conn, req *protocol.LeaveRoomRequest) error
	SendMessage(ctx context.Context, conn hub.Conn, req *protocol.SendMessageRequest) error
	SetTyping(ctx context.Context, conn hub.Conn, req *protocol.TypingRequest)
	Disconnect(ctx context.Context, conn hub.Conn, reason string)

	PushToUser(ctx context.Context, userID, event string, payload json.RawMessage) int
	PushToRoom(ctx context.Context, roomID, event string, payload json.RawMessage) int
	DisconnectUser(ctx context.Context, userID, reason string) int

	IsOnline(userID string) bool
	OnlineUsers() []string
	Stats() Stats

	Start(ctx context.Context) error
	Stop() error
}

// Stats is a point-in-time view of the in-memory registries.
type Stats struct {
	Connections int `json:"connections"`
	OnlineUsers int `json:"online_users"`
	ActiveRooms int `json:"active_rooms"`
}
