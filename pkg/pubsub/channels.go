package pubsub

import "encoding/json"

// Channels used by the realtime service.
const (
	// Outbound: persisted chat messages, for indexing and notification workers.
	ChannelMessages = "chat:messages"

	// Outbound: presence transitions (first connection / last disconnect).
	ChannelPresence = "chat:presence"

	// Inbound: server pushes requested by other services.
	ChannelPush = "chat:push"
)

// Event types on ChannelMessages and ChannelPresence.
const (
	EventMessageCreated = "message.created"
	EventUserOnline     = "presence.online"
	EventUserOffline    = "presence.offline"
)

// Event types on ChannelPush.
const (
	EventPushToUser = "push.user"
	EventPushToRoom = "push.room"
)

// MessageCreatedPayload is published once a message is durable.
type MessageCreatedPayload struct {
	MessageID   string `json:"message_id"`
	RoomID      string `json:"room_id"`
	SenderID    string `json:"sender_id"`
	MessageType string `json:"message_type"`
	ReplyToID   string `json:"reply_to_id,omitempty"`
	Recipients  int    `json:"recipients"`
}

// PresencePayload is published when a user comes online or goes offline.
type PresencePayload struct {
	UserID      string `json:"user_id"`
	Connections int    `json:"connections"`
}

// PushPayload asks the realtime service to deliver an event frame to a
// user (Event.UserID) or a room (Event.RoomID).
type PushPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
