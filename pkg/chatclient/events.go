package chatclient

import "github.com/weiawesome/wes-io-chat/pkg/protocol"

// Status is a transport lifecycle notification.
type Status string

const (
	StatusConnected      Status = "connected"
	StatusReconnected    Status = "reconnected"
	StatusDisconnected   Status = "disconnected"
	StatusConnectionLost Status = "connection_lost"
)

type PresenceChange struct {
	UserID string
	Online bool
	User   *protocol.UserSummary
}

type TypingChange struct {
	RoomID string
	UserID string
	Typing bool
	User   *protocol.UserSummary
}

type RoomAction string

const (
	RoomActionJoined RoomAction = "joined"
	RoomActionLeft   RoomAction = "left"
)

type RoomEvent struct {
	RoomID string
	Action RoomAction
	Ref    string
}

// Message is a received chat message. Ref is set only on the sender's own
// copy and echoes the ref passed to SendMessage.
type Message struct {
	protocol.ChatMessage
	Ref string
}

// SendOption customizes a send_message frame.
type SendOption func(*protocol.SendMessageRequest)

func WithMessageType(t string) SendOption {
	return func(r *protocol.SendMessageRequest) { r.MessageType = t }
}

func WithReplyTo(messageID string) SendOption {
	return func(r *protocol.SendMessageRequest) { r.ReplyToID = messageID }
}

// WithRef sets a correlation id echoed on the resulting message_received
// or error frame.
func WithRef(ref string) SendOption {
	return func(r *protocol.SendMessageRequest) { r.Ref = ref }
}
