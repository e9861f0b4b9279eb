// Package protocol defines the JSON frames exchanged over the realtime
// WebSocket. Every frame is an object with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"time"
)

// Frame types sent by clients.
const (
	TypeAuth        = "auth"
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeSendMessage = "send_message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypePing        = "ping"
)

// Frame types sent by the server. typing_start and typing_stop are shared
// with the client direction.
const (
	TypeAuthResult      = "auth_result"
	TypeRoomJoined      = "room_joined"
	TypeRoomLeft        = "room_left"
	TypeMessageReceived = "message_received"
	TypeUserOnline      = "user_online"
	TypeUserOffline     = "user_offline"
	TypeEvent           = "event"
	TypeError           = "error"
	TypePong            = "pong"
)

// Error codes carried by error frames.
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeAccessDenied     = "ACCESS_DENIED"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeNotActive        = "NOT_ACTIVE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// WebSocket close codes in the private range.
const (
	CloseUnauthenticated  = 4401
	CloseForcedDisconnect = 4403
)

// Envelope is the minimal shape used to route a frame by type.
type Envelope struct {
	Type string `json:"type"`
}

// Client -> Server

type AuthRequest struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

type JoinRoomRequest struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Ref    string `json:"ref,omitempty"`
}

type LeaveRoomRequest struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Ref    string `json:"ref,omitempty"`
}

type SendMessageRequest struct {
	Type        string `json:"type"`
	RoomID      string `json:"room_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"`
	ReplyToID   string `json:"reply_to_id,omitempty"`
	Ref         string `json:"ref,omitempty"`
}

// TypingRequest covers both typing_start and typing_stop.
type TypingRequest struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// Typing reports whether the frame starts typing.
func (r *TypingRequest) Typing() bool {
	return r.Type == TypeTypingStart
}

type PingRequest struct {
	Type string `json:"type"`
}

// Server -> Client

// UserSummary is the public display projection of a user.
type UserSummary struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
}

type AuthResult struct {
	Type         string       `json:"type"`
	Success      bool         `json:"success"`
	ConnectionID string       `json:"connection_id,omitempty"`
	UserID       string       `json:"user_id,omitempty"`
	User         *UserSummary `json:"user,omitempty"`
	Message      string       `json:"message,omitempty"`
}

type RoomJoined struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Ref    string `json:"ref,omitempty"`
}

type RoomLeft struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Ref    string `json:"ref,omitempty"`
}

// ReplySummary is the quoted parent of a reply.
type ReplySummary struct {
	ID       string       `json:"id"`
	Content  string       `json:"content"`
	SenderID string       `json:"sender_id"`
	Sender   *UserSummary `json:"sender,omitempty"`
}

// ChatMessage is a persisted message with its sender resolved.
type ChatMessage struct {
	ID          string        `json:"id"`
	RoomID      string        `json:"room_id"`
	SenderID    string        `json:"sender_id"`
	Content     string        `json:"content"`
	MessageType string        `json:"message_type"`
	ReplyToID   string        `json:"reply_to_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Sender      *UserSummary  `json:"sender,omitempty"`
	ReplyTo     *ReplySummary `json:"reply_to,omitempty"`
}

type MessageReceived struct {
	Type    string      `json:"type"`
	Ref     string      `json:"ref,omitempty"`
	Message ChatMessage `json:"message"`
}

// PresenceEvent is used for user_online and user_offline.
type PresenceEvent struct {
	Type   string       `json:"type"`
	UserID string       `json:"user_id"`
	User   *UserSummary `json:"user,omitempty"`
}

// TypingEvent is used for typing_start and typing_stop.
type TypingEvent struct {
	Type   string       `json:"type"`
	RoomID string       `json:"room_id"`
	UserID string       `json:"user_id"`
	User   *UserSummary `json:"user,omitempty"`
}

// ServerEvent carries a server-initiated push such as a notification
// raised by another service.
type ServerEvent struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

func (e *ErrorMessage) Error() string {
	return e.Code + ": " + e.Message
}

type Pong struct {
	Type string `json:"type"`
}

func NewErrorMessage(code, message, ref string) *ErrorMessage {
	return &ErrorMessage{
		Type:    TypeError,
		Code:    code,
		Message: message,
		Ref:     ref,
	}
}
