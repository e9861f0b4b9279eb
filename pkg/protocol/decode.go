package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
	ErrMissingField   = errors.New("missing required field")
)

// ClientEvent is the closed set of frames a client may send. Only the
// types in this package implement it.
type ClientEvent interface {
	EventType() string
	clientEvent()
}

func (r *AuthRequest) EventType() string        { return TypeAuth }
func (r *JoinRoomRequest) EventType() string    { return TypeJoinRoom }
func (r *LeaveRoomRequest) EventType() string   { return TypeLeaveRoom }
func (r *SendMessageRequest) EventType() string { return TypeSendMessage }
func (r *TypingRequest) EventType() string      { return r.Type }
func (r *PingRequest) EventType() string        { return TypePing }

func (*AuthRequest) clientEvent()        {}
func (*JoinRoomRequest) clientEvent()    {}
func (*LeaveRoomRequest) clientEvent()   {}
func (*SendMessageRequest) clientEvent() {}
func (*TypingRequest) clientEvent()      {}
func (*PingRequest) clientEvent()        {}

// DecodeClientEvent parses and validates a client frame. Room-scoped frames
// must carry a room id; content rules are left to the ingress pipeline.
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var ev ClientEvent
	switch env.Type {
	case TypeAuth:
		ev = &AuthRequest{}
	case TypeJoinRoom:
		ev = &JoinRoomRequest{}
	case TypeLeaveRoom:
		ev = &LeaveRoomRequest{}
	case TypeSendMessage:
		ev = &SendMessageRequest{}
	case TypeTypingStart, TypeTypingStop:
		ev = &TypingRequest{}
	case TypePing:
		return &PingRequest{Type: TypePing}, nil
	case "":
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if err := validate(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func validate(ev ClientEvent) error {
	var roomID string
	switch e := ev.(type) {
	case *JoinRoomRequest:
		roomID = e.RoomID
	case *LeaveRoomRequest:
		roomID = e.RoomID
	case *SendMessageRequest:
		roomID = e.RoomID
	case *TypingRequest:
		roomID = e.RoomID
	default:
		return nil
	}
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("%w: room_id", ErrMissingField)
	}
	return nil
}

// ServerMessage is any frame the server may send.
type ServerMessage interface {
	MessageType() string
}

func (m *AuthResult) MessageType() string      { return TypeAuthResult }
func (m *RoomJoined) MessageType() string      { return TypeRoomJoined }
func (m *RoomLeft) MessageType() string        { return TypeRoomLeft }
func (m *MessageReceived) MessageType() string { return TypeMessageReceived }
func (m *PresenceEvent) MessageType() string   { return m.Type }
func (m *TypingEvent) MessageType() string     { return m.Type }
func (m *ServerEvent) MessageType() string     { return TypeEvent }
func (m *ErrorMessage) MessageType() string    { return TypeError }
func (m *Pong) MessageType() string            { return TypePong }

// DecodeServerMessage parses a frame received from the server.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var msg ServerMessage
	switch env.Type {
	case TypeAuthResult:
		msg = &AuthResult{}
	case TypeRoomJoined:
		msg = &RoomJoined{}
	case TypeRoomLeft:
		msg = &RoomLeft{}
	case TypeMessageReceived:
		msg = &MessageReceived{}
	case TypeUserOnline, TypeUserOffline:
		msg = &PresenceEvent{}
	case TypeTypingStart, TypeTypingStop:
		msg = &TypingEvent{}
	case TypeEvent:
		msg = &ServerEvent{}
	case TypeError:
		msg = &ErrorMessage{}
	case TypePong:
		msg = &Pong{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return msg, nil
}
