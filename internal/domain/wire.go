package domain

import (
	"strings"

	"github.com/weiawesome/wes-io-chat/pkg/protocol"
)

// ToWire converts the summary into its frame representation.
func (u *UserSummary) ToWire() *protocol.UserSummary {
	if u == nil {
		return nil
	}
	return &protocol.UserSummary{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Avatar:      u.Avatar,
	}
}

// ToWire converts the identity's public fields into a frame summary.
func (i Identity) ToWire() *protocol.UserSummary {
	s := i.Summary()
	w := s.ToWire()
	w.DisplayName = i.DisplayName()
	return w
}

// ToWire converts a hydrated message into the message_received payload.
func (m *Message) ToWire() protocol.ChatMessage {
	out := protocol.ChatMessage{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		MessageType: string(m.Type),
		ReplyToID:   m.ReplyToID,
		CreatedAt:   m.CreatedAt,
		Sender:      m.Sender.ToWire(),
	}
	if m.ReplyTo != nil {
		out.ReplyTo = &protocol.ReplySummary{
			ID:       m.ReplyTo.ID,
			Content:  m.ReplyTo.Content,
			SenderID: m.ReplyTo.SenderID,
			Sender:   m.ReplyTo.Sender.ToWire(),
		}
	}
	return out
}
