package domain

import (
	"fmt"
	"strings"
	"time"
)

type MessageType string

const (
	MessageTypeText         MessageType = "text"
	MessageTypeImage        MessageType = "image"
	MessageTypeFile         MessageType = "file"
	MessageTypeSystem       MessageType = "system"
	MessageTypeAnnouncement MessageType = "announcement"
)

// ParseMessageType maps client input onto the closed enumeration. An empty
// value means text.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return MessageTypeText, nil
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem, MessageTypeAnnouncement:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unsupported message type %q", ErrValidationFailed, s)
	}
}

// Message is a chat message. ID and CreatedAt are assigned by the store;
// Sender and ReplyTo are hydrated on read.
type Message struct {
	ID        string
	RoomID    string
	SenderID  string
	Content   string
	Type      MessageType
	ReplyToID string
	CreatedAt time.Time

	Sender  *UserSummary
	ReplyTo *Message
}
