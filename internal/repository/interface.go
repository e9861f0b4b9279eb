package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
)

// UserRepository resolves identities for authentication.
type UserRepository interface {
	// FindActiveByID returns the user only if it exists and is active.
	FindActiveByID(ctx context.Context, id string) (*domain.Identity, error)
}

// RoomRepository reads chats and records activity on them.
type RoomRepository interface {
	// FindActiveByID returns the room only if it exists and is not archived.
	FindActiveByID(ctx context.Context, id string) (*domain.Room, error)
	TouchActivity(ctx context.Context, id string, at time.Time) error
}

// MembershipRepository answers whether a user may access a room.
type MembershipRepository interface {
	IsAuthorized(ctx context.Context, userID, roomID string) (bool, error)
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	// Create assigns ID and CreatedAt and hydrates Sender and ReplyTo.
	Create(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
}

// Store bundles every repository the realtime service consumes.
type Store struct {
	Users       UserRepository
	Rooms       RoomRepository
	Memberships MembershipRepository
	Messages    MessageRepository
}
