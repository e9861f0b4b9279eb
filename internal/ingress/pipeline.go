package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/protocol"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

const DefaultMaxMessageLength = 4000

// Subscriptions is the room membership view the pipeline needs.
type Subscriptions interface {
	IsMember(connID, roomID string) bool
	Broadcast(roomID string, data []byte, exclude ...string) int
}

// Request is a message submission from one connection.
type Request struct {
	RoomID    string
	Content   string
	Type      string
	ReplyToID string
	// Ref is echoed back to the submitting connection only.
	Ref string
}

// Result describes a persisted and broadcast message.
type Result struct {
	Message   *domain.Message
	Delivered int
}

// Pipeline validates, persists and then broadcasts chat messages.
type Pipeline struct {
	subs      Subscriptions
	rooms     repository.RoomRepository
	messages  repository.MessageRepository
	publisher pubsub.Publisher
	maxLength int
}

// NewPipeline creates a pipeline. publisher may be nil.
func NewPipeline(subs Subscriptions, rooms repository.RoomRepository, messages repository.MessageRepository, publisher pubsub.Publisher, maxLength int) *Pipeline {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	return &Pipeline{
		subs:      subs,
		rooms:     rooms,
		messages:  messages,
		publisher: publisher,
		maxLength: maxLength,
	}
}

// Submit runs the steps in order: membership, validation, reply target,
// persist, activity bump, broadcast, event publish. Nothing is broadcast
// unless the message was persisted.
func (p *Pipeline) Submit(ctx context.Context, conn hub.Conn, req Request) (*Result, error) {
	session := conn.Session()
	if !session.IsActive() {
		return nil, domain.ErrNotActive
	}
	l := log.Ctx(ctx).With().Str(log.FieldRoomID, req.RoomID).Logger()

	if !p.subs.IsMember(conn.ID(), req.RoomID) {
		return nil, domain.DenyAccess(domain.ErrForbidden, "connection has not joined room")
	}

	msgType, err := p.validate(req)
	if err != nil {
		return nil, err
	}

	if req.ReplyToID != "" {
		parent, err := p.messages.FindByID(ctx, req.ReplyToID)
		if err != nil && !errors.Is(err, repository.ErrMessageNotFound) {
			return nil, fmt.Errorf("load reply target: %w", err)
		}
		if parent == nil || parent.RoomID != req.RoomID {
			return nil, domain.DenyAccess(domain.ErrNotFound, "reply target missing or in another room")
		}
	}

	// The write runs to completion even if the connection goes away.
	persistCtx := context.WithoutCancel(ctx)

	msg := &domain.Message{
		RoomID:    req.RoomID,
		SenderID:  session.UserID(),
		Content:   req.Content,
		Type:      msgType,
		ReplyToID: req.ReplyToID,
	}
	if err := p.messages.Create(persistCtx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	l = l.With().Str(log.FieldMessageID, msg.ID).Logger()

	if err := p.rooms.TouchActivity(persistCtx, req.RoomID, msg.CreatedAt); err != nil {
		l.Warn().Err(err).Msg("failed to update room activity")
	}

	delivered := p.broadcast(conn, msg, req.Ref)
	l.Debug().Int("delivered", delivered).Msg("message broadcast")

	p.publish(persistCtx, l, msg, delivered)

	return &Result{Message: msg, Delivered: delivered}, nil
}

func (p *Pipeline) validate(req Request) (domain.MessageType, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return "", fmt.Errorf("%w: content is required", domain.ErrValidationFailed)
	}
	if n := utf8.RuneCountInString(req.Content); n > p.maxLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", domain.ErrValidationFailed, p.maxLength)
	}
	return domain.ParseMessageType(req.Type)
}

// broadcast fans the message out to the room as it is now. The submitting
// connection gets its own copy carrying the request ref.
func (p *Pipeline) broadcast(conn hub.Conn, msg *domain.Message, ref string) int {
	frame := protocol.MessageReceived{
		Type:    protocol.TypeMessageReceived,
		Message: msg.ToWire(),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return 0
	}
	if ref == "" {
		return p.subs.Broadcast(msg.RoomID, data)
	}

	delivered := p.subs.Broadcast(msg.RoomID, data, conn.ID())
	if p.subs.IsMember(conn.ID(), msg.RoomID) {
		frame.Ref = ref
		if own, err := json.Marshal(frame); err == nil && conn.Send(own) {
			delivered++
		}
	}
	return delivered
}

func (p *Pipeline) publish(ctx context.Context, l zerolog.Logger, msg *domain.Message, delivered int) {
	if p.publisher == nil {
		return
	}
	event, err := pubsub.NewEvent(pubsub.EventMessageCreated, msg.RoomID, msg.SenderID, pubsub.MessageCreatedPayload{
		MessageID:   msg.ID,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		MessageType: string(msg.Type),
		ReplyToID:   msg.ReplyToID,
		Recipients:  delivered,
	})
	if err == nil {
		err = p.publisher.Publish(ctx, pubsub.ChannelMessages, event)
	}
	if err != nil {
		l.Warn().Err(err).Msg("failed to publish message event")
	}
}
