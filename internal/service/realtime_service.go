package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat/internal/audit"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/ingress"
	"github.com/weiawesome/wes-io-chat/internal/membership"
	"github.com/weiawesome/wes-io-chat/internal/presence"
	"github.com/weiawesome/wes-io-chat/internal/typing"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/protocol"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

const revocationCleanupInterval = 10 * time.Minute

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
}

// TokenRevoker invalidates outstanding tokens on forced disconnect.
type TokenRevoker interface {
	RevokeUserTokens(userID string)
	CleanupExpiredRevocations()
}

// Dependencies are the collaborators of the realtime service. Mirror, Bus
// and Revoker are optional.
type Dependencies struct {
	Hub        *hub.Hub
	Auth       Authenticator
	Presence   *presence.Registry
	Membership *membership.Manager
	Ingress    *ingress.Pipeline
	Typing     *typing.Tracker
	Mirror     presence.Mirror
	Bus        pubsub.PubSub
	Revoker    TokenRevoker
}

type realtimeService struct {
	hub      *hub.Hub
	auth     Authenticator
	presence *presence.Registry
	members  *membership.Manager
	ingress  *ingress.Pipeline
	typing   *typing.Tracker
	mirror   presence.Mirror
	bus      pubsub.PubSub
	revoker  TokenRevoker

	// transitionMu orders presence transitions: the registry decision and
	// its announcement happen under one lock, so peers see online and
	// offline events in the order the registry changed.
	transitionMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRealtimeService(deps Dependencies) RealtimeService {
	mirror := deps.Mirror
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	return &realtimeService{
		hub:      deps.Hub,
		auth:     deps.Auth,
		presence: deps.Presence,
		members:  deps.Membership,
		ingress:  deps.Ingress,
		typing:   deps.Typing,
		mirror:   mirror,
		bus:      deps.Bus,
		revoker:  deps.Revoker,
	}
}

func (s *realtimeService) Connect(ctx context.Context, conn hub.Conn, token string) error {
	session := conn.Session()

	identity, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		session.Close()
		send(conn, &protocol.AuthResult{
			Type:    protocol.TypeAuthResult,
			Success: false,
			Message: "authentication failed",
		})
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", err.Error(), "connection rejected")
		return err
	}
	if err := session.Authenticate(*identity); err != nil {
		session.Close()
		return err
	}

	send(conn, &protocol.AuthResult{
		Type:         protocol.TypeAuthResult,
		Success:      true,
		ConnectionID: conn.ID(),
		UserID:       identity.ID,
		User:         identity.ToWire(),
	})

	s.hub.Register(conn)
	s.transitionMu.Lock()
	first := s.presence.Register(identity.ID, conn.ID())
	if first {
		s.hub.Broadcast(encode(&protocol.PresenceEvent{
			Type:   protocol.TypeUserOnline,
			UserID: identity.ID,
			User:   identity.ToWire(),
		}), conn.ID())
	}
	s.syncPresence(ctx, identity.ID, first, false)
	s.transitionMu.Unlock()

	if err := session.Activate(); err != nil {
		s.Disconnect(ctx, conn, "activation failed")
		return err
	}

	audit.Log(ctx, audit.ActionConnect, identity.ID, "connection established")
	return nil
}

func (s *realtimeService) JoinRoom(ctx context.Context, conn hub.Conn, req *protocol.JoinRoomRequest) error {
	session := conn.Session()
	if !session.IsActive() {
		send(conn, ErrorFrame(domain.ErrNotActive, req.Ref))
		return domain.ErrNotActive
	}
	userID := session.UserID()

	if err := s.members.Join(ctx, conn, userID, req.RoomID); err != nil {
		send(conn, ErrorFrame(err, req.Ref))
		if errors.Is(err, domain.ErrAccessDenied) {
			audit.LogWithDetail(ctx, audit.ActionJoinDenied, userID, err.Error(), "room join denied")
		}
		return err
	}

	send(conn, &protocol.RoomJoined{Type: protocol.TypeRoomJoined, RoomID: req.RoomID, Ref: req.Ref})
	audit.LogTarget(ctx, audit.ActionJoinRoom, userID, req.RoomID, "joined room")
	return nil
}

func (s *realtimeService) LeaveRoom(ctx context.Context, conn hub.Conn, req *protocol.LeaveRoomRequest) error {
	session := conn.Session()
	if !session.IsActive() {
		send(conn, ErrorFrame(domain.ErrNotActive, req.Ref))
		return domain.ErrNotActive
	}

	if s.members.Leave(conn.ID(), req.RoomID) {
		audit.LogTarget(ctx, audit.ActionLeaveRoom, session.UserID(), req.RoomID, "left room")
	}
	send(conn, &protocol.RoomLeft{Type: protocol.TypeRoomLeft, RoomID: req.RoomID, Ref: req.Ref})
	return nil
}

func (s *realtimeService) SendMessage(ctx context.Context, conn hub.Conn, req *protocol.SendMessageRequest) error {
	result, err := s.ingress.Submit(ctx, conn, ingress.Request{
		RoomID:    req.RoomID,
		Content:   req.Content,
		Type:      req.MessageType,
		ReplyToID: req.ReplyToID,
		Ref:       req.Ref,
	})
	if err != nil {
		send(conn, ErrorFrame(err, req.Ref))
		return err
	}

	audit.LogTarget(ctx, audit.ActionSendMessage, result.Message.SenderID, result.Message.ID, "message sent")
	return nil
}

func (s *realtimeService) SetTyping(ctx context.Context, conn hub.Conn, req *protocol.TypingRequest) {
	s.typing.SetTyping(conn, req.RoomID, req.Typing())
}

// Disconnect tears the connection down. Every step is idempotent, so it is
// safe to call from both the transport and a forced disconnect.
func (s *realtimeService) Disconnect(ctx context.Context, conn hub.Conn, reason string) {
	conn.Session().Close()

	unregistered := s.hub.Unregister(conn.ID())
	rooms := s.members.LeaveAll(conn.ID())

	s.transitionMu.Lock()
	userID, last, ok := s.presence.Deregister(conn.ID())
	if !ok {
		s.transitionMu.Unlock()
		return
	}
	if last {
		s.hub.Broadcast(encode(&protocol.PresenceEvent{
			Type:   protocol.TypeUserOffline,
			UserID: userID,
		}))
	}
	s.syncPresence(ctx, userID, false, last)
	s.transitionMu.Unlock()

	if unregistered {
		l := log.Ctx(ctx)
		l.Debug().Strs("rooms", rooms).Bool("last", last).Msg("connection torn down")
		audit.LogWithDetail(ctx, audit.ActionDisconnect, userID, reason, "connection closed")
	}
}

func (s *realtimeService) PushToUser(ctx context.Context, userID, event string, payload json.RawMessage) int {
	if len(payload) > 0 && !json.Valid(payload) {
		return 0
	}
	return s.hub.SendTo(s.presence.ConnectionsFor(userID), encode(&protocol.ServerEvent{
		Type:    protocol.TypeEvent,
		Event:   event,
		Payload: payload,
	}))
}

func (s *realtimeService) PushToRoom(ctx context.Context, roomID, event string, payload json.RawMessage) int {
	if len(payload) > 0 && !json.Valid(payload) {
		return 0
	}
	return s.members.Broadcast(roomID, encode(&protocol.ServerEvent{
		Type:    protocol.TypeEvent,
		Event:   event,
		RoomID:  roomID,
		Payload: payload,
	}))
}

// DisconnectUser revokes the user's tokens and closes every connection they
// hold with the forced-disconnect code.
func (s *realtimeService) DisconnectUser(ctx context.Context, userID, reason string) int {
	if s.revoker != nil {
		s.revoker.RevokeUserTokens(userID)
	}

	closed := 0
	for _, id := range s.presence.ConnectionsFor(userID) {
		conn, ok := s.hub.Get(id)
		if !ok {
			continue
		}
		conn.Close(protocol.CloseForcedDisconnect, reason)
		s.Disconnect(ctx, conn, reason)
		closed++
	}
	audit.LogWithDetail(ctx, audit.ActionForceDisconnect, userID, reason, "user disconnected")
	return closed
}

func (s *realtimeService) IsOnline(userID string) bool {
	return s.presence.IsOnline(userID)
}

func (s *realtimeService) OnlineUsers() []string {
	return s.presence.OnlineUsers()
}

func (s *realtimeService) Stats() Stats {
	return Stats{
		Connections: s.hub.Count(),
		OnlineUsers: len(s.presence.OnlineUsers()),
		ActiveRooms: s.members.RoomCount(),
	}
}

// Start resets the presence mirror and starts the push subscriber and the
// revocation cleanup loop.
func (s *realtimeService) Start(ctx context.Context) error {
	l := log.Ctx(ctx)
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.mirror.Reset(ctx); err != nil {
		l.Warn().Err(err).Msg("failed to reset presence mirror")
	}

	if s.bus != nil {
		events, err := s.bus.Subscribe(ctx, pubsub.ChannelPush)
		if err != nil {
			s.cancel()
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for ev := range events {
				s.handlePush(ctx, ev)
			}
		}()
	}

	if s.revoker != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(revocationCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.revoker.CleanupExpiredRevocations()
				}
			}
		}()
	}

	l.Info().Msg("realtime service started")
	return nil
}

// Stop closes every connection and waits for background loops.
func (s *realtimeService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.CloseAll(websocket.CloseGoingAway, "server shutting down")
	s.wg.Wait()
	return nil
}

func (s *realtimeService) handlePush(ctx context.Context, ev *pubsub.Event) {
	l := log.Ctx(ctx).With().Str(log.FieldEventType, ev.Type).Logger()

	var payload pubsub.PushPayload
	if err := ev.UnmarshalPayload(&payload); err != nil || payload.Event == "" {
		l.Warn().Err(err).Msg("dropping malformed push event")
		return
	}

	var delivered int
	switch ev.Type {
	case pubsub.EventPushToUser:
		delivered = s.PushToUser(ctx, ev.UserID, payload.Event, payload.Data)
	case pubsub.EventPushToRoom:
		delivered = s.PushToRoom(ctx, ev.RoomID, payload.Event, payload.Data)
	default:
		l.Warn().Msg("unknown push event type")
		return
	}
	l.Debug().Int("delivered", delivered).Msg("push delivered")
}

// syncPresence updates the mirror and announces first-online and
// last-offline transitions on the bus. Both are best-effort.
func (s *realtimeService) syncPresence(ctx context.Context, userID string, first, last bool) {
	ctx = context.WithoutCancel(ctx)
	l := log.Ctx(ctx)
	count := len(s.presence.ConnectionsFor(userID))

	var err error
	if last {
		err = s.mirror.SetOffline(ctx, userID, time.Now())
	} else {
		err = s.mirror.SetOnline(ctx, userID, count)
	}
	if err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to mirror presence")
	}

	if s.bus == nil || (!first && !last) {
		return
	}
	eventType := pubsub.EventUserOnline
	if last {
		eventType = pubsub.EventUserOffline
	}
	event, err := pubsub.NewEvent(eventType, "", userID, pubsub.PresencePayload{UserID: userID, Connections: count})
	if err == nil {
		err = s.bus.Publish(ctx, pubsub.ChannelPresence, event)
	}
	if err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to publish presence event")
	}
}

func encode(msg protocol.ServerMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldEventType, msg.MessageType()).Msg("failed to encode frame")
		return nil
	}
	return data
}

func send(conn hub.Conn, msg protocol.ServerMessage) bool {
	data := encode(msg)
	if data == nil {
		return false
	}
	return conn.Send(data)
}
