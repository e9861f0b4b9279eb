package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat/internal/auth"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/protocol"
)

var errNotAuthFrame = errors.New("first frame must be auth")

// WSHandler upgrades /ws requests and runs each connection through the
// handshake and the read loop.
type WSHandler struct {
	service  service.RealtimeService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(svc service.RealtimeService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewOriginChecker(wsCfg.AllowedOrigins).Check,
		},
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request and hands the connection to its own
// goroutines, so the request completes right after the handshake.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), conn, h.wsCfg)

	// The request context ends when this handler returns.
	ctx := log.WithConnection(context.WithoutCancel(c.Request.Context()), client.ID(), "")
	header := c.GetHeader(middleware.AuthHeaderKey)
	query := c.Query("token")

	go client.WritePump()
	go h.serve(ctx, client, header, query)
}

func (h *WSHandler) serve(ctx context.Context, client *hub.Client, header, query string) {
	l := log.Ctx(ctx)

	token, err := h.readAuth(client, header, query)
	if err != nil {
		l.Debug().Err(err).Msg("handshake failed")
		h.reply(client, &protocol.AuthResult{Type: protocol.TypeAuthResult, Message: err.Error()})
		client.Close(protocol.CloseUnauthenticated, "unauthorized")
		return
	}

	if err := h.service.Connect(ctx, client, token); err != nil {
		client.Close(protocol.CloseUnauthenticated, "unauthorized")
		return
	}

	ctx = log.WithConnection(ctx, client.ID(), client.Session().UserID())
	defer func() {
		h.service.Disconnect(ctx, client, "connection closed")
		client.Close(websocket.CloseNormalClosure, "")
	}()

	client.ReadPump(ctx, func(ctx context.Context, message []byte) {
		h.dispatch(ctx, client, message)
	})
}

// readAuth waits for the first frame, which must be an auth frame. The token
// in the frame wins over the Authorization header and the query parameter.
func (h *WSHandler) readAuth(client *hub.Client, header, query string) (string, error) {
	data, err := client.ReadFrame(h.wsCfg.AuthTimeout)
	if err != nil {
		return "", fmt.Errorf("read auth frame: %w", err)
	}
	ev, err := protocol.DecodeClientEvent(data)
	if err != nil {
		return "", err
	}
	req, ok := ev.(*protocol.AuthRequest)
	if !ok {
		return "", errNotAuthFrame
	}
	token := auth.ExtractToken(req.Token, header, query)
	if token == "" {
		return "", errors.New("missing token")
	}
	return token, nil
}

func (h *WSHandler) dispatch(ctx context.Context, client *hub.Client, message []byte) {
	l := log.Ctx(ctx)

	ev, err := protocol.DecodeClientEvent(message)
	if err != nil {
		l.Debug().Err(err).Msg("rejecting frame")
		h.reply(client, service.ErrorFrame(err, ""))
		return
	}

	switch e := ev.(type) {
	case *protocol.AuthRequest:
		h.reply(client, protocol.NewErrorMessage(protocol.ErrCodeBadRequest, "already authenticated", ""))
	case *protocol.JoinRoomRequest:
		h.service.JoinRoom(ctx, client, e)
	case *protocol.LeaveRoomRequest:
		h.service.LeaveRoom(ctx, client, e)
	case *protocol.SendMessageRequest:
		h.service.SendMessage(ctx, client, e)
	case *protocol.TypingRequest:
		h.service.SetTyping(ctx, client, e)
	case *protocol.PingRequest:
		h.reply(client, &protocol.Pong{Type: protocol.TypePong})
	}
}

func (h *WSHandler) reply(client *hub.Client, msg protocol.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	client.Send(data)
}
