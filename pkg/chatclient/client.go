// Package chatclient is a Go client for the realtime chat WebSocket API.
//
// A Client holds at most one transport. It authenticates with the first
// frame, reconnects on unexpected drops with a bounded number of attempts,
// and re-joins the rooms it was in. Listeners are called on the client's
// read goroutine and must not block.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-chat/pkg/protocol"
)

var (
	ErrConnectInProgress = errors.New("connection already in progress")
	ErrNotConnected      = errors.New("not connected")
	ErrAuthRejected      = errors.New("authentication rejected")
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = time.Second
	DefaultTimeout              = 10 * time.Second
)

type Config struct {
	// URL of the WebSocket endpoint, e.g. ws://localhost:3001/ws.
	URL string

	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	// Timeout bounds the dial plus handshake, and each write.
	Timeout time.Duration

	Header http.Header
	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateConnected
	stateReconnecting
)

type Client struct {
	cfg Config
	log zerolog.Logger

	mu           sync.Mutex
	state        state
	conn         *websocket.Conn
	token        string
	connectionID string
	userID       string
	rooms        map[string]struct{}
	// stop is closed by Disconnect to end a pending reconnect.
	stop chan struct{}

	writeMu sync.Mutex

	messages listeners[Message]
	presence listeners[PresenceChange]
	typing   listeners[TypingChange]
	roomEvts listeners[RoomEvent]
	errs     listeners[*protocol.ErrorMessage]
	status   listeners[Status]
	events   listeners[*protocol.ServerEvent]
}

func New(cfg Config) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "chatclient").Logger(),
		rooms: make(map[string]struct{}),
	}
}

// Connect dials and authenticates. It returns nil at once when already
// connected and ErrConnectInProgress while a connect or reconnect runs.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	switch c.state {
	case stateConnected:
		c.mu.Unlock()
		return nil
	case stateConnecting, stateReconnecting:
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	c.state = stateConnecting
	c.token = token
	c.mu.Unlock()

	conn, result, err := c.dial(ctx, token)

	c.mu.Lock()
	if err != nil {
		c.state = stateIdle
		c.mu.Unlock()
		return err
	}
	if c.state != stateConnecting {
		// Disconnect ran during the handshake.
		c.mu.Unlock()
		conn.Close()
		return ErrNotConnected
	}
	c.attach(conn, result)
	c.stop = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn)
	c.status.emit(StatusConnected)
	return nil
}

// Disconnect closes the transport and cancels any pending reconnect.
// Joined rooms are forgotten.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	wasActive := c.state != stateIdle
	c.conn = nil
	c.state = stateIdle
	c.rooms = make(map[string]struct{})
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.Timeout))
		conn.Close()
	}
	if wasActive {
		c.status.emit(StatusDisconnected)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// ConnectionID is the server-assigned id of the current transport.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Rooms lists the rooms the server has confirmed joining.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomsLocked()
}

func (c *Client) JoinRoom(roomID string) error {
	return c.write(&protocol.JoinRoomRequest{Type: protocol.TypeJoinRoom, RoomID: roomID})
}

func (c *Client) LeaveRoom(roomID string) error {
	return c.write(&protocol.LeaveRoomRequest{Type: protocol.TypeLeaveRoom, RoomID: roomID})
}

func (c *Client) SendMessage(roomID, content string, opts ...SendOption) error {
	req := &protocol.SendMessageRequest{
		Type:    protocol.TypeSendMessage,
		RoomID:  roomID,
		Content: content,
	}
	for _, opt := range opts {
		opt(req)
	}
	return c.write(req)
}

func (c *Client) StartTyping(roomID string) error {
	return c.write(&protocol.TypingRequest{Type: protocol.TypeTypingStart, RoomID: roomID})
}

func (c *Client) StopTyping(roomID string) error {
	return c.write(&protocol.TypingRequest{Type: protocol.TypeTypingStop, RoomID: roomID})
}

func (c *Client) OnMessage(fn func(Message)) func()              { return c.messages.add(fn) }
func (c *Client) OnPresence(fn func(PresenceChange)) func()      { return c.presence.add(fn) }
func (c *Client) OnTyping(fn func(TypingChange)) func()          { return c.typing.add(fn) }
func (c *Client) OnRoomEvent(fn func(RoomEvent)) func()          { return c.roomEvts.add(fn) }
func (c *Client) OnError(fn func(*protocol.ErrorMessage)) func() { return c.errs.add(fn) }
func (c *Client) OnStatus(fn func(Status)) func()                { return c.status.add(fn) }

// OnEvent subscribes to server pushes.
func (c *Client) OnEvent(fn func(*protocol.ServerEvent)) func() { return c.events.add(fn) }

// dial opens the transport and runs the auth handshake within cfg.Timeout.
func (c *Client) dial(ctx context.Context, token string) (*websocket.Conn, *protocol.AuthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	deadline, _ := ctx.Deadline()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(&protocol.AuthRequest{Type: protocol.TypeAuth, Token: token}); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("send auth: %w", err)
	}

	conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		if closeCode(err) == protocol.CloseUnauthenticated {
			return nil, nil, ErrAuthRejected
		}
		return nil, nil, fmt.Errorf("read auth result: %w", err)
	}

	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("read auth result: %w", err)
	}
	result, ok := msg.(*protocol.AuthResult)
	if !ok {
		conn.Close()
		return nil, nil, fmt.Errorf("unexpected %s frame during handshake", msg.MessageType())
	}
	if !result.Success {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrAuthRejected, result.Message)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})
	return conn, result, nil
}

// attach installs a handshaken transport. c.mu must be held.
func (c *Client) attach(conn *websocket.Conn, result *protocol.AuthResult) {
	c.conn = conn
	c.state = stateConnected
	c.connectionID = result.ConnectionID
	c.userID = result.UserID
}

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout))
	return conn.WriteJSON(v)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("ignoring undecodable frame")
		return
	}

	switch m := msg.(type) {
	case *protocol.MessageReceived:
		c.messages.emit(Message{ChatMessage: m.Message, Ref: m.Ref})
	case *protocol.PresenceEvent:
		c.presence.emit(PresenceChange{UserID: m.UserID, Online: m.Type == protocol.TypeUserOnline, User: m.User})
	case *protocol.TypingEvent:
		c.typing.emit(TypingChange{RoomID: m.RoomID, UserID: m.UserID, Typing: m.Type == protocol.TypeTypingStart, User: m.User})
	case *protocol.RoomJoined:
		c.mu.Lock()
		c.rooms[m.RoomID] = struct{}{}
		c.mu.Unlock()
		c.roomEvts.emit(RoomEvent{RoomID: m.RoomID, Action: RoomActionJoined, Ref: m.Ref})
	case *protocol.RoomLeft:
		c.mu.Lock()
		delete(c.rooms, m.RoomID)
		c.mu.Unlock()
		c.roomEvts.emit(RoomEvent{RoomID: m.RoomID, Action: RoomActionLeft, Ref: m.Ref})
	case *protocol.ServerEvent:
		c.events.emit(m)
	case *protocol.ErrorMessage:
		c.errs.emit(m)
	}
}

// handleDrop runs when the read loop of conn ends. Drops after Disconnect
// are ignored. Forced disconnects and auth rejections are terminal; anything
// else starts a reconnect.
func (c *Client) handleDrop(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	conn.Close()

	code := closeCode(err)
	if code == protocol.CloseForcedDisconnect || code == protocol.CloseUnauthenticated {
		c.state = stateIdle
		c.rooms = make(map[string]struct{})
		if c.stop != nil {
			close(c.stop)
			c.stop = nil
		}
		c.mu.Unlock()
		c.log.Info().Int("code", code).Msg("disconnected by server")
		c.status.emit(StatusDisconnected)
		return
	}

	c.state = stateReconnecting
	stop := c.stop
	c.mu.Unlock()

	c.log.Warn().Err(err).Msg("connection lost, reconnecting")
	c.status.emit(StatusDisconnected)
	go c.reconnect(stop)
}

func (c *Client) reconnect(stop chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-stop:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		c.mu.Lock()
		token := c.token
		c.mu.Unlock()

		conn, result, err := c.dial(ctx, token)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			if errors.Is(err, ErrAuthRejected) {
				break
			}
			continue
		}

		c.mu.Lock()
		if c.stop != stop {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.attach(conn, result)
		rooms := c.roomsLocked()
		c.mu.Unlock()

		go c.readLoop(conn)
		for _, roomID := range rooms {
			if err := c.JoinRoom(roomID); err != nil {
				c.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to rejoin room")
			}
		}
		c.log.Info().Int("attempt", attempt).Msg("reconnected")
		c.status.emit(StatusReconnected)
		return
	}

	c.mu.Lock()
	if c.stop != stop {
		c.mu.Unlock()
		return
	}
	c.state = stateIdle
	c.rooms = make(map[string]struct{})
	close(c.stop)
	c.stop = nil
	c.mu.Unlock()
	c.status.emit(StatusConnectionLost)
}

func (c *Client) roomsLocked() []string {
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}
