package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Client is a gorilla WebSocket connection with a buffered outbound queue
// drained by WritePump.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	session *domain.Session
	config  config.WebSocketConfig

	mu         sync.Mutex
	closed     bool
	closeFrame []byte
}

func NewClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, buffer),
		session: domain.NewSession(id),
		config:  cfg,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Session() *domain.Session {
	return c.session
}

// Send queues a frame. A full queue means the peer is not keeping up; the
// client is closed rather than blocking the caller.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.closeLocked(websocket.ClosePolicyViolation, "send buffer full")
		return false
	}
}

// Close flushes queued frames, then sends a close frame with the given code.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(code, reason)
}

func (c *Client) closeLocked(code int, reason string) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeFrame = websocket.FormatCloseMessage(code, reason)
	close(c.send)
}

// ReadFrame reads a single frame with its own deadline. It is used for the
// handshake before ReadPump takes over.
func (c *Client) ReadFrame(timeout time.Duration) ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// ReadPump delivers frames to handler in arrival order until the connection
// fails or is closed. It blocks.
func (c *Client) ReadPump(ctx context.Context, handler func(context.Context, []byte)) {
	l := log.Ctx(ctx)

	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		c.session.UpdateActivity()
		handler(ctx, message)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
// It closes the underlying connection on return.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.mu.Lock()
				frame := c.closeFrame
				c.mu.Unlock()
				c.conn.WriteMessage(websocket.CloseMessage, frame)
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
