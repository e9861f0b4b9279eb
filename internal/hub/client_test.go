package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/config"
)

var testWSConfig = config.WebSocketConfig{
	PingInterval:   time.Second,
	PongWait:       2 * time.Second,
	WriteWait:      time.Second,
	MaxMessageSize: 4096,
	SendBuffer:     4,
}

// serve upgrades every request and hands the client to fn on the server side.
func serve(t *testing.T, cfg config.WebSocketConfig, fn func(*Client)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(NewClient("c1", conn, cfg))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClientFlushesBeforeCloseFrame(t *testing.T) {
	conn := serve(t, testWSConfig, func(c *Client) {
		go c.WritePump()
		assert.True(t, c.Send([]byte(`{"type":"auth_result","success":false}`)))
		c.Close(4401, "unauthorized")
		assert.False(t, c.Send([]byte(`{}`)))
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"auth_result","success":false}`, string(data))

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, 4401))
}

func TestClientClosesSlowConsumer(t *testing.T) {
	cfg := testWSConfig
	cfg.SendBuffer = 1
	done := make(chan bool, 2)

	serve(t, cfg, func(c *Client) {
		// No WritePump: the queue never drains.
		done <- c.Send([]byte(`1`))
		done <- c.Send([]byte(`2`))
		c.conn.Close()
	})

	assert.True(t, <-done)
	assert.False(t, <-done)
}

func TestClientReadPumpDeliversInOrder(t *testing.T) {
	received := make(chan string, 3)
	conn := serve(t, testWSConfig, func(c *Client) {
		go c.WritePump()
		c.ReadPump(context.Background(), func(_ context.Context, data []byte) {
			received <- string(data)
		})
	})

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatal("frame not delivered")
		}
	}
}
