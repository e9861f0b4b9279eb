// Package hubtest provides an in-memory hub.Conn that records frames.
package hubtest

import (
	"encoding/json"
	"sync"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// Conn records every frame sent to it.
type Conn struct {
	id      string
	session *domain.Session

	mu          sync.Mutex
	frames      [][]byte
	closed      bool
	closeCode   int
	closeReason string
	refuse      bool
}

// NewConn returns a connection in the Connecting state.
func NewConn(id string) *Conn {
	return &Conn{id: id, session: domain.NewSession(id)}
}

// NewActiveConn returns a connection already authenticated as identity.
func NewActiveConn(id string, identity domain.Identity) *Conn {
	c := NewConn(id)
	if err := c.session.Authenticate(identity); err != nil {
		panic(err)
	}
	if err := c.session.Activate(); err != nil {
		panic(err)
	}
	return c
}

func (c *Conn) ID() string               { return c.id }
func (c *Conn) Session() *domain.Session { return c.session }

func (c *Conn) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.refuse {
		return false
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return true
}

func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
}

// Refuse makes subsequent sends fail, as a full buffer would.
func (c *Conn) Refuse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refuse = true
}

// Closed reports whether Close was called and with which code.
func (c *Conn) Closed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

func (c *Conn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

// Types lists the type discriminator of every recorded frame.
func (c *Conn) Types() []string {
	var types []string
	for _, f := range c.Frames() {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &env)
		types = append(types, env.Type)
	}
	return types
}

// OfType returns the recorded frames with the given type.
func (c *Conn) OfType(typ string) [][]byte {
	var out [][]byte
	for _, f := range c.Frames() {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(f, &env) == nil && env.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// Last decodes the most recent frame into v and returns false if none.
func (c *Conn) Last(v interface{}) bool {
	frames := c.Frames()
	if len(frames) == 0 {
		return false
	}
	return json.Unmarshal(frames[len(frames)-1], v) == nil
}

// Reset forgets the recorded frames.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
