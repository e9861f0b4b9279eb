package domain

import (
	"fmt"
	"sync"
	"time"
)

// ConnState is the lifecycle state of a connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the per-connection state: Connecting → Authenticated → Active → Closed.
// Closed is terminal; a reconnect gets a new Session.
type Session struct {
	ID        string
	CreatedAt time.Time

	state        ConnState
	identity     Identity
	lastActiveAt time.Time
	mu           sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActiveAt: now,
		state:        StateConnecting,
	}
}

// Authenticate attaches the resolved identity.
func (s *Session) Authenticate(identity Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return fmt.Errorf("authenticate from %s: %w", s.state, ErrNotActive)
	}
	s.identity = identity
	s.state = StateAuthenticated
	s.lastActiveAt = time.Now()
	return nil
}

// Activate makes the session usable for room and message operations.
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return fmt.Errorf("activate from %s: %w", s.state, ErrNotActive)
	}
	s.state = StateActive
	return nil
}

// Close moves the session to Closed. It reports false if it already was.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	return true
}

func (s *Session) State() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsActive() bool {
	return s.State() == StateActive
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.ID
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

// LastActiveAt is the time of the last frame received on the connection.
func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}
