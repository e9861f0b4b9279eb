package membership

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Manager authorizes room joins and owns the per-room broadcast groups.
type Manager struct {
	rooms       repository.RoomRepository
	memberships repository.MembershipRepository

	mu     sync.RWMutex
	groups map[string]*hub.BroadcastGroup // roomID -> group
	byConn map[string]map[string]struct{} // connID -> roomIDs
}

func NewManager(rooms repository.RoomRepository, memberships repository.MembershipRepository) *Manager {
	return &Manager{
		rooms:       rooms,
		memberships: memberships,
		groups:      make(map[string]*hub.BroadcastGroup),
		byConn:      make(map[string]map[string]struct{}),
	}
}

// Join subscribes conn to the room after checking, on every call, that the
// room is live and userID may access it. Denials wrap domain.ErrAccessDenied
// whether the room is missing or the user is not allowed.
func (m *Manager) Join(ctx context.Context, conn hub.Conn, userID, roomID string) error {
	if !conn.Session().IsActive() {
		return domain.ErrNotActive
	}

	var authorized bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := m.rooms.FindActiveByID(gctx, roomID)
		return err
	})
	g.Go(func() error {
		ok, err := m.memberships.IsAuthorized(gctx, userID, roomID)
		authorized = ok
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return domain.DenyAccess(domain.ErrNotFound, "room missing or archived")
		}
		return fmt.Errorf("check access to room %s: %w", roomID, err)
	}
	if !authorized {
		return domain.DenyAccess(domain.ErrForbidden, "user is not authorized for room")
	}

	m.add(conn, roomID)

	// The connection may have been torn down while the checks ran; its
	// LeaveAll has then already happened and would miss this entry.
	if !conn.Session().IsActive() {
		m.Leave(conn.ID(), roomID)
		return domain.ErrNotActive
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoomID, roomID).Msg("connection joined room")
	return nil
}

func (m *Manager) add(conn hub.Conn, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[roomID]
	if !ok {
		group = hub.NewBroadcastGroup()
		m.groups[roomID] = group
	}
	group.Add(conn)

	rooms, ok := m.byConn[conn.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		m.byConn[conn.ID()] = rooms
	}
	rooms[roomID] = struct{}{}
}

// Leave unsubscribes the connection. It reports whether it was a member;
// leaving a room twice is not an error.
func (m *Manager) Leave(connID, roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(connID, roomID)
}

func (m *Manager) leaveLocked(connID, roomID string) bool {
	rooms, ok := m.byConn[connID]
	if !ok {
		return false
	}
	if _, ok := rooms[roomID]; !ok {
		return false
	}
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(m.byConn, connID)
	}

	if group, ok := m.groups[roomID]; ok {
		group.Remove(connID)
		if group.Len() == 0 {
			delete(m.groups, roomID)
		}
	}
	return true
}

// LeaveAll removes every membership of the connection and returns the rooms
// it left in sorted order.
func (m *Manager) LeaveAll(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := sortedKeys(m.byConn[connID])
	for _, roomID := range rooms {
		m.leaveLocked(connID, roomID)
	}
	return rooms
}

func (m *Manager) IsMember(connID, roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byConn[connID][roomID]
	return ok
}

// MembersOf returns the connection ids subscribed to the room.
func (m *Manager) MembersOf(roomID string) []string {
	m.mu.RLock()
	group, ok := m.groups[roomID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return group.Members()
}

// RoomsOf returns the rooms the connection is subscribed to.
func (m *Manager) RoomsOf(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.byConn[connID])
}

// RoomCount is the number of rooms with at least one subscriber.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups)
}

// Broadcast sends data to the room's current subscribers, skipping the
// excluded connection ids. It returns the number of deliveries.
func (m *Manager) Broadcast(roomID string, data []byte, exclude ...string) int {
	m.mu.RLock()
	group, ok := m.groups[roomID]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return group.SendAll(data, exclude...)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
