package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

type memoryUser struct {
	identity domain.Identity
	active   bool
}

// MemoryRepository is an in-process implementation of every repository. It
// backs the "memory" database driver for local runs and tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	users       map[string]memoryUser
	rooms       map[string]domain.Room
	members     map[string]map[string]bool // roomID -> userID -> active
	departments map[string]map[string]bool // userID -> departmentID
	teams       map[string]map[string]bool // userID -> teamID
	messages    map[string]domain.Message
	now         func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:       make(map[string]memoryUser),
		rooms:       make(map[string]domain.Room),
		members:     make(map[string]map[string]bool),
		departments: make(map[string]map[string]bool),
		teams:       make(map[string]map[string]bool),
		messages:    make(map[string]domain.Message),
		now:         time.Now,
	}
}

// AddUser stores an active user.
func (r *MemoryRepository) AddUser(identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[identity.ID] = memoryUser{identity: identity, active: true}
}

func (r *MemoryRepository) SetUserActive(id string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.active = active
		r.users[id] = u
	}
}

func (r *MemoryRepository) AddRoom(room domain.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = r.now()
	}
	r.rooms[room.ID] = room
}

// AddMember grants an explicit, active membership.
func (r *MemoryRepository) AddMember(roomID, userID string) {
	r.setMember(roomID, userID, true)
}

// RemoveMember deactivates a membership without deleting it.
func (r *MemoryRepository) RemoveMember(roomID, userID string) {
	r.setMember(roomID, userID, false)
}

func (r *MemoryRepository) setMember(roomID, userID string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[roomID] == nil {
		r.members[roomID] = make(map[string]bool)
	}
	r.members[roomID][userID] = active
}

func (r *MemoryRepository) AddDepartmentMember(userID, departmentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addTo(r.departments, userID, departmentID)
}

func (r *MemoryRepository) AddTeamMember(userID, teamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addTo(r.teams, userID, teamID)
}

func addTo(index map[string]map[string]bool, key, value string) {
	if index[key] == nil {
		index[key] = make(map[string]bool)
	}
	index[key][value] = true
}

func (r *MemoryRepository) FindActiveByID(ctx context.Context, id string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok || !u.active {
		return nil, ErrUserNotFound
	}
	identity := u.identity
	identity.Roles = append([]string(nil), u.identity.Roles...)
	return &identity, nil
}

// memoryRooms adapts the room half of MemoryRepository, whose FindActiveByID
// name is already taken by the user lookup.
type memoryRooms struct {
	*MemoryRepository
}

// Rooms returns the RoomRepository view.
func (r *MemoryRepository) Rooms() RoomRepository {
	return memoryRooms{r}
}

func (r memoryRooms) FindActiveByID(ctx context.Context, id string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok || room.IsArchived {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

func (r memoryRooms) TouchActivity(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	room.LastMessageAt = &at
	r.rooms[id] = room
	return nil
}

func (r *MemoryRepository) IsAuthorized(ctx context.Context, userID, roomID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.members[roomID][userID] {
		return true, nil
	}
	room, ok := r.rooms[roomID]
	if !ok {
		return false, nil
	}
	switch {
	case room.OpenToDepartment():
		return r.departments[userID][room.DepartmentID], nil
	case room.OpenToTeam():
		return r.teams[userID][room.TeamID], nil
	}
	return false, nil
}

func (r *MemoryRepository) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg.ID = uuid.New().String()
	msg.CreatedAt = r.now()
	stored := *msg
	stored.Sender = nil
	stored.ReplyTo = nil
	r.messages[msg.ID] = stored

	*msg = r.hydrate(stored, true)
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	msg := r.hydrate(stored, true)
	return &msg, nil
}

// Messages returns the stored messages of a room, oldest first.
func (r *MemoryRepository) Messages(roomID string) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Message
	for _, m := range r.messages {
		if m.RoomID == roomID {
			out = append(out, r.hydrate(m, false))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// hydrate attaches the sender and, when withReply is set, one level of reply.
// Callers hold r.mu.
func (r *MemoryRepository) hydrate(m domain.Message, withReply bool) domain.Message {
	if u, ok := r.users[m.SenderID]; ok {
		s := u.identity.Summary()
		m.Sender = &s
	}
	if withReply && m.ReplyToID != "" {
		if parent, ok := r.messages[m.ReplyToID]; ok {
			p := r.hydrate(parent, false)
			m.ReplyTo = &p
		}
	}
	return m
}
