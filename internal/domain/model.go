package domain

import (
	"time"
)

// The models below map the chat API's relational schema. The realtime
// service reads users, chats and memberships, and writes messages.

// UserModel is the GORM model for users table.
type UserModel struct {
	ID        string      `gorm:"type:varchar(36);primaryKey"`
	Email     string      `gorm:"type:varchar(255);uniqueIndex;not null"`
	Username  string      `gorm:"type:varchar(50)"`
	FirstName string      `gorm:"type:varchar(100);not null"`
	LastName  string      `gorm:"type:varchar(100);not null"`
	Avatar    string      `gorm:"type:varchar(500)"`
	IsActive  bool        `gorm:"not null;default:true"`
	Roles     []RoleModel `gorm:"many2many:user_roles;joinForeignKey:UserID;joinReferences:RoleID"`
	CreatedAt time.Time   `gorm:"autoCreateTime"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

// RoleModel is the GORM model for roles table.
type RoleModel struct {
	ID   string `gorm:"type:varchar(36);primaryKey"`
	Name string `gorm:"type:varchar(50);uniqueIndex;not null"`
}

func (RoleModel) TableName() string {
	return "roles"
}

// ToIdentity converts UserModel to domain Identity. Roles must be preloaded.
func (m *UserModel) ToIdentity() *Identity {
	roles := make([]string, len(m.Roles))
	for i, r := range m.Roles {
		roles[i] = r.Name
	}
	return &Identity{
		ID:        m.ID,
		Email:     m.Email,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Avatar:    m.Avatar,
		Roles:     roles,
	}
}

// ToSummary converts UserModel to the display projection.
func (m *UserModel) ToSummary() *UserSummary {
	return &UserSummary{ID: m.ID, FirstName: m.FirstName, LastName: m.LastName, Avatar: m.Avatar}
}

// ChatModel is the GORM model for chats table.
type ChatModel struct {
	ID            string  `gorm:"type:varchar(36);primaryKey"`
	Name          string  `gorm:"type:varchar(200);not null"`
	Type          string  `gorm:"type:varchar(20);index;not null;default:'group'"`
	IsPrivate     bool    `gorm:"not null;default:false"`
	IsArchived    bool    `gorm:"index;not null;default:false"`
	DepartmentID  *string `gorm:"type:varchar(36);index"`
	TeamID        *string `gorm:"type:varchar(36);index"`
	LastMessageAt *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (ChatModel) TableName() string {
	return "chats"
}

// ToDomain converts ChatModel to domain Room.
func (m *ChatModel) ToDomain() *Room {
	return &Room{
		ID:            m.ID,
		Name:          m.Name,
		Type:          RoomType(m.Type),
		IsPrivate:     m.IsPrivate,
		IsArchived:    m.IsArchived,
		DepartmentID:  deref(m.DepartmentID),
		TeamID:        deref(m.TeamID),
		LastMessageAt: m.LastMessageAt,
		CreatedAt:     m.CreatedAt,
	}
}

// RoomToModel converts domain Room to ChatModel.
func RoomToModel(r *Room) *ChatModel {
	return &ChatModel{
		ID:            r.ID,
		Name:          r.Name,
		Type:          string(r.Type),
		IsPrivate:     r.IsPrivate,
		IsArchived:    r.IsArchived,
		DepartmentID:  ref(r.DepartmentID),
		TeamID:        ref(r.TeamID),
		LastMessageAt: r.LastMessageAt,
		CreatedAt:     r.CreatedAt,
	}
}

// ChatMemberModel is the GORM model for chat_members table.
type ChatMemberModel struct {
	ID       string    `gorm:"type:varchar(36);primaryKey"`
	ChatID   string    `gorm:"type:varchar(36);uniqueIndex:idx_chat_member;not null"`
	UserID   string    `gorm:"type:varchar(36);uniqueIndex:idx_chat_member;index;not null"`
	Role     string    `gorm:"type:varchar(20);not null;default:'member'"`
	IsActive bool      `gorm:"not null;default:true"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

func (ChatMemberModel) TableName() string {
	return "chat_members"
}

// UserDepartmentModel is the GORM model for user_departments table.
type UserDepartmentModel struct {
	UserID       string `gorm:"type:varchar(36);primaryKey"`
	DepartmentID string `gorm:"type:varchar(36);primaryKey"`
}

func (UserDepartmentModel) TableName() string {
	return "user_departments"
}

// TeamMemberModel is the GORM model for team_members table.
type TeamMemberModel struct {
	UserID string `gorm:"type:varchar(36);primaryKey"`
	TeamID string `gorm:"type:varchar(36);primaryKey"`
}

func (TeamMemberModel) TableName() string {
	return "team_members"
}

// MessageModel is the GORM model for messages table.
type MessageModel struct {
	ID        string        `gorm:"type:varchar(36);primaryKey"`
	ChatID    string        `gorm:"type:varchar(36);index:idx_messages_chat_created,priority:1;not null"`
	SenderID  string        `gorm:"type:varchar(36);index;not null"`
	Content   string        `gorm:"type:text;not null"`
	Type      string        `gorm:"type:varchar(20);not null;default:'text'"`
	ReplyToID *string       `gorm:"type:varchar(36);index"`
	CreatedAt time.Time     `gorm:"index:idx_messages_chat_created,priority:2;autoCreateTime"`
	Sender    *UserModel    `gorm:"foreignKey:SenderID"`
	ReplyTo   *MessageModel `gorm:"foreignKey:ReplyToID"`
}

func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message, including preloaded
// sender and one level of reply.
func (m *MessageModel) ToDomain() *Message {
	msg := &Message{
		ID:        m.ID,
		RoomID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      MessageType(m.Type),
		ReplyToID: deref(m.ReplyToID),
		CreatedAt: m.CreatedAt,
	}
	if m.Sender != nil {
		msg.Sender = m.Sender.ToSummary()
	}
	if m.ReplyTo != nil {
		parent := *m.ReplyTo
		parent.ReplyTo = nil
		msg.ReplyTo = parent.ToDomain()
	}
	return msg
}

// MessageToModel converts domain Message to MessageModel without associations.
func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:        msg.ID,
		ChatID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		Type:      string(msg.Type),
		ReplyToID: ref(msg.ReplyToID),
		CreatedAt: msg.CreatedAt,
	}
}

// Models lists every table for AutoMigrate in development setups.
func Models() []interface{} {
	return []interface{}{
		&RoleModel{},
		&UserModel{},
		&ChatModel{},
		&ChatMemberModel{},
		&UserDepartmentModel{},
		&TeamMemberModel{},
		&MessageModel{},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
