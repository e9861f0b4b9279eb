package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every pooled connection to :memory: would see its own empty database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(domain.Models()...))
	return db
}

func strPtr(s string) *string { return &s }

func seedGorm(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&domain.UserModel{
		ID: "u-ada", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace",
		Roles: []domain.RoleModel{{ID: "r-admin", Name: "admin"}},
	}).Error)
	require.NoError(t, db.Create(&domain.UserModel{
		ID: "u-bob", Email: "bob@example.com", FirstName: "Bob", LastName: "Stone",
	}).Error)
	require.NoError(t, db.Create(&domain.UserModel{
		ID: "u-gone", Email: "gone@example.com", FirstName: "Gone", LastName: "User",
	}).Error)
	// is_active has a column default, so false must be written explicitly.
	require.NoError(t, db.Model(&domain.UserModel{}).Where("id = ?", "u-gone").Update("is_active", false).Error)

	require.NoError(t, db.Create(&domain.ChatModel{ID: "c-general", Name: "general", Type: "group"}).Error)
	require.NoError(t, db.Create(&domain.ChatModel{ID: "c-old", Name: "old", Type: "group"}).Error)
	require.NoError(t, db.Model(&domain.ChatModel{}).Where("id = ?", "c-old").Update("is_archived", true).Error)
	require.NoError(t, db.Create(&domain.ChatModel{ID: "c-eng", Name: "engineering", Type: "department", DepartmentID: strPtr("d-eng")}).Error)
	require.NoError(t, db.Create(&domain.ChatModel{ID: "c-core", Name: "core", Type: "team", TeamID: strPtr("t-core")}).Error)
	require.NoError(t, db.Create(&domain.ChatModel{ID: "c-secret", Name: "secret", Type: "department", IsPrivate: true, DepartmentID: strPtr("d-eng")}).Error)

	require.NoError(t, db.Create(&domain.ChatMemberModel{ID: "m1", ChatID: "c-general", UserID: "u-ada"}).Error)
	require.NoError(t, db.Create(&domain.ChatMemberModel{ID: "m2", ChatID: "c-general", UserID: "u-gone"}).Error)
	require.NoError(t, db.Model(&domain.ChatMemberModel{}).Where("id = ?", "m2").Update("is_active", false).Error)
	require.NoError(t, db.Create(&domain.UserDepartmentModel{UserID: "u-bob", DepartmentID: "d-eng"}).Error)
	require.NoError(t, db.Create(&domain.TeamMemberModel{UserID: "u-bob", TeamID: "t-core"}).Error)
}

func TestGormUserRepository_FindActiveByID(t *testing.T) {
	db := newTestDB(t)
	seedGorm(t, db)
	repo := NewGormUserRepository(db)
	ctx := context.Background()

	identity, err := repo.FindActiveByID(ctx, "u-ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", identity.DisplayName())
	assert.Equal(t, []string{"admin"}, identity.Roles)

	_, err = repo.FindActiveByID(ctx, "u-gone")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.FindActiveByID(ctx, "u-missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGormRoomRepository(t *testing.T) {
	db := newTestDB(t)
	seedGorm(t, db)
	repo := NewGormRoomRepository(db)
	ctx := context.Background()

	room, err := repo.FindActiveByID(ctx, "c-eng")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomTypeDepartment, room.Type)
	assert.Equal(t, "d-eng", room.DepartmentID)
	assert.Nil(t, room.LastMessageAt)

	_, err = repo.FindActiveByID(ctx, "c-old")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.TouchActivity(ctx, "c-general", at))
	room, err = repo.FindActiveByID(ctx, "c-general")
	require.NoError(t, err)
	require.NotNil(t, room.LastMessageAt)
	assert.WithinDuration(t, at, *room.LastMessageAt, time.Second)

	assert.ErrorIs(t, repo.TouchActivity(ctx, "c-missing", at), ErrRoomNotFound)
}

func TestGormMembershipRepository_IsAuthorized(t *testing.T) {
	db := newTestDB(t)
	seedGorm(t, db)
	repo := NewGormMembershipRepository(db)

	tests := []struct {
		name   string
		userID string
		roomID string
		want   bool
	}{
		{"explicit member", "u-ada", "c-general", true},
		{"inactive membership", "u-gone", "c-general", false},
		{"no membership", "u-bob", "c-general", false},
		{"department room", "u-bob", "c-eng", true},
		{"department room without department", "u-ada", "c-eng", false},
		{"team room", "u-bob", "c-core", true},
		{"private department room", "u-bob", "c-secret", false},
		{"unknown room", "u-bob", "c-missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := repo.IsAuthorized(context.Background(), tt.userID, tt.roomID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestGormMessageRepository_CreateHydrates(t *testing.T) {
	db := newTestDB(t)
	seedGorm(t, db)
	repo := NewGormMessageRepository(db)
	ctx := context.Background()

	first := &domain.Message{RoomID: "c-general", SenderID: "u-ada", Content: "hello", Type: domain.MessageTypeText}
	require.NoError(t, repo.Create(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
	require.NotNil(t, first.Sender)
	assert.Equal(t, "Ada", first.Sender.FirstName)
	assert.Nil(t, first.ReplyTo)

	reply := &domain.Message{RoomID: "c-general", SenderID: "u-bob", Content: "hi", Type: domain.MessageTypeText, ReplyToID: first.ID}
	require.NoError(t, repo.Create(ctx, reply))
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, first.ID, reply.ReplyTo.ID)
	assert.Equal(t, "hello", reply.ReplyTo.Content)
	require.NotNil(t, reply.ReplyTo.Sender)
	assert.Equal(t, "Ada", reply.ReplyTo.Sender.FirstName)

	found, err := repo.FindByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ReplyToID)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestGormMessageRepository_CreateSurvivesFailedReload(t *testing.T) {
	db := newTestDB(t)
	seedGorm(t, db)
	repo := NewGormMessageRepository(db)
	ctx := context.Background()

	// Inserts go through the create callbacks; only the reload is a query.
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test:fail_query", func(tx *gorm.DB) {
		_ = tx.AddError(errors.New("connection reset"))
	}))

	msg := &domain.Message{RoomID: "c-general", SenderID: "u-ada", Content: "stored anyway", Type: domain.MessageTypeText}
	require.NoError(t, repo.Create(ctx, msg))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "c-general", msg.RoomID)
	assert.Equal(t, "stored anyway", msg.Content)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.Nil(t, msg.Sender)

	require.NoError(t, db.Callback().Query().Remove("test:fail_query"))
	var count int64
	require.NoError(t, db.Model(&domain.MessageModel{}).Where("id = ?", msg.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
