package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// GormMembershipRepository implements MembershipRepository using GORM.
//
// A user may access a room through an active chat_members row, or through
// department or team membership when the room is an open department or team
// room.
type GormMembershipRepository struct {
	db *gorm.DB
}

func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	return &GormMembershipRepository{db: db}
}

func (r *GormMembershipRepository) IsAuthorized(ctx context.Context, userID, roomID string) (bool, error) {
	l := log.Ctx(ctx).With().Str(log.FieldUserID, userID).Str(log.FieldRoomID, roomID).Logger()
	db := r.db.WithContext(ctx)

	var count int64
	if err := db.Model(&domain.ChatMemberModel{}).
		Where("chat_id = ? AND user_id = ? AND is_active = ?", roomID, userID, true).
		Count(&count).Error; err != nil {
		l.Error().Err(err).Msg("failed to check chat membership")
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	var chat domain.ChatModel
	if err := db.Select("id", "type", "is_private", "department_id", "team_id").
		First(&chat, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		l.Error().Err(err).Msg("failed to load chat for access check")
		return false, err
	}
	room := chat.ToDomain()

	switch {
	case room.OpenToDepartment():
		err := db.Model(&domain.UserDepartmentModel{}).
			Where("user_id = ? AND department_id = ?", userID, room.DepartmentID).
			Count(&count).Error
		if err != nil {
			l.Error().Err(err).Msg("failed to check department membership")
			return false, err
		}
	case room.OpenToTeam():
		err := db.Model(&domain.TeamMemberModel{}).
			Where("user_id = ? AND team_id = ?", userID, room.TeamID).
			Count(&count).Error
		if err != nil {
			l.Error().Err(err).Msg("failed to check team membership")
			return false, err
		}
	}
	return count > 0, nil
}
