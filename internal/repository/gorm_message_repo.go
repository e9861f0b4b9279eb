package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create inserts the message and reloads it with sender and reply target.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	l := log.Ctx(ctx)

	msg.ID = uuid.New().String()
	model := domain.MessageToModel(msg)

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to create message in db")
		return err
	}

	// The row is committed at this point. A failed reload only costs the
	// sender and reply details, never the write itself.
	stored, err := r.find(ctx, model.ID)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldMessageID, model.ID).Msg("failed to reload created message")
		stored = model.ToDomain()
		stored.Sender, stored.ReplyTo = msg.Sender, msg.ReplyTo
	}
	*msg = *stored
	l.Debug().Str(log.FieldMessageID, msg.ID).Msg("message created in db")
	return nil
}

// FindByID retrieves a message with its sender.
func (r *GormMessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := r.find(ctx, id)
	if err != nil && !errors.Is(err, ErrMessageNotFound) {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to get message by id")
	}
	return msg, err
}

func (r *GormMessageRepository) find(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	result := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("ReplyTo.Sender").
		First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}
