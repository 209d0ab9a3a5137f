package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/orochi-outreach/models"
	"gorm.io/gorm"
)

// ConversationRepositoryImpl implements ConversationRepository
type ConversationRepositoryImpl struct {
	*BaseRepository[models.Conversation, any]
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &ConversationRepositoryImpl{BaseRepository: NewBaseRepository[models.Conversation, any](db)}
}

func (r *ConversationRepositoryImpl) ByKey(ctx context.Context, tenantID, connectionID uint, phone string) (*models.Conversation, error) {
	db := r.getDB(ctx)
	var row models.Conversation
	err := db.Where("tenant_id = ? AND connection_id = ? AND phone = ?", tenantID, connectionID, phone).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &row, nil
}

func (r *ConversationRepositoryImpl) TouchLastMessage(ctx context.Context, id uint, at time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_message_at": at,
			"updated_at":      at,
		}).Error
}
