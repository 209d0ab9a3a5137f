package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/utils"
	"gorm.io/gorm"
)

// MessageRepositoryImpl implements MessageRepository
type MessageRepositoryImpl struct {
	*BaseRepository[models.Message, any]
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &MessageRepositoryImpl{BaseRepository: NewBaseRepository[models.Message, any](db)}
}

func (r *MessageRepositoryImpl) Update(ctx context.Context, message *models.Message) error {
	db := r.getDB(ctx)
	now := utils.UTCNow()
	message.UpdatedAt = &now
	if err := db.Save(message).Error; err != nil {
		return fmt.Errorf("failed to update message %d: %w", message.ID, err)
	}
	return nil
}

func (r *MessageRepositoryImpl) ByCampaignRecipientID(ctx context.Context, recipientID uint) ([]*models.Message, error) {
	db := r.getDB(ctx)
	var rows []*models.Message
	if err := db.Where("campaign_recipient_id = ?", recipientID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages of recipient %d: %w", recipientID, err)
	}
	return rows, nil
}
