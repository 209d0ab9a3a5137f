package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/utils"
	"gorm.io/gorm"
)

// ConnectionRepositoryImpl implements ConnectionRepository
type ConnectionRepositoryImpl struct {
	*BaseRepository[models.Connection, any]
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &ConnectionRepositoryImpl{BaseRepository: NewBaseRepository[models.Connection, any](db)}
}

func (r *ConnectionRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.ConnectionStatus) error {
	db := r.getDB(ctx)
	if err := db.Model(&models.Connection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error; err != nil {
		return fmt.Errorf("failed to update connection %d status: %w", id, err)
	}
	return nil
}
