package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/utils"
	"gorm.io/gorm"
)

// TenantRepositoryImpl implements TenantRepository
type TenantRepositoryImpl struct {
	*BaseRepository[models.Tenant, any]
}

func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &TenantRepositoryImpl{BaseRepository: NewBaseRepository[models.Tenant, any](db)}
}

func (r *TenantRepositoryImpl) IncrementMonthlyCounter(ctx context.Context, id uint, period string) error {
	db := r.getDB(ctx)
	res := db.Model(&models.Tenant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"messages_this_month": gorm.Expr("CASE WHEN quota_period = ? THEN messages_this_month + 1 ELSE 1 END", period),
			"quota_period":        period,
			"updated_at":          utils.UTCNow(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to increment monthly counter of tenant %d: %w", id, res.Error)
	}
	return nil
}
