package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/orochi-outreach/models"
	"gorm.io/gorm"
)

// CampaignRunRepositoryImpl implements CampaignRunRepository
type CampaignRunRepositoryImpl struct {
	*BaseRepository[models.CampaignRun, models.CampaignRunFilter]
}

func NewCampaignRunRepository(db *gorm.DB) CampaignRunRepository {
	return &CampaignRunRepositoryImpl{
		BaseRepository: NewFilteredBaseRepository[models.CampaignRun, models.CampaignRunFilter](db, applyCampaignRunFilter),
	}
}

// Finish closes a running run. Only the first caller wins.
func (r *CampaignRunRepositoryImpl) Finish(ctx context.Context, id uint, status models.CampaignRunStatus, finishedAt time.Time) (bool, error) {
	if status == models.CampaignRunStatusRunning {
		return false, errors.New("cannot finish a run as running")
	}
	db := r.getDB(ctx)
	res := db.Model(&models.CampaignRun{}).
		Where("id = ? AND status = ?", id, models.CampaignRunStatusRunning).
		Updates(map[string]any{
			"status":      status,
			"finished_at": finishedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to finish run %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *CampaignRunRepositoryImpl) LatestByCampaignID(ctx context.Context, campaignID uint) (*models.CampaignRun, error) {
	db := r.getDB(ctx)
	var run models.CampaignRun
	if err := db.Where("campaign_id = ?", campaignID).Order("id DESC").First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest run of campaign %d: %w", campaignID, err)
	}
	return &run, nil
}

func (r *CampaignRunRepositoryImpl) ListRunningByCampaignID(ctx context.Context, campaignID uint) ([]*models.CampaignRun, error) {
	status := models.CampaignRunStatusRunning
	return r.ByFilter(ctx, models.CampaignRunFilter{CampaignID: &campaignID, Status: &status}, "id ASC", 0, 0)
}

func (r *CampaignRunRepositoryImpl) ListRunning(ctx context.Context, limit int) ([]*models.CampaignRun, error) {
	if limit <= 0 {
		limit = 100
	}
	status := models.CampaignRunStatusRunning
	return r.ByFilter(ctx, models.CampaignRunFilter{Status: &status}, "id ASC", limit, 0)
}

func applyCampaignRunFilter(db *gorm.DB, filter models.CampaignRunFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.TenantID != nil {
		db = db.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	return db
}
