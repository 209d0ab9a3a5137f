package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewFilteredBaseRepository[models.Campaign, models.CampaignFilter](db, applyCampaignFilter),
	}
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.CampaignFilter{UUID: &parsedUUID}
	campaigns, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}

	if len(campaigns) == 0 {
		return nil, nil
	}

	return campaigns[0], nil
}

// ByTenantID retrieves campaigns by tenant ID with pagination
func (r *CampaignRepositoryImpl) ByTenantID(ctx context.Context, tenantID uint, limit, offset int) ([]*models.Campaign, error) {
	filter := models.CampaignFilter{TenantID: &tenantID}
	return r.ByFilter(ctx, filter, "created_at DESC, id DESC", limit, offset)
}

// Update saves every column of the campaign
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign *models.Campaign) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	now := utils.UTCNow()
	campaign.UpdatedAt = &now

	err = db.Save(campaign).Error
	if err != nil {
		return fmt.Errorf("failed to update campaign %d: %w", campaign.ID, err)
	}

	return nil
}

// UpdateFields updates the given columns unconditionally
func (r *CampaignRepositoryImpl) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	db := r.getDB(ctx)

	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = utils.UTCNow()

	if err := db.Model(&models.Campaign{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update campaign %d: %w", id, err)
	}
	return nil
}

// TransitionStatus is a conditional update on the current status
func (r *CampaignRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from []models.CampaignStatus, to models.CampaignStatus, fields map[string]any) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("at least one source status is required")
	}
	db := r.getDB(ctx)

	updates := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = utils.UTCNow()

	res := db.Model(&models.Campaign{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition campaign %d to %s: %w", id, to, res.Error)
	}

	return res.RowsAffected == 1, nil
}

// ListDue returns scheduled campaigns whose next run is at or before now
func (r *CampaignRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	if limit <= 0 {
		limit = 25
	}
	db := r.getDB(ctx)

	var rows []*models.Campaign
	if err := db.Where("status = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", models.CampaignStatusScheduled, now).
		Order("next_run_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list due campaigns: %w", err)
	}
	return rows, nil
}

// ListStaleRunning returns running campaigns whose last run started before the given time
func (r *CampaignRepositoryImpl) ListStaleRunning(ctx context.Context, startedBefore time.Time, limit int) ([]*models.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)

	var rows []*models.Campaign
	if err := db.Where("status = ? AND (last_run_at IS NULL OR last_run_at < ?)", models.CampaignStatusRunning, startedBefore).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale running campaigns: %w", err)
	}
	return rows, nil
}

// Delete removes a campaign together with its runs and recipients
func (r *CampaignRepositoryImpl) Delete(ctx context.Context, id uint) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	if err = db.Where("campaign_id = ?", id).Delete(&models.CampaignRecipient{}).Error; err != nil {
		return fmt.Errorf("failed to delete recipients of campaign %d: %w", id, err)
	}
	if err = db.Where("campaign_id = ?", id).Delete(&models.CampaignRun{}).Error; err != nil {
		return fmt.Errorf("failed to delete runs of campaign %d: %w", id, err)
	}
	if err = db.Delete(&models.Campaign{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete campaign %d: %w", id, err)
	}

	return nil
}

func applyCampaignFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.TenantID != nil {
		db = db.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.ConnectionID != nil {
		db = db.Where("connection_id = ?", *filter.ConnectionID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}
	if filter.Recurrence != nil {
		db = db.Where("recurrence = ?", *filter.Recurrence)
	}
	if filter.DueBefore != nil {
		db = db.Where("next_run_at <= ?", *filter.DueBefore)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	if filter.UpdatedBefore != nil {
		db = db.Where("updated_at <= ?", *filter.UpdatedBefore)
	}
	return db
}
