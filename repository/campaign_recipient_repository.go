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

// CampaignRecipientRepositoryImpl implements CampaignRecipientRepository
type CampaignRecipientRepositoryImpl struct {
	*BaseRepository[models.CampaignRecipient, models.CampaignRecipientFilter]
}

func NewCampaignRecipientRepository(db *gorm.DB) CampaignRecipientRepository {
	return &CampaignRecipientRepositoryImpl{
		BaseRepository: NewFilteredBaseRepository[models.CampaignRecipient, models.CampaignRecipientFilter](db, applyCampaignRecipientFilter),
	}
}

// SaveBatchSize inserts recipients in chunks of batchSize
func (r *CampaignRecipientRepositoryImpl) SaveBatchSize(ctx context.Context, recipients []*models.CampaignRecipient, batchSize int) error {
	if len(recipients) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = utils.DefaultRecipientBatchInsertSize
	}

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

	err = db.CreateInBatches(recipients, batchSize).Error
	if err != nil {
		return fmt.Errorf("failed to insert recipients: %w", err)
	}
	return nil
}

func (r *CampaignRecipientRepositoryImpl) Claim(ctx context.Context, id uint, owner string, now time.Time) (bool, error) {
	if owner == "" {
		return false, errors.New("lock owner is required")
	}
	db := r.getDB(ctx)
	res := db.Model(&models.CampaignRecipient{}).
		Where("id = ? AND status = ?", id, models.CampaignRecipientStatusScheduled).
		Updates(map[string]any{
			"status":     models.CampaignRecipientStatusSending,
			"locked_at":  now,
			"lock_owner": owner,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim recipient %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *CampaignRecipientRepositoryImpl) Resolve(ctx context.Context, id uint, owner string, status models.CampaignRecipientStatus, fields map[string]any) (bool, error) {
	if status == models.CampaignRecipientStatusSending {
		return false, errors.New("cannot resolve a recipient into sending")
	}
	db := r.getDB(ctx)

	updates := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = status
	updates["updated_at"] = utils.UTCNow()

	res := db.Model(&models.CampaignRecipient{}).
		Where("id = ? AND status = ? AND lock_owner = ?", id, models.CampaignRecipientStatusSending, owner).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to resolve recipient %d as %s: %w", id, status, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListDue returns scheduled recipients whose time has come
func (r *CampaignRecipientRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.CampaignRecipient, error) {
	if limit <= 0 {
		limit = 10
	}
	db := r.getDB(ctx)
	var rows []*models.CampaignRecipient
	if err := db.Where("status = ? AND scheduled_at <= ?", models.CampaignRecipientStatusScheduled, now).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list due recipients: %w", err)
	}
	return rows, nil
}

func (r *CampaignRecipientRepositoryImpl) ListStaleLocks(ctx context.Context, lockedBefore time.Time, limit int) ([]*models.CampaignRecipient, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)
	var rows []*models.CampaignRecipient
	if err := db.Where("status = ? AND locked_at < ?", models.CampaignRecipientStatusSending, lockedBefore).
		Order("locked_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale recipient locks: %w", err)
	}
	return rows, nil
}

func (r *CampaignRecipientRepositoryImpl) ReleaseStale(ctx context.Context, id uint, lockedBefore time.Time, status models.CampaignRecipientStatus, fields map[string]any) (bool, error) {
	db := r.getDB(ctx)

	updates := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = status
	updates["updated_at"] = utils.UTCNow()
	if status == models.CampaignRecipientStatusScheduled {
		updates["locked_at"] = nil
		updates["lock_owner"] = nil
	}

	res := db.Model(&models.CampaignRecipient{}).
		Where("id = ? AND status = ? AND locked_at < ?", id, models.CampaignRecipientStatusSending, lockedBefore).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to release recipient %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CountPendingByRun counts recipients of a run that are still scheduled or sending
func (r *CampaignRecipientRepositoryImpl) CountPendingByRun(ctx context.Context, runID uint) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := db.Model(&models.CampaignRecipient{}).
		Where("run_id = ? AND status IN ?", runID, []models.CampaignRecipientStatus{
			models.CampaignRecipientStatusScheduled,
			models.CampaignRecipientStatusSending,
		}).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count pending recipients of run %d: %w", runID, err)
	}
	return count, nil
}

func (r *CampaignRecipientRepositoryImpl) SkipScheduledByRun(ctx context.Context, runID uint, reason string, now time.Time) (int64, error) {
	return r.skipScheduled(ctx, "run_id = ?", runID, reason, now)
}

func (r *CampaignRecipientRepositoryImpl) SkipScheduledByCampaign(ctx context.Context, campaignID uint, reason string, now time.Time) (int64, error) {
	return r.skipScheduled(ctx, "campaign_id = ?", campaignID, reason, now)
}

func (r *CampaignRecipientRepositoryImpl) skipScheduled(ctx context.Context, cond string, id uint, reason string, now time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.CampaignRecipient{}).
		Where(cond, id).
		Where("status = ?", models.CampaignRecipientStatusScheduled).
		Updates(map[string]any{
			"status":     models.CampaignRecipientStatusSkipped,
			"error":      reason,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to skip scheduled recipients: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountByStatus groups matching recipients by status
func (r *CampaignRecipientRepositoryImpl) CountByStatus(ctx context.Context, filter models.CampaignRecipientFilter) ([]models.RecipientStatusCount, error) {
	db := applyCampaignRecipientFilter(r.getDB(ctx).Model(&models.CampaignRecipient{}), filter)
	var rows []models.RecipientStatusCount
	if err := db.Select("status, COUNT(*) AS count").
		Group("status").
		Order("status ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count recipients by status: %w", err)
	}
	return rows, nil
}

func applyCampaignRecipientFilter(db *gorm.DB, filter models.CampaignRecipientFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.RunID != nil {
		db = db.Where("run_id = ?", *filter.RunID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.TenantID != nil {
		db = db.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.ContactID != nil {
		db = db.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.LockOwner != nil {
		db = db.Where("lock_owner = ?", *filter.LockOwner)
	}
	if filter.DueBefore != nil {
		db = db.Where("scheduled_at <= ?", *filter.DueBefore)
	}
	if filter.LockedBefore != nil {
		db = db.Where("locked_at < ?", *filter.LockedBefore)
	}
	return db
}
