package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/orochi-outreach/models"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements ContactRepository
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, models.ContactFilter]
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{
		BaseRepository: NewFilteredBaseRepository[models.Contact, models.ContactFilter](db, applyContactFilter),
	}
}

// ByIDs loads the tenant's contacts with the given ids. Unknown or foreign ids are ignored.
func (r *ContactRepositoryImpl) ByIDs(ctx context.Context, tenantID uint, ids []uint) ([]*models.Contact, error) {
	if len(ids) == 0 {
		return []*models.Contact{}, nil
	}
	db := r.getDB(ctx)
	var rows []*models.Contact
	if err := db.Where("tenant_id = ? AND id IN ?", tenantID, ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	return rows, nil
}

func applyContactFilter(db *gorm.DB, filter models.ContactFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		db = db.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Phone != nil {
		db = db.Where("phone = ?", *filter.Phone)
	}
	if filter.Email != nil {
		db = db.Where("email = ?", *filter.Email)
	}
	return db
}
