package models

import (
	"time"

	"github.com/amirphl/orochi-outreach/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is an account that owns campaigns, contacts and connections
type Tenant struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UUID                uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_tenants_uuid" json:"uuid"`
	Name                string     `gorm:"size:255;not null" json:"name"`
	MonthlyMessageLimit int64      `gorm:"not null;default:0" json:"monthly_message_limit"` // 0 means unlimited
	MessagesThisMonth   int64      `gorm:"not null;default:0" json:"messages_this_month"`
	QuotaPeriod         string     `gorm:"size:7" json:"quota_period"`
	IsActive            *bool      `gorm:"default:true" json:"is_active"`
	CreatedAt           time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// BeforeCreate is called before creating a new record
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = utils.UTCNow()
	}
	return nil
}

// UsageIn returns the stored monthly usage when it belongs to period, zero otherwise
func (t *Tenant) UsageIn(period string) int64 {
	if t.QuotaPeriod != period {
		return 0
	}
	return t.MessagesThisMonth
}
