package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/orochi-outreach/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignRunStatus represents the status of one execution of a campaign
type CampaignRunStatus string

const (
	CampaignRunStatusRunning   CampaignRunStatus = "running"
	CampaignRunStatusCompleted CampaignRunStatus = "completed"
	CampaignRunStatusFailed    CampaignRunStatus = "failed"
	CampaignRunStatusCancelled CampaignRunStatus = "cancelled"
)

func (s CampaignRunStatus) String() string { return string(s) }

func (s CampaignRunStatus) Valid() bool {
	switch s {
	case CampaignRunStatusRunning, CampaignRunStatusCompleted,
		CampaignRunStatusFailed, CampaignRunStatusCancelled:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignRunStatus
func (s *CampaignRunStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = CampaignRunStatus(v)
	case []byte:
		*s = CampaignRunStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignRunStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for CampaignRunStatus
func (s CampaignRunStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignRunStatus: %s", s)
	}
	return string(s), nil
}

// CampaignRun is one execution instance of a campaign
type CampaignRun struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uk_campaign_runs_uuid" json:"uuid"`
	CampaignID   uint              `gorm:"not null;index:idx_campaign_runs_campaign_status,priority:1" json:"campaign_id"`
	TenantID     uint              `gorm:"not null;index:idx_campaign_runs_tenant_id" json:"tenant_id"`
	Status       CampaignRunStatus `gorm:"size:32;not null;default:'running';index:idx_campaign_runs_campaign_status,priority:2" json:"status"`
	ScheduledFor time.Time         `gorm:"not null" json:"scheduled_for"`
	StartedAt    time.Time         `gorm:"not null" json:"started_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for the model
func (CampaignRun) TableName() string {
	return "campaign_runs"
}

// BeforeCreate is called before creating a new record
func (r *CampaignRun) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Status == "" {
		r.Status = CampaignRunStatusRunning
	}
	now := utils.UTCNow()
	if r.StartedAt.IsZero() {
		r.StartedAt = now
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	return nil
}

func (r *CampaignRun) IsRunning() bool {
	return r.Status == CampaignRunStatusRunning
}

// CampaignRunFilter represents filter criteria for campaign runs
type CampaignRunFilter struct {
	ID         *uint              `json:"id,omitempty"`
	CampaignID *uint              `json:"campaign_id,omitempty"`
	TenantID   *uint              `json:"tenant_id,omitempty"`
	Status     *CampaignRunStatus `json:"status,omitempty"`
}
