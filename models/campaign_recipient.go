package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/orochi-outreach/utils"
	"gorm.io/gorm"
)

// CampaignRecipientStatus is the delivery state of one recipient within a run
type CampaignRecipientStatus string

const (
	CampaignRecipientStatusScheduled CampaignRecipientStatus = "scheduled"
	CampaignRecipientStatusSending   CampaignRecipientStatus = "sending"
	CampaignRecipientStatusSent      CampaignRecipientStatus = "sent"
	CampaignRecipientStatusFailed    CampaignRecipientStatus = "failed"
	CampaignRecipientStatusSkipped   CampaignRecipientStatus = "skipped"
)

func (s CampaignRecipientStatus) String() string { return string(s) }

func (s CampaignRecipientStatus) Valid() bool {
	switch s {
	case CampaignRecipientStatusScheduled, CampaignRecipientStatusSending,
		CampaignRecipientStatusSent, CampaignRecipientStatusFailed,
		CampaignRecipientStatusSkipped:
		return true
	default:
		return false
	}
}

// IsPending reports whether the recipient still blocks its run from finishing
func (s CampaignRecipientStatus) IsPending() bool {
	return s == CampaignRecipientStatusScheduled || s == CampaignRecipientStatusSending
}

// Scan implements the sql.Scanner interface for CampaignRecipientStatus
func (s *CampaignRecipientStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = CampaignRecipientStatus(v)
	case []byte:
		*s = CampaignRecipientStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignRecipientStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for CampaignRecipientStatus
func (s CampaignRecipientStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignRecipientStatus: %s", s)
	}
	return string(s), nil
}

// CampaignRecipient is one addressee within one run
type CampaignRecipient struct {
	ID          uint                    `gorm:"primaryKey" json:"id"`
	RunID       uint                    `gorm:"not null;index:idx_campaign_recipients_run_status,priority:1" json:"run_id"`
	CampaignID  uint                    `gorm:"not null;index:idx_campaign_recipients_campaign_id" json:"campaign_id"`
	TenantID    uint                    `gorm:"not null" json:"tenant_id"`
	ContactID   *uint                   `json:"contact_id,omitempty"`
	Phone       string                  `gorm:"size:32;not null" json:"phone"`
	DisplayName *string                 `gorm:"size:255" json:"display_name,omitempty"`
	Status      CampaignRecipientStatus `gorm:"size:32;not null;default:'scheduled';index:idx_campaign_recipients_due,priority:1;index:idx_campaign_recipients_run_status,priority:2" json:"status"`
	ScheduledAt time.Time               `gorm:"not null;index:idx_campaign_recipients_due,priority:2" json:"scheduled_at"`
	LockedAt    *time.Time              `json:"locked_at,omitempty"`
	LockOwner   *string                 `gorm:"size:255" json:"lock_owner,omitempty"`
	Attempts    int                     `gorm:"not null;default:0" json:"attempts"`
	MessageID   *uint                   `json:"message_id,omitempty"`
	SentAt      *time.Time              `json:"sent_at,omitempty"`
	Error       *string                 `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time               `gorm:"not null" json:"created_at"`
	UpdatedAt   *time.Time              `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (CampaignRecipient) TableName() string {
	return "campaign_recipients"
}

// BeforeCreate is called before creating a new record
func (r *CampaignRecipient) BeforeCreate(tx *gorm.DB) error {
	if r.Status == "" {
		r.Status = CampaignRecipientStatusScheduled
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	return nil
}

// CampaignRecipientFilter represents filter criteria for campaign recipients
type CampaignRecipientFilter struct {
	ID           *uint                    `json:"id,omitempty"`
	RunID        *uint                    `json:"run_id,omitempty"`
	CampaignID   *uint                    `json:"campaign_id,omitempty"`
	TenantID     *uint                    `json:"tenant_id,omitempty"`
	ContactID    *uint                    `json:"contact_id,omitempty"`
	Status       *CampaignRecipientStatus `json:"status,omitempty"`
	LockOwner    *string                  `json:"lock_owner,omitempty"`
	DueBefore    *time.Time               `json:"due_before,omitempty"`
	LockedBefore *time.Time               `json:"locked_before,omitempty"`
}

// RecipientStatusCount is one row of a status breakdown
type RecipientStatusCount struct {
	Status CampaignRecipientStatus `json:"status"`
	Count  int64                   `json:"count"`
}
