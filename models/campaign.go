// Package models contains domain entities for the outreach engine
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/orochi-outreach/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusRunning,
		CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusCancelled,
		CampaignStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible without a new schedule action
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled || s == CampaignStatusFailed
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// NonTerminalCampaignStatuses lists the statuses pause and cancel may start from
func NonTerminalCampaignStatuses() []CampaignStatus {
	return []CampaignStatus{
		CampaignStatusDraft,
		CampaignStatusScheduled,
		CampaignStatusRunning,
		CampaignStatusPaused,
	}
}

// Recurrence is how often a campaign repeats
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for Recurrence
func (r *Recurrence) Scan(value any) error {
	if value == nil {
		*r = RecurrenceNone
		return nil
	}
	switch v := value.(type) {
	case string:
		*r = Recurrence(v)
	case []byte:
		*r = Recurrence(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Recurrence", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for Recurrence
func (r Recurrence) Value() (driver.Value, error) {
	if r == "" {
		return string(RecurrenceNone), nil
	}
	if !r.Valid() {
		return nil, fmt.Errorf("invalid Recurrence: %s", r)
	}
	return string(r), nil
}

// RateLimitUnit is the period a rate-limit cap applies to
type RateLimitUnit string

const (
	RateLimitUnitMinute RateLimitUnit = "minute"
	RateLimitUnitHour   RateLimitUnit = "hour"
	RateLimitUnitDay    RateLimitUnit = "day"
	RateLimitUnitWeek   RateLimitUnit = "week"
	RateLimitUnitMonth  RateLimitUnit = "month"
)

func (u RateLimitUnit) Valid() bool {
	_, ok := rateLimitUnitDurations[u]
	return ok
}

// Duration returns the fixed spacing of one rate window. A month is 30 days.
func (u RateLimitUnit) Duration() time.Duration {
	return rateLimitUnitDurations[u]
}

var rateLimitUnitDurations = map[RateLimitUnit]time.Duration{
	RateLimitUnitMinute: time.Minute,
	RateLimitUnitHour:   time.Hour,
	RateLimitUnitDay:    24 * time.Hour,
	RateLimitUnitWeek:   7 * 24 * time.Hour,
	RateLimitUnitMonth:  30 * 24 * time.Hour,
}

// Campaign is one outreach definition owned by a tenant
type Campaign struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	UUID             uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	TenantID         uint             `gorm:"not null;index:idx_campaigns_tenant_id" json:"tenant_id"`
	Name             string           `gorm:"size:255;not null" json:"name"`
	MessageTemplate  string           `gorm:"type:text;not null" json:"message_template"`
	ConnectionID     uint             `gorm:"not null;index:idx_campaigns_connection_id" json:"connection_id"`
	Status           CampaignStatus   `gorm:"size:32;not null;default:'draft';index:idx_campaigns_due,priority:1" json:"status"`
	SelectionMode    SelectionMode    `gorm:"size:32;not null;default:'explicit'" json:"selection_mode"`
	SelectionPayload SelectionPayload `gorm:"type:jsonb" json:"selection_payload"`
	DelaySeconds     int              `gorm:"not null;default:0" json:"delay_seconds"`
	StartAt          *time.Time       `json:"start_at,omitempty"`
	Recurrence       Recurrence       `gorm:"size:16;not null;default:'none'" json:"recurrence"`
	RateLimitCount   *int             `json:"rate_limit_count,omitempty"`
	RateLimitUnit    *RateLimitUnit   `gorm:"size:16" json:"rate_limit_unit,omitempty"`
	NextRunAt        *time.Time       `gorm:"index:idx_campaigns_due,priority:2" json:"next_run_at,omitempty"`
	LastRunAt        *time.Time       `json:"last_run_at,omitempty"`
	PausedAt         *time.Time       `json:"paused_at,omitempty"`
	CancelledAt      *time.Time       `json:"cancelled_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CreatedAt        time.Time        `gorm:"not null;index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt        *time.Time       `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.SelectionMode == "" {
		c.SelectionMode = SelectionModeExplicit
	}
	if c.Recurrence == "" {
		c.Recurrence = RecurrenceNone
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// IsEditable checks if the campaign fields can be edited
func (c *Campaign) IsEditable() bool {
	return c.Status == CampaignStatusDraft ||
		c.Status == CampaignStatusScheduled ||
		c.Status == CampaignStatusPaused
}

// IsDeletable checks if the campaign can be deleted by its tenant
func (c *Campaign) IsDeletable() bool {
	return c.Status != CampaignStatusRunning
}

// CanTransitionTo checks if the campaign can move to the given status
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch newStatus {
	case CampaignStatusScheduled:
		// schedule action, resume, or run finalization
		return c.Status == CampaignStatusDraft ||
			c.Status == CampaignStatusScheduled ||
			c.Status == CampaignStatusPaused ||
			c.Status == CampaignStatusRunning
	case CampaignStatusRunning:
		return c.Status == CampaignStatusScheduled
	case CampaignStatusCompleted:
		return c.Status == CampaignStatusRunning
	case CampaignStatusPaused, CampaignStatusCancelled:
		return !c.Status.IsTerminal()
	case CampaignStatusFailed:
		return c.Status == CampaignStatusRunning
	default:
		return false
	}
}

// RateLimit returns the rate cap, ok is false when none is configured
func (c *Campaign) RateLimit() (count int, unit RateLimitUnit, ok bool) {
	if c.RateLimitCount == nil || c.RateLimitUnit == nil || *c.RateLimitCount <= 0 {
		return 0, "", false
	}
	return *c.RateLimitCount, *c.RateLimitUnit, true
}

// Selection decodes the typed selection payload for the campaign's mode
func (c *Campaign) Selection() (Selection, error) {
	return DecodeSelection(c.SelectionMode, c.SelectionPayload)
}

// SetSelection stores a selection and its mode
func (c *Campaign) SetSelection(sel Selection) error {
	if sel == nil {
		return errors.New("selection is nil")
	}
	payload, err := EncodeSelection(sel)
	if err != nil {
		return err
	}
	c.SelectionMode = sel.Mode()
	c.SelectionPayload = payload
	return nil
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID            *uint           `json:"id,omitempty"`
	UUID          *uuid.UUID      `json:"uuid,omitempty"`
	TenantID      *uint           `json:"tenant_id,omitempty"`
	ConnectionID  *uint           `json:"connection_id,omitempty"`
	Status        *CampaignStatus `json:"status,omitempty"`
	Name          *string         `json:"name,omitempty"`
	Recurrence    *Recurrence     `json:"recurrence,omitempty"`
	DueBefore     *time.Time      `json:"due_before,omitempty"`
	CreatedAfter  *time.Time      `json:"created_after,omitempty"`
	CreatedBefore *time.Time      `json:"created_before,omitempty"`
	UpdatedBefore *time.Time      `json:"updated_before,omitempty"`
}

// jsonValue marshals v for a JSON column
func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// jsonBytes normalizes a scanned JSON column value
func jsonBytes(value any, target string) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("cannot scan %T into %s", value, target)
	}
}
