package dto

import (
	"encoding/json"
	"time"
)

// SelectionDTO is a tagged recipient selection: mode picks how payload is read
type SelectionDTO struct {
	Mode    string          `json:"mode" validate:"required,oneof=explicit column filter"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CreateCampaignRequest represents the request to create a new draft campaign
type CreateCampaignRequest struct {
	TenantID        uint          `json:"-"`
	Name            string        `json:"name" validate:"required,max=255"`
	MessageTemplate string        `json:"message_template" validate:"required,max=4096"`
	ConnectionID    uint          `json:"connection_id" validate:"required"`
	ContactIDs      []uint        `json:"contact_ids,omitempty" validate:"omitempty,dive,gt=0"`
	Selection       *SelectionDTO `json:"selection,omitempty" validate:"omitempty"`
	DelaySeconds    *int          `json:"delay_seconds,omitempty" validate:"omitempty,min=0"`
}

// CreateCampaignResponse represents the response to create a new campaign
type CreateCampaignResponse struct {
	Message   string `json:"message"`
	ID        uint   `json:"id"`
	UUID      string `json:"uuid"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// UpdateCampaignRequest represents the request to update an editable campaign.
// A zero rate_limit_count clears the rate cap.
type UpdateCampaignRequest struct {
	UUID            string  `json:"-"`
	TenantID        uint    `json:"-"`
	Name            *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	MessageTemplate *string `json:"message_template,omitempty" validate:"omitempty,min=1,max=4096"`
	ConnectionID    *uint   `json:"connection_id,omitempty" validate:"omitempty,gt=0"`
	DelaySeconds    *int    `json:"delay_seconds,omitempty" validate:"omitempty,min=0"`
	Recurrence      *string `json:"recurrence,omitempty" validate:"omitempty,oneof=none daily weekly monthly"`
	RateLimitCount  *int    `json:"rate_limit_count,omitempty" validate:"omitempty,min=0"`
	RateLimitUnit   *string `json:"rate_limit_unit,omitempty" validate:"omitempty,oneof=minute hour day week month"`
}

// UpdateCampaignResponse represents the response to update an existing campaign
type UpdateCampaignResponse struct {
	Message  string              `json:"message"`
	Campaign GetCampaignResponse `json:"campaign"`
}

// GetCampaignRequest addresses one campaign of a tenant
type GetCampaignRequest struct {
	UUID     string `json:"-"`
	TenantID uint   `json:"-"`
}

// GetCampaignResponse represents a campaign in responses
type GetCampaignResponse struct {
	ID               uint            `json:"id"`
	UUID             string          `json:"uuid"`
	Name             string          `json:"name"`
	MessageTemplate  string          `json:"message_template"`
	ConnectionID     uint            `json:"connection_id"`
	Status           string          `json:"status"`
	SelectionMode    string          `json:"selection_mode"`
	SelectionPayload json.RawMessage `json:"selection_payload,omitempty"`
	DelaySeconds     int             `json:"delay_seconds"`
	StartAt          *time.Time      `json:"start_at,omitempty"`
	Recurrence       string          `json:"recurrence"`
	RateLimitCount   *int            `json:"rate_limit_count,omitempty"`
	RateLimitUnit    *string         `json:"rate_limit_unit,omitempty"`
	NextRunAt        *time.Time      `json:"next_run_at,omitempty"`
	LastRunAt        *time.Time      `json:"last_run_at,omitempty"`
	PausedAt         *time.Time      `json:"paused_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        *time.Time      `json:"updated_at,omitempty"`
}

// ListCampaignsFilter narrows a campaign listing
type ListCampaignsFilter struct {
	Status *string `json:"status,omitempty" query:"status"`
	Name   *string `json:"name,omitempty" query:"name"`
}

// ListCampaignsRequest represents a paginated campaign listing
type ListCampaignsRequest struct {
	TenantID uint                 `json:"-"`
	Page     int                  `json:"page" query:"page"`
	Limit    int                  `json:"limit" query:"limit"`
	OrderBy  string               `json:"order_by" query:"order_by"` // newest, oldest, next_run
	Filter   *ListCampaignsFilter `json:"filter,omitempty"`
}

// PaginationInfo describes one page of a listing
type PaginationInfo struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// ListCampaignsResponse represents a page of campaigns
type ListCampaignsResponse struct {
	Message    string                `json:"message"`
	Items      []GetCampaignResponse `json:"items"`
	Pagination PaginationInfo        `json:"pagination"`
}

// DeleteCampaignResponse represents the response to delete a campaign
type DeleteCampaignResponse struct {
	Message string `json:"message"`
}

// SetRecipientsRequest replaces the explicit recipient list of a campaign
type SetRecipientsRequest struct {
	UUID       string `json:"-"`
	TenantID   uint   `json:"-"`
	ContactIDs []uint `json:"contact_ids" validate:"dive,gt=0"`
}

// SetRecipientsResponse reports the stored recipient list
type SetRecipientsResponse struct {
	Message    string `json:"message"`
	ContactIDs []uint `json:"contact_ids"`
}

// ScheduleCampaignRequest moves a campaign to scheduled
type ScheduleCampaignRequest struct {
	UUID           string     `json:"-"`
	TenantID       uint       `json:"-"`
	StartAt        *time.Time `json:"start_at" validate:"required"`
	Recurrence     string     `json:"recurrence,omitempty" validate:"omitempty,oneof=none daily weekly monthly"`
	DelaySeconds   *int       `json:"delay_seconds,omitempty" validate:"omitempty,min=0"`
	RateLimitCount *int       `json:"rate_limit_count,omitempty" validate:"omitempty,min=0"`
	RateLimitUnit  *string    `json:"rate_limit_unit,omitempty" validate:"omitempty,oneof=minute hour day week month"`
}

// CampaignActionRequest addresses a pause, resume or cancel action
type CampaignActionRequest struct {
	UUID     string `json:"-"`
	TenantID uint   `json:"-"`
}

// CampaignActionResponse reports the campaign after an action
type CampaignActionResponse struct {
	Message  string              `json:"message"`
	Campaign GetCampaignResponse `json:"campaign"`
}

// CampaignRunDTO represents one run of a campaign
type CampaignRunDTO struct {
	ID           uint       `json:"id"`
	UUID         string     `json:"uuid"`
	Status       string     `json:"status"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// CampaignStatsResponse aggregates recipient outcomes of a campaign
type CampaignStatsResponse struct {
	Message    string           `json:"message"`
	CampaignID uint             `json:"campaign_id"`
	UUID       string           `json:"uuid"`
	Status     string           `json:"status"`
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	LatestRun  *CampaignRunDTO  `json:"latest_run,omitempty"`
}
