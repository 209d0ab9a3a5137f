// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"

	"github.com/amirphl/orochi-outreach/app/dto"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	"github.com/amirphl/orochi-outreach/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

func getTenant(ctx context.Context, tenantRepo repository.TenantRepository, tenantID uint) (*models.Tenant, error) {
	if tenantID == 0 {
		return nil, ErrTenantNotFound
	}
	tenant, err := tenantRepo.ByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}
	if tenant.IsActive != nil && !*tenant.IsActive {
		return nil, ErrTenantInactive
	}
	return tenant, nil
}

// getCampaign loads a campaign by UUID and checks it belongs to tenantID
func getCampaign(ctx context.Context, campaignRepo repository.CampaignRepository, campaignUUID string, tenantID uint) (*models.Campaign, error) {
	if campaignUUID == "" {
		return nil, ErrCampaignUUIDRequired
	}
	campaign, err := campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		// a malformed UUID addresses nothing
		return nil, ErrCampaignNotFound
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	if campaign.TenantID != tenantID {
		return nil, ErrCampaignAccessDenied
	}
	return campaign, nil
}

// ToCampaignDTO converts a campaign model to its response shape
func ToCampaignDTO(c *models.Campaign) dto.GetCampaignResponse {
	out := dto.GetCampaignResponse{
		ID:              c.ID,
		UUID:            c.UUID.String(),
		Name:            c.Name,
		MessageTemplate: c.MessageTemplate,
		ConnectionID:    c.ConnectionID,
		Status:          c.Status.String(),
		SelectionMode:   c.SelectionMode.String(),
		DelaySeconds:    c.DelaySeconds,
		StartAt:         c.StartAt,
		Recurrence:      string(c.Recurrence),
		RateLimitCount:  c.RateLimitCount,
		NextRunAt:       c.NextRunAt,
		LastRunAt:       c.LastRunAt,
		PausedAt:        c.PausedAt,
		CancelledAt:     c.CancelledAt,
		CompletedAt:     c.CompletedAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if len(c.SelectionPayload) > 0 {
		out.SelectionPayload = json.RawMessage(c.SelectionPayload)
	}
	if c.RateLimitUnit != nil {
		out.RateLimitUnit = utils.ToPtr(string(*c.RateLimitUnit))
	}
	return out
}

// ToCampaignRunDTO converts a run model to its response shape
func ToCampaignRunDTO(r *models.CampaignRun) *dto.CampaignRunDTO {
	if r == nil {
		return nil
	}
	return &dto.CampaignRunDTO{
		ID:           r.ID,
		UUID:         r.UUID.String(),
		Status:       string(r.Status),
		ScheduledFor: r.ScheduledFor,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}
