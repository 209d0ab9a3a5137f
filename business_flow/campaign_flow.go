// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/orochi-outreach/app/dto"
	"github.com/amirphl/orochi-outreach/app/scheduler"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	"github.com/amirphl/orochi-outreach/utils"
	"gorm.io/gorm"
)

// CampaignFlow handles the campaign control surface
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	GetCampaign(ctx context.Context, req *dto.GetCampaignRequest) (*dto.GetCampaignResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)
	UpdateCampaign(ctx context.Context, req *dto.UpdateCampaignRequest, metadata *ClientMetadata) (*dto.UpdateCampaignResponse, error)
	DeleteCampaign(ctx context.Context, req *dto.GetCampaignRequest, metadata *ClientMetadata) (*dto.DeleteCampaignResponse, error)
	SetRecipients(ctx context.Context, req *dto.SetRecipientsRequest, metadata *ClientMetadata) (*dto.SetRecipientsResponse, error)
	ScheduleCampaign(ctx context.Context, req *dto.ScheduleCampaignRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error)
	PauseCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error)
	ResumeCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error)
	CancelCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error)
	GetCampaignStats(ctx context.Context, req *dto.GetCampaignRequest) (*dto.CampaignStatsResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo   repository.CampaignRepository
	runRepo        repository.CampaignRunRepository
	recipientRepo  repository.CampaignRecipientRepository
	connectionRepo repository.ConnectionRepository
	tenantRepo     repository.TenantRepository
	auditRepo      repository.AuditLogRepository
	db             *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	runRepo repository.CampaignRunRepository,
	recipientRepo repository.CampaignRecipientRepository,
	connectionRepo repository.ConnectionRepository,
	tenantRepo repository.TenantRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo:   campaignRepo,
		runRepo:        runRepo,
		recipientRepo:  recipientRepo,
		connectionRepo: connectionRepo,
		tenantRepo:     tenantRepo,
		auditRepo:      auditRepo,
		db:             db,
	}
}

// CreateCampaign stores a new draft campaign
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	// Validate business rules
	if err := s.validateCreateCampaignRequest(req); err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}

	tenant, err := getTenant(ctx, s.tenantRepo, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to lookup tenant", err)
	}

	selection, err := selectionFromRequest(req)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}

	campaign := &models.Campaign{
		TenantID:        tenant.ID,
		Name:            strings.TrimSpace(req.Name),
		MessageTemplate: req.MessageTemplate,
		ConnectionID:    req.ConnectionID,
		Status:          models.CampaignStatusDraft,
		Recurrence:      models.RecurrenceNone,
	}
	if req.DelaySeconds != nil {
		campaign.DelaySeconds = *req.DelaySeconds
	}
	if err := campaign.SetSelection(selection); err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.checkConnection(txCtx, tenant.ID, req.ConnectionID); err != nil {
			return err
		}
		return s.campaignRepo.Save(txCtx, campaign)
	})
	if err != nil {
		errMsg := fmt.Sprintf("Campaign creation failed: %s", err.Error())
		_ = s.createAuditLog(ctx, tenant.ID, models.AuditActionCampaignActionFailed, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	msg := fmt.Sprintf("Campaign created successfully: %s", campaign.UUID.String())
	_ = s.createAuditLog(ctx, tenant.ID, models.AuditActionCampaignCreated, msg, true, nil, metadata)

	return &dto.CreateCampaignResponse{
		Message:   "Campaign created successfully",
		ID:        campaign.ID,
		UUID:      campaign.UUID.String(),
		Status:    campaign.Status.String(),
		CreatedAt: campaign.CreatedAt.Format(time.RFC3339),
	}, nil
}

// GetCampaign returns one campaign of the tenant
func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, req *dto.GetCampaignRequest) (*dto.GetCampaignResponse, error) {
	campaign, err := getCampaign(ctx, s.campaignRepo, req.UUID, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	resp := ToCampaignDTO(campaign)
	return &resp, nil
}

// ListCampaigns returns a page of the tenant's campaigns
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	var err error
	defer func() {
		if err != nil {
			err = NewBusinessError("LIST_CAMPAIGNS_FAILED", "Failed to list campaigns", err)
		}
	}()

	_, err = getTenant(ctx, s.tenantRepo, req.TenantID)
	if err != nil {
		return nil, err
	}

	// Normalize pagination
	page := max(1, req.Page)
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		err = ErrInvalidPageSize
		return nil, err
	}
	offset := (page - 1) * limit

	filter := models.CampaignFilter{TenantID: &req.TenantID}
	if req.Filter != nil {
		if req.Filter.Name != nil && *req.Filter.Name != "" {
			filter.Name = req.Filter.Name
		}
		if req.Filter.Status != nil && *req.Filter.Status != "" {
			status := models.CampaignStatus(*req.Filter.Status)
			if status.Valid() {
				filter.Status = &status
			}
		}
	}

	orderBy := "created_at DESC, id DESC"
	switch req.OrderBy {
	case "oldest":
		orderBy = "created_at ASC, id ASC"
	case "next_run":
		orderBy = "next_run_at ASC, id ASC"
	}

	total64, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.campaignRepo.ByFilter(ctx, filter, orderBy, limit, offset)
	if err != nil {
		return nil, err
	}

	items := make([]dto.GetCampaignResponse, 0, len(rows))
	for _, c := range rows {
		items = append(items, ToCampaignDTO(c))
	}

	totalPages := int((total64 + int64(limit) - 1) / int64(limit))

	return &dto.ListCampaignsResponse{
		Message: "Campaigns retrieved successfully",
		Items:   items,
		Pagination: dto.PaginationInfo{
			Total:      total64,
			Page:       page,
			Limit:      limit,
			TotalPages: totalPages,
		},
	}, nil
}

// UpdateCampaign changes the editable fields of a draft, scheduled or paused campaign
func (s *CampaignFlowImpl) UpdateCampaign(ctx context.Context, req *dto.UpdateCampaignRequest, metadata *ClientMetadata) (*dto.UpdateCampaignResponse, error) {
	if err := s.validateUpdateCampaignRequest(req); err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_VALIDATION_FAILED", "Campaign update validation failed", err)
	}

	tenant, err := getTenant(ctx, s.tenantRepo, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to lookup tenant", err)
	}

	var campaign *models.Campaign
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		campaign, err = getCampaign(txCtx, s.campaignRepo, req.UUID, tenant.ID)
		if err != nil {
			return err
		}
		if !campaign.IsEditable() {
			return ErrCampaignNotEditable
		}

		fields := make(map[string]any)
		if req.Name != nil {
			fields["name"] = strings.TrimSpace(*req.Name)
		}
		if req.MessageTemplate != nil {
			fields["message_template"] = *req.MessageTemplate
		}
		if req.ConnectionID != nil {
			if err := s.checkConnection(txCtx, tenant.ID, *req.ConnectionID); err != nil {
				return err
			}
			fields["connection_id"] = *req.ConnectionID
		}
		if req.DelaySeconds != nil {
			fields["delay_seconds"] = *req.DelaySeconds
		}
		if req.Recurrence != nil {
			fields["recurrence"] = models.Recurrence(*req.Recurrence)
		}
		if err := mergeRateLimit(fields, campaign, req.RateLimitCount, req.RateLimitUnit); err != nil {
			return err
		}

		return s.casFields(txCtx, campaign, campaign.Status, fields)
	})
	if err != nil {
		s.auditFailure(ctx, tenant.ID, "update", req.UUID, err, metadata)
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Failed to update campaign", err)
	}

	msg := fmt.Sprintf("Campaign updated: %s", campaign.UUID.String())
	_ = s.createAuditLog(ctx, tenant.ID, models.AuditActionCampaignUpdated, msg, true, nil, metadata)

	updated, err := s.reload(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	return &dto.UpdateCampaignResponse{
		Message:  "Campaign updated successfully",
		Campaign: ToCampaignDTO(updated),
	}, nil
}

// DeleteCampaign removes a campaign that is not running, with its runs and recipients
func (s *CampaignFlowImpl) DeleteCampaign(ctx context.Context, req *dto.GetCampaignRequest, metadata *ClientMetadata) (*dto.DeleteCampaignResponse, error) {
	tenant, err := getTenant(ctx, s.tenantRepo, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to lookup tenant", err)
	}

	var campaign *models.Campaign
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		campaign, err = getCampaign(txCtx, s.campaignRepo, req.UUID, tenant.ID)
		if err != nil {
			return err
		}
		if !campaign.IsDeletable() {
			return ErrCampaignNotDeletable
		}
		// the status write locks the row until commit so no worker can start a run meanwhile
		if err := s.casFields(txCtx, campaign, campaign.Status, nil); err != nil {
			return err
		}
		return s.campaignRepo.Delete(txCtx, campaign.ID)
	})
	if err != nil {
		s.auditFailure(ctx, tenant.ID, "delete", req.UUID, err, metadata)
		return nil, NewBusinessError("CAMPAIGN_DELETE_FAILED", "Failed to delete campaign", err)
	}

	msg := fmt.Sprintf("Campaign deleted: %s", campaign.UUID.String())
	_ = s.createAuditLog(ctx, tenant.ID, models.AuditActionCampaignDeleted, msg, true, nil, metadata)

	return &dto.DeleteCampaignResponse{Message: "Campaign deleted successfully"}, nil
}

// SetRecipients replaces the campaign's selection with an explicit contact list
func (s *CampaignFlowImpl) SetRecipients(ctx context.Context, req *dto.SetRecipientsRequest, metadata *ClientMetadata) (*dto.SetRecipientsResponse, error) {
	for _, id := range req.ContactIDs {
		if id == 0 {
			return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", ErrInvalidContactID)
		}
	}

	tenant, err := getTenant(ctx, s.tenantRepo, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to lookup tenant", err)
	}

	ids := utils.DedupUint(req.ContactIDs)
	var campaign *models.Campaign
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		campaign, err = getCampaign(txCtx, s.campaignRepo, req.UUID, tenant.ID)
		if err != nil {
			return err
		}
		if !campaign.IsEditable() {
			return ErrCampaignNotEditable
		}

		payload, err := models.EncodeSelection(models.ExplicitSelection{ContactIDs: ids})
		if err != nil {
			return err
		}
		return s.casFields(txCtx, campaign, campaign.Status, map[string]any{
			"selection_mode":    models.SelectionModeExplicit,
			"selection_payload": payload,
		})
	})
	if err != nil {
		s.auditFailure(ctx, tenant.ID, "set recipients", req.UUID, err, metadata)
		return nil, NewBusinessError("SET_RECIPIENTS_FAILED", "Failed to set campaign recipients", err)
	}

	msg := fmt.Sprintf("Campaign %s recipients set: %d contacts", campaign.UUID.String(), len(ids))
	_ = s.createAuditLog(ctx, tenant.ID, models.AuditActionCampaignRecipientsSet, msg, true, nil, metadata)

	return &dto.SetRecipientsResponse{
		Message:    "Campaign recipients updated successfully",
		ContactIDs: ids,
	}, nil
}

// ScheduleCampaign moves a draft or scheduled campaign to scheduled with next_run_at = start_at
func (s *CampaignFlowImpl) ScheduleCampaign(ctx context.Context, req *dto.ScheduleCampaignRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error) {
	if err := s.validateScheduleCampaignRequest(req); err != nil {
		return nil, NewBusinessError("CAMPAIGN_SCHEDULE_VALIDATION_FAILED", "Campaign schedule validation failed", err)
	}

	tenant, err := getTenant(ctx, s.tenantRepo, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to lookup tenant", err)
	}

	var campaign *models.Campaign
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		campaign, err = getCampaign(txCtx, s.campaignRepo, req.UUID, tenant.ID)
		if err != nil {
			return err
		}
		if campaign.Status != models.CampaignStatusDraft && campaign.Status != models.CampaignStatusScheduled {
			return ErrCampaignNotSchedulable
		}

		recurrence := models.RecurrenceNone
		if req.Recurrence != "" {
			recurrence = models.Recurrence(req.Recurrence)
		}
		startAt := req.StartAt.UTC()
		fields := map[string]any{
			"start_at":    startAt,
			"next_run_at": startAt,
			"recurrence":  recurrence,
		}
		if req.DelaySeconds != nil {
			fields["delay_seconds"] = *req.DelaySeconds
		}
		if err := mergeRateLimit(fields, campaign, req.RateLimitCount, req.RateLimitUnit); err != nil {
			return err
		}

		return s.transition(txCtx, campaign, models.CampaignStatusScheduled, fields)
	})
	if err != nil {
		s.auditFailure(ctx, tenant.ID, "schedule", req.UUID, err, metadata)
		return nil, NewBusinessError("CAMPAIGN_SCHEDULE_FAILED", "Failed to schedule campaign", err)
	}

	msg := fmt.Sprintf("Campaign %s scheduled for %s", campaign.UUID.String(), req.StartAt.UTC().Format(time.RFC3339))
	_ = s.createAuditLog(ctx, tenant.ID, models.AuditActionCampaignScheduled, msg, true, nil, metadata)

	return s.actionResponse(ctx, campaign.ID, "Campaign scheduled successfully")
}

// PauseCampaign stops future dispatches of a campaign. Pausing a paused campaign is a no-op.
func (s *CampaignFlowImpl) PauseCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error) {
	tenant, err := getTenant(ctx, s.tenantRepo, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to lookup tenant", err)
	}

	var (
		campaign *models.Campaign
		noop     bool
	)
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		campaign, err = getCampaign(txCtx, s.campaignRepo, req.UUID, tenant.ID)
		if err != nil {
			return err
		}
		if campaign.Status == models.CampaignStatusPaused {
			noop = true
			return nil
		}
		if campaign.Status.IsTerminal() {
			return ErrCampaignAlreadyTerminated
		}
		return s.transition(txCtx, campaign, models.CampaignStatusPaused, map[string]any{
			"paused_at":   utils.UTCNow(),
			"next_run_at": nil,
		})
	})
	if err != nil {
		s.auditFailure(ctx, tenant.ID, "pause", req.UUID, err, metadata)
		return nil, NewBusinessError("CAMPAIGN_PAUSE_FAILED", "Failed to pause campaign", err)
	}

	msg := fmt.Sprintf("Campaign paused: %s", campaign.UUID.String())
	if noop {
		msg = fmt.Sprintf("Campaign already paused: %s", campaign.UUID.String())
	}
	_ = s.createAuditLog(ctx, tenant.ID, models.AuditActionCampaignPaused, msg, true, nil, metadata)

	return s.actionResponse(ctx, campaign.ID, "Campaign paused successfully")
}

// ResumeCampaign moves a paused campaign back to scheduled, due immediately
func (s *CampaignFlowImpl) ResumeCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error) {
	tenant, err := getTenant(ctx, s.tenantRepo, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to lookup tenant", err)
	}

	var campaign *models.Campaign
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		campaign, err = getCampaign(txCtx, s.campaignRepo, req.UUID, tenant.ID)
		if err != nil {
			return err
		}
		if campaign.Status != models.CampaignStatusPaused {
			return ErrCampaignNotPaused
		}
		return s.transition(txCtx, campaign, models.CampaignStatusScheduled, map[string]any{
			"next_run_at": utils.UTCNow(),
			"paused_at":   nil,
		})
	})
	if err != nil {
		s.auditFailure(ctx, tenant.ID, "resume", req.UUID, err, metadata)
		return nil, NewBusinessError("CAMPAIGN_RESUME_FAILED", "Failed to resume campaign", err)
	}

	msg := fmt.Sprintf("Campaign resumed: %s", campaign.UUID.String())
	_ = s.createAuditLog(ctx, tenant.ID, models.AuditActionCampaignResumed, msg, true, nil, metadata)

	return s.actionResponse(ctx, campaign.ID, "Campaign resumed successfully")
}

// CancelCampaign terminates a campaign and skips its scheduled recipients.
// Cancelling a cancelled campaign is a no-op.
func (s *CampaignFlowImpl) CancelCampaign(ctx context.Context, req *dto.CampaignActionRequest, metadata *ClientMetadata) (*dto.CampaignActionResponse, error) {
	tenant, err := getTenant(ctx, s.tenantRepo, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to lookup tenant", err)
	}

	var (
		campaign *models.Campaign
		skipped  int64
		closed   int
		noop     bool
	)
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		campaign, err = getCampaign(txCtx, s.campaignRepo, req.UUID, tenant.ID)
		if err != nil {
			return err
		}
		if campaign.Status == models.CampaignStatusCancelled {
			noop = true
			return nil
		}
		if campaign.Status.IsTerminal() {
			return ErrCampaignAlreadyTerminated
		}

		now := utils.UTCNow()
		if err := s.transition(txCtx, campaign, models.CampaignStatusCancelled, map[string]any{
			"cancelled_at": now,
			"next_run_at":  nil,
		}); err != nil {
			return err
		}

		skipped, err = s.recipientRepo.SkipScheduledByCampaign(txCtx, campaign.ID, scheduler.ReasonCampaignCancelled, now)
		if err != nil {
			return err
		}

		// runs with an in-flight recipient are closed by the worker that owns it
		runs, err := s.runRepo.ListRunningByCampaignID(txCtx, campaign.ID)
		if err != nil {
			return err
		}
		for _, run := range runs {
			pending, err := s.recipientRepo.CountPendingByRun(txCtx, run.ID)
			if err != nil {
				return err
			}
			if pending > 0 {
				continue
			}
			finished, err := s.runRepo.Finish(txCtx, run.ID, models.CampaignRunStatusCancelled, now)
			if err != nil {
				return err
			}
			if finished {
				closed++
			}
		}
		return nil
	})
	if err != nil {
		s.auditFailure(ctx, tenant.ID, "cancel", req.UUID, err, metadata)
		return nil, NewBusinessError("CAMPAIGN_CANCEL_FAILED", "Failed to cancel campaign", err)
	}

	msg := fmt.Sprintf("Campaign cancelled: %s (%d recipients skipped, %d runs closed)", campaign.UUID.String(), skipped, closed)
	if noop {
		msg = fmt.Sprintf("Campaign already cancelled: %s", campaign.UUID.String())
	}
	_ = s.createAuditLog(ctx, tenant.ID, models.AuditActionCampaignCancelled, msg, true, nil, metadata)

	return s.actionResponse(ctx, campaign.ID, "Campaign cancelled successfully")
}

// GetCampaignStats aggregates recipient statuses across all runs and reports the latest run
func (s *CampaignFlowImpl) GetCampaignStats(ctx context.Context, req *dto.GetCampaignRequest) (*dto.CampaignStatsResponse, error) {
	campaign, err := getCampaign(ctx, s.campaignRepo, req.UUID, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	counts, err := s.recipientRepo.CountByStatus(ctx, models.CampaignRecipientFilter{CampaignID: &campaign.ID})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_STATS_FAILED", "Failed to aggregate campaign recipients", err)
	}

	byStatus := map[string]int64{
		models.CampaignRecipientStatusScheduled.String(): 0,
		models.CampaignRecipientStatusSending.String():   0,
		models.CampaignRecipientStatusSent.String():      0,
		models.CampaignRecipientStatusFailed.String():    0,
		models.CampaignRecipientStatusSkipped.String():   0,
	}
	var total int64
	for _, c := range counts {
		byStatus[c.Status.String()] = c.Count
		total += c.Count
	}

	latest, err := s.runRepo.LatestByCampaignID(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_STATS_FAILED", "Failed to load latest run", err)
	}

	return &dto.CampaignStatsResponse{
		Message:    "Campaign statistics retrieved successfully",
		CampaignID: campaign.ID,
		UUID:       campaign.UUID.String(),
		Status:     campaign.Status.String(),
		Total:      total,
		ByStatus:   byStatus,
		LatestRun:  ToCampaignRunDTO(latest),
	}, nil
}

// validateCreateCampaignRequest validates the campaign creation request
func (s *CampaignFlowImpl) validateCreateCampaignRequest(req *dto.CreateCampaignRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return ErrCampaignNameRequired
	}
	if strings.TrimSpace(req.MessageTemplate) == "" {
		return ErrCampaignTemplateRequired
	}
	if req.ConnectionID == 0 {
		return ErrConnectionRequired
	}
	if req.DelaySeconds != nil && *req.DelaySeconds < 0 {
		return ErrInvalidDelay
	}
	for _, id := range req.ContactIDs {
		if id == 0 {
			return ErrInvalidContactID
		}
	}
	return nil
}

func (s *CampaignFlowImpl) validateUpdateCampaignRequest(req *dto.UpdateCampaignRequest) error {
	if req.UUID == "" {
		return ErrCampaignUUIDRequired
	}
	if req.Name == nil && req.MessageTemplate == nil && req.ConnectionID == nil &&
		req.DelaySeconds == nil && req.Recurrence == nil && req.RateLimitCount == nil && req.RateLimitUnit == nil {
		return ErrCampaignUpdateRequired
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return ErrCampaignNameRequired
	}
	if req.MessageTemplate != nil && strings.TrimSpace(*req.MessageTemplate) == "" {
		return ErrCampaignTemplateRequired
	}
	if req.ConnectionID != nil && *req.ConnectionID == 0 {
		return ErrConnectionRequired
	}
	if req.DelaySeconds != nil && *req.DelaySeconds < 0 {
		return ErrInvalidDelay
	}
	if req.Recurrence != nil && !models.Recurrence(*req.Recurrence).Valid() {
		return ErrInvalidRecurrence
	}
	return nil
}

func (s *CampaignFlowImpl) validateScheduleCampaignRequest(req *dto.ScheduleCampaignRequest) error {
	if req.UUID == "" {
		return ErrCampaignUUIDRequired
	}
	if req.StartAt == nil || req.StartAt.IsZero() {
		return ErrStartAtRequired
	}
	if req.Recurrence != "" && !models.Recurrence(req.Recurrence).Valid() {
		return ErrInvalidRecurrence
	}
	if req.DelaySeconds != nil && *req.DelaySeconds < 0 {
		return ErrInvalidDelay
	}
	return nil
}

// selectionFromRequest builds the stored selection: an explicit selection payload, else contact_ids
func selectionFromRequest(req *dto.CreateCampaignRequest) (models.Selection, error) {
	if req.Selection == nil {
		return models.ExplicitSelection{ContactIDs: utils.DedupUint(req.ContactIDs)}, nil
	}
	mode := models.SelectionMode(req.Selection.Mode)
	if !mode.Valid() {
		return nil, ErrInvalidSelectionMode
	}
	sel, err := models.DecodeSelection(mode, models.SelectionPayload(req.Selection.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelectionMode, err)
	}
	if explicit, ok := sel.(models.ExplicitSelection); ok {
		for _, id := range explicit.ContactIDs {
			if id == 0 {
				return nil, ErrInvalidContactID
			}
		}
		return models.ExplicitSelection{ContactIDs: utils.DedupUint(explicit.ContactIDs)}, nil
	}
	return sel, nil
}

// mergeRateLimit adds rate cap columns to fields. A zero count clears the cap,
// a missing side of the pair falls back to the campaign's current value.
func mergeRateLimit(fields map[string]any, campaign *models.Campaign, count *int, unit *string) error {
	if count == nil && unit == nil {
		return nil
	}
	if count != nil && *count == 0 {
		fields["rate_limit_count"] = nil
		fields["rate_limit_unit"] = nil
		return nil
	}

	newCount := campaign.RateLimitCount
	if count != nil {
		newCount = count
	}
	newUnit := campaign.RateLimitUnit
	if unit != nil {
		newUnit = utils.ToPtr(models.RateLimitUnit(*unit))
	}
	if newCount == nil || *newCount <= 0 || newUnit == nil || !newUnit.Valid() {
		return ErrInvalidRateLimit
	}
	fields["rate_limit_count"] = *newCount
	fields["rate_limit_unit"] = *newUnit
	return nil
}

func (s *CampaignFlowImpl) checkConnection(ctx context.Context, tenantID, connectionID uint) error {
	conn, err := s.connectionRepo.ByID(ctx, connectionID)
	if err != nil {
		return err
	}
	if conn == nil || conn.TenantID != tenantID {
		return ErrConnectionNotFound
	}
	return nil
}

// casFields writes fields while the campaign is still in status, keeping that status
func (s *CampaignFlowImpl) casFields(ctx context.Context, campaign *models.Campaign, status models.CampaignStatus, fields map[string]any) error {
	won, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, []models.CampaignStatus{status}, status, fields)
	if err != nil {
		return err
	}
	if !won {
		return ErrCampaignStateChanged
	}
	return nil
}

// transition moves the campaign from its loaded status to `to`
func (s *CampaignFlowImpl) transition(ctx context.Context, campaign *models.Campaign, to models.CampaignStatus, fields map[string]any) error {
	if !campaign.CanTransitionTo(to) {
		return NewBusinessErrorf("INVALID_STATUS_TRANSITION", "cannot move campaign from %s to %s", ErrCampaignStateChanged, campaign.Status, to)
	}
	won, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, []models.CampaignStatus{campaign.Status}, to, fields)
	if err != nil {
		return err
	}
	if !won {
		return ErrCampaignStateChanged
	}
	return nil
}

func (s *CampaignFlowImpl) reload(ctx context.Context, id uint) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	return campaign, nil
}

func (s *CampaignFlowImpl) actionResponse(ctx context.Context, id uint, message string) (*dto.CampaignActionResponse, error) {
	campaign, err := s.reload(ctx, id)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	return &dto.CampaignActionResponse{
		Message:  message,
		Campaign: ToCampaignDTO(campaign),
	}, nil
}

func (s *CampaignFlowImpl) auditFailure(ctx context.Context, tenantID uint, action, campaignUUID string, cause error, metadata *ClientMetadata) {
	errMsg := fmt.Sprintf("Campaign %s %s failed: %s", campaignUUID, action, cause.Error())
	_ = s.createAuditLog(ctx, tenantID, models.AuditActionCampaignActionFailed, errMsg, false, &errMsg, metadata)
}

// createAuditLog creates an audit log entry for campaign actions
func (s *CampaignFlowImpl) createAuditLog(ctx context.Context, tenantID uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
	ipAddress := ""
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		TenantID:     &tenantID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}
	if metadata != nil && len(metadata.Additional) > 0 {
		if raw, err := json.Marshal(metadata.Additional); err == nil {
			audit.Metadata = raw
		}
	}

	// Extract request ID from context if available
	requestID := ctx.Value(utils.RequestIDKey)
	if requestID != nil {
		requestIDStr, ok := requestID.(string)
		if ok {
			audit.RequestID = &requestIDStr
		}
	}
	if audit.RequestID == nil && metadata != nil && metadata.RequestID != "" {
		audit.RequestID = utils.ToPtr(metadata.RequestID)
	}

	if err := s.auditRepo.Save(ctx, audit); err != nil {
		return err
	}

	return nil
}
