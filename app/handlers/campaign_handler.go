// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/orochi-outreach/app/dto"
	businessflow "github.com/amirphl/orochi-outreach/business_flow"
	"github.com/amirphl/orochi-outreach/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	UpdateCampaign(c fiber.Ctx) error
	DeleteCampaign(c fiber.Ctx) error
	SetRecipients(c fiber.Ctx) error
	ScheduleCampaign(c fiber.Ctx) error
	PauseCampaign(c fiber.Ctx) error
	ResumeCampaign(c fiber.Ctx) error
	CancelCampaign(c fiber.Ctx) error
	GetCampaignStats(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	validator    *validator.Validate
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		validator:    validator.New(),
	}
}

// CreateCampaign handles the campaign creation process
// @Summary Create Campaign
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body dto.CreateCampaignRequest true "Campaign creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateCampaignResponse} "Campaign created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if msgs := h.validate(&req); msgs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", msgs)
	}

	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}
	req.TenantID = tenantID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.CreateCampaign(ctx, &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// GetCampaign returns one campaign
// @Summary Get Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetCampaignResponse}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{uuid} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid")
	defer cancel()

	result, err := h.campaignFlow.GetCampaign(ctx, &dto.GetCampaignRequest{UUID: c.Params("uuid"), TenantID: tenantID})
	if err != nil {
		return h.flowError(c, err, "Failed to get campaign", "GET_CAMPAIGN_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// ListCampaigns returns the tenant's campaigns with filters and pagination
// @Summary List Campaigns
// @Tags Campaigns
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Items per page (max 100)"
// @Param order_by query string false "Order by (newest|oldest|next_run)" default(newest)
// @Param name query string false "Filter by exact name"
// @Param status query string false "Filter by status"
// @Success 200 {object} dto.APIResponse{data=dto.ListCampaignsResponse}
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	page := 1
	if v, err := strconv.Atoi(c.Query("page", "1")); err == nil && v > 0 {
		page = v
	}
	limit := 10
	if v, err := strconv.Atoi(c.Query("limit", "10")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	name := c.Query("name")
	status := c.Query("status")

	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}

	var filter *dto.ListCampaignsFilter
	if name != "" || status != "" {
		filter = &dto.ListCampaignsFilter{}
		if name != "" {
			filter.Name = &name
		}
		if status != "" {
			filter.Status = &status
		}
	}
	req := &dto.ListCampaignsRequest{
		TenantID: tenantID,
		Page:     page,
		Limit:    limit,
		OrderBy:  c.Query("order_by", "newest"),
		Filter:   filter,
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.ListCampaigns(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to list campaigns", "LIST_CAMPAIGNS_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", fiber.Map{
		"items":      result.Items,
		"pagination": result.Pagination,
	})
}

// UpdateCampaign handles the campaign update process
// @Summary Update Campaign
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.UpdateCampaignRequest true "Campaign update data"
// @Success 200 {object} dto.APIResponse{data=dto.UpdateCampaignResponse}
// @Failure 409 {object} dto.APIResponse "Campaign cannot be updated in its current status"
// @Router /api/v1/campaigns/{uuid} [put]
func (h *CampaignHandler) UpdateCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	var req dto.UpdateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UUID = campaignUUID

	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}
	req.TenantID = tenantID

	if msgs := h.validate(&req); msgs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", msgs)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid")
	defer cancel()

	result, err := h.campaignFlow.UpdateCampaign(ctx, &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Campaign update failed", "CAMPAIGN_UPDATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign updated successfully", result.Campaign)
}

// DeleteCampaign removes a campaign that is not running
// @Summary Delete Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "Campaign is running"
// @Router /api/v1/campaigns/{uuid} [delete]
func (h *CampaignHandler) DeleteCampaign(c fiber.Ctx) error {
	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid")
	defer cancel()

	result, err := h.campaignFlow.DeleteCampaign(ctx, &dto.GetCampaignRequest{UUID: c.Params("uuid"), TenantID: tenantID}, metadata)
	if err != nil {
		return h.flowError(c, err, "Campaign deletion failed", "CAMPAIGN_DELETE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, nil)
}

// SetRecipients replaces the explicit recipient list
// @Summary Set Campaign Recipients
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.SetRecipientsRequest true "Contact ids"
// @Success 200 {object} dto.APIResponse{data=dto.SetRecipientsResponse}
// @Router /api/v1/campaigns/{uuid}/recipients [put]
func (h *CampaignHandler) SetRecipients(c fiber.Ctx) error {
	var req dto.SetRecipientsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if msgs := h.validate(&req); msgs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", msgs)
	}

	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}
	req.TenantID = tenantID
	req.UUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/recipients")
	defer cancel()

	result, err := h.campaignFlow.SetRecipients(ctx, &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Failed to set campaign recipients", "SET_RECIPIENTS_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, fiber.Map{"contact_ids": result.ContactIDs})
}

// ScheduleCampaign sets the start time and recurrence and moves the campaign to scheduled
// @Summary Schedule Campaign
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.ScheduleCampaignRequest true "Schedule"
// @Success 200 {object} dto.APIResponse{data=dto.GetCampaignResponse}
// @Router /api/v1/campaigns/{uuid}/schedule [post]
func (h *CampaignHandler) ScheduleCampaign(c fiber.Ctx) error {
	var req dto.ScheduleCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if msgs := h.validate(&req); msgs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", msgs)
	}

	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}
	req.TenantID = tenantID
	req.UUID = c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/schedule")
	defer cancel()

	result, err := h.campaignFlow.ScheduleCampaign(ctx, &req, metadata)
	if err != nil {
		return h.flowError(c, err, "Campaign scheduling failed", "CAMPAIGN_SCHEDULE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result.Campaign)
}

// PauseCampaign pauses a campaign
// @Summary Pause Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetCampaignResponse}
// @Router /api/v1/campaigns/{uuid}/pause [post]
func (h *CampaignHandler) PauseCampaign(c fiber.Ctx) error {
	return h.campaignAction(c, "pause", h.campaignFlow.PauseCampaign)
}

// ResumeCampaign resumes a paused campaign
// @Summary Resume Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetCampaignResponse}
// @Router /api/v1/campaigns/{uuid}/resume [post]
func (h *CampaignHandler) ResumeCampaign(c fiber.Ctx) error {
	return h.campaignAction(c, "resume", h.campaignFlow.ResumeCampaign)
}

// CancelCampaign cancels a campaign
// @Summary Cancel Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetCampaignResponse}
// @Router /api/v1/campaigns/{uuid}/cancel [post]
func (h *CampaignHandler) CancelCampaign(c fiber.Ctx) error {
	return h.campaignAction(c, "cancel", h.campaignFlow.CancelCampaign)
}

// GetCampaignStats returns recipient counts by status and the latest run
// @Summary Campaign Statistics
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignStatsResponse}
// @Router /api/v1/campaigns/{uuid}/stats [get]
func (h *CampaignHandler) GetCampaignStats(c fiber.Ctx) error {
	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/stats")
	defer cancel()

	result, err := h.campaignFlow.GetCampaignStats(ctx, &dto.GetCampaignRequest{UUID: c.Params("uuid"), TenantID: tenantID})
	if err != nil {
		return h.flowError(c, err, "Failed to get campaign statistics", "CAMPAIGN_STATS_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

type campaignActionFunc func(ctx context.Context, req *dto.CampaignActionRequest, metadata *businessflow.ClientMetadata) (*dto.CampaignActionResponse, error)

func (h *CampaignHandler) campaignAction(c fiber.Ctx, action string, fn campaignActionFunc) error {
	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/"+action)
	defer cancel()

	result, err := fn(ctx, &dto.CampaignActionRequest{UUID: c.Params("uuid"), TenantID: tenantID}, metadata)
	if err != nil {
		return h.flowError(c, err, "Campaign "+action+" failed", "CAMPAIGN_ACTION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result.Campaign)
}

// flowError maps business errors to HTTP responses
func (h *CampaignHandler) flowError(c fiber.Ctx, err error, message, code string) error {
	switch {
	case businessflow.IsTenantNotFound(err):
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not found", "TENANT_NOT_FOUND", nil)
	case businessflow.IsTenantInactive(err):
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant account is inactive", "TENANT_INACTIVE", nil)
	case businessflow.IsCampaignNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	case businessflow.IsCampaignAccessDenied(err):
		return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: campaign belongs to another tenant", "CAMPAIGN_ACCESS_DENIED", nil)
	case businessflow.IsConnectionNotFound(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Connection not found", "CONNECTION_NOT_FOUND", nil)
	case businessflow.IsCampaignNotEditable(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign cannot be edited in its current status", "CAMPAIGN_NOT_EDITABLE", nil)
	case businessflow.IsCampaignNotDeletable(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign cannot be deleted while running", "CAMPAIGN_NOT_DELETABLE", nil)
	case businessflow.IsCampaignNotSchedulable(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign cannot be scheduled in its current status", "CAMPAIGN_NOT_SCHEDULABLE", nil)
	case businessflow.IsCampaignNotPaused(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign is not paused", "CAMPAIGN_NOT_PAUSED", nil)
	case businessflow.IsCampaignAlreadyTerminated(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign has already finished", "CAMPAIGN_TERMINATED", nil)
	case businessflow.IsCampaignStateChanged(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign status changed, retry the request", "CAMPAIGN_STATE_CHANGED", nil)
	case businessflow.IsValidationError(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
	}

	log.Println(message, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

// validate runs struct validation and returns readable messages
func (h *CampaignHandler) validate(req any) []string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *CampaignHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *CampaignHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	requestID := c.Get("X-Request-ID")
	if requestID == "" {
		if v, ok := c.Locals("request_id").(string); ok {
			requestID = v
		}
	}
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestID)
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)

	return ctx, cancel
}
