// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Tenant-related errors
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantInactive = errors.New("tenant is inactive")

	// Campaign-related errors
	ErrCampaignNotFound          = errors.New("campaign not found")
	ErrCampaignAccessDenied      = errors.New("campaign access denied")
	ErrCampaignUUIDRequired      = errors.New("campaign UUID is required")
	ErrCampaignNameRequired      = errors.New("campaign name is required")
	ErrCampaignTemplateRequired  = errors.New("campaign message template is required")
	ErrCampaignUpdateRequired    = errors.New("at least one field must be provided for update")
	ErrCampaignNotEditable       = errors.New("campaign cannot be edited in its current status")
	ErrCampaignNotDeletable      = errors.New("campaign cannot be deleted while running")
	ErrCampaignNotSchedulable    = errors.New("campaign cannot be scheduled in its current status")
	ErrCampaignNotPaused         = errors.New("campaign is not paused")
	ErrCampaignAlreadyTerminated = errors.New("campaign has already finished")
	ErrCampaignStateChanged      = errors.New("campaign status changed concurrently")

	// Connection errors
	ErrConnectionRequired = errors.New("connection is required")
	ErrConnectionNotFound = errors.New("connection not found")

	// Scheduling errors
	ErrStartAtRequired      = errors.New("start_at is required")
	ErrInvalidRecurrence    = errors.New("recurrence must be one of none, daily, weekly, monthly")
	ErrInvalidDelay         = errors.New("delay_seconds must not be negative")
	ErrInvalidRateLimit     = errors.New("rate limit needs a positive count and a unit of minute, hour, day, week or month")
	ErrInvalidSelectionMode = errors.New("invalid selection mode")
	ErrInvalidContactID     = errors.New("contact ids must be positive")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsTenantNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound)
}

func IsTenantInactive(err error) bool {
	return errors.Is(err, ErrTenantInactive)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

func IsCampaignNotEditable(err error) bool {
	return errors.Is(err, ErrCampaignNotEditable)
}

func IsCampaignNotDeletable(err error) bool {
	return errors.Is(err, ErrCampaignNotDeletable)
}

func IsCampaignNotSchedulable(err error) bool {
	return errors.Is(err, ErrCampaignNotSchedulable)
}

func IsCampaignNotPaused(err error) bool {
	return errors.Is(err, ErrCampaignNotPaused)
}

func IsCampaignAlreadyTerminated(err error) bool {
	return errors.Is(err, ErrCampaignAlreadyTerminated)
}

func IsCampaignStateChanged(err error) bool {
	return errors.Is(err, ErrCampaignStateChanged)
}

func IsConnectionNotFound(err error) bool {
	return errors.Is(err, ErrConnectionNotFound)
}

// IsValidationError reports whether err is caused by a malformed request
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrCampaignUUIDRequired,
		ErrCampaignNameRequired,
		ErrCampaignTemplateRequired,
		ErrCampaignUpdateRequired,
		ErrConnectionRequired,
		ErrStartAtRequired,
		ErrInvalidRecurrence,
		ErrInvalidDelay,
		ErrInvalidRateLimit,
		ErrInvalidSelectionMode,
		ErrInvalidContactID,
		ErrInvalidPage,
		ErrInvalidPageSize,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
