// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/orochi-outreach/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ByTenantID(ctx context.Context, tenantID uint, limit, offset int) ([]*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	// TransitionStatus moves the campaign to `to` only while its status is one of `from`.
	// It reports whether this caller won the transition.
	TransitionStatus(ctx context.Context, id uint, from []models.CampaignStatus, to models.CampaignStatus, fields map[string]any) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
	ListStaleRunning(ctx context.Context, startedBefore time.Time, limit int) ([]*models.Campaign, error)
	Delete(ctx context.Context, id uint) error
}

// CampaignRunRepository defines operations for campaign runs
type CampaignRunRepository interface {
	Repository[models.CampaignRun, models.CampaignRunFilter]
	Finish(ctx context.Context, id uint, status models.CampaignRunStatus, finishedAt time.Time) (bool, error)
	LatestByCampaignID(ctx context.Context, campaignID uint) (*models.CampaignRun, error)
	ListRunningByCampaignID(ctx context.Context, campaignID uint) ([]*models.CampaignRun, error)
	ListRunning(ctx context.Context, limit int) ([]*models.CampaignRun, error)
}

// CampaignRecipientRepository defines operations for campaign recipients
type CampaignRecipientRepository interface {
	Repository[models.CampaignRecipient, models.CampaignRecipientFilter]
	SaveBatchSize(ctx context.Context, recipients []*models.CampaignRecipient, batchSize int) error
	// Claim moves a scheduled recipient to sending under owner's lock.
	Claim(ctx context.Context, id uint, owner string, now time.Time) (bool, error)
	// Resolve moves a recipient out of sending; only the lock owner succeeds.
	Resolve(ctx context.Context, id uint, owner string, status models.CampaignRecipientStatus, fields map[string]any) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.CampaignRecipient, error)
	ListStaleLocks(ctx context.Context, lockedBefore time.Time, limit int) ([]*models.CampaignRecipient, error)
	// ReleaseStale moves an abandoned sending recipient to status when its lock is still older than lockedBefore.
	ReleaseStale(ctx context.Context, id uint, lockedBefore time.Time, status models.CampaignRecipientStatus, fields map[string]any) (bool, error)
	CountPendingByRun(ctx context.Context, runID uint) (int64, error)
	SkipScheduledByRun(ctx context.Context, runID uint, reason string, now time.Time) (int64, error)
	SkipScheduledByCampaign(ctx context.Context, campaignID uint, reason string, now time.Time) (int64, error)
	CountByStatus(ctx context.Context, filter models.CampaignRecipientFilter) ([]models.RecipientStatusCount, error)
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	ByIDs(ctx context.Context, tenantID uint, ids []uint) ([]*models.Contact, error)
}

// ConnectionRepository defines operations for messaging connections
type ConnectionRepository interface {
	Repository[models.Connection, any]
	UpdateStatus(ctx context.Context, id uint, status models.ConnectionStatus) error
}

// ConversationRepository defines operations for conversations
type ConversationRepository interface {
	Repository[models.Conversation, any]
	ByKey(ctx context.Context, tenantID, connectionID uint, phone string) (*models.Conversation, error)
	TouchLastMessage(ctx context.Context, id uint, at time.Time) error
}

// MessageRepository defines operations for messages
type MessageRepository interface {
	Repository[models.Message, any]
	Update(ctx context.Context, message *models.Message) error
	ByCampaignRecipientID(ctx context.Context, recipientID uint) ([]*models.Message, error)
}

// TenantRepository defines operations for tenants
type TenantRepository interface {
	Repository[models.Tenant, any]
	// IncrementMonthlyCounter adds one message to period, resetting the counter when the period rolled over.
	IncrementMonthlyCounter(ctx context.Context, id uint, period string) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
}
