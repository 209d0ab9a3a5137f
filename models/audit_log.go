// Package models contains domain entities for the outreach engine
package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	TenantID     *uint           `gorm:"index:idx_audit_tenant_id" json:"tenant_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionCampaignCreated       = "campaign_created"
	AuditActionCampaignUpdated       = "campaign_updated"
	AuditActionCampaignDeleted       = "campaign_deleted"
	AuditActionCampaignRecipientsSet = "campaign_recipients_set"
	AuditActionCampaignScheduled     = "campaign_scheduled"
	AuditActionCampaignPaused        = "campaign_paused"
	AuditActionCampaignResumed       = "campaign_resumed"
	AuditActionCampaignCancelled     = "campaign_cancelled"
	AuditActionCampaignActionFailed  = "campaign_action_failed"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	TenantID      *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
