package models

import (
	"time"

	"github.com/amirphl/orochi-outreach/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is the message thread with one phone over one connection
type Conversation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_conversations_uuid" json:"uuid"`
	TenantID      uint       `gorm:"not null;uniqueIndex:uk_conversations_tenant_connection_phone,priority:1" json:"tenant_id"`
	ConnectionID  uint       `gorm:"not null;uniqueIndex:uk_conversations_tenant_connection_phone,priority:2" json:"connection_id"`
	Phone         string     `gorm:"size:32;not null;uniqueIndex:uk_conversations_tenant_connection_phone,priority:3" json:"phone"`
	ContactID     *uint      `json:"contact_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// BeforeCreate is called before creating a new record
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}
