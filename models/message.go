package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/orochi-outreach/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageStatus is the provider-side state of a message
type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusQueued, MessageStatusSent, MessageStatusDelivered,
		MessageStatusRead, MessageStatusFailed:
		return true
	default:
		return false
	}
}

// Accepted reports whether the provider took the message
func (s MessageStatus) Accepted() bool {
	return s == MessageStatusSent || s == MessageStatusDelivered || s == MessageStatusRead
}

// Scan implements the sql.Scanner interface for MessageStatus
func (s *MessageStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = MessageStatus(v)
	case []byte:
		*s = MessageStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for MessageStatus
func (s MessageStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid MessageStatus: %s", s)
	}
	return string(s), nil
}

const (
	MessageDirectionOutbound = "outbound"
	MessageDirectionInbound  = "inbound"

	MessageKindText = "text"
)

// Message is one message inside a conversation
type Message struct {
	ID                  uint          `gorm:"primaryKey" json:"id"`
	UUID                uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:uk_messages_uuid" json:"uuid"`
	TenantID            uint          `gorm:"not null;index:idx_messages_tenant_id" json:"tenant_id"`
	ConversationID      uint          `gorm:"not null;index:idx_messages_conversation_id" json:"conversation_id"`
	ConnectionID        uint          `gorm:"not null" json:"connection_id"`
	Direction           string        `gorm:"size:16;not null" json:"direction"`
	Kind                string        `gorm:"size:16;not null" json:"kind"`
	Body                string        `gorm:"type:text;not null" json:"body"`
	Status              MessageStatus `gorm:"size:32;not null;default:'queued'" json:"status"`
	ProviderMessageID   *string       `gorm:"size:255" json:"provider_message_id,omitempty"`
	Error               *string       `gorm:"type:text" json:"error,omitempty"`
	CampaignRecipientID *uint         `gorm:"index:idx_messages_campaign_recipient_id" json:"campaign_recipient_id,omitempty"`
	SentAt              *time.Time    `json:"sent_at,omitempty"`
	CreatedAt           time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt           *time.Time    `json:"updated_at,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// BeforeCreate is called before creating a new record
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	if m.Status == "" {
		m.Status = MessageStatusQueued
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.UTCNow()
	}
	return nil
}
