package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/orochi-outreach/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConnectionStatus is the link state of a messaging channel account
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusPending      ConnectionStatus = "pending"
)

func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionStatusConnected, ConnectionStatusDisconnected, ConnectionStatusPending:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ConnectionStatus
func (s *ConnectionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = ConnectionStatus(v)
	case []byte:
		*s = ConnectionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ConnectionStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for ConnectionStatus
func (s ConnectionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ConnectionStatus: %s", s)
	}
	return string(s), nil
}

// Connection is a tenant's linked messaging channel account
type Connection struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:uk_connections_uuid" json:"uuid"`
	TenantID   uint             `gorm:"not null;index:idx_connections_tenant_id" json:"tenant_id"`
	Name       string           `gorm:"size:255;not null" json:"name"`
	Provider   string           `gorm:"size:64;not null" json:"provider"`
	ExternalID *string          `gorm:"size:255" json:"external_id,omitempty"`
	Status     ConnectionStatus `gorm:"size:32;not null;default:'pending'" json:"status"`
	CreatedAt  time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt  *time.Time       `json:"updated_at,omitempty"`
}

func (Connection) TableName() string {
	return "connections"
}

// BeforeCreate is called before creating a new record
func (c *Connection) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ConnectionStatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

func (c *Connection) IsConnected() bool {
	return c.Status == ConnectionStatusConnected
}
