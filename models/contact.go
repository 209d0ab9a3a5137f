package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/amirphl/orochi-outreach/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StringList is a JSON array column
type StringList []string

// Value implements the driver.Valuer interface for StringList
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return jsonValue([]string(l))
}

// Scan implements the sql.Scanner interface for StringList
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, err := jsonBytes(value, "StringList")
	if err != nil {
		return err
	}
	return json.Unmarshal(b, (*[]string)(l))
}

// CustomFields is a JSON object column of free-form contact attributes
type CustomFields map[string]string

// Value implements the driver.Valuer interface for CustomFields
func (f CustomFields) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	return jsonValue(map[string]string(f))
}

// Scan implements the sql.Scanner interface for CustomFields
func (f *CustomFields) Scan(value any) error {
	if value == nil {
		*f = nil
		return nil
	}
	b, err := jsonBytes(value, "CustomFields")
	if err != nil {
		return err
	}
	return json.Unmarshal(b, (*map[string]string)(f))
}

// Contact is an addressable person owned by a tenant
type Contact struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:uk_contacts_uuid" json:"uuid"`
	TenantID     uint         `gorm:"not null;index:idx_contacts_tenant_id" json:"tenant_id"`
	Name         string       `gorm:"size:255" json:"name"`
	Phone        string       `gorm:"size:32;not null;index:idx_contacts_phone" json:"phone"`
	Email        *string      `gorm:"size:255" json:"email,omitempty"`
	Tags         StringList   `gorm:"type:jsonb" json:"tags"`
	CustomFields CustomFields `gorm:"type:jsonb" json:"custom_fields"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    *time.Time   `json:"updated_at,omitempty"`
}

func (Contact) TableName() string {
	return "contacts"
}

// BeforeCreate is called before creating a new record
func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// FirstName returns the first whitespace separated word of the name
func (c *Contact) FirstName() string {
	fields := strings.Fields(c.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ContactFilter represents filter criteria for contacts
type ContactFilter struct {
	ID       *uint
	TenantID *uint
	Phone    *string
	Email    *string
}
