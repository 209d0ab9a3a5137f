package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SelectionMode identifies how a campaign's audience is chosen
type SelectionMode string

const (
	SelectionModeExplicit SelectionMode = "explicit"
	SelectionModeColumn   SelectionMode = "column"
	SelectionModeFilter   SelectionMode = "filter"
)

func (m SelectionMode) String() string { return string(m) }

func (m SelectionMode) Valid() bool {
	switch m {
	case SelectionModeExplicit, SelectionModeColumn, SelectionModeFilter:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for SelectionMode
func (m *SelectionMode) Scan(value any) error {
	if value == nil {
		*m = SelectionModeExplicit
		return nil
	}
	switch v := value.(type) {
	case string:
		*m = SelectionMode(v)
	case []byte:
		*m = SelectionMode(string(v))
	default:
		return fmt.Errorf("cannot scan %T into SelectionMode", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for SelectionMode
func (m SelectionMode) Value() (driver.Value, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid SelectionMode: %s", m)
	}
	return string(m), nil
}

// Selection is one typed audience payload. Exactly one variant exists per mode.
type Selection interface {
	Mode() SelectionMode
}

// ExplicitSelection lists contact ids directly
type ExplicitSelection struct {
	ContactIDs []uint `json:"contact_ids"`
}

func (ExplicitSelection) Mode() SelectionMode { return SelectionModeExplicit }

// ColumnSelection picks contacts whose board column matches a value
type ColumnSelection struct {
	BoardID   uint   `json:"board_id"`
	ColumnKey string `json:"column_key"`
	Value     string `json:"value"`
}

func (ColumnSelection) Mode() SelectionMode { return SelectionModeColumn }

// FilterSelection picks contacts by tags and a free-text query
type FilterSelection struct {
	Tags  []string `json:"tags,omitempty"`
	Query string   `json:"query,omitempty"`
}

func (FilterSelection) Mode() SelectionMode { return SelectionModeFilter }

// SelectionPayload is the raw JSON column holding a Selection
type SelectionPayload json.RawMessage

// Value implements the driver.Valuer interface for SelectionPayload
func (p SelectionPayload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	return string(p), nil
}

// Scan implements the sql.Scanner interface for SelectionPayload
func (p *SelectionPayload) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}
	b, err := jsonBytes(value, "SelectionPayload")
	if err != nil {
		return err
	}
	*p = append((*p)[:0], b...)
	return nil
}

// MarshalJSON keeps the payload inline in API responses
func (p SelectionPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("{}"), nil
	}
	return p, nil
}

// UnmarshalJSON implements json.Unmarshaler
func (p *SelectionPayload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}

// EncodeSelection serializes a selection for storage
func EncodeSelection(sel Selection) (SelectionPayload, error) {
	b, err := json.Marshal(sel)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s selection: %w", sel.Mode(), err)
	}
	return SelectionPayload(b), nil
}

// DecodeSelection parses payload as the variant belonging to mode
func DecodeSelection(mode SelectionMode, payload SelectionPayload) (Selection, error) {
	raw := bytes.TrimSpace(payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	dec := func(target any) error {
		d := json.NewDecoder(bytes.NewReader(raw))
		d.DisallowUnknownFields()
		if err := d.Decode(target); err != nil {
			return fmt.Errorf("invalid %s selection payload: %w", mode, err)
		}
		return nil
	}

	switch mode {
	case SelectionModeExplicit:
		var sel ExplicitSelection
		if err := dec(&sel); err != nil {
			return nil, err
		}
		return sel, nil
	case SelectionModeColumn:
		var sel ColumnSelection
		if err := dec(&sel); err != nil {
			return nil, err
		}
		return sel, nil
	case SelectionModeFilter:
		var sel FilterSelection
		if err := dec(&sel); err != nil {
			return nil, err
		}
		return sel, nil
	default:
		return nil, fmt.Errorf("unknown selection mode %q", mode)
	}
}
