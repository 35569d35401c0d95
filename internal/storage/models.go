package storage

import (
	"encoding/json"
	"time"
)

// PresetRecord is one row of odrive_presets.
type PresetRecord struct {
	Name      string          `json:"name"`
	Document  json.RawMessage `json:"document"` // JSON
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
