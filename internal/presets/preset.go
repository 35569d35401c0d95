// Package presets keeps named configuration objects and moves them in and
// out of the JSON exchange format.
package presets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
)

var (
	ErrPresetNotFound    = errors.New("preset not found")
	ErrPresetExists      = errors.New("preset already exists")
	ErrFactoryPreset     = errors.New("factory presets are read-only")
	ErrInvalidPresetFile = errors.New("invalid preset file format")
	ErrInvalidName       = errors.New("invalid preset name")
)

// TimeFormat matches the millisecond UTC timestamps of exported files.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// FormatVersion is written into new presets and export headers.
const FormatVersion = "0.5.6"

// Preset is one stored configuration. The document it was created from is
// kept verbatim and is what gets exported again.
type Preset struct {
	Name               string             `json:"name"`
	Description        string             `json:"description"`
	Timestamp          string             `json:"timestamp"`
	Version            string             `json:"version,omitempty"`
	Factory            bool               `json:"isFactory,omitempty"`
	ImportDate         string             `json:"importDate,omitempty"`
	OriginalExportDate string             `json:"originalExportDate,omitempty"`
	Config             types.ConfigObject `json:"config"`

	raw json.RawMessage
}

// Metadata is the list view of a preset.
type Metadata struct {
	Name               string `json:"name"`
	Description        string `json:"description"`
	Timestamp          string `json:"timestamp"`
	Version            string `json:"version,omitempty"`
	Factory            bool   `json:"isFactory"`
	ImportDate         string `json:"importDate,omitempty"`
	OriginalExportDate string `json:"originalExportDate,omitempty"`
	HasValidConfig     bool   `json:"hasValidConfig"`
}

type document struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Timestamp   string             `json:"timestamp"`
	Version     string             `json:"version"`
	Config      types.ConfigObject `json:"config"`
}

// New builds a preset document for cfg.
func New(name, description string, cfg types.ConfigObject, now time.Time) (*Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	doc := document{
		Name:        name,
		Description: strings.TrimSpace(description),
		Timestamp:   now.UTC().Format(TimeFormat),
		Version:     FormatVersion,
		Config:      complete(cfg),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preset %q: %w", name, err)
	}
	return Parse(raw)
}

// Parse decodes a stored or imported preset document.
func Parse(raw []byte) (*Preset, error) {
	var head struct {
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(head.Config); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("config must be an object")
	}

	p := &Preset{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	p.raw = buf.Bytes()
	return p, nil
}

// MarshalJSON returns the stored document.
func (p *Preset) MarshalJSON() ([]byte, error) {
	return p.raw, nil
}

// Raw returns the stored document.
func (p *Preset) Raw() json.RawMessage {
	return append(json.RawMessage(nil), p.raw...)
}

func (p *Preset) Metadata() Metadata {
	return Metadata{
		Name:               p.Name,
		Description:        p.Description,
		Timestamp:          p.Timestamp,
		Version:            p.Version,
		Factory:            p.Factory,
		ImportDate:         p.ImportDate,
		OriginalExportDate: p.OriginalExportDate,
		HasValidConfig:     ValidateConfig(p.Config),
	}
}

// Sections returns the config with every category present.
func (p *Preset) Sections() types.ConfigObject {
	return complete(p.Config)
}

type field struct {
	key   string
	value json.RawMessage
}

// withFields returns a copy of the document with the given top-level keys
// set. Existing keys keep their position, new keys are appended in order.
func (p *Preset) withFields(updates ...field) (*Preset, error) {
	fields, err := splitObject(p.raw)
	if err != nil {
		return nil, err
	}

next:
	for _, u := range updates {
		for i := range fields {
			if fields[i].key == u.key {
				fields[i].value = u.value
				continue next
			}
		}
		fields = append(fields, u)
	}
	return Parse(joinObject(fields))
}

func stringField(key, value string) field {
	encoded, _ := json.Marshal(value)
	return field{key: key, value: encoded}
}

// splitObject lists the top-level members of a JSON object in document order.
func splitObject(raw []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("preset must be an object")
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, value: value})
	}
	return fields, nil
}

func joinObject(fields []field) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(f.key)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(f.value)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// ValidateConfig reports whether every category section is present.
func ValidateConfig(cfg types.ConfigObject) bool {
	if cfg == nil {
		return false
	}
	for _, cat := range types.Categories {
		if _, ok := cfg[cat]; !ok {
			return false
		}
	}
	return true
}

func complete(cfg types.ConfigObject) types.ConfigObject {
	out := types.NewConfigObject()
	for cat, section := range cfg {
		for k, v := range section {
			out.Set(cat, k, v)
		}
	}
	return out
}
