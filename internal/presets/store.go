package presets

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/registry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/schema"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"go.uber.org/zap"
)

const guiVersion = "1.0.0"

// ExportInfo is the header of an exported preset file.
type ExportInfo struct {
	ExportDate    string `json:"exportDate"`
	OdriveVersion string `json:"odriveVersion"`
	GuiVersion    string `json:"guiVersion"`
	PresetCount   int    `json:"presetCount"`
}

type ExportDocument struct {
	ExportInfo ExportInfo         `json:"exportInfo"`
	Presets    map[string]*Preset `json:"presets"`
}

type ImportResult struct {
	Imported    int      `json:"imported"`
	Skipped     int      `json:"skipped"`
	Overwritten int      `json:"overwritten"`
	Errors      []string `json:"errors"`
}

// Coverage compares a preset against the parameters of a registry.
type Coverage struct {
	Total      int      `json:"total"`
	Covered    int      `json:"covered"`
	Percentage int      `json:"percentage"`
	Missing    []string `json:"missing"`
}

// Store holds user presets in memory and writes every change through to
// its Persistence. Factory presets are read-only.
type Store struct {
	persistence Persistence
	logger      *zap.Logger
	now         func() time.Time

	factory      map[string]*Preset
	factoryOrder []string

	mu      sync.RWMutex
	presets map[string]*Preset
}

func NewStore(persistence Persistence, logger *zap.Logger) (*Store, error) {
	factory, err := loadFactory(factoryYAML)
	if err != nil {
		return nil, err
	}

	s := &Store{
		persistence: persistence,
		logger:      logger,
		now:         time.Now,
		factory:     make(map[string]*Preset, len(factory)),
		presets:     make(map[string]*Preset),
	}
	for _, p := range factory {
		s.factory[p.Name] = p
		s.factoryOrder = append(s.factoryOrder, p.Name)
	}
	return s, nil
}

// Open loads the stored presets. Documents that no longer parse are logged
// and left out.
func (s *Store) Open(ctx context.Context) error {
	docs, err := s.persistence.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load presets: %w", err)
	}

	presets := make(map[string]*Preset, len(docs))
	for name, raw := range docs {
		p, err := Parse(raw)
		if err != nil {
			s.logger.Warn("Skipping unreadable preset", zap.String("name", name), zap.Error(err))
			continue
		}
		p.Factory = false
		presets[name] = p
	}

	s.mu.Lock()
	s.presets = presets
	s.mu.Unlock()

	s.logger.Info("Presets loaded",
		zap.Int("user", len(presets)),
		zap.Int("factory", len(s.factory)))
	return nil
}

func (s *Store) IsFactory(name string) bool {
	_, ok := s.factory[name]
	return ok
}

// Get returns a factory or user preset.
func (s *Store) Get(name string) (*Preset, error) {
	if p, ok := s.factory[name]; ok {
		return p, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}
	return p, nil
}

// List returns factory presets in file order, then user presets by name.
func (s *Store) List() []Metadata {
	out := make([]Metadata, 0, len(s.factory))
	for _, name := range s.factoryOrder {
		m := s.factory[name].Metadata()
		m.Factory = true
		out = append(out, m)
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := s.presets[name].Metadata()
		m.Name = name
		m.Factory = false
		out = append(out, m)
	}
	s.mu.RUnlock()
	return out
}

// Save stores cfg as a new user preset. An existing preset of that name is
// replaced only when overwrite is set.
func (s *Store) Save(ctx context.Context, name, description string, cfg types.ConfigObject, overwrite bool) (*Preset, error) {
	name = strings.TrimSpace(name)
	if s.IsFactory(name) {
		return nil, fmt.Errorf("%w: %q", ErrFactoryPreset, name)
	}

	p, err := New(name, description, cfg, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.presets[name]; exists && !overwrite {
		return nil, fmt.Errorf("%w: %q", ErrPresetExists, name)
	}
	if err := s.persistence.Put(ctx, name, p.raw); err != nil {
		return nil, fmt.Errorf("failed to store preset %q: %w", name, err)
	}
	s.presets[name] = p

	s.logger.Info("Preset saved", zap.String("name", name), zap.Int("values", p.Config.Count()))
	return p, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if s.IsFactory(name) {
		return fmt.Errorf("%w: %q", ErrFactoryPreset, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}
	if err := s.persistence.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete preset %q: %w", name, err)
	}
	delete(s.presets, name)

	s.logger.Info("Preset deleted", zap.String("name", name))
	return nil
}

// Rename changes name and description of a user preset and refreshes its
// timestamp.
func (s *Store) Rename(ctx context.Context, oldName, newName, description string) (*Preset, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, ErrInvalidName
	}
	if s.IsFactory(oldName) || s.IsFactory(newName) {
		return nil, ErrFactoryPreset
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.presets[oldName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPresetNotFound, oldName)
	}
	if _, taken := s.presets[newName]; taken && newName != oldName {
		return nil, fmt.Errorf("%w: %q", ErrPresetExists, newName)
	}

	updated, err := old.withFields(
		stringField("name", newName),
		stringField("description", strings.TrimSpace(description)),
		stringField("timestamp", s.now().UTC().Format(TimeFormat)),
	)
	if err != nil {
		return nil, err
	}

	if err := s.persistence.Put(ctx, newName, updated.raw); err != nil {
		return nil, fmt.Errorf("failed to store preset %q: %w", newName, err)
	}
	if newName != oldName {
		if err := s.persistence.Delete(ctx, oldName); err != nil {
			return nil, fmt.Errorf("failed to delete preset %q: %w", oldName, err)
		}
		delete(s.presets, oldName)
	}
	s.presets[newName] = updated
	return updated, nil
}

// Export builds an exchange document. No names exports every user preset;
// named factory presets are included when asked for.
func (s *Store) Export(names []string) (*ExportDocument, error) {
	selected := make(map[string]*Preset)

	if len(names) == 0 {
		s.mu.RLock()
		for name, p := range s.presets {
			selected[name] = p
		}
		s.mu.RUnlock()
	} else {
		for _, name := range names {
			if p, err := s.Get(name); err == nil {
				selected[name] = p
			}
		}
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no presets found to export", ErrPresetNotFound)
	}

	return &ExportDocument{
		ExportInfo: ExportInfo{
			ExportDate:    s.now().UTC().Format(TimeFormat),
			OdriveVersion: FormatVersion,
			GuiVersion:    guiVersion,
			PresetCount:   len(selected),
		},
		Presets: selected,
	}, nil
}

// Import merges an exchange document into the store. Presets whose name is
// taken are skipped unless overwrite is set; factory names are never
// replaced.
func (s *Store) Import(ctx context.Context, data []byte, overwrite bool) (ImportResult, error) {
	var doc struct {
		Presets map[string]json.RawMessage `json:"presets"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidPresetFile, err)
	}
	if doc.Presets == nil {
		return ImportResult{}, ErrInvalidPresetFile
	}

	names := make([]string, 0, len(doc.Presets))
	for name := range doc.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	res := ImportResult{Errors: []string{}}
	importDate := s.now().UTC().Format(TimeFormat)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		p, err := Parse(doc.Presets[name])
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Invalid preset structure: %s", name))
			continue
		}

		_, exists := s.presets[name]
		if s.IsFactory(name) {
			if overwrite {
				res.Errors = append(res.Errors, fmt.Sprintf("Cannot overwrite factory preset: %s", name))
				continue
			}
			exists = true
		}
		if exists && !overwrite {
			res.Skipped++
			continue
		}

		stamps := []field{stringField("importDate", importDate)}
		if p.Timestamp != "" {
			stamps = append(stamps, stringField("originalExportDate", p.Timestamp))
		}
		imported, err := p.withFields(stamps...)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Error processing preset %s: %v", name, err))
			continue
		}
		imported.Factory = false

		if err := s.persistence.Put(ctx, name, imported.raw); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Error processing preset %s: %v", name, err))
			continue
		}
		s.presets[name] = imported

		if exists {
			res.Overwritten++
		} else {
			res.Imported++
		}
	}

	s.logger.Info("Presets imported",
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
		zap.Int("overwritten", res.Overwritten),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

// Coverage reports how many config keys of reg a preset sets.
func (s *Store) Coverage(name string, reg *registry.Registry) (Coverage, error) {
	p, err := s.Get(name)
	if err != nil {
		return Coverage{}, err
	}

	cov := Coverage{Missing: []string{}}
	for _, cat := range types.Categories {
		keys := sortedKeys(reg.PropertyMappings(cat))
		section := p.Config.Section(cat)
		for _, key := range keys {
			cov.Total++
			if _, ok := section[key]; ok {
				cov.Covered++
			} else {
				cov.Missing = append(cov.Missing, string(cat)+"."+key)
			}
		}
	}
	if cov.Total > 0 {
		cov.Percentage = int(math.Round(float64(cov.Covered) / float64(cov.Total) * 100))
	}
	return cov, nil
}

// Upgrade fills every config key of reg the preset lacks with a default
// value. User presets are stored again, factory presets are only returned.
func (s *Store) Upgrade(ctx context.Context, name string, reg *registry.Registry) (*Preset, error) {
	p, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	cfg := p.Sections()
	for _, cat := range types.Categories {
		for key := range reg.PropertyMappings(cat) {
			if _, ok := cfg[cat][key]; ok {
				continue
			}
			param, err := reg.FindParameter(cat, key)
			if err != nil {
				continue
			}
			cfg.Set(cat, key, defaultValue(param.Node))
		}
	}

	config, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	updates := []field{
		{key: "config", value: config},
		stringField("timestamp", s.now().UTC().Format(TimeFormat)),
		{key: "upgraded", value: json.RawMessage("true")},
	}
	if p.Timestamp != "" {
		updates = append(updates, stringField("originalTimestamp", p.Timestamp))
	}
	upgraded, err := p.withFields(updates...)
	if err != nil {
		return nil, err
	}

	if s.IsFactory(name) {
		return upgraded, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistence.Put(ctx, name, upgraded.raw); err != nil {
		return nil, fmt.Errorf("failed to store preset %q: %w", name, err)
	}
	s.presets[name] = upgraded
	return upgraded, nil
}

func defaultValue(n *schema.Node) any {
	switch n.Type {
	case schema.KindBoolean:
		return false
	case schema.KindString:
		return ""
	case schema.KindNumber:
		if n.Min != nil {
			return *n.Min
		}
	}
	return 0
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
