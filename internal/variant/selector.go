package variant

import (
	"fmt"
	"sync"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/paths"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/registry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/schema"
	"go.uber.org/zap"
)

// Bundle is everything that depends on the firmware family.
type Bundle struct {
	Family   FirmwareFamily
	Schema   *schema.Schema
	Registry *registry.Registry
	Rules    paths.Rules
	Grouping *Grouping
}

type entry struct {
	once   sync.Once
	bundle *Bundle
	err    error
}

// Selector builds one bundle per family, on first use.
type Selector struct {
	loader  *schema.Loader
	entries map[FirmwareFamily]*entry
	logger  *zap.Logger
}

func NewSelector(searchPaths []string, logger *zap.Logger) (*Selector, error) {
	loader, err := schema.NewLoader(searchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema loader: %w", err)
	}

	entries := make(map[FirmwareFamily]*entry, len(Families))
	for _, f := range Families {
		entries[f] = &entry{}
	}

	return &Selector{
		loader:  loader,
		entries: entries,
		logger:  logger,
	}, nil
}

// Bundle returns the memoised bundle of a family.
func (s *Selector) Bundle(family FirmwareFamily) (*Bundle, error) {
	e, ok := s.entries[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, string(family))
	}

	e.once.Do(func() {
		e.bundle, e.err = s.build(family)
	})
	return e.bundle, e.err
}

// Preload builds every family up front so schema bugs fail at startup.
func (s *Selector) Preload() error {
	for _, f := range Families {
		if _, err := s.Bundle(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Selector) build(family FirmwareFamily) (*Bundle, error) {
	name, err := family.schemaName()
	if err != nil {
		return nil, err
	}

	sch, err := s.loader.Load(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
	}
	if sch.Family() != string(family) {
		return nil, fmt.Errorf("schema %s declares family %q, expected %q", name, sch.Family(), family)
	}

	reg := registry.Build(sch)
	stats := reg.DebugInfo()

	s.logger.Info("Registry built",
		zap.String("family", string(family)),
		zap.String("firmware", sch.Firmware()),
		zap.Int("leaves", stats.Leaves),
		zap.Int("batch_paths", stats.BatchPaths),
		zap.Int("unclassified", stats.Unclassified))

	for _, c := range reg.Collisions() {
		s.logger.Debug("Config key collision",
			zap.String("family", string(family)),
			zap.String("key", c.Key),
			zap.String("kind", c.Kind),
			zap.Strings("paths", c.Paths))
	}

	return &Bundle{
		Family:   family,
		Schema:   sch,
		Registry: reg,
		Rules:    sch.Rules(),
		Grouping: NewGrouping(sch.Grouping()),
	}, nil
}
