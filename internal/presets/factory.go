package presets

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/factory.yaml
var factoryYAML []byte

type factoryEntry struct {
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description"`
	Timestamp   string                    `yaml:"timestamp"`
	Version     string                    `yaml:"version"`
	Config      map[string]map[string]any `yaml:"config"`
}

// loadFactory decodes the embedded factory presets in file order.
func loadFactory(data []byte) ([]*Preset, error) {
	var entries []factoryEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse factory presets: %w", err)
	}

	out := make([]*Preset, 0, len(entries))
	for _, e := range entries {
		config, err := json.Marshal(e.Config)
		if err != nil {
			return nil, fmt.Errorf("factory preset %q: %w", e.Name, err)
		}
		raw := joinObject([]field{
			stringField("name", e.Name),
			stringField("description", e.Description),
			stringField("timestamp", e.Timestamp),
			stringField("version", e.Version),
			{key: "isFactory", value: json.RawMessage("true")},
			{key: "config", value: config},
		})
		p, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("factory preset %q: %w", e.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}
