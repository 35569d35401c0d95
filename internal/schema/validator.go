package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "embed"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/paths"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed data/property-schema.json
var propertySchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("property-schema-v1.json",
		strings.NewReader(propertySchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("property-schema-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDocument checks raw YAML against the schema-of-the-schema.
func (v *Validator) ValidateDocument(data []byte) error {
	var tree interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	// yaml ints and the draft-07 validator disagree on numeric types,
	// a JSON round trip gives it the values it expects
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("document is not JSON compatible: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// CheckDocument runs the checks JSON Schema cannot express.
func CheckDocument(doc *Document) error {
	var errs []error

	for _, e := range doc.Sections {
		if _, isAxis := paths.ParseAxisSegment(e.Key); isAxis {
			errs = append(errs, fmt.Errorf("sections.%s: axis sections come from the axis template", e.Key))
		}
		errs = append(errs, checkNode(paths.Path{e.Key}, e.Node)...)
	}
	if doc.Axis != nil {
		errs = append(errs, checkNode(paths.Path{"axis"}, doc.Axis)...)
	}

	for i, r := range doc.Categories {
		if !r.Category.Valid() {
			errs = append(errs, fmt.Errorf("categories[%d]: unknown category %q", i, r.Category))
		}
	}

	for i, r := range doc.ConfigKeys {
		if r.Leaf == "" || r.Key == "" {
			errs = append(errs, fmt.Errorf("config_keys[%d]: leaf and key are required", i))
		}
	}

	seenCmd := make(map[string]bool)
	for _, c := range doc.Commands {
		if seenCmd[c.ID] {
			errs = append(errs, fmt.Errorf("commands: duplicate id %q", c.ID))
		}
		seenCmd[c.ID] = true
	}

	errs = append(errs, checkOptions("axis_states", doc.AxisStates)...)
	for _, idle := range doc.IdleStates {
		found := false
		for _, s := range doc.AxisStates {
			if s.Value == float64(idle) {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("idle_states: %d is not an axis state", idle))
		}
	}

	return errors.Join(errs...)
}

func checkNode(p paths.Path, n *Node) []error {
	var errs []error

	for _, e := range n.Properties {
		leafPath := p.Append(e.Key)
		if _, dup := n.Children.Get(e.Key); dup {
			errs = append(errs, fmt.Errorf("%s: declared both as property and as child", leafPath))
		}
		errs = append(errs, checkLeaf(leafPath, e.Node)...)
	}
	for _, e := range n.Children {
		child := e.Node
		if child.Type != "" || child.Writable {
			errs = append(errs, fmt.Errorf("%s: subtree carries leaf attributes", p.Append(e.Key)))
		}
		errs = append(errs, checkNode(p.Append(e.Key), child)...)
	}

	return errs
}

func checkLeaf(p paths.Path, n *Node) []error {
	var errs []error

	if len(n.Properties) > 0 || len(n.Children) > 0 {
		errs = append(errs, fmt.Errorf("%s: leaf has nested nodes", p))
	}
	if n.Min != nil && n.Max != nil && *n.Min > *n.Max {
		errs = append(errs, fmt.Errorf("%s: min %v greater than max %v", p, *n.Min, *n.Max))
	}
	if len(n.Options) > 0 && n.Type != KindNumber {
		errs = append(errs, fmt.Errorf("%s: options require a number type", p))
	}
	errs = append(errs, checkOptions(p.String(), n.Options)...)

	return errs
}

func checkOptions(where string, opts []Option) []error {
	var errs []error
	seen := make(map[float64]bool, len(opts))
	for _, o := range opts {
		if seen[o.Value] {
			errs = append(errs, fmt.Errorf("%s: duplicate option value %v", where, o.Value))
		}
		seen[o.Value] = true
	}
	return errs
}
