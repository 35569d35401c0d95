package types

import (
	"encoding/json"
	"fmt"
	"math"
)

// Category is one of the five functional groups a writable parameter belongs to.
type Category string

const (
	CategoryPower     Category = "power"
	CategoryMotor     Category = "motor"
	CategoryEncoder   Category = "encoder"
	CategoryControl   Category = "control"
	CategoryInterface Category = "interface"
)

// Categories lists the categories in command application order.
var Categories = []Category{
	CategoryPower,
	CategoryMotor,
	CategoryEncoder,
	CategoryControl,
	CategoryInterface,
}

func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

// ConfigObject is the write-path input, keyed by category and config key.
// Missing categories and keys are simply not applied.
type ConfigObject map[Category]map[string]any

// NewConfigObject returns a ConfigObject with an empty section for every category.
func NewConfigObject() ConfigObject {
	cfg := make(ConfigObject, len(Categories))
	for _, c := range Categories {
		cfg[c] = map[string]any{}
	}
	return cfg
}

// Section returns the values of one category, never nil.
func (c ConfigObject) Section(cat Category) map[string]any {
	if c == nil || c[cat] == nil {
		return map[string]any{}
	}
	return c[cat]
}

// Set stores a value, creating the category section on demand.
func (c ConfigObject) Set(cat Category, key string, value any) {
	if c[cat] == nil {
		c[cat] = map[string]any{}
	}
	c[cat][key] = value
}

// Count returns the number of keys across all categories.
func (c ConfigObject) Count() int {
	n := 0
	for _, section := range c {
		n += len(section)
	}
	return n
}

// MarshalJSON keeps infinite limits read from the device encodable.
func (c ConfigObject) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c))
	for cat, section := range c {
		out[string(cat)] = JSONValue(map[string]any(section))
	}
	return json.Marshal(out)
}

// UnmarshalJSON rejects unknown category names so typos surface early.
func (c *ConfigObject) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ConfigObject, len(raw))
	for name, section := range raw {
		cat, err := ParseCategory(name)
		if err != nil {
			return err
		}
		if section == nil {
			section = map[string]any{}
		}
		out[cat] = section
	}
	*c = out
	return nil
}

// TelemetrySnapshot maps display paths to decoded values.
type TelemetrySnapshot map[string]any

// AxisStateSnapshot maps axis index to the reported axis state code.
type AxisStateSnapshot map[int]int

// JSON infinities have no literal; they travel as these strings.
const (
	InfinityString    = "Infinity"
	NegInfinityString = "-Infinity"
	NaNString         = "NaN"
)

// JSONValue makes v safe for encoding/json by replacing non-finite floats
// with their string sentinels, recursing into maps and slices.
func JSONValue(v any) any {
	switch x := v.(type) {
	case float64:
		switch {
		case math.IsInf(x, 1):
			return InfinityString
		case math.IsInf(x, -1):
			return NegInfinityString
		case math.IsNaN(x):
			return NaNString
		}
		return x
	case float32:
		return JSONValue(float64(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = JSONValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = JSONValue(e)
		}
		return out
	}
	return v
}

// MarshalJSON encodes infinities as "Infinity" / "-Infinity".
func (s TelemetrySnapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = JSONValue(v)
	}
	return json.Marshal(out)
}
