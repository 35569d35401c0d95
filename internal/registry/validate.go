package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/schema"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
)

type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidateConfig type-checks one config section. Range violations are
// warnings, the editing surface enforces ranges.
func (r *Registry) ValidateConfig(cat types.Category, values map[string]any) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	if !cat.Valid() {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown category: %q", cat))
		return res
	}

	for key, value := range values {
		p, err := r.FindParameter(cat, key)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: unknown parameter", key))
			continue
		}
		if value == nil {
			continue
		}

		switch p.Node.Type {
		case schema.KindNumber:
			f, ok := toFloat(value)
			if !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: expected a number, got %T", key, value))
				continue
			}
			if math.IsNaN(f) {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: value is NaN", key))
				continue
			}
			if p.Node.Min != nil && f < *p.Node.Min {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v below minimum %v", key, f, *p.Node.Min))
			}
			if p.Node.Max != nil && f > *p.Node.Max {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v above maximum %v", key, f, *p.Node.Max))
			}
		case schema.KindBoolean:
			if _, ok := value.(bool); !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: expected a boolean, got %T", key, value))
			}
		case schema.KindString:
			if _, ok := value.(string); !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: expected a string, got %T", key, value))
			}
		}
	}

	// map iteration order is random, keep reports stable
	sort.Strings(res.Errors)
	sort.Strings(res.Warnings)

	res.Valid = len(res.Errors) == 0
	return res
}

// ValidateConfigObject validates every section of a config object.
func (r *Registry) ValidateConfigObject(cfg types.ConfigObject) ValidationResult {
	res := ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}
	for _, cat := range types.Categories {
		section, ok := cfg[cat]
		if !ok {
			continue
		}
		sub := r.ValidateConfig(cat, section)
		for _, e := range sub.Errors {
			res.Errors = append(res.Errors, string(cat)+"."+e)
		}
		for _, w := range sub.Warnings {
			res.Warnings = append(res.Warnings, string(cat)+"."+w)
		}
	}
	res.Valid = len(res.Errors) == 0
	return res
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "inf", "infinity", "+inf":
			return math.Inf(1), true
		case "-inf", "-infinity":
			return math.Inf(-1), true
		}
	}
	return 0, false
}
