package paths

import (
	"strings"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
)

// CategoryRule matches when the path contains any of Contains or starts with
// any of Prefix.
type CategoryRule struct {
	Category types.Category `yaml:"category" json:"category"`
	Contains []string       `yaml:"contains" json:"contains,omitempty"`
	Prefix   []string       `yaml:"prefix" json:"prefix,omitempty"`
}

func (r CategoryRule) Matches(p string) bool {
	for _, pre := range r.Prefix {
		if strings.HasPrefix(p, pre) {
			return true
		}
	}
	for _, sub := range r.Contains {
		if strings.Contains(p, sub) {
			return true
		}
	}
	return false
}

// InferCategory returns the category of the first matching rule, or "" when
// no rule matches. Unclassified paths stay readable as telemetry.
func InferCategory(rules []CategoryRule, p string) types.Category {
	for _, r := range rules {
		if r.Matches(p) {
			return r.Category
		}
	}
	return ""
}
