package variant

import (
	"sort"
	"strings"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/registry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/schema"
)

// Placement is where a parameter shows up in a grouped editor.
type Placement struct {
	Group      string `json:"group"`
	Subgroup   string `json:"subgroup"`
	Importance string `json:"importance"`
}

// Grouping applies a family's UI grouping rules.
type Grouping struct {
	rules schema.GroupingRules
}

func NewGrouping(rules schema.GroupingRules) *Grouping {
	if rules.DefaultGroup == "" {
		rules.DefaultGroup = "System"
	}
	if rules.DefaultSubgroup == "" {
		rules.DefaultSubgroup = "Other"
	}
	if rules.DefaultImportance == "" {
		rules.DefaultImportance = "advanced"
	}
	return &Grouping{rules: rules}
}

// Group places a parameter. Explicit key entries win over path rules.
func (g *Grouping) Group(p *registry.Parameter) Placement {
	out := Placement{
		Group:      g.rules.DefaultGroup,
		Subgroup:   g.rules.DefaultSubgroup,
		Importance: g.rules.DefaultImportance,
	}

	if v, ok := firstMatch(g.rules.Groups, p.DisplayPath); ok {
		out.Group = v
	}
	if v, ok := firstMatch(g.rules.Subgroups, p.DisplayPath); ok {
		out.Subgroup = v
	}
	if v, ok := firstMatch(g.rules.Importance, p.DisplayPath); ok {
		out.Importance = v
	}

	if kg, ok := g.rules.Keys[p.ConfigKey]; ok {
		if kg.Group != "" {
			out.Group = kg.Group
		}
		if kg.Subgroup != "" {
			out.Subgroup = kg.Subgroup
		}
		if kg.Importance != "" {
			out.Importance = kg.Importance
		}
	}
	return out
}

// GroupAdvanced arranges parameters as group -> subgroup -> parameters,
// keeping the input order inside each subgroup.
func (g *Grouping) GroupAdvanced(params []*registry.Parameter) map[string]map[string][]*registry.Parameter {
	out := make(map[string]map[string][]*registry.Parameter)
	for _, p := range params {
		pl := g.Group(p)
		if out[pl.Group] == nil {
			out[pl.Group] = make(map[string][]*registry.Parameter)
		}
		out[pl.Group][pl.Subgroup] = append(out[pl.Group][pl.Subgroup], p)
	}
	return out
}

// GroupNames returns the sorted group names of a grouped result.
func GroupNames(grouped map[string]map[string][]*registry.Parameter) []string {
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// firstMatch returns the value of the first rule whose substrings all
// occur in the path.
func firstMatch(rules []schema.GroupRule, path string) (string, bool) {
	for _, r := range rules {
		if len(r.Contains) == 0 {
			continue
		}
		all := true
		for _, sub := range r.Contains {
			if !strings.Contains(path, sub) {
				all = false
				break
			}
		}
		if all {
			return r.Value, true
		}
	}
	return "", false
}
