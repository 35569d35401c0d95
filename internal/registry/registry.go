// Package registry derives the flat parameter views of a property schema:
// category lists, the batch-read path list, config keys and the commands
// that apply a configuration object.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/paths"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/schema"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
)

var ErrParameterNotFound = errors.New("parameter not found")

const configSegment = "config"

// Parameter is a writable, classified leaf.
type Parameter struct {
	DisplayPath       string         `json:"path"`
	Path              paths.Path     `json:"-"`
	Node              *schema.Node   `json:"node"`
	ConfigKey         string         `json:"config_key"`
	DeviceCommandPath string         `json:"device_path"`
	Category          types.Category `json:"category"`
	// Axis is -1 for device level parameters.
	Axis int `json:"axis"`
}

// CategoryMap lists parameters per category in traversal order.
type CategoryMap map[types.Category][]*Parameter

// Collision records a config key shared by more than one parameter.
type Collision struct {
	Key        string           `json:"key"`
	Kind       string           `json:"kind"`
	Categories []types.Category `json:"categories"`
	Paths      []string         `json:"paths"`
	// Resolved maps each clashing path to the key it was given.
	Resolved map[string]string `json:"resolved,omitempty"`
}

const (
	CollisionWithinCategory = "within_category"
	CollisionCrossCategory  = "cross_category"
)

type Registry struct {
	schema *schema.Schema
	rules  paths.Rules

	categories   CategoryMap
	byPath       map[string]*Parameter
	byKey        map[types.Category]map[string][]*Parameter
	batch        []string
	unclassified []string
	collisions   []Collision
	writable     int
	unsupported  int
}

// Build walks the schema once. The schema is trusted, so Build never fails.
// Leaves the variant declares unsupported are left out of every list, and
// the variant's renames are applied before anything is derived.
func Build(s *schema.Schema) *Registry {
	r := &Registry{
		schema:     s,
		rules:      s.Rules(),
		categories: make(CategoryMap, len(types.Categories)),
		byPath:     make(map[string]*Parameter),
		byKey:      make(map[types.Category]map[string][]*Parameter, len(types.Categories)),
	}

	seenBatch := make(map[string]bool)
	seenUnclassified := make(map[string]bool)
	categoryRules := s.CategoryRules()
	batch := s.Batch()

	_ = s.Walk(func(raw paths.Path, leaf *schema.Node) error {
		if !r.rules.IsSupported(raw) {
			r.unsupported++
			return nil
		}
		p := r.rules.CompatiblePath(raw)
		display := p.String()

		if leaf.Writable {
			r.writable++
			if cat := paths.InferCategory(categoryRules, display); cat != "" {
				param := &Parameter{
					DisplayPath:       display,
					Path:              p,
					Node:              leaf,
					DeviceCommandPath: r.rules.ToDevicePath(p).String(),
					Category:          cat,
					Axis:              p.AxisIndex(),
				}
				r.categories[cat] = append(r.categories[cat], param)
				r.byPath[display] = param
			} else {
				normalized := p.NormalizeAxis().String()
				if !seenUnclassified[normalized] {
					seenUnclassified[normalized] = true
					r.unclassified = append(r.unclassified, normalized)
				}
			}
		}

		if !leaf.Writable || isConfigParameter(p, batch) {
			if !seenBatch[display] {
				seenBatch[display] = true
				r.batch = append(r.batch, display)
			}
		}
		return nil
	})

	r.assignKeys(s.KeyRules())
	return r
}

// isConfigParameter reports whether a leaf lives in a configuration
// namespace and is not one of the variant's known telemetry leaves.
func isConfigParameter(p paths.Path, rules schema.BatchRules) bool {
	inNamespace := p.AxisIndex() >= 0 || p.Section() == "system" || p.Contains(configSegment)
	if !inNamespace {
		return false
	}

	s := p.String()
	leaf := p.Leaf()
	for _, suffix := range rules.ExcludeSuffixes {
		if strings.HasSuffix(s, suffix) {
			return false
		}
	}
	for _, name := range rules.ExcludeLeaves {
		if leaf == name {
			return false
		}
	}
	for _, prefix := range rules.ExcludePrefixes {
		if strings.HasPrefix(leaf, prefix) {
			return false
		}
	}
	return true
}

// assignKeys derives config keys. Override rules win, otherwise the leaf
// name is used; clashes inside a category fall back to the shortest unique
// suffix of the path.
func (r *Registry) assignKeys(overrides []schema.KeyRule) {
	keyCategories := make(map[string][]types.Category)
	keyPaths := make(map[string][]string)

	for _, cat := range types.Categories {
		params := r.categories[cat]

		// axis instances share one key
		var order []string
		shapes := make(map[string]paths.Path)
		for _, p := range params {
			norm := p.Path.NormalizeAxis()
			key := norm.String()
			if _, ok := shapes[key]; !ok {
				shapes[key] = norm
				order = append(order, key)
			}
		}

		groups := make(map[string][]string)
		var groupOrder []string
		for _, norm := range order {
			k := deriveKey(overrides, norm, shapes[norm].Leaf())
			if _, ok := groups[k]; !ok {
				groupOrder = append(groupOrder, k)
			}
			groups[k] = append(groups[k], norm)
		}

		taken := make(map[string]bool, len(groups))
		for k, members := range groups {
			if len(members) == 1 {
				taken[k] = true
			}
		}

		final := make(map[string]string, len(order))
		for _, k := range groupOrder {
			members := groups[k]
			if len(members) == 1 {
				final[members[0]] = k
				continue
			}
			resolved := disambiguate(members, shapes, taken)
			for norm, key := range resolved {
				final[norm] = key
				taken[key] = true
			}
			r.collisions = append(r.collisions, Collision{
				Key:        k,
				Kind:       CollisionWithinCategory,
				Categories: []types.Category{cat},
				Paths:      append([]string(nil), members...),
				Resolved:   resolved,
			})
		}

		index := make(map[string][]*Parameter)
		for _, p := range params {
			key := final[p.Path.NormalizeAxis().String()]
			p.ConfigKey = key
			index[key] = append(index[key], p)
		}
		r.byKey[cat] = index

		for _, norm := range order {
			key := final[norm]
			if !containsCategory(keyCategories[key], cat) {
				keyCategories[key] = append(keyCategories[key], cat)
			}
			keyPaths[key] = append(keyPaths[key], norm)
		}
	}

	var shared []string
	for key, cats := range keyCategories {
		if len(cats) > 1 {
			shared = append(shared, key)
		}
	}
	sort.Strings(shared)
	for _, key := range shared {
		r.collisions = append(r.collisions, Collision{
			Key:        key,
			Kind:       CollisionCrossCategory,
			Categories: keyCategories[key],
			Paths:      keyPaths[key],
		})
	}
}

func deriveKey(overrides []schema.KeyRule, path, leaf string) string {
	for _, o := range overrides {
		if o.Leaf != leaf {
			continue
		}
		if o.Contains == "" || strings.Contains(path, o.Contains) {
			return o.Key
		}
	}
	return leaf
}

// disambiguate gives every member the shortest underscore-joined suffix of
// its significant segments that is unique in the group and not used by
// another key. "config" segments and the section are not significant.
func disambiguate(members []string, shapes map[string]paths.Path, taken map[string]bool) map[string]string {
	segments := make(map[string][]string, len(members))
	longest := 0
	for _, m := range members {
		p := shapes[m]
		var segs []string
		for _, s := range p.Rest() {
			if s != configSegment {
				segs = append(segs, s)
			}
		}
		if len(segs) == 0 {
			segs = []string{p.Leaf()}
		}
		segments[m] = segs
		if len(segs) > longest {
			longest = len(segs)
		}
	}

	for n := 1; n <= longest; n++ {
		out := make(map[string]string, len(members))
		used := make(map[string]bool, len(members))
		ok := true
		for _, m := range members {
			segs := segments[m]
			start := len(segs) - n
			if start < 0 {
				start = 0
			}
			key := strings.Join(segs[start:], "_")
			if used[key] || taken[key] {
				ok = false
				break
			}
			used[key] = true
			out[m] = key
		}
		if ok {
			return out
		}
	}

	// last resort, unique because the normalized paths differ
	out := make(map[string]string, len(members))
	for _, m := range members {
		out[m] = strings.Join(shapes[m].Rest(), "_")
	}
	return out
}

func containsCategory(list []types.Category, c types.Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func (r *Registry) Schema() *schema.Schema { return r.schema }
func (r *Registry) Rules() paths.Rules     { return r.rules }
func (r *Registry) AxisCount() int         { return r.schema.AxisCount() }

// ConfigCategories returns the category lists. The slices are copies, the
// parameters are shared and must not be modified.
func (r *Registry) ConfigCategories() CategoryMap {
	out := make(CategoryMap, len(r.categories))
	for _, cat := range types.Categories {
		out[cat] = append([]*Parameter(nil), r.categories[cat]...)
	}
	return out
}

// BatchPaths returns the deduplicated display paths polled as telemetry.
func (r *Registry) BatchPaths() []string {
	return append([]string(nil), r.batch...)
}

// Unclassified lists writable leaves (axis normalised) that no category
// rule matches. They stay readable as telemetry.
func (r *Registry) Unclassified() []string {
	return append([]string(nil), r.unclassified...)
}

func (r *Registry) Collisions() []Collision {
	return append([]Collision(nil), r.collisions...)
}

// resolve applies the variant's renames to a client supplied path.
func (r *Registry) resolve(displayPath string) paths.Path {
	return r.rules.CompatiblePath(paths.Parse(displayPath))
}

// Parameter returns the classified parameter at a display path.
func (r *Registry) Parameter(displayPath string) (*Parameter, error) {
	p, ok := r.byPath[r.resolve(displayPath).String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, displayPath)
	}
	return p, nil
}

// Lookup resolves any supported schema node, writable or not.
func (r *Registry) Lookup(displayPath string) (*schema.Node, error) {
	p := r.resolve(displayPath)
	if !r.rules.IsSupported(p) {
		return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, displayPath)
	}
	n, ok := r.schema.Lookup(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, displayPath)
	}
	return n, nil
}

// FindParameter returns the parameter for a config key. Axis parameters
// resolve to their axis 0 instance.
func (r *Registry) FindParameter(cat types.Category, key string) (*Parameter, error) {
	instances := r.byKey[cat][key]
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrParameterNotFound, cat, key)
	}
	return instances[0], nil
}

// Instances returns every axis instance of a config key.
func (r *Registry) Instances(cat types.Category, key string) []*Parameter {
	return append([]*Parameter(nil), r.byKey[cat][key]...)
}

// PropertyMappings maps config keys of a category to display paths.
func (r *Registry) PropertyMappings(cat types.Category) map[string]string {
	out := make(map[string]string, len(r.byKey[cat]))
	for key, instances := range r.byKey[cat] {
		out[key] = instances[0].DisplayPath
	}
	return out
}

// GenerateAllCommands renders one assignment per parameter whose key is
// present in the matching config section, in category order. A nil axis
// keeps every axis instance, otherwise only the requested axis and device
// level parameters are kept. Unknown keys and nil values are skipped.
func (r *Registry) GenerateAllCommands(config types.ConfigObject, axis *int) []string {
	var commands []string
	for _, cat := range types.Categories {
		section := config[cat]
		if len(section) == 0 {
			continue
		}
		for _, p := range r.categories[cat] {
			value, ok := section[p.ConfigKey]
			if !ok || value == nil {
				continue
			}
			if axis != nil && p.Axis >= 0 && p.Axis != *axis {
				continue
			}
			commands = append(commands, paths.Assignment(r.commandTarget(p), value))
		}
	}
	return commands
}

func (r *Registry) commandTarget(p *Parameter) string {
	if r.rules.Device == "" {
		return p.DeviceCommandPath
	}
	return r.rules.Device + "." + p.DeviceCommandPath
}

// Stats summarises the registry for diagnostics.
type Stats struct {
	Family       string                 `json:"family"`
	Firmware     string                 `json:"firmware"`
	Leaves       int                    `json:"leaves"`
	Writable     int                    `json:"writable"`
	Parameters   map[types.Category]int `json:"parameters"`
	Keys         map[types.Category]int `json:"keys"`
	BatchPaths   int                    `json:"batch_paths"`
	Unclassified int                    `json:"unclassified"`
	Unsupported  int                    `json:"unsupported"`
	Collisions   int                    `json:"collisions"`
}

func (r *Registry) DebugInfo() Stats {
	st := Stats{
		Family:       r.schema.Family(),
		Firmware:     r.schema.Firmware(),
		Leaves:       r.schema.LeafCount(),
		Writable:     r.writable,
		Parameters:   make(map[types.Category]int, len(types.Categories)),
		Keys:         make(map[types.Category]int, len(types.Categories)),
		BatchPaths:   len(r.batch),
		Unclassified: len(r.unclassified),
		Unsupported:  r.unsupported,
		Collisions:   len(r.collisions),
	}
	for _, cat := range types.Categories {
		st.Parameters[cat] = len(r.categories[cat])
		st.Keys[cat] = len(r.byKey[cat])
	}
	return st
}
