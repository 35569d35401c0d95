// Package schema holds the declarative property trees of the supported
// firmware families and the rule tables that travel with them.
package schema

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/paths"
)

// AxisPlaceholder is replaced by the axis index when the axis template is
// expanded.
const AxisPlaceholder = "{axis}"

// ErrStopWalk ends a Walk early without an error.
var ErrStopWalk = errors.New("stop walk")

// KeyRule overrides the config key of a leaf. Contains narrows the rule to
// paths containing the given substring.
type KeyRule struct {
	Leaf     string `yaml:"leaf" json:"leaf"`
	Contains string `yaml:"contains" json:"contains,omitempty"`
	Key      string `yaml:"key" json:"key"`
}

// BatchRules exclude telemetry-only leaves from the config parameter test.
type BatchRules struct {
	ExcludeSuffixes []string `yaml:"exclude_suffixes" json:"exclude_suffixes"`
	ExcludeLeaves   []string `yaml:"exclude_leaves" json:"exclude_leaves"`
	ExcludePrefixes []string `yaml:"exclude_prefixes" json:"exclude_prefixes"`
}

type GroupRule struct {
	Contains []string `yaml:"contains" json:"contains"`
	Value    string   `yaml:"value" json:"value"`
}

type KeyGroup struct {
	Group      string `yaml:"group" json:"group,omitempty"`
	Subgroup   string `yaml:"subgroup" json:"subgroup,omitempty"`
	Importance string `yaml:"importance" json:"importance,omitempty"`
}

// GroupingRules drive the UI grouping of parameters.
type GroupingRules struct {
	DefaultGroup      string              `yaml:"default_group" json:"default_group"`
	DefaultSubgroup   string              `yaml:"default_subgroup" json:"default_subgroup"`
	DefaultImportance string              `yaml:"default_importance" json:"default_importance"`
	Keys              map[string]KeyGroup `yaml:"keys" json:"keys"`
	Groups            []GroupRule         `yaml:"groups" json:"groups"`
	Subgroups         []GroupRule         `yaml:"subgroups" json:"subgroups"`
	Importance        []GroupRule         `yaml:"importance" json:"importance"`
}

// CommandScope tells whether a static command targets the device or an axis.
type CommandScope string

const (
	ScopeDevice CommandScope = "device"
	ScopeAxis   CommandScope = "axis"
)

// CommandSpec is one entry of the static command catalogue.
type CommandSpec struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name" json:"name"`
	Command     string       `yaml:"command" json:"command"`
	Description string       `yaml:"description" json:"description,omitempty"`
	Scope       CommandScope `yaml:"scope" json:"scope"`
	Risky       bool         `yaml:"risky" json:"risky"`
}

// Document is the authored form of one firmware family.
type Document struct {
	Family     string               `yaml:"family"`
	Firmware   string               `yaml:"firmware"`
	Device     string               `yaml:"device"`
	Axes       int                  `yaml:"axes"`
	Sections   NodeMap              `yaml:"sections"`
	Axis       *Node                `yaml:"axis"`
	Paths      paths.Rules          `yaml:"paths"`
	Categories []paths.CategoryRule `yaml:"categories"`
	ConfigKeys []KeyRule            `yaml:"config_keys"`
	Batch      BatchRules           `yaml:"batch"`
	Grouping   GroupingRules        `yaml:"grouping"`
	Commands   []CommandSpec        `yaml:"commands"`
	AxisStates []Option             `yaml:"axis_states"`
	IdleStates []int                `yaml:"idle_states"`
}

// Schema is an immutable, axis-expanded property tree. Nothing hands out
// mutable references to its internals except Sections and Lookup, whose
// results must be treated as read-only.
type Schema struct {
	doc      Document
	sections NodeMap
	leaves   int
}

// New expands the axis template and returns the finished schema.
func New(doc Document) *Schema {
	sections := doc.Sections.Clone()
	if doc.Axis != nil {
		for i := 0; i < doc.Axes; i++ {
			axis := doc.Axis.Clone()
			axis.substitute(AxisPlaceholder, strconv.Itoa(i))
			sections = append(sections, Entry{Key: paths.AxisSegment(i), Node: axis})
		}
	}
	doc.Paths.Device = doc.Device
	doc.Paths.Sections = make([]string, 0, len(doc.Sections))
	for _, e := range doc.Sections {
		doc.Paths.Sections = append(doc.Paths.Sections, e.Key)
	}

	s := &Schema{doc: doc, sections: sections}
	_ = s.Walk(func(paths.Path, *Node) error {
		s.leaves++
		return nil
	})
	return s
}

func (s *Schema) Family() string   { return s.doc.Family }
func (s *Schema) Firmware() string { return s.doc.Firmware }
func (s *Schema) Device() string   { return s.doc.Device }
func (s *Schema) AxisCount() int   { return s.doc.Axes }
func (s *Schema) LeafCount() int   { return s.leaves }

// Sections returns the top-level sections, axes included.
func (s *Schema) Sections() NodeMap { return s.sections }

// Rules returns the path mapping tables with the device root filled in.
func (s *Schema) Rules() paths.Rules { return s.doc.Paths }

func (s *Schema) CategoryRules() []paths.CategoryRule { return s.doc.Categories }
func (s *Schema) KeyRules() []KeyRule                 { return s.doc.ConfigKeys }
func (s *Schema) Batch() BatchRules                   { return s.doc.Batch }
func (s *Schema) Grouping() GroupingRules             { return s.doc.Grouping }
func (s *Schema) Commands() []CommandSpec             { return s.doc.Commands }
func (s *Schema) AxisStates() []Option                { return s.doc.AxisStates }
func (s *Schema) IdleStates() []int                   { return s.doc.IdleStates }

// WalkFunc is called for every leaf with its absolute display path.
type WalkFunc func(p paths.Path, leaf *Node) error

// Walk visits every leaf depth-first. Within a node, properties are visited
// before children, both in authoring order. Returning ErrStopWalk ends the
// walk without an error.
func (s *Schema) Walk(fn WalkFunc) error {
	for _, e := range s.sections {
		if err := walk(paths.Path{e.Key}, e.Node, fn); err != nil {
			if errors.Is(err, ErrStopWalk) {
				return nil
			}
			return err
		}
	}
	return nil
}

func walk(prefix paths.Path, n *Node, fn WalkFunc) error {
	for _, e := range n.Properties {
		if err := fn(prefix.Append(e.Key), e.Node); err != nil {
			return err
		}
	}
	for _, e := range n.Children {
		if err := walk(prefix.Append(e.Key), e.Node, fn); err != nil {
			return err
		}
	}
	return nil
}

// Lookup resolves a display path to a leaf or interior node.
func (s *Schema) Lookup(p paths.Path) (*Node, bool) {
	if p.IsEmpty() {
		return nil, false
	}
	n, ok := s.sections.Get(p[0])
	if !ok {
		return nil, false
	}
	for i := 1; i < len(p); i++ {
		seg := p[i]
		// a leaf can only be the last segment
		if i == len(p)-1 {
			if leaf, ok := n.Properties.Get(seg); ok {
				return leaf, true
			}
		}
		child, ok := n.Children.Get(seg)
		if !ok {
			return nil, false
		}
		n = child
	}
	return n, true
}

// MarshalJSON renders the expanded tree for API consumers.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Family   string  `json:"family"`
		Firmware string  `json:"firmware"`
		Device   string  `json:"device"`
		Axes     int     `json:"axes"`
		Sections NodeMap `json:"sections"`
	}{
		Family:   s.doc.Family,
		Firmware: s.doc.Firmware,
		Device:   s.doc.Device,
		Axes:     s.doc.Axes,
		Sections: s.sections,
	})
}
