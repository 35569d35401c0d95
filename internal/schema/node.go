package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueKind is the declared value type of a leaf.
type ValueKind string

const (
	KindNumber  ValueKind = "number"
	KindBoolean ValueKind = "boolean"
	KindString  ValueKind = "string"
	KindObject  ValueKind = "object"
)

// Option is one choice of a numeric-backed enumeration.
type Option struct {
	Value float64 `yaml:"value" json:"value"`
	Label string  `yaml:"label" json:"label"`
}

// Node is a schema leaf or interior node. Entries of Properties are leaves,
// entries of Children are subtrees.
type Node struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description,omitempty"`
	Writable    bool      `yaml:"writable" json:"writable"`
	Type        ValueKind `yaml:"type" json:"type,omitempty"`
	Unit        string    `yaml:"unit" json:"unit,omitempty"`
	Decimals    *int      `yaml:"decimals" json:"decimals,omitempty"`
	Min         *float64  `yaml:"min" json:"min,omitempty"`
	Max         *float64  `yaml:"max" json:"max,omitempty"`
	Step        *float64  `yaml:"step" json:"step,omitempty"`
	Options     []Option  `yaml:"options" json:"options,omitempty"`
	WireType    string    `yaml:"wire_type" json:"wire_type,omitempty"`
	Setpoint    bool      `yaml:"setpoint" json:"setpoint,omitempty"`
	Slider      bool      `yaml:"slider" json:"slider,omitempty"`

	Properties NodeMap `yaml:"properties" json:"properties,omitempty"`
	Children   NodeMap `yaml:"children" json:"children,omitempty"`
}

// IsLeaf reports whether the node carries a device value.
func (n *Node) IsLeaf() bool {
	return n.Type != "" && len(n.Properties) == 0 && len(n.Children) == 0
}

// OptionLabel returns the label of an enumeration value.
func (n *Node) OptionLabel(v float64) (string, bool) {
	for _, o := range n.Options {
		if o.Value == v {
			return o.Label, true
		}
	}
	return "", false
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	if n.Options != nil {
		out.Options = append([]Option(nil), n.Options...)
	}
	out.Properties = n.Properties.Clone()
	out.Children = n.Children.Clone()
	return &out
}

// substitute replaces a placeholder in names, descriptions and keys of the
// whole subtree.
func (n *Node) substitute(placeholder, value string) {
	n.Name = strings.ReplaceAll(n.Name, placeholder, value)
	n.Description = strings.ReplaceAll(n.Description, placeholder, value)
	for i := range n.Properties {
		n.Properties[i].Key = strings.ReplaceAll(n.Properties[i].Key, placeholder, value)
		n.Properties[i].Node.substitute(placeholder, value)
	}
	for i := range n.Children {
		n.Children[i].Key = strings.ReplaceAll(n.Children[i].Key, placeholder, value)
		n.Children[i].Node.substitute(placeholder, value)
	}
}

// Entry is one key of a NodeMap.
type Entry struct {
	Key  string
	Node *Node
}

// NodeMap is an ordered map of nodes. Authoring order is traversal order.
type NodeMap []Entry

func (m NodeMap) Get(key string) (*Node, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Node, true
		}
	}
	return nil, false
}

func (m NodeMap) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

func (m NodeMap) Clone() NodeMap {
	if m == nil {
		return nil
	}
	out := make(NodeMap, len(m))
	for i, e := range m {
		out[i] = Entry{Key: e.Key, Node: e.Node.Clone()}
	}
	return out
}

// UnmarshalYAML keeps the document order of the mapping.
func (m *NodeMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected mapping, got %s", value.Line, kindName(value.Kind))
	}

	out := make(NodeMap, 0, len(value.Content)/2)
	seen := make(map[string]bool, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		key := keyNode.Value
		if seen[key] {
			return fmt.Errorf("line %d: duplicate key %q", keyNode.Line, key)
		}
		seen[key] = true

		var n Node
		if err := valNode.Decode(&n); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, Entry{Key: key, Node: &n})
	}
	*m = out
	return nil
}

// MarshalJSON renders the map as a JSON object in order.
func (m NodeMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Node)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
