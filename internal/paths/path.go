// Package paths implements the dotted property path algebra shared by the
// registry, the telemetry synchronizer and the command synthesizer.
//
// Paths are handled as segment lists, never as raw strings, so that prefix
// checks are segment-exact ("axis1" does not match "axis10").
package paths

import (
	"strconv"
	"strings"
)

const axisPrefix = "axis"

// AxisWildcard replaces the axis segment in normalized paths.
const AxisWildcard = "axis*"

// Path is an ordered list of path segments.
type Path []string

// Parse splits a dotted path. Empty segments are dropped.
func Parse(s string) Path {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			p = append(p, part)
		}
	}
	return p
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

func (p Path) Len() int {
	return len(p)
}

func (p Path) IsEmpty() bool {
	return len(p) == 0
}

// Section returns the first segment.
func (p Path) Section() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Leaf returns the last segment.
func (p Path) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Rest returns the path without its first segment.
func (p Path) Rest() Path {
	if len(p) <= 1 {
		return nil
	}
	return p[1:].Clone()
}

func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Append returns a new path with the given segments added.
func (p Path) Append(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// Prepend returns a new path with the given segment in front.
func (p Path) Prepend(segment string) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, segment)
	return append(out, p...)
}

// HasPrefix reports whether q is a segment-wise prefix of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Index returns the offset at which q occurs as a contiguous run of
// segments in p, or -1.
func (p Path) Index(q Path) int {
	if len(q) == 0 {
		return -1
	}
	for i := 0; i+len(q) <= len(p); i++ {
		if p[i:].HasPrefix(q) {
			return i
		}
	}
	return -1
}

// Contains reports whether any segment equals seg.
func (p Path) Contains(seg string) bool {
	for _, s := range p {
		if s == seg {
			return true
		}
	}
	return false
}

func (p Path) Equal(q Path) bool {
	return len(p) == len(q) && p.HasPrefix(q)
}

// AxisIndex returns the axis number when the path starts with an axis
// section, or -1.
func (p Path) AxisIndex() int {
	if n, ok := ParseAxisSegment(p.Section()); ok {
		return n
	}
	return -1
}

// WithAxis retargets an axis-scoped path at another axis. Paths without an
// axis section are returned unchanged.
func (p Path) WithAxis(axis int) Path {
	if p.AxisIndex() < 0 {
		return p.Clone()
	}
	out := p.Clone()
	out[0] = AxisSegment(axis)
	return out
}

// NormalizeAxis replaces the axis section with AxisWildcard so that the
// same property on different axes compares equal.
func (p Path) NormalizeAxis() Path {
	if p.AxisIndex() < 0 {
		return p.Clone()
	}
	out := p.Clone()
	out[0] = AxisWildcard
	return out
}

// AxisSegment renders the section name of an axis.
func AxisSegment(axis int) string {
	return axisPrefix + strconv.Itoa(axis)
}

// ParseAxisSegment accepts exactly "axis" followed by decimal digits.
func ParseAxisSegment(seg string) (int, bool) {
	if len(seg) <= len(axisPrefix) || !strings.HasPrefix(seg, axisPrefix) {
		return 0, false
	}
	digits := seg[len(axisPrefix):]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
