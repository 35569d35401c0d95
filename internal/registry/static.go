package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/paths"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/schema"
)

// StateIdle is the axis state requested when remediating a busy axis.
const StateIdle = 1

// StaticCommand is a rendered, non-parametric device command.
type StaticCommand struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Command     string              `json:"command"`
	Description string              `json:"description,omitempty"`
	Scope       schema.CommandScope `json:"scope"`
	Risky       bool                `json:"risky"`
}

// Commands renders the command catalogue. Axis scoped commands keep the
// {axis} placeholder, see RenderCommand.
func (r *Registry) Commands() []StaticCommand {
	defs := r.schema.Commands()
	out := make([]StaticCommand, 0, len(defs))
	for _, def := range defs {
		command := def.Command
		if def.Scope == schema.ScopeAxis {
			command = "axis" + schema.AxisPlaceholder + "." + command
		}
		out = append(out, StaticCommand{
			ID:          def.ID,
			Name:        def.Name,
			Command:     r.qualify(command),
			Description: def.Description,
			Scope:       def.Scope,
			Risky:       def.Risky,
		})
	}
	return out
}

// Command returns one catalogue entry by id.
func (r *Registry) Command(id string) (StaticCommand, bool) {
	for _, c := range r.Commands() {
		if c.ID == id {
			return c, true
		}
	}
	return StaticCommand{}, false
}

// RenderCommand renders a catalogue entry. Axis scoped commands need an
// axis, device commands ignore it.
func (r *Registry) RenderCommand(id string, axis *int) (string, error) {
	c, ok := r.Command(id)
	if !ok {
		return "", fmt.Errorf("unknown command %q", id)
	}
	if c.Scope != schema.ScopeAxis {
		return c.Command, nil
	}
	if axis == nil {
		return "", fmt.Errorf("command %q needs an axis", id)
	}
	if *axis < 0 || *axis >= r.AxisCount() {
		return "", fmt.Errorf("axis %d out of range (0-%d)", *axis, r.AxisCount()-1)
	}
	return strings.ReplaceAll(c.Command, schema.AxisPlaceholder, strconv.Itoa(*axis)), nil
}

// AxisStates returns the state catalogue of the variant.
func (r *Registry) AxisStates() []schema.Option {
	return append([]schema.Option(nil), r.schema.AxisStates()...)
}

// AxisStateLabel names a state code.
func (r *Registry) AxisStateLabel(code int) string {
	for _, s := range r.schema.AxisStates() {
		if s.Value == float64(code) {
			return s.Label
		}
	}
	return "Unknown (" + strconv.Itoa(code) + ")"
}

// AxisStateCommand renders a requested_state transition.
func (r *Registry) AxisStateCommand(axis, state int) (string, error) {
	if axis < 0 || axis >= r.AxisCount() {
		return "", fmt.Errorf("axis %d out of range (0-%d)", axis, r.AxisCount()-1)
	}
	known := false
	for _, s := range r.schema.AxisStates() {
		if s.Value == float64(state) {
			known = true
			break
		}
	}
	if !known {
		return "", fmt.Errorf("unknown axis state %d", state)
	}
	target := paths.Path{paths.AxisSegment(axis), "requested_state"}
	return paths.Assignment(r.qualify(target.String()), state), nil
}

// IdleCommand renders the transition of an axis to idle.
func (r *Registry) IdleCommand(axis int) string {
	target := paths.Path{paths.AxisSegment(axis), "requested_state"}
	return paths.Assignment(r.qualify(target.String()), StateIdle)
}

// StatePath is the display path of the reported axis state.
func (r *Registry) StatePath(axis int) string {
	return paths.Path{paths.AxisSegment(axis), "current_state"}.String()
}

// IsIdle reports whether a state code counts as safe to proceed.
func (r *Registry) IsIdle(code int) bool {
	for _, s := range r.schema.IdleStates() {
		if s == code {
			return true
		}
	}
	return false
}

func (r *Registry) qualify(s string) string {
	if r.rules.Device == "" {
		return s
	}
	return r.rules.Device + "." + s
}
