// Package commands turns configuration objects and catalogue entries into
// device commands and sends them.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/metrics"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/registry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/schema"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/telemetry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"go.uber.org/zap"
)

var ErrUnknownCommand = errors.New("unknown command")

const (
	saveCommandID   = "save_configuration"
	stateCommandID  = "requested_state_"
	outcomeSent     = "sent"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// Commander sends one command line to the device.
type Commander interface {
	ExecuteCommand(ctx context.Context, command string) (string, error)
}

// Reader batch-reads display paths.
type Reader interface {
	Fetch(ctx context.Context, displayPaths []string) (types.TelemetrySnapshot, error)
}

// RegistryFunc returns the registry of the active firmware family.
type RegistryFunc func() *registry.Registry

type ApplyOptions struct {
	// Axis limits axis parameters to one axis, nil applies every axis.
	Axis *int `json:"axis,omitempty"`
	// Save appends save_configuration() after the last command.
	Save bool `json:"save"`
}

// Result is the outcome of one sent command.
type Result struct {
	Command string `json:"command"`
	Status  string `json:"status"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ApplyReport struct {
	Commands []string `json:"commands"`
	Sent     int      `json:"sent"`
	Failed   int      `json:"failed"`
	Skipped  int      `json:"skipped"`
	Results  []Result `json:"results"`
}

// Entry is one item of the static command catalogue.
type Entry struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Command     string              `json:"command"`
	Description string              `json:"description,omitempty"`
	Scope       schema.CommandScope `json:"scope"`
	Risky       bool                `json:"risky"`
}

type Synthesizer struct {
	registry RegistryFunc
	device   Commander
	reader   Reader
	metrics  metrics.Collector
	logger   *zap.Logger
}

func New(reg RegistryFunc, device Commander, reader Reader, collector metrics.Collector, logger *zap.Logger) *Synthesizer {
	if collector == nil {
		collector = metrics.Noop()
	}
	return &Synthesizer{
		registry: reg,
		device:   device,
		reader:   reader,
		metrics:  collector,
		logger:   logger,
	}
}

// Synthesize renders the ordered commands for cfg without sending them.
func (s *Synthesizer) Synthesize(cfg types.ConfigObject, axis *int) []string {
	return s.registry().GenerateAllCommands(cfg, axis)
}

// Apply sends the commands for cfg one by one. Commands the device rejects
// are recorded and skipped over, nothing is rolled back. A transport error
// stops the run; the report then covers what was attempted.
func (s *Synthesizer) Apply(ctx context.Context, cfg types.ConfigObject, opts ApplyOptions) (*ApplyReport, error) {
	commands := s.Synthesize(cfg, opts.Axis)
	if opts.Save {
		save, err := s.registry().RenderCommand(saveCommandID, nil)
		if err != nil {
			return nil, err
		}
		commands = append(commands, save)
	}

	report := &ApplyReport{
		Commands: commands,
		Results:  make([]Result, 0, len(commands)),
	}

	s.logger.Info("Applying configuration",
		zap.Int("commands", len(commands)),
		zap.Bool("save", opts.Save))

	for i, cmd := range commands {
		out, err := s.send(ctx, cmd)
		switch {
		case err == nil:
			report.Sent++
			report.Results = append(report.Results, Result{Command: cmd, Status: outcomeSent, Result: out})

		case errors.Is(err, odrive.ErrDevice):
			report.Failed++
			report.Results = append(report.Results, Result{Command: cmd, Status: outcomeRejected, Error: err.Error()})

		default:
			report.Failed++
			report.Results = append(report.Results, Result{Command: cmd, Status: outcomeFailed, Error: err.Error()})
			report.Skipped = len(commands) - i - 1
			return report, fmt.Errorf("apply stopped after %d of %d commands: %w", i+1, len(commands), err)
		}
	}

	if report.Failed > 0 {
		s.logger.Warn("Configuration applied with rejected commands",
			zap.Int("sent", report.Sent),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

// Catalogue lists the static commands of the active family followed by one
// state transition per known axis state.
func (s *Synthesizer) Catalogue() []Entry {
	reg := s.registry()
	static := reg.Commands()
	states := reg.AxisStates()

	out := make([]Entry, 0, len(static)+len(states))
	for _, c := range static {
		out = append(out, Entry{
			ID:          c.ID,
			Name:        c.Name,
			Command:     c.Command,
			Description: c.Description,
			Scope:       c.Scope,
			Risky:       c.Risky,
		})
	}
	for _, st := range states {
		code := int(st.Value)
		out = append(out, Entry{
			ID:      stateCommandID + strconv.Itoa(code),
			Name:    st.Label,
			Command: stateTemplate(reg, code),
			Scope:   schema.ScopeAxis,
			Risky:   !reg.IsIdle(code),
		})
	}
	return out
}

func stateTemplate(reg *registry.Registry, code int) string {
	cmd, err := reg.AxisStateCommand(0, code)
	if err != nil {
		return ""
	}
	return strings.Replace(cmd, "axis0.", "axis"+schema.AxisPlaceholder+".", 1)
}

// Static renders one catalogue entry.
func (s *Synthesizer) Static(id string, axis *int) (string, error) {
	reg := s.registry()

	if code, ok := stateCode(id); ok {
		if axis == nil {
			return "", fmt.Errorf("%s needs an axis", id)
		}
		return reg.AxisStateCommand(*axis, code)
	}

	if _, ok := reg.Command(id); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, id)
	}
	return reg.RenderCommand(id, axis)
}

// Risky reports whether a catalogue entry must pass the axis guard. State
// transitions are risky unless the target state counts as idle.
func (s *Synthesizer) Risky(id string) bool {
	reg := s.registry()
	if code, ok := stateCode(id); ok {
		return !reg.IsIdle(code)
	}
	c, ok := reg.Command(id)
	return ok && c.Risky
}

// Execute renders and sends one catalogue entry.
func (s *Synthesizer) Execute(ctx context.Context, id string, axis *int) (command, result string, err error) {
	command, err = s.Static(id, axis)
	if err != nil {
		return "", "", err
	}
	s.logger.Info("Executing command", zap.String("id", id), zap.String("command", command))
	result, err = s.send(ctx, command)
	return command, result, err
}

// ReadConfig reads every parameter of one axis (axis 0 when nil) and the
// device level parameters into a ConfigObject. Paths that could not be
// read are left out.
func (s *Synthesizer) ReadConfig(ctx context.Context, axis *int) (types.ConfigObject, error) {
	reg := s.registry()
	want := 0
	if axis != nil {
		want = *axis
	}
	if want < 0 || want >= reg.AxisCount() {
		return nil, fmt.Errorf("axis %d out of range (0-%d)", want, reg.AxisCount()-1)
	}

	var params []*registry.Parameter
	var displayPaths []string
	categories := reg.ConfigCategories()
	for _, cat := range types.Categories {
		for _, p := range categories[cat] {
			if p.Axis >= 0 && p.Axis != want {
				continue
			}
			params = append(params, p)
			displayPaths = append(displayPaths, p.DisplayPath)
		}
	}

	snapshot, err := s.reader.Fetch(ctx, displayPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg := types.NewConfigObject()
	missing := 0
	for _, p := range params {
		v, ok := snapshot[p.DisplayPath]
		if _, marker := v.(telemetry.Marker); !ok || marker || v == nil {
			missing++
			continue
		}
		cfg.Set(p.Category, p.ConfigKey, v)
	}

	if missing > 0 {
		s.logger.Warn("Configuration read incomplete",
			zap.Int("axis", want),
			zap.Int("missing", missing),
			zap.Int("parameters", len(params)))
	}
	return cfg, nil
}

func (s *Synthesizer) send(ctx context.Context, command string) (string, error) {
	out, err := s.device.ExecuteCommand(ctx, command)
	switch {
	case err == nil:
		s.metrics.IncCommand(outcomeSent)
	case errors.Is(err, odrive.ErrDevice):
		s.metrics.IncCommand(outcomeRejected)
		s.logger.Warn("Command rejected", zap.String("command", command), zap.Error(err))
	default:
		s.metrics.IncCommand(outcomeFailed)
		s.logger.Error("Command failed", zap.String("command", command), zap.Error(err))
	}
	return out, err
}

func stateCode(id string) (int, bool) {
	if !strings.HasPrefix(id, stateCommandID) {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimPrefix(id, stateCommandID))
	return code, err == nil
}
