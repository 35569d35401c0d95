package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/metrics"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/paths"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"go.uber.org/zap"
)

// Device is the part of the device client the synchronizer reads through.
type Device interface {
	IsConnected() bool
	ReadProperty(ctx context.Context, devicePath string) ([]byte, error)
	ReadProperties(ctx context.Context, devicePaths []string) ([]byte, error)
}

// ChartReader is implemented by devices with a dedicated charts endpoint.
// Without it chart paths are read like any other batch.
type ChartReader interface {
	ReadCharts(ctx context.Context, devicePaths []string) ([]byte, error)
}

// RulesFunc returns the path rules of the active firmware family.
type RulesFunc func() paths.Rules

// Synchronizer translates display paths, reads them in one batch and
// decodes the reply.
type Synchronizer struct {
	device  Device
	rules   RulesFunc
	store   *Store
	metrics metrics.Collector
	logger  *zap.Logger
}

func NewSynchronizer(device Device, rules RulesFunc, store *Store, collector metrics.Collector, logger *zap.Logger) *Synchronizer {
	if collector == nil {
		collector = metrics.Noop()
	}
	return &Synchronizer{
		device:  device,
		rules:   rules,
		store:   store,
		metrics: collector,
		logger:  logger,
	}
}

func (s *Synchronizer) Store() *Store { return s.store }

func (s *Synchronizer) IsConnected() bool { return s.device.IsConnected() }

// Fetch reads displayPaths in one batched request without touching the
// store. While disconnected it returns odrive.ErrNotConnected and no
// snapshot. A failed request returns an error together with a snapshot
// marking every path RequestFailed; an undecodable reply marks every path
// ParseError and is not an error.
func (s *Synchronizer) Fetch(ctx context.Context, displayPaths []string) (types.TelemetrySnapshot, error) {
	return s.fetch(ctx, displayPaths, s.device.ReadProperties)
}

// FetchCharts is Fetch through the charts endpoint. Its reply carries the
// values under "data" instead of "results".
func (s *Synchronizer) FetchCharts(ctx context.Context, displayPaths []string) (types.TelemetrySnapshot, error) {
	if cr, ok := s.device.(ChartReader); ok {
		return s.fetch(ctx, displayPaths, cr.ReadCharts)
	}
	return s.Fetch(ctx, displayPaths)
}

type batchRead func(ctx context.Context, devicePaths []string) ([]byte, error)

func (s *Synchronizer) fetch(ctx context.Context, displayPaths []string, read batchRead) (types.TelemetrySnapshot, error) {
	if !s.device.IsConnected() {
		return nil, odrive.ErrNotConnected
	}

	unique, devicePaths, byDevice := s.translate(displayPaths)
	if len(unique) == 0 {
		return types.TelemetrySnapshot{}, nil
	}

	body, err := read(ctx, devicePaths)
	if err != nil {
		if errors.Is(err, odrive.ErrNotConnected) {
			return nil, err
		}
		return mark(unique, RequestFailed), fmt.Errorf("batch read of %d paths failed: %w", len(unique), err)
	}

	results, err := Decode(body)
	if err != nil {
		s.metrics.IncDecodeErrors(len(unique))
		s.logger.Warn("Telemetry decode failed",
			zap.Int("paths", len(unique)),
			zap.Error(err))
		return mark(unique, ParseError), nil
	}

	snapshot := make(types.TelemetrySnapshot, len(results))
	for devicePath, v := range results {
		for _, display := range byDevice[devicePath] {
			snapshot[display] = v
		}
	}
	return snapshot, nil
}

// RefreshAll fetches displayPaths and writes the result into the store.
// A failed request leaves the store untouched.
func (s *Synchronizer) RefreshAll(ctx context.Context, displayPaths []string) (types.TelemetrySnapshot, error) {
	snapshot, err := s.Fetch(ctx, displayPaths)
	if err != nil {
		return snapshot, err
	}
	s.store.Apply(snapshot)
	return snapshot, nil
}

// RefreshOne reads a single path, e.g. to confirm a write.
func (s *Synchronizer) RefreshOne(ctx context.Context, displayPath string) (any, error) {
	if !s.device.IsConnected() {
		return nil, odrive.ErrNotConnected
	}

	devicePath := s.rules().DeviceString(displayPath)
	body, err := s.device.ReadProperty(ctx, devicePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", displayPath, err)
	}

	results, err := Decode(body)
	if err != nil {
		s.metrics.IncDecodeErrors(1)
		s.logger.Warn("Telemetry decode failed",
			zap.String("path", displayPath),
			zap.Error(err))
		s.store.Apply(types.TelemetrySnapshot{displayPath: ParseError})
		return ParseError, nil
	}

	v, ok := results[""]
	if !ok {
		v, ok = results[devicePath]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s missing", ErrMalformedReply, displayPath)
	}

	s.store.Apply(types.TelemetrySnapshot{displayPath: v})
	return v, nil
}

// Unified is the reply of a combined dashboard and chart read.
type Unified struct {
	Dashboard types.TelemetrySnapshot `json:"dashboard"`
	Charts    types.TelemetrySnapshot `json:"charts"`
	Connected bool                    `json:"connected"`
	Timestamp time.Time               `json:"timestamp"`
}

// ReadUnified serves both consumers from one batched read.
func (s *Synchronizer) ReadUnified(ctx context.Context, dashboardPaths, chartPaths []string) (Unified, error) {
	out := Unified{
		Dashboard: types.TelemetrySnapshot{},
		Charts:    types.TelemetrySnapshot{},
		Connected: s.device.IsConnected(),
		Timestamp: time.Now().UTC(),
	}
	if !out.Connected {
		return out, nil
	}

	all := make([]string, 0, len(dashboardPaths)+len(chartPaths))
	all = append(all, dashboardPaths...)
	all = append(all, chartPaths...)

	snapshot, err := s.RefreshAll(ctx, all)
	if err != nil {
		if errors.Is(err, odrive.ErrNotConnected) {
			out.Connected = false
			return out, nil
		}
		return out, err
	}

	for _, p := range dashboardPaths {
		if v, ok := snapshot[p]; ok {
			out.Dashboard[p] = v
		}
	}
	for _, p := range chartPaths {
		if v, ok := snapshot[p]; ok {
			out.Charts[p] = v
		}
	}
	return out, nil
}

func (s *Synchronizer) translate(displayPaths []string) ([]string, []string, map[string][]string) {
	rules := s.rules()

	seen := make(map[string]bool, len(displayPaths))
	unique := make([]string, 0, len(displayPaths))
	devicePaths := make([]string, 0, len(displayPaths))
	byDevice := make(map[string][]string, len(displayPaths))

	for _, display := range displayPaths {
		if display == "" || seen[display] {
			continue
		}
		seen[display] = true
		unique = append(unique, display)

		device := rules.DeviceString(display)
		if _, ok := byDevice[device]; !ok {
			devicePaths = append(devicePaths, device)
		}
		byDevice[device] = append(byDevice[device], display)
	}
	return unique, devicePaths, byDevice
}

func mark(displayPaths []string, m Marker) types.TelemetrySnapshot {
	out := make(types.TelemetrySnapshot, len(displayPaths))
	for _, p := range displayPaths {
		out[p] = m
	}
	return out
}
