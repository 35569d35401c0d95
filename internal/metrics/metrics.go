// Package metrics records gateway activity.
//
// Hooks run inline with polling ticks and command writes, implementations
// must be cheap and must never block.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
	OutcomeDropped  = "dropped"
)

type Collector interface {
	IncTelemetryTick(consumer, outcome string)
	IncDecodeErrors(paths int)
	IncCommand(outcome string)
	IncGuardIntervention(resolution string)
	SetConnected(connected bool)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncTelemetryTick(string, string) {}
func (noopCollector) IncDecodeErrors(int)             {}
func (noopCollector) IncCommand(string)               {}
func (noopCollector) IncGuardIntervention(string)     {}
func (noopCollector) SetConnected(bool)               {}

// PrometheusCollector exposes the gateway counters via Prometheus.
type PrometheusCollector struct {
	ticks        *prometheus.CounterVec
	decodeErrors prometheus.Counter
	commands     *prometheus.CounterVec
	guard        *prometheus.CounterVec
	connected    prometheus.Gauge
}

// NewPrometheusCollector registers the metrics with reg. Registering twice
// against the same registerer reuses the existing collectors.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	ticks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odrive_gateway_telemetry_ticks_total",
		Help: "Telemetry polling ticks per consumer and outcome.",
	}, []string{"consumer", "outcome"}))
	if err != nil {
		return nil, err
	}

	decodeErrors, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odrive_gateway_decode_errors_total",
		Help: "Property values marked as parse errors.",
	}))
	if err != nil {
		return nil, err
	}

	commands, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odrive_gateway_commands_total",
		Help: "Device commands sent per outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	guard, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odrive_gateway_guard_interventions_total",
		Help: "Guarded actions that were suspended, per resolution.",
	}, []string{"resolution"}))
	if err != nil {
		return nil, err
	}

	connected, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odrive_gateway_device_connected",
		Help: "1 while the device backend reports a connection.",
	}))
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		ticks:        ticks,
		decodeErrors: decodeErrors,
		commands:     commands,
		guard:        guard,
		connected:    connected,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func (p *PrometheusCollector) IncTelemetryTick(consumer, outcome string) {
	if p == nil {
		return
	}
	p.ticks.WithLabelValues(consumer, outcome).Inc()
}

func (p *PrometheusCollector) IncDecodeErrors(paths int) {
	if p == nil || paths <= 0 {
		return
	}
	p.decodeErrors.Add(float64(paths))
}

func (p *PrometheusCollector) IncCommand(outcome string) {
	if p == nil {
		return
	}
	p.commands.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) IncGuardIntervention(resolution string) {
	if p == nil {
		return
	}
	p.guard.WithLabelValues(resolution).Inc()
}

func (p *PrometheusCollector) SetConnected(connected bool) {
	if p == nil {
		return
	}
	if connected {
		p.connected.Set(1)
		return
	}
	p.connected.Set(0)
}
