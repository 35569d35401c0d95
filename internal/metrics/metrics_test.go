package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncTelemetryTick("dashboard", OutcomeOK)
	collector.SetConnected(true)
}

func TestPrometheusCollectorRegistersAndReuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.IncTelemetryTick("dashboard", OutcomeOK)
	collector.IncDecodeErrors(3)
	collector.SetConnected(true)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.ticks, again.ticks)

	again.IncTelemetryTick("dashboard", OutcomeOK)
	again.IncDecodeErrors(0)

	families := gather(t, reg)

	ticks := families["odrive_gateway_telemetry_ticks_total"]
	require.NotNil(t, ticks)
	require.Len(t, ticks.Metric, 1)
	require.Equal(t, 2.0, ticks.Metric[0].Counter.GetValue())

	decode := families["odrive_gateway_decode_errors_total"]
	require.NotNil(t, decode)
	require.Equal(t, 3.0, decode.Metric[0].Counter.GetValue())

	connected := families["odrive_gateway_device_connected"]
	require.NotNil(t, connected)
	require.Equal(t, 1.0, connected.Metric[0].Gauge.GetValue())
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}
