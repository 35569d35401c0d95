package telemetry

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive/odrivetest"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/paths"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testRules = paths.Rules{Device: "odrv0", DeviceRoot: []string{"vbus_voltage", "ibus"}}

func rules() paths.Rules { return testRules }

func newSync(t *testing.T) (*Synchronizer, *odrivetest.Backend) {
	t.Helper()
	backend := odrivetest.NewBackend(t)
	client := odrive.NewClient(backend.URL(), time.Second, zap.NewNop())
	require.NoError(t, client.Connect(context.Background(), odrive.DeviceInfo{Serial: "3A6B2C1D"}))
	return NewSynchronizer(client, rules, NewStore(), nil, zap.NewNop()), backend
}

func TestDecodeInfinity(t *testing.T) {
	results, err := Decode([]byte(`{"results":{"vbus_voltage":Infinity,"ibus": -Infinity,"x":NaN,"y":1.5}}`))
	require.NoError(t, err)

	assert.True(t, math.IsInf(results["vbus_voltage"].(float64), 1))
	assert.True(t, math.IsInf(results["ibus"].(float64), -1))
	assert.True(t, math.IsNaN(results["x"].(float64)))
	assert.Equal(t, 1.5, results["y"])
}

func TestInfinityRoundTrip(t *testing.T) {
	body, err := Encode(map[string]any{"axis0.controller.config.vel_limit": math.Inf(1)})
	require.NoError(t, err)
	assert.Contains(t, string(body), ":Infinity")

	results, err := Decode(body)
	require.NoError(t, err)
	v, ok := results["axis0.controller.config.vel_limit"].(float64)
	require.True(t, ok, "decoded as %T", results["axis0.controller.config.vel_limit"])
	assert.True(t, math.IsInf(v, 1))

	// the REST encoding uses quoted sentinels and decodes the same way
	data, err := json.Marshal(types.TelemetrySnapshot{"vel_limit": math.Inf(-1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"vel_limit":"-Infinity"}`, string(data))

	results, err = Decode([]byte(`{"results":` + string(data) + `}`))
	require.NoError(t, err)
	assert.True(t, math.IsInf(results["vel_limit"].(float64), -1))
}

func TestDecodeShapes(t *testing.T) {
	results, err := Decode([]byte(`{"value": 7}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"": 7.0}, results)

	results, err = Decode([]byte(`{"value": null}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"": nil}, results)

	results, err = Decode([]byte(`{"data":{"axis0.pos_estimate":Infinity}}`))
	require.NoError(t, err)
	assert.True(t, math.IsInf(results["axis0.pos_estimate"].(float64), 1))

	results, err = Decode([]byte(`{"results":{"a":{"error":"no such attribute"},"b":{"x":1}}}`))
	require.NoError(t, err)
	assert.Equal(t, ReadFailed, results["a"])
	assert.Equal(t, map[string]any{"x": 1.0}, results["b"])

	for _, body := range []string{`{"results":`, `[]`, `{}`, `{"vbus_voltage":Infinityy}`} {
		_, err := Decode([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedReply, body)
	}
}

func TestBatchWithInfinityToken(t *testing.T) {
	s, backend := newSync(t)
	backend.SetRawBatch(`{"results":{"vbus_voltage":Infinity}}`)

	snapshot, err := s.RefreshAll(context.Background(), []string{"system.vbus_voltage"})
	require.NoError(t, err)
	v, ok := snapshot["system.vbus_voltage"].(float64)
	require.True(t, ok)
	assert.True(t, math.IsInf(v, 1))
}

func TestFetchTranslatesPaths(t *testing.T) {
	s, backend := newSync(t)
	backend.Set("vbus_voltage", 24.0)
	backend.Set("config.dc_bus_overvoltage_trip_level", 56.0)
	backend.Set("axis0.current_state", 1.0)

	snapshot, err := s.Fetch(context.Background(), []string{
		"system.vbus_voltage",
		"system.dc_bus_overvoltage_trip_level",
		"axis0.current_state",
		"axis0.current_state",
		"axis1.current_state",
	})
	require.NoError(t, err)

	assert.Equal(t, types.TelemetrySnapshot{
		"system.vbus_voltage":                  24.0,
		"system.dc_bus_overvoltage_trip_level": 56.0,
		"axis0.current_state":                  1.0,
	}, snapshot)
	assert.Equal(t, 1, backend.BatchCalls())
	assert.Zero(t, s.Store().Len(), "Fetch must not write the store")
}

func TestParseErrorKeepsGoodValues(t *testing.T) {
	s, backend := newSync(t)
	backend.Set("vbus_voltage", 24.0)
	ctx := context.Background()

	_, err := s.RefreshAll(ctx, []string{"system.vbus_voltage"})
	require.NoError(t, err)

	backend.SetRawBatch(`{"results": {"vbus_voltage": 24.`)
	snapshot, err := s.RefreshAll(ctx, []string{"system.vbus_voltage", "axis0.current_state"})
	require.NoError(t, err)
	assert.Equal(t, ParseError, snapshot["system.vbus_voltage"])
	assert.Equal(t, ParseError, snapshot["axis0.current_state"])

	r, ok := s.Store().Get("system.vbus_voltage")
	require.True(t, ok)
	assert.Equal(t, 24.0, r.Value)
	assert.Equal(t, StatusParseError, r.Status)

	values := s.Store().Values(nil)
	assert.Equal(t, types.TelemetrySnapshot{"system.vbus_voltage": 24.0}, values)
}

func TestTransportFailureLeavesStore(t *testing.T) {
	s, backend := newSync(t)
	backend.Set("vbus_voltage", 24.0)
	ctx := context.Background()

	_, err := s.RefreshAll(ctx, []string{"system.vbus_voltage"})
	require.NoError(t, err)

	backend.Server.Close()
	snapshot, err := s.RefreshAll(ctx, []string{"system.vbus_voltage"})
	require.Error(t, err)
	assert.Equal(t, RequestFailed, snapshot["system.vbus_voltage"])

	r, _ := s.Store().Get("system.vbus_voltage")
	assert.Equal(t, StatusOK, r.Status)
	assert.Equal(t, 24.0, r.Value)
}

func TestDisconnectedIsNoop(t *testing.T) {
	backend := odrivetest.NewBackend(t)
	client := odrive.NewClient(backend.URL(), time.Second, zap.NewNop())
	s := NewSynchronizer(client, rules, NewStore(), nil, zap.NewNop())

	snapshot, err := s.RefreshAll(context.Background(), []string{"system.vbus_voltage"})
	assert.ErrorIs(t, err, odrive.ErrNotConnected)
	assert.Nil(t, snapshot)

	_, err = s.RefreshOne(context.Background(), "system.vbus_voltage")
	assert.ErrorIs(t, err, odrive.ErrNotConnected)

	u, err := s.ReadUnified(context.Background(), []string{"system.vbus_voltage"}, nil)
	require.NoError(t, err)
	assert.False(t, u.Connected)
	assert.Empty(t, u.Dashboard)

	assert.Zero(t, backend.BatchCalls())
	assert.Zero(t, s.Store().Len())
}

func TestRefreshOne(t *testing.T) {
	s, backend := newSync(t)
	backend.Set("config.dc_max_positive_current", 10.5)

	v, err := s.RefreshOne(context.Background(), "system.dc_max_positive_current")
	require.NoError(t, err)
	assert.Equal(t, 10.5, v)

	r, ok := s.Store().Get("system.dc_max_positive_current")
	require.True(t, ok)
	assert.Equal(t, 10.5, r.Value)

	_, err = s.RefreshOne(context.Background(), "axis0.missing")
	assert.ErrorIs(t, err, odrive.ErrDevice)
}

func TestReadUnified(t *testing.T) {
	s, backend := newSync(t)
	backend.Set("vbus_voltage", 24.0)
	backend.Set("axis0.pos_estimate", 1.25)

	u, err := s.ReadUnified(context.Background(),
		[]string{"system.vbus_voltage"},
		[]string{"axis0.pos_estimate", "system.vbus_voltage"})
	require.NoError(t, err)

	assert.True(t, u.Connected)
	assert.Equal(t, types.TelemetrySnapshot{"system.vbus_voltage": 24.0}, u.Dashboard)
	assert.Equal(t, types.TelemetrySnapshot{"axis0.pos_estimate": 1.25, "system.vbus_voltage": 24.0}, u.Charts)
	assert.Equal(t, 1, backend.BatchCalls())
}

func TestReadingJSON(t *testing.T) {
	data, err := json.Marshal(Reading{Value: math.Inf(1), Status: StatusOK})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":"Infinity"`)
}

func TestChartsPollerUsesChartsEndpoint(t *testing.T) {
	s, backend := newSync(t)
	backend.Set("axis0.pos_estimate", math.Inf(1))
	backend.Set("vbus_voltage", 24.0)

	charts := NewPoller(ConsumerCharts, time.Hour, s, nil, nil, zap.NewNop())
	charts.SetPaths([]string{"axis0.pos_estimate", "system.vbus_voltage"})
	require.NoError(t, charts.Tick(context.Background()))

	assert.Equal(t, 1, backend.ChartCalls())
	r, ok := s.Store().Get("axis0.pos_estimate")
	require.True(t, ok)
	assert.True(t, math.IsInf(r.Value.(float64), 1))
	r, ok = s.Store().Get("system.vbus_voltage")
	require.True(t, ok)
	assert.Equal(t, 24.0, r.Value)

	dashboard := NewPoller(ConsumerDashboard, time.Hour, s, nil, nil, zap.NewNop())
	dashboard.SetPaths([]string{"system.vbus_voltage"})
	require.NoError(t, dashboard.Tick(context.Background()))
	assert.Equal(t, 1, backend.ChartCalls())
	assert.Equal(t, 2, backend.BatchCalls())
}
