package system

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/config"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/guard"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive/odrivetest"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/telemetry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func newManager(t *testing.T) (*LifecycleManager, *odrivetest.Backend) {
	t.Helper()

	backend := odrivetest.NewBackend(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Device.BaseURL = backend.URL()
	cfg.Device.StatusInterval = time.Hour
	cfg.Presets.Backend = "memory"
	cfg.Telemetry.ChartPaths = []string{"axis0.encoder.pos_estimate"}

	lm, err := NewLifecycleManager(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	return lm, backend
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to SystemState
		ok       bool
	}{
		{StateInitializing, StateRunning, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateStopped, StateRunning, false},
		{StateRunning, StateInitializing, false},
		{SystemState(42), StateRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestNewManagerStatus(t *testing.T) {
	lm, _ := newManager(t)

	st := lm.GetCurrentStatus()
	assert.Equal(t, "INITIALIZING", st.State)
	assert.Equal(t, "current", st.Family)
	assert.Equal(t, "0.6.11", st.Firmware)
	assert.False(t, st.Connected)
	assert.Equal(t, string(guard.StateReady), st.GuardState)
	assert.Equal(t, 3, st.Presets, "factory presets")
}

func TestRejectsUnknownFamily(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Presets.Backend = "memory"
	cfg.Firmware.Family = "0.4.1"

	_, err = NewLifecycleManager(context.Background(), cfg, zap.NewNop())
	assert.ErrorIs(t, err, variant.ErrUnknownFamily)
}

func TestFirmwareSwitchResetsTelemetry(t *testing.T) {
	lm, _ := newManager(t)
	t.Cleanup(lm.pollers.StopAll)

	_, err := lm.pollers.Configure(telemetry.ConsumerDashboard, []string{"system.vbus_voltage"}, time.Hour)
	require.NoError(t, err)
	lm.synchronizer.Store().Apply(types.TelemetrySnapshot{"system.vbus_voltage": 24.0})

	_, err = lm.firmware.Set(variant.Legacy)
	require.NoError(t, err)

	assert.Zero(t, lm.synchronizer.Store().Len())
	p, ok := lm.pollers.Get(telemetry.ConsumerDashboard)
	require.True(t, ok)
	assert.Equal(t, lm.firmware.Bundle().Registry.BatchPaths(), p.Paths())
}

func TestConnectionLossClearsState(t *testing.T) {
	lm, backend := newManager(t)
	ctx := context.Background()

	require.NoError(t, lm.client.Connect(ctx, odrive.DeviceInfo{Serial: "3A6B2C1D"}))
	backend.Set("axis0.current_state", 8.0)
	backend.Set("axis1.current_state", 1.0)

	lm.monitor.Refresh(ctx)
	assert.Equal(t, 8, lm.guard.Axes()[0], "axis snapshot refreshed while connected")

	_, err := lm.guard.ExecuteGuarded(ctx, "apply_config", func(ctx context.Context) (any, error) { return nil, nil })
	require.ErrorIs(t, err, guard.ErrActionPending)
	lm.synchronizer.Store().Apply(types.TelemetrySnapshot{"system.vbus_voltage": 24.0})

	backend.SetConnected(false)
	lm.monitor.Refresh(ctx)

	assert.False(t, lm.client.IsConnected())
	assert.Nil(t, lm.guard.Status().Pending)
	assert.Zero(t, lm.synchronizer.Store().Len())
}

func TestStartAndShutdown(t *testing.T) {
	lm, _ := newManager(t)

	require.NoError(t, lm.Start(context.Background()))
	assert.Equal(t, StateRunning, lm.State())

	consumers := lm.pollers.List()
	require.Len(t, consumers, 2)
	assert.Equal(t, telemetry.ConsumerCharts, consumers[0].Consumer)
	assert.Equal(t, telemetry.ConsumerDashboard, consumers[1].Consumer)
	assert.NotEmpty(t, consumers[1].Paths)

	w := httptest.NewRecorder()
	lm.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "odrive_gateway_device_connected")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lm.Shutdown(ctx))
	assert.Equal(t, StateStopped, lm.State())
	assert.False(t, lm.monitor.IsRunning())
	for _, c := range lm.pollers.List() {
		assert.False(t, c.Running)
	}
}
