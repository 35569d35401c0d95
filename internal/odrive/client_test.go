package odrive_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive/odrivetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func connected(t *testing.T) (*odrive.Client, *odrivetest.Backend) {
	t.Helper()
	backend := odrivetest.NewBackend(t)
	client := odrive.NewClient(backend.URL(), time.Second, zap.NewNop())

	devices, err := client.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.NoError(t, client.Connect(context.Background(), devices[0]))
	return client, backend
}

func TestClientRequiresConnection(t *testing.T) {
	backend := odrivetest.NewBackend(t)
	client := odrive.NewClient(backend.URL(), time.Second, zap.NewNop())
	ctx := context.Background()

	_, err := client.ReadProperty(ctx, "vbus_voltage")
	assert.ErrorIs(t, err, odrive.ErrNotConnected)
	_, err = client.ReadProperties(ctx, []string{"vbus_voltage"})
	assert.ErrorIs(t, err, odrive.ErrNotConnected)
	assert.ErrorIs(t, client.WriteProperty(ctx, "config.dc_max_positive_current", 10), odrive.ErrNotConnected)
	_, err = client.ExecuteCommand(ctx, "odrv0.reboot()")
	assert.ErrorIs(t, err, odrive.ErrNotConnected)

	assert.Empty(t, backend.Commands())
}

func TestClientConnectAndStatus(t *testing.T) {
	client, backend := connected(t)
	ctx := context.Background()

	assert.True(t, client.IsConnected())
	require.NotNil(t, client.Device())
	assert.Equal(t, "3A6B2C1D", client.Device().Serial)

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "3A6B2C1D", st.DeviceSerial)

	// the backend lost the device
	backend.SetConnected(false)
	st, err = client.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.False(t, client.IsConnected())

	require.NoError(t, client.Disconnect(ctx))
	assert.Nil(t, client.Device())
}

func TestClientReadsRawBodies(t *testing.T) {
	client, backend := connected(t)
	backend.Set("vbus_voltage", 24.1)

	body, err := client.ReadProperties(context.Background(), []string{"vbus_voltage"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":{"vbus_voltage":24.1}}`, string(body))

	body, err = client.ReadProperty(context.Background(), "vbus_voltage")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":24.1}`, string(body))
}

func TestClientCommandErrors(t *testing.T) {
	client, backend := connected(t)
	backend.OnCommand(func(cmd string) (any, string, bool) {
		if cmd == "odrv0.bogus()" {
			return nil, "name 'bogus' is not defined", true
		}
		return "done", "", true
	})

	result, err := client.ExecuteCommand(context.Background(), "odrv0.save_configuration()")
	require.NoError(t, err)
	assert.Equal(t, "done", result)

	_, err = client.ExecuteCommand(context.Background(), "odrv0.bogus()")
	require.ErrorIs(t, err, odrive.ErrDevice)
	assert.Contains(t, err.Error(), "bogus")
}

func TestClientWriteProperty(t *testing.T) {
	client, backend := connected(t)
	ctx := context.Background()

	require.NoError(t, client.WriteProperty(ctx, "axis0.config.motor.pole_pairs", 7))
	v, ok := backend.Value("axis0.config.motor.pole_pairs")
	require.True(t, ok)
	assert.Equal(t, 7.0, v)

	backend.FailPath("axis0.config.motor.motor_type", "Property not writable")
	err := client.WriteProperty(ctx, "axis0.config.motor.motor_type", 2)
	assert.ErrorIs(t, err, odrive.ErrDevice)
}

func TestClientUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := odrive.NewClient(srv.URL, time.Second, zap.NewNop())
	_, err := client.Status(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, odrive.ErrDevice)
}

func TestMonitorRefresh(t *testing.T) {
	client, backend := connected(t)
	monitor := odrive.NewMonitor(client, 50*time.Millisecond, nil, zap.NewNop())

	var seen []bool
	monitor.OnStatus(func(_ context.Context, st odrive.Status, err error) {
		require.NoError(t, err)
		seen = append(seen, st.Connected)
	})

	monitor.Refresh(context.Background())
	backend.SetConnected(false)
	monitor.Refresh(context.Background())

	assert.Equal(t, []bool{true, false}, seen)
	assert.False(t, client.IsConnected())

	require.NoError(t, monitor.Start())
	assert.True(t, monitor.IsRunning())
	monitor.Stop()
	assert.False(t, monitor.IsRunning())
}
