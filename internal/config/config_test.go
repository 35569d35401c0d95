package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "current", cfg.Firmware.Family)
	assert.Equal(t, time.Second, cfg.Telemetry.DashboardInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Telemetry.ChartInterval)
	assert.Equal(t, 1, cfg.Guard.IdleAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Guard.PendingTTL)
	assert.Equal(t, "file", cfg.Presets.Backend)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
firmware:
  family: legacy
telemetry:
  chart_interval: 50ms
  dashboard_paths:
    - system.vbus_voltage
    - axis0.current_state
auth:
  enabled: true
  users:
    - username: bench
      password_hash: "$argon2id$v=19$m=65536,t=1,p=1$c2FsdA$aGFzaA"
      role: technician
`), 0o600))

	t.Setenv("ODG_DEVICE_BASE_URL", "http://10.0.0.7:5000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "legacy", cfg.Firmware.Family)
	assert.Equal(t, 50*time.Millisecond, cfg.Telemetry.ChartInterval)
	assert.Equal(t, []string{"system.vbus_voltage", "axis0.current_state"}, cfg.Telemetry.DashboardPaths)
	assert.Equal(t, "http://10.0.0.7:5000", cfg.Device.BaseURL)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, "technician", cfg.Auth.Users[0].Role)
}

func TestLoadRejectsBadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
presets:
  backend: redis
`), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "presets.backend")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestJWTSecret(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "ODG_TEST_SECRET"}
	assert.False(t, a.IsProductionReady())

	t.Setenv("ODG_TEST_SECRET", "0123456789abcdef0123456789abcdef")
	assert.True(t, a.IsProductionReady())
}
