package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Device    DeviceConfig    `mapstructure:"device"`
	Firmware  FirmwareConfig  `mapstructure:"firmware"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Presets   PresetsConfig   `mapstructure:"presets"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// DeviceConfig points at the backend that owns the USB connection.
type DeviceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
	// AutoConnect connects to Serial (or the first scanned device) at start.
	AutoConnect bool   `mapstructure:"auto_connect"`
	Serial      string `mapstructure:"serial"`
}

type FirmwareConfig struct {
	Family      string   `mapstructure:"family"`
	SchemaPaths []string `mapstructure:"schema_paths"`
}

type TelemetryConfig struct {
	DashboardInterval time.Duration `mapstructure:"dashboard_interval"`
	ChartInterval     time.Duration `mapstructure:"chart_interval"`
	DashboardPaths    []string      `mapstructure:"dashboard_paths"`
	ChartPaths        []string      `mapstructure:"chart_paths"`
}

type GuardConfig struct {
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	IdleAttempts int           `mapstructure:"idle_attempts"`
	PendingTTL   time.Duration `mapstructure:"pending_ttl"`
}

type PresetsConfig struct {
	Backend string `mapstructure:"backend"`
	File    string `mapstructure:"file"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	JWTSecretEnv   string         `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration  `mapstructure:"access_token_ttl"`
	Users          []UserConfig   `mapstructure:"users"`
	APITokens      []APITokenSpec `mapstructure:"api_tokens"`
}

// UserConfig is an operator account. PasswordHash is an argon2id hash.
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// APITokenSpec grants a role to the holder of a token; only the SHA-256
// hash of the token is configured.
type APITokenSpec struct {
	Name      string `mapstructure:"name"`
	TokenHash string `mapstructure:"token_hash"`
	Role      string `mapstructure:"role"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads the YAML file at path on top of the defaults. An empty path
// runs on defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults setzen
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("device.base_url", "http://127.0.0.1:5000")
	v.SetDefault("device.request_timeout", "3s")
	v.SetDefault("device.status_interval", "2s")
	v.SetDefault("device.auto_connect", false)
	v.SetDefault("device.serial", "")

	v.SetDefault("firmware.family", "current")
	v.SetDefault("firmware.schema_paths", []string{})

	v.SetDefault("telemetry.dashboard_interval", "1s")
	v.SetDefault("telemetry.chart_interval", "100ms")
	v.SetDefault("telemetry.dashboard_paths", []string{})
	v.SetDefault("telemetry.chart_paths", []string{})

	v.SetDefault("guard.settle_delay", "500ms")
	v.SetDefault("guard.idle_attempts", 1)
	v.SetDefault("guard.pending_ttl", "2m")

	v.SetDefault("presets.backend", "file")
	v.SetDefault("presets.file", "data/presets.json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "odrive_gateway")
	v.SetDefault("database.user", "odrive")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 4)

	// Auth Defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret_env", "ODG_JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	// Environment Variables mit Prefix ODG_, z.B. ODG_DEVICE_BASE_URL
	v.SetEnvPrefix("ODG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be positive"))
	}
	if c.Device.BaseURL == "" {
		errs = append(errs, fmt.Errorf("device.base_url is required"))
	}
	if c.Telemetry.DashboardInterval <= 0 || c.Telemetry.ChartInterval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry intervals must be positive"))
	}
	switch c.Presets.Backend {
	case "file", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("presets.backend %q is not one of file, postgres, memory", c.Presets.Backend))
	}
	if c.Presets.Backend == "file" && c.Presets.File == "" {
		errs = append(errs, fmt.Errorf("presets.file is required for the file backend"))
	}
	return errors.Join(errs...)
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "ODG_JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devJWTSecret
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32
}
