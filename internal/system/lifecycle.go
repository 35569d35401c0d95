package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/api/rest"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/api/websocket"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/auth"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/commands"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/config"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/guard"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/interfaces"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/metrics"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/paths"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/presets"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/registry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/storage"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/telemetry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/variant"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger

	metrics        metrics.Collector
	metricsHandler http.Handler

	firmware     *variant.Active
	client       *odrive.Client
	monitor      *odrive.Monitor
	synchronizer *telemetry.Synchronizer
	streamer     *telemetry.Streamer
	pollers      *telemetry.Pollers
	guard        *guard.Guard
	synth        *commands.Synthesizer
	presets      *presets.Store
	db           *storage.PostgresClient // nur bei presets.backend=postgres

	authService *auth.AuthService
	wsHub       *websocket.Hub
	restServer  *rest.Server
	grpcServer  *grpc.Server

	wasConnected atomic.Bool

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string

	shutdownOnce sync.Once
}

// NewLifecycleManager builds every component. Nothing is started and no
// port is opened until Start.
func NewLifecycleManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		currentState: StateInitializing,
	}

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewPrometheusCollector(promRegistry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	lm.metrics = collector
	lm.metricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	// Firmware family
	selector, err := variant.NewSelector(cfg.Firmware.SchemaPaths, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create variant selector: %w", err)
	}
	// Schema-Fehler sind Programmierfehler: beim Start scheitern
	if err := selector.Preload(); err != nil {
		return nil, fmt.Errorf("failed to load property schemas: %w", err)
	}
	family, err := variant.ParseFamily(cfg.Firmware.Family)
	if err != nil {
		return nil, err
	}
	lm.firmware, err = variant.NewActive(selector, family, logger)
	if err != nil {
		return nil, err
	}

	reg := func() *registry.Registry { return lm.firmware.Bundle().Registry }
	rules := func() paths.Rules { return lm.firmware.Bundle().Rules }

	// Device transport
	lm.client = odrive.NewClient(cfg.Device.BaseURL, cfg.Device.RequestTimeout, logger.Named("odrive"))
	lm.monitor = odrive.NewMonitor(lm.client, cfg.Device.StatusInterval, collector, logger.Named("monitor"))

	// Telemetry
	lm.synchronizer = telemetry.NewSynchronizer(lm.client, rules, telemetry.NewStore(), collector, logger.Named("telemetry"))
	lm.streamer = telemetry.NewStreamer()
	lm.pollers = telemetry.NewPollers(lm.synchronizer, lm.streamer, collector, logger.Named("poller"))

	// Guard and commands
	lm.guard = guard.New(lm.synchronizer, lm.client, reg, guard.Config{
		SettleDelay:  cfg.Guard.SettleDelay,
		IdleAttempts: cfg.Guard.IdleAttempts,
		PendingTTL:   cfg.Guard.PendingTTL,
	}, collector, logger.Named("guard"))
	lm.synth = commands.New(reg, lm.client, lm.synchronizer, collector, logger.Named("commands"))

	// Presets
	persistence, err := lm.presetPersistence(ctx)
	if err != nil {
		return nil, err
	}
	lm.presets, err = presets.NewStore(persistence, logger.Named("presets"))
	if err != nil {
		lm.closeDB()
		return nil, err
	}
	if err := lm.presets.Open(ctx); err != nil {
		lm.closeDB()
		return nil, fmt.Errorf("failed to open preset store: %w", err)
	}

	// API surfaces
	lm.authService = auth.NewAuthService(cfg.Auth, logger.Named("auth"))
	lm.wsHub = websocket.NewHub(logger.Named("websocket"), lm.authService)
	lm.restServer = rest.NewServer(cfg, lm, logger.Named("rest"), lm.wsHub, lm.authService, lm.metricsHandler)

	lm.wireEvents()
	return lm, nil
}

func (lm *LifecycleManager) presetPersistence(ctx context.Context) (presets.Persistence, error) {
	switch lm.config.Presets.Backend {
	case "memory":
		return presets.NewMemoryPersistence(), nil

	case "postgres":
		db, err := storage.NewPostgresClient(ctx, lm.config.Database)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		lm.db = db
		lm.logger.Info("Presets stored in PostgreSQL",
			zap.String("host", lm.config.Database.Host),
			zap.String("database", lm.config.Database.Database))
		return storage.NewPresetRepository(db), nil

	default:
		lm.logger.Info("Presets stored in file", zap.String("path", lm.config.Presets.File))
		return presets.NewFilePersistence(lm.config.Presets.File), nil
	}
}

// wireEvents connects the change hooks of the components.
func (lm *LifecycleManager) wireEvents() {
	lm.guard.OnChange(func(st guard.Status) {
		lm.wsHub.Broadcast(websocket.NewGuardMessage(st))
	})

	lm.firmware.OnChange(func(b *variant.Bundle) {
		// Pfade, Werte und offene Aktionen gehören zur alten Familie
		lm.pollers.ResetPaths(lm.defaultPaths)
		lm.synchronizer.Store().Clear()
		lm.guard.Discard()
		lm.wsHub.Broadcast(websocket.NewFirmwareMessage(string(b.Family), b.Schema.Firmware()))
	})

	lm.monitor.OnStatus(lm.onDeviceStatus)
}

func (lm *LifecycleManager) onDeviceStatus(ctx context.Context, st odrive.Status, err error) {
	lm.wsHub.Broadcast(websocket.NewConnectionMessage(st, err))
	if err != nil {
		return
	}

	was := lm.wasConnected.Swap(st.Connected)
	if was && !st.Connected {
		lm.logger.Warn("Device connection lost", zap.Bool("connection_lost", st.ConnectionLost))
		lm.guard.Discard()
		lm.synchronizer.Store().Clear()
		return
	}

	if st.Connected && !st.IsRebooting {
		if _, err := lm.guard.Refresh(ctx); err != nil {
			lm.logger.Debug("Axis state refresh failed", zap.Error(err))
		}
	}
}

// defaultPaths is the path set a consumer starts with for the active family.
func (lm *LifecycleManager) defaultPaths(consumer string) []string {
	switch consumer {
	case telemetry.ConsumerDashboard:
		if len(lm.config.Telemetry.DashboardPaths) > 0 {
			return lm.config.Telemetry.DashboardPaths
		}
		return lm.firmware.Bundle().Registry.BatchPaths()
	case telemetry.ConsumerCharts:
		return lm.config.Telemetry.ChartPaths
	}
	return nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting ODrive gateway",
		zap.String("family", string(lm.firmware.Family())),
		zap.String("device_backend", lm.config.Device.BaseURL))

	go lm.wsHub.Run()
	go lm.wsHub.ForwardTelemetry(lm.streamer)

	if lm.config.Device.AutoConnect {
		if err := lm.autoConnect(ctx); err != nil {
			// Kein Abbruch, das Gerät kann später über die API verbunden werden
			lm.logger.Warn("Auto connect failed", zap.Error(err))
		}
	}

	if err := lm.monitor.Start(); err != nil {
		lm.setError(err)
		return err
	}

	if _, err := lm.pollers.Configure(telemetry.ConsumerDashboard,
		lm.defaultPaths(telemetry.ConsumerDashboard), lm.config.Telemetry.DashboardInterval); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to start dashboard poller: %w", err)
	}
	if chart := lm.defaultPaths(telemetry.ConsumerCharts); len(chart) > 0 {
		if _, err := lm.pollers.Configure(telemetry.ConsumerCharts, chart, lm.config.Telemetry.ChartInterval); err != nil {
			lm.setError(err)
			return fmt.Errorf("failed to start chart poller: %w", err)
		}
	}

	if err := lm.restServer.Start(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	if lm.config.GRPC.Enabled {
		if err := lm.startGRPCServer(); err != nil {
			lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
			return err
		}
	}

	lm.setState(StateRunning)
	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.Port),
		zap.Bool("grpc_enabled", lm.config.GRPC.Enabled),
		zap.Bool("auth_enabled", lm.config.Auth.Enabled))
	return nil
}

func (lm *LifecycleManager) autoConnect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	devices, err := lm.client.Scan(ctx)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if lm.config.Device.Serial == "" || d.Serial == lm.config.Device.Serial {
			if err := lm.client.Connect(ctx, d); err != nil {
				return err
			}
			lm.wasConnected.Store(true)
			return nil
		}
	}
	return fmt.Errorf("no device with serial %q among %d found", lm.config.Device.Serial, len(devices))
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.GRPC.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	telemetry.RegisterTelemetryServer(lm.grpcServer, telemetry.NewTelemetryService(lm.streamer, lm.synchronizer))

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.GRPC.Port),
			zap.String("services", "TelemetryService"))
		if err := lm.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops everything in reverse start order.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	// 1. Surfaces
	if lm.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			lm.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			lm.logger.Warn("gRPC shutdown timeout, forcing stop")
			lm.grpcServer.Stop()
		}
	}
	if err := lm.restServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
	}

	// 2. Polling
	lm.pollers.StopAll()
	lm.monitor.Stop()
	lm.guard.Discard()

	// 3. Fan-out
	lm.wsHub.Stop()

	// 4. Storage
	lm.closeDB()

	if ctx.Err() != nil {
		errs = append(errs, fmt.Errorf("shutdown timeout exceeded: %w", ctx.Err()))
	}
	if len(errs) == 0 {
		lm.logger.Info("Graceful shutdown completed")
	}
	return errors.Join(errs...)
}

func (lm *LifecycleManager) closeDB() {
	if lm.db != nil {
		lm.db.Close()
		lm.db = nil
	}
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
	lm.lastError = err.Error()
	lm.logger.Error("System error", zap.Error(err))
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// Accessors used by the API layer.
func (lm *LifecycleManager) Config() *config.Config                { return lm.config }
func (lm *LifecycleManager) Firmware() *variant.Active             { return lm.firmware }
func (lm *LifecycleManager) Device() *odrive.Client                { return lm.client }
func (lm *LifecycleManager) Synchronizer() *telemetry.Synchronizer { return lm.synchronizer }
func (lm *LifecycleManager) Pollers() *telemetry.Pollers           { return lm.pollers }
func (lm *LifecycleManager) Guard() *guard.Guard                   { return lm.guard }
func (lm *LifecycleManager) Synthesizer() *commands.Synthesizer    { return lm.synth }
func (lm *LifecycleManager) Presets() *presets.Store               { return lm.presets }
func (lm *LifecycleManager) Handler() http.Handler                 { return lm.restServer.Handler() }

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	b := lm.firmware.Bundle()
	status := interfaces.SystemStatus{
		State:      state.String(),
		Family:     string(b.Family),
		Firmware:   b.Schema.Firmware(),
		Connected:  lm.client.IsConnected(),
		GuardState: string(lm.guard.Status().State),
		Consumers:  len(lm.pollers.List()),
		Presets:    len(lm.presets.List()),
	}
	if d := lm.client.Device(); d != nil {
		status.DeviceSerial = d.Serial
	}
	return status
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)
