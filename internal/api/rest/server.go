package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/api/websocket"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/auth"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/config"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
	metrics     http.Handler
}

// NewServer wires the routes. metricsHandler may be nil.
func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService, metricsHandler http.Handler) *Server {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
		metrics:     metricsHandler,
	}

	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes(cfg *config.Config) {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)
	if s.metrics != nil && cfg.Metrics.Enabled {
		s.router.GET(cfg.Metrics.Path, gin.WrapH(s.metrics))
	}

	operator := auth.RequireRole(auth.RoleOperator)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)

		// ==================== AUTH (PUBLIC) ====================
		v1.POST("/auth/login", s.login)

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		v1.GET("/ws", s.wsLiveConnection)

		api := v1.Group("")
		api.Use(s.authService.AuthMiddleware())

		api.GET("/auth/me", s.getCurrentUser)
		api.GET("/status", s.getSystemStatus)

		// ==================== FIRMWARE ====================
		api.GET("/firmware", s.getFirmware)
		api.PUT("/firmware", operator, s.setFirmware)

		// ==================== SCHEMA & REGISTRY ====================
		api.GET("/schema", s.getSchema)
		registry := api.Group("/registry")
		{
			registry.GET("/categories", s.getCategories)
			registry.GET("/batch-paths", s.getBatchPaths)
			registry.GET("/lookup", s.lookupPath)
			registry.GET("/parameters/:category/:key", s.getParameter)
			registry.GET("/mappings", s.getMappings)
			registry.GET("/collisions", s.getCollisions)
			registry.GET("/groups", s.getGroups)
			registry.GET("/debug", s.getRegistryDebug)
		}

		// ==================== CONFIG ====================
		cfgGroup := api.Group("/config")
		{
			cfgGroup.POST("/commands", s.previewCommands)
			cfgGroup.POST("/validate", s.validateConfig)
			cfgGroup.POST("/apply", operator, s.applyConfig)
			cfgGroup.GET("/read", s.readConfig)
		}

		// ==================== COMMANDS ====================
		api.GET("/commands", s.listCommands)
		// reboot/erase brauchen zusätzlich technician, siehe executeCommand
		api.POST("/commands/execute", operator, s.executeCommand)

		// ==================== DEVICE ====================
		device := api.Group("/device")
		{
			device.GET("/status", s.getDeviceStatus)
			device.GET("/scan", s.scanDevices)
			device.GET("/axes", s.getAxes)
			device.POST("/connect", operator, s.connectDevice)
			device.POST("/disconnect", operator, s.disconnectDevice)
		}

		// ==================== PROPERTIES ====================
		api.POST("/property/read", s.readProperty)
		api.POST("/property/write", operator, s.writeProperty)

		// ==================== TELEMETRY ====================
		tel := api.Group("/telemetry")
		{
			tel.GET("/snapshot", s.getSnapshot)
			tel.POST("", s.readTelemetry)
			tel.POST("/refresh", s.refreshTelemetry)
			tel.GET("/consumers", s.listConsumers)
			tel.PUT("/consumers/:consumer", operator, s.configureConsumer)
			tel.DELETE("/consumers/:consumer", operator, s.removeConsumer)
		}

		// ==================== PRESETS ====================
		presets := api.Group("/presets")
		{
			presets.GET("", s.listPresets)
			presets.GET("/export", s.exportPresets)
			presets.GET("/:name", s.getPreset)
			presets.GET("/:name/coverage", s.getPresetCoverage)
			presets.POST("", operator, s.savePreset)
			presets.POST("/import", operator, s.importPresets)
			presets.PUT("/:name", operator, s.renamePreset)
			presets.DELETE("/:name", operator, s.deletePreset)
			presets.POST("/:name/upgrade", operator, s.upgradePreset)
			presets.POST("/:name/apply", operator, s.applyPreset)
		}

		// ==================== GUARD ====================
		api.GET("/guard", s.getGuard)
		api.POST("/guard/:id/resolve", operator, s.resolveGuard)
	}
}

// WebSocket handler
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"connected": s.lm.Device().IsConnected(),
		"timestamp": time.Now().Unix(),
	})
}
