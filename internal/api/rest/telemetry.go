package rest

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/telemetry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/telemetry/snapshot?paths=a,b
// Serves cached values only; nothing is read from the device.
func (s *Server) getSnapshot(c *gin.Context) {
	store := s.lm.Synchronizer().Store()

	if raw := c.Query("paths"); raw != "" {
		c.JSON(http.StatusOK, gin.H{
			"values": store.Values(strings.Split(raw, ",")),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"readings": store.Readings(),
		"count":    store.Len(),
	})
}

type telemetryRequest struct {
	Type           string   `json:"type"`
	Paths          []string `json:"paths"`
	DashboardPaths []string `json:"dashboard_paths"`
	ChartPaths     []string `json:"chart_paths"`
}

// POST /api/v1/telemetry
// {type:"unified"} answers split per consumer, otherwise flat. Callers have
// to check connected before trusting the values.
func (s *Server) readTelemetry(c *gin.Context) {
	var req telemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "TELEMETRY", err)
		return
	}

	ctx := c.Request.Context()
	sync := s.lm.Synchronizer()

	if req.Type == "unified" {
		unified, err := sync.ReadUnified(ctx, req.DashboardPaths, req.ChartPaths)
		if err != nil {
			fail(c, "TELEMETRY", "Telemetry read failed", err)
			return
		}
		c.JSON(http.StatusOK, unified)
		return
	}

	resp := gin.H{
		"data":      types.TelemetrySnapshot{},
		"connected": sync.IsConnected(),
		"timestamp": time.Now().UTC(),
	}
	if !sync.IsConnected() {
		c.JSON(http.StatusOK, resp)
		return
	}

	values, err := sync.RefreshAll(ctx, req.Paths)
	if err != nil {
		fail(c, "TELEMETRY", "Telemetry read failed", err)
		return
	}
	resp["data"] = values
	c.JSON(http.StatusOK, resp)
}

// POST /api/v1/telemetry/refresh
func (s *Server) refreshTelemetry(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "TELEMETRY", err)
		return
	}

	value, err := s.lm.Synchronizer().RefreshOne(c.Request.Context(), req.Path)
	if err != nil {
		fail(c, "TELEMETRY", "Refresh failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"path":  req.Path,
		"value": types.JSONValue(value),
	})
}

// GET /api/v1/telemetry/consumers
func (s *Server) listConsumers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"consumers": s.lm.Pollers().List()})
}

type consumerRequest struct {
	Paths    []string `json:"paths"`
	Interval string   `json:"interval" binding:"required"` // e.g. "250ms"
}

// PUT /api/v1/telemetry/consumers/:consumer
func (s *Server) configureConsumer(c *gin.Context) {
	var req consumerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "TELEMETRY", err)
		return
	}

	interval, err := time.ParseDuration(req.Interval)
	if err != nil {
		badRequest(c, "TELEMETRY", fmt.Errorf("interval: %w", err))
		return
	}

	p, err := s.lm.Pollers().Configure(c.Param("consumer"), req.Paths, interval)
	if err != nil {
		fail(c, "TELEMETRY", "Failed to configure consumer", err)
		return
	}
	c.JSON(http.StatusOK, telemetry.ConsumerInfo{
		Consumer: p.Consumer(),
		Interval: p.Interval(),
		Paths:    p.Paths(),
		Running:  p.IsRunning(),
	})
}

// DELETE /api/v1/telemetry/consumers/:consumer
func (s *Server) removeConsumer(c *gin.Context) {
	consumer := c.Param("consumer")
	if !s.lm.Pollers().Remove(consumer) {
		apiError(c, http.StatusNotFound, "TELEMETRY", "Consumer not found", consumer)
		return
	}
	c.Status(http.StatusNoContent)
}
