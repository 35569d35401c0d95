package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/schema"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errReadOnly = errors.New("property is read-only")

type readPropertyRequest struct {
	Path  string   `json:"path"`
	Paths []string `json:"paths"`
}

// POST /api/v1/property/read
// Reads one path (answered with value) or many (answered with values).
func (s *Server) readProperty(c *gin.Context) {
	var req readPropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "PROPERTY", err)
		return
	}

	ctx := c.Request.Context()
	sync := s.lm.Synchronizer()

	if len(req.Paths) > 0 {
		values, err := sync.RefreshAll(ctx, req.Paths)
		if err != nil {
			fail(c, "PROPERTY", "Failed to read properties", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"values": values})
		return
	}

	value, err := sync.RefreshOne(ctx, req.Path)
	if err != nil {
		fail(c, "PROPERTY", "Failed to read property", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"path":  req.Path,
		"value": types.JSONValue(value),
	})
}

type writePropertyRequest struct {
	Path  string `json:"path" binding:"required"`
	Value any    `json:"value"`
}

// POST /api/v1/property/write
// Writes one value and reads it back.
func (s *Server) writeProperty(c *gin.Context) {
	var req writePropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "PROPERTY", err)
		return
	}

	reg := s.registry()
	node, err := reg.Lookup(req.Path)
	if err != nil {
		fail(c, "PROPERTY", "Unknown property", err)
		return
	}
	if !node.Writable || node.Type == schema.KindObject {
		apiError(c, http.StatusBadRequest, "PROPERTY", "Property cannot be written",
			fmt.Sprintf("%s: %v", req.Path, errReadOnly))
		return
	}

	ctx := c.Request.Context()
	devicePath := reg.Rules().DeviceString(req.Path)
	if err := s.lm.Device().WriteProperty(ctx, devicePath, req.Value); err != nil {
		fail(c, "PROPERTY", "Failed to write property", err)
		return
	}

	s.logger.Info("Property written",
		zap.String("path", req.Path),
		zap.String("device_path", devicePath),
		zap.Any("value", req.Value))

	resp := gin.H{"path": req.Path, "written": req.Value}
	value, err := s.lm.Synchronizer().RefreshOne(ctx, req.Path)
	if err != nil {
		resp["readback_error"] = err.Error()
	} else {
		resp["value"] = types.JSONValue(value)
	}
	c.JSON(http.StatusOK, resp)
}
