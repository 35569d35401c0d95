package rest

import (
	"net/http"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/variant"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/status
func (s *Server) getSystemStatus(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	c.JSON(http.StatusOK, status)
}

func firmwareInfo(b *variant.Bundle) gin.H {
	return gin.H{
		"family":   b.Family,
		"firmware": b.Schema.Firmware(),
		"device":   b.Schema.Device(),
		"axes":     b.Schema.AxisCount(),
		"families": variant.Families,
	}
}

// GET /api/v1/firmware
func (s *Server) getFirmware(c *gin.Context) {
	c.JSON(http.StatusOK, firmwareInfo(s.lm.Firmware().Bundle()))
}

// PUT /api/v1/firmware
// Accepts a family name or a firmware version string.
func (s *Server) setFirmware(c *gin.Context) {
	var req struct {
		Family string `json:"family" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "FIRMWARE", err)
		return
	}

	family, err := variant.ParseFamily(req.Family)
	if err != nil {
		fail(c, "FIRMWARE", "Unknown firmware family", err)
		return
	}

	b, err := s.lm.Firmware().Set(family)
	if err != nil {
		fail(c, "FIRMWARE", "Failed to switch firmware family", err)
		return
	}
	c.JSON(http.StatusOK, firmwareInfo(b))
}
