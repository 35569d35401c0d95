package rest

import (
	"net/http"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/device/status
func (s *Server) getDeviceStatus(c *gin.Context) {
	client := s.lm.Device()
	st, err := client.Status(c.Request.Context())
	if err != nil {
		// Backend nicht erreichbar: letzten bekannten Stand melden
		c.JSON(http.StatusOK, gin.H{
			"status": client.LastStatus(),
			"device": client.Device(),
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": st,
		"device": client.Device(),
	})
}

// GET /api/v1/device/scan
func (s *Server) scanDevices(c *gin.Context) {
	devices, err := s.lm.Device().Scan(c.Request.Context())
	if err != nil {
		fail(c, "DEVICE", "Scan failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

// GET /api/v1/device/axes
func (s *Server) getAxes(c *gin.Context) {
	axes, err := s.lm.Guard().Refresh(c.Request.Context())
	if err != nil {
		fail(c, "DEVICE", "Failed to read axis states", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"axes": axes})
}

// POST /api/v1/device/connect
// Connects to the device with the given serial, or the first one found.
func (s *Server) connectDevice(c *gin.Context) {
	var req struct {
		Serial string `json:"serial"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "DEVICE", err)
			return
		}
	}

	ctx := c.Request.Context()
	client := s.lm.Device()

	devices, err := client.Scan(ctx)
	if err != nil {
		fail(c, "DEVICE", "Scan failed", err)
		return
	}

	var target *odrive.DeviceInfo
	for i := range devices {
		if req.Serial == "" || devices[i].Serial == req.Serial {
			target = &devices[i]
			break
		}
	}
	if target == nil {
		apiError(c, http.StatusNotFound, "DEVICE", "No matching device found", gin.H{
			"serial":  req.Serial,
			"scanned": len(devices),
		})
		return
	}

	if err := client.Connect(ctx, *target); err != nil {
		fail(c, "DEVICE", "Connect failed", err)
		return
	}

	s.logger.Info("Device connected via API", zap.String("serial", target.Serial))
	c.JSON(http.StatusOK, gin.H{
		"connected": true,
		"device":    target,
	})
}

// POST /api/v1/device/disconnect
func (s *Server) disconnectDevice(c *gin.Context) {
	if err := s.lm.Device().Disconnect(c.Request.Context()); err != nil {
		fail(c, "DEVICE", "Disconnect failed", err)
		return
	}

	// Pending actions and cached values belong to the old session
	s.lm.Guard().Discard()
	s.lm.Synchronizer().Store().Clear()

	c.JSON(http.StatusOK, gin.H{"connected": false})
}
