package rest

import (
	"context"
	"net/http"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/commands"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type configRequest struct {
	Config types.ConfigObject `json:"config" binding:"required"`
	Axis   *int               `json:"axis"`
	Save   bool               `json:"save"`
}

// POST /api/v1/config/commands
// Renders the command list without touching the device.
func (s *Server) previewCommands(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "CONFIG", err)
		return
	}

	cmds := s.lm.Synthesizer().Synthesize(req.Config, req.Axis)
	c.JSON(http.StatusOK, gin.H{
		"commands": cmds,
		"count":    len(cmds),
	})
}

// POST /api/v1/config/validate
func (s *Server) validateConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "CONFIG", err)
		return
	}
	c.JSON(http.StatusOK, s.registry().ValidateConfigObject(req.Config))
}

// POST /api/v1/config/apply
func (s *Server) applyConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "CONFIG", err)
		return
	}

	if res := s.registry().ValidateConfigObject(req.Config); !res.Valid {
		apiError(c, http.StatusBadRequest, "CONFIG", "Configuration is invalid", res)
		return
	}

	result, err := s.applyGuarded(c.Request.Context(), "apply_config", req.Config, commands.ApplyOptions{
		Axis: req.Axis,
		Save: req.Save,
	})
	respondGuarded(c, "CONFIG", result, err)
}

// applyGuarded runs an apply behind the axis guard. A partial report is
// passed on together with the error.
func (s *Server) applyGuarded(ctx context.Context, name string, cfg types.ConfigObject, opts commands.ApplyOptions) (any, error) {
	synth := s.lm.Synthesizer()
	result, err := s.lm.Guard().ExecuteGuarded(ctx, name, func(ctx context.Context) (any, error) {
		report, err := synth.Apply(ctx, cfg, opts)
		if report == nil {
			return nil, err
		}
		return report, err
	})
	if err != nil {
		s.logger.Warn("Guarded apply did not complete", zap.String("action", name), zap.Error(err))
	}
	return result, err
}

// GET /api/v1/config/read?axis=0
func (s *Server) readConfig(c *gin.Context) {
	axis, err := queryAxis(c)
	if err != nil {
		badRequest(c, "CONFIG", err)
		return
	}

	cfg, err := s.lm.Synthesizer().ReadConfig(c.Request.Context(), axis)
	if err != nil {
		fail(c, "CONFIG", "Failed to read configuration", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"config": cfg,
		"count":  cfg.Count(),
	})
}
