package rest

import (
	"context"
	"net/http"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/auth"
	"github.com/gin-gonic/gin"
)

// Commands that need a technician on top of the operator role.
var technicianCommands = map[string]bool{
	"reboot":              true,
	"erase_configuration": true,
}

// GET /api/v1/commands
func (s *Server) listCommands(c *gin.Context) {
	entries := s.lm.Synthesizer().Catalogue()
	c.JSON(http.StatusOK, gin.H{
		"commands": entries,
		"count":    len(entries),
	})
}

type executeRequest struct {
	ID   string `json:"id" binding:"required"`
	Axis *int   `json:"axis"`
}

// POST /api/v1/commands/execute
func (s *Server) executeCommand(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "COMMAND", err)
		return
	}

	if technicianCommands[req.ID] && !requireRole(c, auth.RoleTechnician) {
		return
	}

	synth := s.lm.Synthesizer()
	if _, err := synth.Static(req.ID, req.Axis); err != nil {
		fail(c, "COMMAND", "Cannot render command", err)
		return
	}

	run := func(ctx context.Context) (any, error) {
		command, result, err := synth.Execute(ctx, req.ID, req.Axis)
		if err != nil {
			return nil, err
		}
		return gin.H{"command": command, "result": result}, nil
	}

	if synth.Risky(req.ID) {
		result, err := s.lm.Guard().ExecuteGuarded(c.Request.Context(), req.ID, run)
		respondGuarded(c, "COMMAND", result, err)
		return
	}

	result, err := run(c.Request.Context())
	respondGuarded(c, "COMMAND", result, err)
}
