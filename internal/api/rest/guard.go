package rest

import (
	"net/http"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/guard"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GET /api/v1/guard
func (s *Server) getGuard(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Guard().Status())
}

// POST /api/v1/guard/:id/resolve
// choice is one of force_idle, proceed or cancel.
func (s *Server) resolveGuard(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "GUARD", err)
		return
	}

	var req struct {
		Choice string `json:"choice" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "GUARD", err)
		return
	}

	choice, err := guard.ParseChoice(req.Choice)
	if err != nil {
		fail(c, "GUARD", "Invalid choice", err)
		return
	}

	result, err := s.lm.Guard().Resolve(c.Request.Context(), id, choice)
	respondGuarded(c, "GUARD", result, err)
}
