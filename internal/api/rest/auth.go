package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/auth"
	"github.com/gin-gonic/gin"
)

// Login request/response types
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// POST /api/v1/auth/login
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "AUTH", err)
		return
	}

	if !s.authService.Enabled() {
		apiError(c, http.StatusNotFound, "AUTH", "Authentication is disabled", nil)
		return
	}

	token, expiresAt, err := s.authService.LoginUser(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			apiError(c, http.StatusUnauthorized, "AUTH", "Invalid credentials", nil)
			return
		}
		apiError(c, http.StatusInternalServerError, "AUTH", "Login failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
	})
}

// GET /api/v1/auth/me
func (s *Server) getCurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, auth.GetPrincipal(c))
}
