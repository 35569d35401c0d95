package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/auth"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/commands"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/guard"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/odrive"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/paths"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/presets"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/registry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/telemetry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/variant"
	"github.com/gin-gonic/gin"
)

func apiError(c *gin.Context, status int, area, message string, details any) {
	c.JSON(status, types.NewAPIError(area, status, message, details))
}

// fail maps domain errors to a status and the common error body.
// The code is area plus the status, e.g. PRESET_404.
func fail(c *gin.Context, area, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, odrive.ErrNotConnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, odrive.ErrDevice):
		status = http.StatusBadGateway
	case errors.Is(err, registry.ErrParameterNotFound),
		errors.Is(err, presets.ErrPresetNotFound),
		errors.Is(err, guard.ErrPendingNotFound),
		errors.Is(err, commands.ErrUnknownCommand):
		status = http.StatusNotFound
	case errors.Is(err, presets.ErrPresetExists),
		errors.Is(err, guard.ErrGuardBusy),
		errors.Is(err, guard.ErrStillBusy),
		errors.Is(err, guard.ErrActionPending):
		status = http.StatusConflict
	case errors.Is(err, presets.ErrFactoryPreset):
		status = http.StatusForbidden
	case errors.Is(err, presets.ErrInvalidPresetFile),
		errors.Is(err, presets.ErrInvalidName),
		errors.Is(err, variant.ErrUnknownFamily),
		errors.Is(err, guard.ErrInvalidChoice),
		errors.Is(err, paths.ErrEmptyPath),
		errors.Is(err, telemetry.ErrInvalidPoller),
		errors.Is(err, types.ErrUnknownCategory):
		status = http.StatusBadRequest
	}
	apiError(c, status, area, message, err.Error())
}

func badRequest(c *gin.Context, area string, err error) {
	apiError(c, http.StatusBadRequest, area, "Invalid request", err.Error())
}

// respondGuarded writes the outcome of a guarded call. A suspended action
// answers 409 with the pending entry the client has to resolve.
func respondGuarded(c *gin.Context, area string, result any, err error) {
	var pending *guard.PendingError
	if errors.As(err, &pending) {
		c.JSON(http.StatusConflict, gin.H{
			"pending": gin.H{
				"id":         pending.Pending.ID,
				"action":     pending.Pending.Name,
				"busy_axes":  pending.Pending.BusyAxes,
				"expires_at": pending.Pending.ExpiresAt,
			},
		})
		return
	}

	var busy *guard.BusyError
	if errors.As(err, &busy) {
		apiError(c, http.StatusConflict, area, "Axes did not reach idle", gin.H{
			"pending": busy.Pending,
			"error":   err.Error(),
		})
		return
	}

	if err != nil {
		// Teilergebnis (z.B. ApplyReport) mitsenden
		if result != nil {
			apiError(c, http.StatusBadGateway, area, "Action failed", gin.H{
				"result": result,
				"error":  err.Error(),
			})
			return
		}
		fail(c, area, "Action failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// requireRole is the in-handler variant of auth.RequireRole.
func requireRole(c *gin.Context, role auth.Role) bool {
	p := auth.GetPrincipal(c)
	if p != nil && p.Role.Allows(role) {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{
		"error":    "insufficient permissions",
		"required": string(role),
	})
	return false
}

// queryAxis parses an optional ?axis= parameter.
func queryAxis(c *gin.Context) (*int, error) {
	raw := c.Query("axis")
	if raw == "" {
		return nil, nil
	}
	axis, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.New("axis must be an integer")
	}
	return &axis, nil
}
