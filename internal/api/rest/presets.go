package rest

import (
	"io"
	"net/http"
	"strings"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/commands"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/gin-gonic/gin"
)

// Preset files from the browser GUI are small; 4 MiB is plenty.
const maxImportSize = 4 << 20

// GET /api/v1/presets
func (s *Server) listPresets(c *gin.Context) {
	list := s.lm.Presets().List()
	c.JSON(http.StatusOK, gin.H{
		"presets": list,
		"count":   len(list),
	})
}

// GET /api/v1/presets/:name
func (s *Server) getPreset(c *gin.Context) {
	p, err := s.lm.Presets().Get(c.Param("name"))
	if err != nil {
		fail(c, "PRESET", "Preset not found", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", p.Raw())
}

// GET /api/v1/presets/:name/coverage
func (s *Server) getPresetCoverage(c *gin.Context) {
	cov, err := s.lm.Presets().Coverage(c.Param("name"), s.registry())
	if err != nil {
		fail(c, "PRESET", "Preset not found", err)
		return
	}
	c.JSON(http.StatusOK, cov)
}

type savePresetRequest struct {
	Name        string             `json:"name" binding:"required"`
	Description string             `json:"description"`
	Config      types.ConfigObject `json:"config" binding:"required"`
	Overwrite   bool               `json:"overwrite"`
}

// POST /api/v1/presets
func (s *Server) savePreset(c *gin.Context) {
	var req savePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "PRESET", err)
		return
	}

	p, err := s.lm.Presets().Save(c.Request.Context(), req.Name, req.Description, req.Config, req.Overwrite)
	if err != nil {
		fail(c, "PRESET", "Failed to save preset", err)
		return
	}
	c.JSON(http.StatusCreated, p.Metadata())
}

// PUT /api/v1/presets/:name
func (s *Server) renamePreset(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "PRESET", err)
		return
	}

	p, err := s.lm.Presets().Rename(c.Request.Context(), c.Param("name"), req.Name, req.Description)
	if err != nil {
		fail(c, "PRESET", "Failed to rename preset", err)
		return
	}
	c.JSON(http.StatusOK, p.Metadata())
}

// DELETE /api/v1/presets/:name
func (s *Server) deletePreset(c *gin.Context) {
	if err := s.lm.Presets().Delete(c.Request.Context(), c.Param("name")); err != nil {
		fail(c, "PRESET", "Failed to delete preset", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/v1/presets/export?names=a,b
func (s *Server) exportPresets(c *gin.Context) {
	var names []string
	if raw := c.Query("names"); raw != "" {
		names = strings.Split(raw, ",")
	}

	doc, err := s.lm.Presets().Export(names)
	if err != nil {
		fail(c, "PRESET", "Export failed", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="odrive-presets.json"`)
	c.JSON(http.StatusOK, doc)
}

// POST /api/v1/presets/import?overwrite=true
// The body is an exported preset file as produced by exportPresets.
func (s *Server) importPresets(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportSize))
	if err != nil {
		badRequest(c, "PRESET", err)
		return
	}

	overwrite := c.Query("overwrite") == "true"
	res, err := s.lm.Presets().Import(c.Request.Context(), data, overwrite)
	if err != nil {
		fail(c, "PRESET", "Import failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/v1/presets/:name/upgrade
// Fills parameters missing from the preset with registry defaults.
func (s *Server) upgradePreset(c *gin.Context) {
	p, err := s.lm.Presets().Upgrade(c.Request.Context(), c.Param("name"), s.registry())
	if err != nil {
		fail(c, "PRESET", "Upgrade failed", err)
		return
	}
	c.JSON(http.StatusOK, p.Metadata())
}

// POST /api/v1/presets/:name/apply
func (s *Server) applyPreset(c *gin.Context) {
	var opts commands.ApplyOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			badRequest(c, "PRESET", err)
			return
		}
	}

	name := c.Param("name")
	p, err := s.lm.Presets().Get(name)
	if err != nil {
		fail(c, "PRESET", "Preset not found", err)
		return
	}

	result, err := s.applyGuarded(c.Request.Context(), "apply_preset:"+name, p.Config, opts)
	respondGuarded(c, "PRESET", result, err)
}
