package rest

import (
	"net/http"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/registry"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/variant"
	"github.com/gin-gonic/gin"
)

func (s *Server) bundle() *variant.Bundle {
	return s.lm.Firmware().Bundle()
}

func (s *Server) registry() *registry.Registry {
	return s.bundle().Registry
}

// GET /api/v1/schema
func (s *Server) getSchema(c *gin.Context) {
	c.JSON(http.StatusOK, s.bundle().Schema)
}

// GET /api/v1/registry/categories
func (s *Server) getCategories(c *gin.Context) {
	cats := s.registry().ConfigCategories()

	counts := make(map[types.Category]int, len(cats))
	for cat, params := range cats {
		counts[cat] = len(params)
	}

	c.JSON(http.StatusOK, gin.H{
		"family":     s.bundle().Family,
		"categories": cats,
		"counts":     counts,
	})
}

// GET /api/v1/registry/batch-paths
func (s *Server) getBatchPaths(c *gin.Context) {
	batch := s.registry().BatchPaths()
	c.JSON(http.StatusOK, gin.H{
		"paths": batch,
		"count": len(batch),
	})
}

// GET /api/v1/registry/lookup?path=axis0.motor.config.pole_pairs
func (s *Server) lookupPath(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		apiError(c, http.StatusBadRequest, "REGISTRY", "Missing path", nil)
		return
	}

	reg := s.registry()
	node, err := reg.Lookup(path)
	if err != nil {
		fail(c, "REGISTRY", "Unknown path", err)
		return
	}

	resp := gin.H{
		"path":        path,
		"device_path": reg.Rules().DeviceString(path),
		"node":        node,
	}
	if p, err := reg.Parameter(path); err == nil {
		resp["parameter"] = p
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/v1/registry/parameters/:category/:key
func (s *Server) getParameter(c *gin.Context) {
	cat, err := types.ParseCategory(c.Param("category"))
	if err != nil {
		fail(c, "REGISTRY", "Unknown category", err)
		return
	}

	reg := s.registry()
	p, err := reg.FindParameter(cat, c.Param("key"))
	if err != nil {
		fail(c, "REGISTRY", "Parameter not found", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"parameter": p,
		"instances": reg.Instances(cat, p.ConfigKey),
		"placement": s.bundle().Grouping.Group(p),
	})
}

// GET /api/v1/registry/mappings
func (s *Server) getMappings(c *gin.Context) {
	reg := s.registry()
	out := make(map[types.Category]map[string]string, len(types.Categories))
	for _, cat := range types.Categories {
		out[cat] = reg.PropertyMappings(cat)
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/v1/registry/collisions
func (s *Server) getCollisions(c *gin.Context) {
	collisions := s.registry().Collisions()
	c.JSON(http.StatusOK, gin.H{
		"collisions": collisions,
		"count":      len(collisions),
	})
}

// GET /api/v1/registry/groups?category=motor
func (s *Server) getGroups(c *gin.Context) {
	b := s.bundle()
	cats := b.Registry.ConfigCategories()

	selected := types.Categories
	if raw := c.Query("category"); raw != "" {
		cat, err := types.ParseCategory(raw)
		if err != nil {
			fail(c, "REGISTRY", "Unknown category", err)
			return
		}
		selected = []types.Category{cat}
	}

	out := make(map[types.Category]map[string]map[string][]*registry.Parameter, len(selected))
	for _, cat := range selected {
		out[cat] = b.Grouping.GroupAdvanced(cats[cat])
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/v1/registry/debug
func (s *Server) getRegistryDebug(c *gin.Context) {
	reg := s.registry()
	c.JSON(http.StatusOK, gin.H{
		"stats":        reg.DebugInfo(),
		"unclassified": reg.Unclassified(),
	})
}
