package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/alephdeploy/control-plane/internal/catalog"
	"github.com/alephdeploy/control-plane/internal/pkg/response"
)

type CatalogHandler struct {
	catalog *catalog.Catalog
}

func NewCatalogHandler(c *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

func (h *CatalogHandler) ListApps(c *gin.Context) {
	category := c.Query("category")
	response.OK(c, gin.H{
		"apps":       h.catalog.List(category),
		"categories": h.catalog.Categories(),
	})
}

func (h *CatalogHandler) GetApp(c *gin.Context) {
	tmpl, ok := h.catalog.Get(c.Param("id"))
	if !ok {
		response.NotFound(c, "app template not found")
		return
	}
	response.OK(c, tmpl)
}
