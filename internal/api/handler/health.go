package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	analysisEnabled bool
	searchEnabled   bool
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(analysisEnabled, searchEnabled bool) *HealthHandler {
	return &HealthHandler{analysisEnabled: analysisEnabled, searchEnabled: searchEnabled}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"analysis": h.analysisEnabled,
		"search":   h.searchEnabled,
	})
}
