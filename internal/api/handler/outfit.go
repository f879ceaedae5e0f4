package handler

import (
	"net/http"

	"github.com/engelke/fashion-hack-2024/internal/service"
	"github.com/gin-gonic/gin"
)

// OutfitHandler serves outfit suggestions.
type OutfitHandler struct {
	outfitService *service.OutfitService
}

// NewOutfitHandler creates a new outfit handler.
func NewOutfitHandler(outfitService *service.OutfitService) *OutfitHandler {
	return &OutfitHandler{outfitService: outfitService}
}

// Suggest handles GET /api/v1/outfits/suggestions?item=&expression=&temperature=&season=.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *OutfitHandler) Suggest(c *gin.Context) {
	var req service.OutfitRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	suggestion, err := h.outfitService.Suggest(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, "Failed to suggest outfit", err)
		return
	}
	c.JSON(http.StatusOK, suggestion)
}
