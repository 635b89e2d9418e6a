package handlers

import (
	"net/http"

	"github.com/councilhq/councilapi/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CouncilHandler exposes the default council configuration.
type CouncilHandler struct {
	db *gorm.DB
}

// NewCouncilHandler constructs a CouncilHandler.
func NewCouncilHandler(db *gorm.DB) *CouncilHandler {
	return &CouncilHandler{db: db}
}

// Get returns the enabled default council slots in position order.
func (h *CouncilHandler) Get(c *gin.Context) {
	var rows []models.CouncilSlot
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_enabled = ?", true).
		Order("position ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query council failed"})
		return
	}

	type slotDTO struct {
		Position int    `json:"position"`
		Model    string `json:"model"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	out := make([]slotDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, slotDTO{
			Position: row.Position,
			Model:    row.ModelID,
			Name:     row.DisplayName,
			Role:     row.Role,
		})
	}
	c.JSON(http.StatusOK, gin.H{"slots": out})
}
