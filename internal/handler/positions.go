package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"trader/internal/models"
)

type PositionStore interface {
	ListPositions(ctx context.Context) ([]models.Position, error)
}

type PositionHandler struct {
	Repo PositionStore
}

func (h *PositionHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/positions", h.list)
}

// @Summary List positions
// @Tags positions
// @Success 200 {object} apiResponse
// @Router /api/v1/positions [get]
func (h *PositionHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListPositions(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}
