package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trader/internal/broker"
	"trader/internal/db"
)

type HealthHandler struct {
	DB      *db.DB
	Gateway broker.ConnectionStatus
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Readiness check
// @Description Ready once the database answers and the gateway session is up.
// @Tags health
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	if err := db.Ping(c.Request.Context(), h.DB); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	if h.Gateway != nil && !h.Gateway.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "gateway_disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
