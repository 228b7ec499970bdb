package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"trader/internal/models"
	"trader/internal/risk"
)

// RiskChecker is satisfied by *risk.Manager.
type RiskChecker interface {
	Check(ctx context.Context, p risk.Proposal) (risk.Decision, error)
	MaxPositionSize(ctx context.Context, price decimal.Decimal) (risk.PositionSize, error)
}

type RiskHandler struct {
	Risk       RiskChecker
	Settings   *risk.Settings
	Exclusions *risk.Exclusions
	Paper      bool
}

func (h *RiskHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/risk")
	g.POST("/check", h.check)
	g.GET("/limits", h.limits)
	g.GET("/settings", h.listSettings)
	g.PUT("/settings", h.putSetting)
	g.GET("/exclusions", h.listExclusions)
	g.POST("/exclusions", h.addExclusion)
	g.DELETE("/exclusions/:id", h.deleteExclusion)
}

// @Summary Check a trade proposal against the risk gate
// @Tags risk
// @Accept json
// @Param body body risk.Proposal true "proposal"
// @Success 200 {object} apiResponse
// @Router /api/v1/risk/check [post]
func (h *RiskHandler) check(c *gin.Context) {
	if h.Risk == nil {
		Error(c, http.StatusServiceUnavailable, "risk manager unavailable", nil)
		return
	}
	var p risk.Proposal
	if err := c.ShouldBindJSON(&p); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(p.Symbol) == "" {
		Error(c, http.StatusBadRequest, "symbol is required", nil)
		return
	}
	d, err := h.Risk.Check(c.Request.Context(), p)
	var meta map[string]any
	if err != nil {
		meta = map[string]any{"error": err.Error()}
	}
	Ok(c, d, meta)
}

type limitsResponse struct {
	Limits       risk.Limits        `json:"limits"`
	PositionSize *risk.PositionSize `json:"position_size,omitempty"`
}

// @Summary Hard risk limits for the running mode
// @Tags risk
// @Param price query number false "size a BUY at this price"
// @Success 200 {object} apiResponse
// @Router /api/v1/risk/limits [get]
func (h *RiskHandler) limits(c *gin.Context) {
	out := limitsResponse{Limits: risk.HardLimits(h.Paper)}
	if price := decimalQueryPtr(c, "price"); price != nil && h.Risk != nil {
		size, err := h.Risk.MaxPositionSize(c.Request.Context(), *price)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		out.PositionSize = &size
	}
	Ok(c, out, nil)
}

// @Summary List soft risk settings
// @Tags risk
// @Success 200 {object} apiResponse
// @Router /api/v1/risk/settings [get]
func (h *RiskHandler) listSettings(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	items, err := h.Settings.List(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"writable_keys": risk.SoftKeys()})
}

type putRiskSettingRequest struct {
	Key   string          `json:"key"`
	Value decimal.Decimal `json:"value"`
}

// @Summary Update a soft risk setting
// @Description Hard limits are constants and cannot be written.
// @Tags risk
// @Accept json
// @Param body body putRiskSettingRequest true "setting"
// @Success 200 {object} apiResponse
// @Failure 403 {object} apiResponse
// @Router /api/v1/risk/settings [put]
func (h *RiskHandler) putSetting(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	var req putRiskSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	ctx := c.Request.Context()
	if err := h.Settings.Set(ctx, req.Key, req.Value); err != nil {
		switch {
		case errors.Is(err, risk.ErrHardLimitKey):
			Error(c, http.StatusForbidden, err.Error(), nil)
		case errors.Is(err, risk.ErrUnknownSettingKey):
			Error(c, http.StatusBadRequest, err.Error(), map[string]any{"writable_keys": risk.SoftKeys()})
		default:
			Error(c, http.StatusBadRequest, err.Error(), nil)
		}
		return
	}
	value, err := h.Settings.Get(ctx, req.Key)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"key": strings.ToLower(strings.TrimSpace(req.Key)), "value": value}, nil)
}

// @Summary List exclusions
// @Tags risk
// @Success 200 {object} apiResponse
// @Router /api/v1/risk/exclusions [get]
func (h *RiskHandler) listExclusions(c *gin.Context) {
	if h.Exclusions == nil {
		Error(c, http.StatusInternalServerError, "exclusions unavailable", nil)
		return
	}
	items, err := h.Exclusions.List(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

type addExclusionRequest struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// @Summary Add an exclusion
// @Tags risk
// @Accept json
// @Param body body addExclusionRequest true "SYMBOL|SECTOR|SIC_CODE exclusion"
// @Success 200 {object} apiResponse
// @Router /api/v1/risk/exclusions [post]
func (h *RiskHandler) addExclusion(c *gin.Context) {
	if h.Exclusions == nil {
		Error(c, http.StatusInternalServerError, "exclusions unavailable", nil)
		return
	}
	var req addExclusionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	item := &models.Exclusion{Type: req.Type, Value: req.Value, Reason: req.Reason}
	if err := h.Exclusions.Add(c.Request.Context(), item); err != nil {
		if errors.Is(err, risk.ErrInvalidExclusion) {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Delete an exclusion
// @Tags risk
// @Param id path int true "exclusion id"
// @Success 200 {object} apiResponse
// @Router /api/v1/risk/exclusions/{id} [delete]
func (h *RiskHandler) deleteExclusion(c *gin.Context) {
	if h.Exclusions == nil {
		Error(c, http.StatusInternalServerError, "exclusions unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := h.Exclusions.Remove(c.Request.Context(), id); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"id": id, "deleted": true}, nil)
}
