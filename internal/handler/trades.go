package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trader/internal/broker"
	"trader/internal/models"
	"trader/internal/repository"
	"trader/internal/risk"
)

type TradeStore interface {
	ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error)
	CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error)
	GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error)
}

// TradeGate is satisfied by *risk.Gates.
type TradeGate interface {
	Evaluate(ctx context.Context, req broker.TradeRequest) (risk.GateResult, error)
}

// TradePlacer is satisfied by *broker.OrderService.
type TradePlacer interface {
	PlaceTrade(ctx context.Context, req broker.TradeRequest) (*broker.TradeResult, error)
	CancelTrade(ctx context.Context, tradeID uint64) error
}

type TradeHandler struct {
	Repo   TradeStore
	Gates  TradeGate
	Orders TradePlacer
	Logger *zap.Logger
}

func (h *TradeHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/trades")
	g.GET("", h.list)
	g.POST("", h.place)
	g.GET("/:id", h.get)
	g.POST("/:id/cancel", h.cancel)
}

// @Summary List trades
// @Tags trades
// @Param status query string false "PENDING|SUBMITTED|PARTIALLY_FILLED|FILLED|CANCELLED|ERROR"
// @Param symbol query string false "symbol"
// @Param side query string false "BUY|SELL"
// @Param since query string false "RFC3339 or 2006-01-02"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/trades [get]
func (h *TradeHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListTradesParams{
		Limit:   limit,
		Offset:  offset,
		Status:  upperQueryPtr(c, "status"),
		Symbol:  upperQueryPtr(c, "symbol"),
		Side:    upperQueryPtr(c, "side"),
		Since:   timeQueryPtr(c, "since"),
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	items, err := h.Repo.ListTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get trade
// @Tags trades
// @Param id path int true "trade id"
// @Success 200 {object} apiResponse
// @Router /api/v1/trades/{id} [get]
func (h *TradeHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetTradeByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Place trade
// @Description Runs the trade gates (and the risk gate for BUYs) before submitting.
// @Tags trades
// @Accept json
// @Param body body broker.TradeRequest true "trade request"
// @Success 200 {object} apiResponse
// @Failure 422 {object} apiResponse
// @Router /api/v1/trades [post]
func (h *TradeHandler) place(c *gin.Context) {
	if h.Orders == nil || h.Gates == nil {
		Error(c, http.StatusServiceUnavailable, "order service unavailable", nil)
		return
	}
	var req broker.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.OrderType) == "" {
		req.OrderType = models.OrderTypeLimit
	}
	if err := req.Normalize(); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	ctx := c.Request.Context()
	gate, err := h.Gates.Evaluate(ctx, req)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !gate.Allowed {
		meta := map[string]any{"reason": gate.Reason}
		if gate.Risk != nil {
			meta["risk_reasons"] = gate.Risk.Reasons
		}
		Error(c, http.StatusUnprocessableEntity, gate.Reason, meta)
		return
	}
	res, err := h.Orders.PlaceTrade(ctx, req)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("api: place trade failed", zap.String("symbol", req.Symbol), zap.String("side", req.Side), zap.Error(err))
		}
		Error(c, brokerStatus(err), err.Error(), nil)
		return
	}
	Ok(c, res, nil)
}

// @Summary Cancel trade
// @Tags trades
// @Param id path int true "trade id"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/trades/{id}/cancel [post]
func (h *TradeHandler) cancel(c *gin.Context) {
	if h.Orders == nil || h.Repo == nil {
		Error(c, http.StatusServiceUnavailable, "order service unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	ctx := c.Request.Context()
	item, err := h.Repo.GetTradeByID(ctx, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}
	if err := h.Orders.CancelTrade(ctx, id); err != nil {
		Error(c, brokerStatus(err), err.Error(), nil)
		return
	}
	next, _ := h.Repo.GetTradeByID(ctx, id)
	Ok(c, next, nil)
}

func brokerStatus(err error) int {
	switch {
	case errors.Is(err, broker.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, broker.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, broker.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
