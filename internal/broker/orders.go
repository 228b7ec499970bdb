package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader/internal/client/gateway"
	"trader/internal/clock"
	"trader/internal/metrics"
	"trader/internal/models"
)

type TradeRequest struct {
	Symbol     string              `json:"symbol"`
	Side       string              `json:"side"`
	Quantity   int64               `json:"quantity"`
	OrderType  string              `json:"order_type"`
	LimitPrice decimal.NullDecimal `json:"limit_price"`
	Reasoning  string              `json:"reasoning"`
	Confidence *float64            `json:"confidence,omitempty"`
}

type TradeResult struct {
	TradeID        uint64 `json:"trade_id"`
	GatewayOrderID int64  `json:"gateway_order_id"`
	Status         string `json:"status"`
	OrderRef       string `json:"order_ref"`
}

func (r *TradeRequest) Normalize() error {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.Side = strings.ToUpper(strings.TrimSpace(r.Side))
	r.OrderType = strings.ToUpper(strings.TrimSpace(r.OrderType))
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if r.Side != models.SideBuy && r.Side != models.SideSell {
		return fmt.Errorf("invalid side %q", r.Side)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	switch r.OrderType {
	case models.OrderTypeLimit:
		if !r.LimitPrice.Valid || !r.LimitPrice.Decimal.IsPositive() {
			return fmt.Errorf("limit price is required for LIMIT orders")
		}
	case models.OrderTypeMarket:
		r.LimitPrice = decimal.NullDecimal{}
	default:
		return fmt.Errorf("invalid order type %q", r.OrderType)
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return fmt.Errorf("confidence must be within 0..1")
	}
	return nil
}

// ConnectionStatus is satisfied by *ConnectionManager.
type ConnectionStatus interface {
	IsConnected() bool
}

// OrderService is the submission path. Callers run the risk gate first.
type OrderService struct {
	Gateway Gateway
	Store   TradeStore
	Tracker *OrderTracker
	Conn    ConnectionStatus
	Clock   clock.Clock
	Logger  *zap.Logger
	Timeout time.Duration
	Mode    string // paper or live, metrics label only
}

func (s *OrderService) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 15 * time.Second
	}
	return s.Timeout
}

func (s *OrderService) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *OrderService) PlaceTrade(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	if s == nil || s.Gateway == nil || s.Store == nil {
		return nil, fmt.Errorf("order service not configured")
	}
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if s.Conn != nil && !s.Conn.IsConnected() {
		return nil, ErrNotConnected
	}

	trade := &models.Trade{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		OrderType:  req.OrderType,
		LimitPrice: req.LimitPrice,
		Status:     models.TradeStatusPending,
		OrderRef:   uuid.NewString(),
		Reasoning:  req.Reasoning,
		Confidence: req.Confidence,
	}
	if err := s.Store.InsertTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("insert trade: %w", err)
	}

	order := buildOrder(req, trade.OrderRef)
	orderID, err := withTimeout(ctx, "place order", s.timeout(), func(c context.Context) (int64, error) {
		return s.Gateway.PlaceOrder(c, order)
	})
	if err != nil && errors.Is(err, ErrTimeout) {
		// The order may have reached the gateway; find it by our reference
		// instead of resubmitting.
		match, ok := s.findByRef(ctx, trade.OrderRef)
		switch {
		case ok && match.Fill != nil:
			return s.recordTimedOutFill(ctx, req, trade, match)
		case ok:
			orderID, err = match.OrderID, nil
		default:
			// Unknown outcome. The row stays PENDING with its reference so
			// the reconciler can resolve it later.
			metrics.OrdersPlaced.WithLabelValues(s.Mode, req.Side, "timeout").Inc()
			s.log().Warn("order submission timed out, outcome unknown",
				zap.Uint64("trade_id", trade.ID),
				zap.String("symbol", req.Symbol),
				zap.String("order_ref", trade.OrderRef),
			)
			return nil, fmt.Errorf("place order for trade %d: %w", trade.ID, err)
		}
	}
	if err != nil {
		s.markError(ctx, trade.ID)
		metrics.OrdersPlaced.WithLabelValues(s.Mode, req.Side, "error").Inc()
		s.log().Error("failed to place order", zap.Uint64("trade_id", trade.ID), zap.String("symbol", req.Symbol), zap.Error(err))
		return nil, fmt.Errorf("place order for trade %d: %w", trade.ID, err)
	}

	changed, terr := s.Store.TransitionTrade(ctx, trade.ID, []string{models.TradeStatusPending}, models.TradeStatusSubmitted, map[string]any{
		"gateway_order_id": orderID,
	})
	if terr != nil {
		// The order is live at the gateway; reconciliation will not see it
		// without the id, so surface loudly.
		s.log().Error("order placed but trade row not updated", zap.Uint64("trade_id", trade.ID), zap.Int64("gateway_order_id", orderID), zap.Error(terr))
		return nil, fmt.Errorf("record gateway order id: %w", terr)
	}
	if changed {
		s.Tracker.Track(ctx, orderID, trade.ID)
	}
	metrics.OrdersPlaced.WithLabelValues(s.Mode, req.Side, "submitted").Inc()
	s.log().Info("order placed",
		zap.Uint64("trade_id", trade.ID),
		zap.Int64("gateway_order_id", orderID),
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.Int64("qty", req.Quantity),
	)
	return &TradeResult{TradeID: trade.ID, GatewayOrderID: orderID, Status: models.TradeStatusSubmitted, OrderRef: trade.OrderRef}, nil
}

// recordTimedOutFill stores an order that filled while its submission reply
// was lost.
func (s *OrderService) recordTimedOutFill(ctx context.Context, req TradeRequest, trade *models.Trade, match RefMatch) (*TradeResult, error) {
	updates := transitionUpdates(models.TradeStatusFilled, match.Fill, s.now())
	updates["gateway_order_id"] = match.OrderID
	if _, err := s.Store.TransitionTrade(ctx, trade.ID, []string{models.TradeStatusPending}, models.TradeStatusFilled, updates); err != nil {
		s.log().Error("order filled but trade row not updated", zap.Uint64("trade_id", trade.ID), zap.Int64("gateway_order_id", match.OrderID), zap.Error(err))
		return nil, fmt.Errorf("record filled order: %w", err)
	}
	metrics.OrdersPlaced.WithLabelValues(s.Mode, req.Side, "submitted").Inc()
	metrics.OrderTransitions.WithLabelValues("submit", models.TradeStatusFilled).Inc()
	s.log().Info("order filled during submission timeout",
		zap.Uint64("trade_id", trade.ID),
		zap.Int64("gateway_order_id", match.OrderID),
		zap.String("symbol", req.Symbol),
	)
	return &TradeResult{TradeID: trade.ID, GatewayOrderID: match.OrderID, Status: models.TradeStatusFilled, OrderRef: trade.OrderRef}, nil
}

func (s *OrderService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *OrderService) findByRef(ctx context.Context, ref string) (RefMatch, bool) {
	open, err := withTimeout(ctx, "open orders", s.timeout(), s.Gateway.OpenOrders)
	if err != nil {
		return RefMatch{}, false
	}
	execs, err := withTimeout(ctx, "executions", s.timeout(), s.Gateway.Executions)
	if err != nil {
		s.log().Warn("executions unavailable during order lookup", zap.Error(err))
	}
	m, ok := MatchByRef([]string{ref}, open, execs)[ref]
	return m, ok
}

func (s *OrderService) markError(ctx context.Context, tradeID uint64) {
	if _, err := s.Store.TransitionTrade(ctx, tradeID, []string{models.TradeStatusPending}, models.TradeStatusError, nil); err != nil {
		s.log().Warn("mark trade error failed", zap.Uint64("trade_id", tradeID), zap.Error(err))
	}
}

// CancelTrade asks the gateway to cancel a trade's order. The local status
// changes when the gateway reports the cancellation.
func (s *OrderService) CancelTrade(ctx context.Context, tradeID uint64) error {
	if s == nil || s.Gateway == nil || s.Store == nil {
		return fmt.Errorf("order service not configured")
	}
	trade, err := s.Store.GetTradeByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade == nil {
		return fmt.Errorf("trade %d not found", tradeID)
	}
	if trade.Status != models.TradeStatusSubmitted && trade.Status != models.TradeStatusPending {
		return fmt.Errorf("%w: status %s", ErrNotCancellable, trade.Status)
	}
	if trade.GatewayOrderID == nil {
		return fmt.Errorf("%w: submission still in flight", ErrNotCancellable)
	}
	return s.CancelOrder(ctx, *trade.GatewayOrderID)
}

func (s *OrderService) CancelOrder(ctx context.Context, gatewayOrderID int64) error {
	_, err := withTimeout(ctx, "cancel order", s.timeout(), func(c context.Context) (struct{}, error) {
		return struct{}{}, s.Gateway.CancelOrder(c, gatewayOrderID)
	})
	if err != nil {
		return err
	}
	s.log().Info("order cancellation requested", zap.Int64("gateway_order_id", gatewayOrderID))
	return nil
}

func buildOrder(req TradeRequest, ref string) gateway.OrderRequest {
	order := gateway.OrderRequest{
		Contract:      gateway.LSEStock(req.Symbol),
		Action:        gateway.ActionBuy,
		TotalQuantity: req.Quantity,
		OrderType:     gateway.OrderTypeMarket,
		TimeInForce:   gateway.TimeInForceDay,
		Transmit:      true,
		OrderRef:      ref,
	}
	if req.Side == models.SideSell {
		order.Action = gateway.ActionSell
	}
	if req.OrderType == models.OrderTypeLimit && req.LimitPrice.Valid {
		price := req.LimitPrice.Decimal
		order.OrderType = gateway.OrderTypeLimit
		order.LimitPrice = &price
	}
	return order
}
