package broker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"trader/internal/client/gateway"
	"trader/internal/clock"
	"trader/internal/metrics"
	"trader/internal/models"
)

type trackRequest struct {
	orderID int64
	tradeID uint64
}

// OrderTracker is the single owner of the gateway-order to trade map. Order
// placement registers ids and the open-order stream feeds updates, both over
// channels into one goroutine.
type OrderTracker struct {
	Gateway          Gateway
	Store            TradeStore
	Clock            clock.Clock
	Logger           *zap.Logger
	ResubscribeDelay time.Duration
	WriteTimeout     time.Duration

	track   chan trackRequest
	updates chan []gateway.OpenOrder
	count   chan chan int
	applied chan OrderEvent
}

func NewOrderTracker(gw Gateway, store TradeStore, clk clock.Clock, logger *zap.Logger, resubscribeDelay time.Duration) *OrderTracker {
	if resubscribeDelay <= 0 {
		resubscribeDelay = 5 * time.Second
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderTracker{
		Gateway:          gw,
		Store:            store,
		Clock:            clk,
		Logger:           logger,
		ResubscribeDelay: resubscribeDelay,
		WriteTimeout:     10 * time.Second,
		track:            make(chan trackRequest, 64),
		updates:          make(chan []gateway.OpenOrder, 16),
		count:            make(chan chan int),
	}
}

// Track registers an accepted order. It only blocks if the actor is backed up.
func (t *OrderTracker) Track(ctx context.Context, orderID int64, tradeID uint64) {
	if t == nil {
		return
	}
	select {
	case t.track <- trackRequest{orderID: orderID, tradeID: tradeID}:
	case <-ctx.Done():
	}
}

// Tracked returns the number of orders currently tracked.
func (t *OrderTracker) Tracked(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case t.count <- reply:
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}

// Run owns the tracking map until ctx ends. Trades left SUBMITTED by a
// previous process are tracked again on start.
func (t *OrderTracker) Run(ctx context.Context) error {
	if t == nil || t.Gateway == nil || t.Store == nil {
		return nil
	}
	tracked := map[int64]uint64{}
	if rows, err := t.Store.ListTradesByStatus(ctx, models.TradeStatusSubmitted); err != nil {
		t.Logger.Warn("load submitted trades failed", zap.Error(err))
	} else {
		for _, r := range rows {
			if r.GatewayOrderID != nil {
				tracked[*r.GatewayOrderID] = r.ID
			}
		}
		if len(tracked) > 0 {
			t.Logger.Info("re-tracking submitted orders", zap.Int("count", len(tracked)))
		}
	}
	metrics.TrackedOrders.Set(float64(len(tracked)))

	go t.subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-t.track:
			tracked[req.orderID] = req.tradeID
			metrics.TrackedOrders.Set(float64(len(tracked)))
			t.Logger.Info("tracking order", zap.Int64("gateway_order_id", req.orderID), zap.Uint64("trade_id", req.tradeID))
		case reply := <-t.count:
			reply <- len(tracked)
		case orders := <-t.updates:
			events := ProcessOrderUpdate(tracked, t.validate(orders))
			metrics.TrackedOrders.Set(float64(len(tracked)))
			for _, ev := range events {
				t.apply(ctx, ev)
			}
		}
	}
}

func (t *OrderTracker) apply(ctx context.Context, ev OrderEvent) {
	if !models.IsTerminalStatus(ev.Status) {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, t.WriteTimeout)
	defer cancel()
	changed, err := applyTransition(wctx, t.Store, ev.TradeID, ev.Status, ev.Fill, t.Clock.Now())
	if err != nil {
		t.Logger.Error("failed to update trade status", zap.Uint64("trade_id", ev.TradeID), zap.Error(err))
		return
	}
	if changed {
		metrics.OrderTransitions.WithLabelValues("event", ev.Status).Inc()
		t.Logger.Info("trade status updated", zap.Uint64("trade_id", ev.TradeID), zap.String("status", ev.Status))
	}
	if t.applied != nil {
		t.applied <- ev
	}
}

// validate drops order status blocks whose shape does not decode.
func (t *OrderTracker) validate(orders []gateway.OpenOrder) []gateway.OpenOrder {
	out := make([]gateway.OpenOrder, 0, len(orders))
	for _, o := range orders {
		if _, ok := decodeOrderStatus(o.OrderStatus); !ok {
			t.Logger.Warn("invalid order status shape, ignoring status fields", zap.Int64("gateway_order_id", o.OrderID))
			o.OrderStatus = nil
		}
		out = append(out, o)
	}
	return out
}

// subscribe keeps one open-order subscription alive, resubscribing after a
// fixed delay on error or unexpected completion.
func (t *OrderTracker) subscribe(ctx context.Context) {
	for ctx.Err() == nil {
		err := t.Gateway.Subscribe(ctx, gateway.TopicOpenOrders, func(env gateway.Envelope) {
			if env.Type != gateway.TopicOpenOrders {
				return
			}
			select {
			case t.updates <- env.Orders:
			case <-ctx.Done():
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil || errors.Is(err, gateway.ErrStreamCompleted) {
			t.Logger.Warn("order subscription completed unexpectedly, will resubscribe")
		} else {
			t.Logger.Error("order subscription error, will resubscribe", zap.Error(err))
		}
		if err := sleepCtx(ctx, t.ResubscribeDelay); err != nil {
			return
		}
		t.Logger.Info("resubscribing to order updates")
	}
}
