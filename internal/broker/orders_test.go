package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trader/internal/client/gateway"
	"trader/internal/clock"
	"trader/internal/models"
)

func TestTradeRequestNormalize(t *testing.T) {
	cases := []struct {
		name string
		req  TradeRequest
		ok   bool
	}{
		{"limit ok", TradeRequest{Symbol: " shel ", Side: "buy", Quantity: 1, OrderType: "limit", LimitPrice: nullDec("10")}, true},
		{"market ok", TradeRequest{Symbol: "SHEL", Side: "SELL", Quantity: 5, OrderType: "MARKET"}, true},
		{"limit without price", TradeRequest{Symbol: "SHEL", Side: "BUY", Quantity: 1, OrderType: "LIMIT"}, false},
		{"zero qty", TradeRequest{Symbol: "SHEL", Side: "BUY", Quantity: 0, OrderType: "MARKET"}, false},
		{"bad side", TradeRequest{Symbol: "SHEL", Side: "SHORT", Quantity: 1, OrderType: "MARKET"}, false},
		{"no symbol", TradeRequest{Side: "BUY", Quantity: 1, OrderType: "MARKET"}, false},
	}
	for _, tc := range cases {
		err := tc.req.Normalize()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err=%v want ok=%v", tc.name, err, tc.ok)
		}
	}
}

func TestPlaceTradeEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := newFakeGateway()
	store := newMemTradeStore()
	tracker := NewOrderTracker(gw, store, clock.Real{}, nil, time.Millisecond)
	tracker.applied = make(chan OrderEvent, 4)
	go func() { _ = tracker.Run(ctx) }()

	svc := &OrderService{Gateway: gw, Store: store, Tracker: tracker, Mode: "paper"}
	res, err := svc.PlaceTrade(ctx, TradeRequest{
		Symbol:     "SHEL",
		Side:       models.SideBuy,
		Quantity:   100,
		OrderType:  models.OrderTypeLimit,
		LimitPrice: nullDec("2450"),
	})
	if err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	if res.Status != models.TradeStatusSubmitted {
		t.Fatalf("status got=%s want=SUBMITTED", res.Status)
	}
	row := store.get(res.TradeID)
	if row.Status != models.TradeStatusSubmitted || row.GatewayOrderID == nil || *row.GatewayOrderID != res.GatewayOrderID {
		t.Fatalf("row got=%+v", row)
	}
	if row.OrderRef == "" {
		t.Fatalf("order ref not recorded")
	}
	placed := gw.placed[0]
	if placed.OrderType != gateway.OrderTypeLimit || placed.LimitPrice == nil || !placed.LimitPrice.Equal(dec("2450")) || placed.TimeInForce != "DAY" {
		t.Fatalf("gateway order got=%+v", placed)
	}

	waitTracked(t, ctx, tracker, 1)
	gw.streams[gateway.TopicOpenOrders] <- gateway.Envelope{
		Type: gateway.TopicOpenOrders,
		Orders: []gateway.OpenOrder{{
			OrderID:     res.GatewayOrderID,
			OrderState:  &gateway.OrderState{Status: "Filled", Commission: nullDec("3")},
			OrderStatus: json.RawMessage(`{"avg_fill_price":2448}`),
		}},
	}
	select {
	case <-tracker.applied:
	case <-time.After(2 * time.Second):
		t.Fatalf("fill event not applied")
	}
	row = store.get(res.TradeID)
	if row.Status != models.TradeStatusFilled || !row.FillPrice.Decimal.Equal(dec("2448")) {
		t.Fatalf("after fill got status=%s price=%s", row.Status, row.FillPrice.Decimal)
	}
	if got := tracker.Tracked(ctx); got != 0 {
		t.Fatalf("tracked got=%d want=0 after terminal status", got)
	}

	// A later reconciliation pass sees nothing to do.
	gw.executions = []gateway.Execution{{OrderID: ptrInt64(res.GatewayOrderID), AvgPrice: nullDec("2448")}}
	r := &Reconciler{Gateway: gw, Store: store}
	out, err := r.Run(ctx, true)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Checked != 0 || out.Filled != 0 || out.Cancelled != 0 {
		t.Fatalf("reconcile got=%+v want no-op", out)
	}
}

func waitTracked(t *testing.T, ctx context.Context, tracker *OrderTracker, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tracker.Tracked(ctx) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("tracked never reached %d", want)
}

func TestPlaceTradeFailureMarksError(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.placeErr = errors.New("rejected")
	store := newMemTradeStore()
	svc := &OrderService{Gateway: gw, Store: store}
	_, err := svc.PlaceTrade(ctx, TradeRequest{Symbol: "SHEL", Side: models.SideBuy, Quantity: 1, OrderType: models.OrderTypeMarket})
	if err == nil {
		t.Fatalf("expected error")
	}
	row := store.get(1)
	if row.Status != models.TradeStatusError {
		t.Fatalf("status got=%s want=ERROR", row.Status)
	}
	if row.GatewayOrderID != nil {
		t.Fatalf("rejected submission got gateway id=%d want none", *row.GatewayOrderID)
	}
}

func TestPlaceTradeTimeoutRecoversByOrderRef(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.placeBlock = true
	store := newMemTradeStore()
	svc := &OrderService{Gateway: gw, Store: store, Timeout: 20 * time.Millisecond}
	res, err := svc.PlaceTrade(ctx, TradeRequest{Symbol: "BP.", Side: models.SideSell, Quantity: 3, OrderType: models.OrderTypeMarket})
	if err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	if res.GatewayOrderID != 101 || len(gw.placed) != 1 {
		t.Fatalf("got id=%d placed=%d want id=101 placed=1", res.GatewayOrderID, len(gw.placed))
	}
}

func TestPlaceTradeTimeoutWithoutOrderIsTyped(t *testing.T) {
	ctx := context.Background()
	gw := &slowGateway{fakeGateway: newFakeGateway()}
	store := newMemTradeStore()
	svc := &OrderService{Gateway: gw, Store: store, Timeout: 20 * time.Millisecond}
	_, err := svc.PlaceTrade(ctx, TradeRequest{Symbol: "BP.", Side: models.SideBuy, Quantity: 3, OrderType: models.OrderTypeMarket})
	var te *TimeoutError
	if !errors.As(err, &te) || !errors.Is(err, ErrTimeout) {
		t.Fatalf("got=%v want TimeoutError", err)
	}
	// Outcome unknown: the row stays open for the reconciler.
	row := store.get(1)
	if row.Status != models.TradeStatusPending || row.GatewayOrderID != nil || row.OrderRef == "" {
		t.Fatalf("row got=%+v want PENDING with order ref and no gateway id", row)
	}
}

func TestPlaceTradeTimeoutFindsInstantFill(t *testing.T) {
	ctx := context.Background()
	gw := &slowGateway{fakeGateway: newFakeGateway(), fillAt: nullDec("71.9")}
	store := newMemTradeStore()
	svc := &OrderService{Gateway: gw, Store: store, Timeout: 20 * time.Millisecond}
	res, err := svc.PlaceTrade(ctx, TradeRequest{Symbol: "VOD", Side: models.SideSell, Quantity: 50, OrderType: models.OrderTypeMarket})
	if err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	if res.Status != models.TradeStatusFilled || res.GatewayOrderID != 555 {
		t.Fatalf("result got=%+v want FILLED with id 555", res)
	}
	row := store.get(res.TradeID)
	if row.Status != models.TradeStatusFilled || row.GatewayOrderID == nil || *row.GatewayOrderID != 555 {
		t.Fatalf("row got=%+v", row)
	}
	if !row.FillPrice.Decimal.Equal(dec("71.9")) || row.FilledAt == nil {
		t.Fatalf("fill got price=%s at=%v", row.FillPrice.Decimal, row.FilledAt)
	}
}

// slowGateway never answers PlaceOrder. With fillAt set the order still
// executes at the gateway and drops straight out of the open-order list.
type slowGateway struct {
	*fakeGateway
	fillAt decimal.NullDecimal
}

func (g *slowGateway) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (int64, error) {
	if g.fillAt.Valid {
		g.mu.Lock()
		g.executions = append(g.executions, gateway.Execution{
			OrderID:  ptrInt64(555),
			OrderRef: req.OrderRef,
			Symbol:   req.Contract.Symbol,
			Side:     "SLD",
			Shares:   decimal.NewFromInt(req.TotalQuantity),
			AvgPrice: g.fillAt,
		})
		g.mu.Unlock()
	}
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestCancelTradeRules(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	store := newMemTradeStore()
	svc := &OrderService{Gateway: gw, Store: store}

	filled := &models.Trade{Symbol: "SHEL", Status: models.TradeStatusFilled, GatewayOrderID: ptrInt64(5)}
	_ = store.InsertTrade(ctx, filled)
	if err := svc.CancelTrade(ctx, filled.ID); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("filled got=%v want ErrNotCancellable", err)
	}
	open := &models.Trade{Symbol: "SHEL", Status: models.TradeStatusSubmitted, GatewayOrderID: ptrInt64(6)}
	_ = store.InsertTrade(ctx, open)
	if err := svc.CancelTrade(ctx, open.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(gw.cancelled) != 1 || gw.cancelled[0] != 6 {
		t.Fatalf("cancelled got=%v want=[6]", gw.cancelled)
	}
}

func TestGetQuotesFallback(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.quotes = []gateway.Quote{{Symbol: "SHEL", Last: nullDec("2450")}}
	fb := &stubFallback{}
	md := &MarketData{Gateway: gw, Fallback: fb}

	quotes, _ := md.GetQuotes(ctx, []string{"SHEL", "VOD"}, QuoteOptions{SkipFallback: true})
	if len(quotes) != 1 || fb.calls != 0 {
		t.Fatalf("skip fallback got=%d quotes, %d fallback calls", len(quotes), fb.calls)
	}
	quotes, _ = md.GetQuotes(ctx, []string{"SHEL", "VOD"}, QuoteOptions{})
	if len(quotes) != 2 || fb.calls != 1 {
		t.Fatalf("fallback got=%d quotes, %d fallback calls", len(quotes), fb.calls)
	}
	if p, ok := quotes["VOD"].Price(); !ok || !p.Equal(decimal.RequireFromString("72.1")) {
		t.Fatalf("VOD price got=%s", p)
	}
}
