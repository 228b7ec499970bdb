package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trader/internal/client/fmp"
	"trader/internal/client/gateway"
	"trader/internal/models"
)

type fakeGateway struct {
	mu sync.Mutex

	connectErrs []error
	connects    int
	probes      int

	placeErr   error
	placeBlock bool
	nextID     int64
	placed     []gateway.OrderRequest
	cancelled  []int64

	open       []gateway.OpenOrder
	executions []gateway.Execution
	positions  []gateway.Position
	account    *gateway.AccountSummary
	quotes     []gateway.Quote

	streams map[string]chan gateway.Envelope
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextID: 100,
		streams: map[string]chan gateway.Envelope{
			gateway.TopicConnection: make(chan gateway.Envelope, 16),
			gateway.TopicOpenOrders: make(chan gateway.Envelope, 16),
		},
	}
}

func (g *fakeGateway) Connect(ctx context.Context, clientID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connects++
	if len(g.connectErrs) > 0 {
		err := g.connectErrs[0]
		g.connectErrs = g.connectErrs[1:]
		return err
	}
	return nil
}

func (g *fakeGateway) Disconnect(ctx context.Context) error { return nil }

func (g *fakeGateway) ServerTime(ctx context.Context) (time.Time, error) {
	g.mu.Lock()
	g.probes++
	g.mu.Unlock()
	return time.Now(), nil
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (int64, error) {
	g.mu.Lock()
	g.placed = append(g.placed, req)
	g.nextID++
	id := g.nextID
	err := g.placeErr
	block := g.placeBlock
	if block {
		// the order reaches the gateway but the reply never arrives
		g.open = append(g.open, gateway.OpenOrder{OrderID: id, OrderRef: req.OrderRef, OrderState: &gateway.OrderState{Status: "Submitted"}})
	}
	g.mu.Unlock()
	if block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, orderID int64) error {
	g.mu.Lock()
	g.cancelled = append(g.cancelled, orderID)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) OpenOrders(ctx context.Context) ([]gateway.OpenOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.OpenOrder(nil), g.open...), nil
}

func (g *fakeGateway) Executions(ctx context.Context) ([]gateway.Execution, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.Execution(nil), g.executions...), nil
}

func (g *fakeGateway) Positions(ctx context.Context) ([]gateway.Position, error) {
	return g.positions, nil
}

func (g *fakeGateway) AccountSummary(ctx context.Context) (*gateway.AccountSummary, error) {
	return g.account, nil
}

func (g *fakeGateway) Snapshot(ctx context.Context, symbols []string) ([]gateway.Quote, error) {
	return g.quotes, nil
}

func (g *fakeGateway) HistoricalBars(ctx context.Context, symbol, duration, barSize string) ([]gateway.Bar, error) {
	return nil, nil
}

func (g *fakeGateway) Subscribe(ctx context.Context, topic string, fn func(gateway.Envelope)) error {
	ch := g.streams[topic]
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-ch:
			if !ok {
				return gateway.ErrStreamCompleted
			}
			fn(env)
		}
	}
}

func (g *fakeGateway) probeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.probes
}

// scriptedStream fails the first subscriptions to a topic with the queued
// errors, then serves the fake's channels.
type scriptedStream struct {
	*fakeGateway

	smu   sync.Mutex
	fails map[string][]error
	subs  map[string]int
}

func (g *scriptedStream) Subscribe(ctx context.Context, topic string, fn func(gateway.Envelope)) error {
	g.smu.Lock()
	if g.subs == nil {
		g.subs = map[string]int{}
	}
	g.subs[topic]++
	var err error
	if q := g.fails[topic]; len(q) > 0 {
		err = q[0]
		g.fails[topic] = q[1:]
	}
	g.smu.Unlock()
	if err != nil {
		return err
	}
	return g.fakeGateway.Subscribe(ctx, topic, fn)
}

func (g *scriptedStream) subscriptions(topic string) int {
	g.smu.Lock()
	defer g.smu.Unlock()
	return g.subs[topic]
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type memTradeStore struct {
	mu     sync.Mutex
	nextID uint64
	trades map[uint64]*models.Trade
	writes int
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{trades: map[uint64]*models.Trade{}}
}

func (s *memTradeStore) InsertTrade(ctx context.Context, item *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	cp := *item
	s.trades[item.ID] = &cp
	return nil
}

func (s *memTradeStore) GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memTradeStore) ListTradesByStatus(ctx context.Context, status string) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trade
	for id := uint64(1); id <= s.nextID; id++ {
		if t, ok := s.trades[id]; ok && t.Status == status {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *memTradeStore) TransitionTrade(ctx context.Context, id uint64, from []string, status string, updates map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, f := range from {
		if t.Status == f {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}
	t.Status = status
	for k, v := range updates {
		switch k {
		case "gateway_order_id":
			id := v.(int64)
			t.GatewayOrderID = &id
		case "fill_price":
			t.FillPrice = v.(decimal.NullDecimal)
		case "commission":
			t.Commission = v.(decimal.NullDecimal)
		case "filled_at":
			at := v.(time.Time)
			t.FilledAt = &at
		}
	}
	s.writes++
	return true, nil
}

func (s *memTradeStore) get(id uint64) models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.trades[id]
}

type countingAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (a *countingAlerter) SendCriticalAlert(ctx context.Context, subject, body string) {
	a.mu.Lock()
	a.subjects = append(a.subjects, subject)
	a.mu.Unlock()
}

func (a *countingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subjects)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func ptrInt64(v int64) *int64 { return &v }

type stubFallback struct {
	calls int
}

func (s *stubFallback) Quotes(ctx context.Context, symbols []string) (map[string]fmp.Quote, error) {
	s.calls++
	out := map[string]fmp.Quote{}
	for _, sym := range symbols {
		if sym == "VOD" {
			out[sym] = fmp.Quote{Symbol: sym, Last: decimal.RequireFromString("72.1")}
		}
	}
	return out, nil
}
