package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"trader/internal/broker"
	"trader/internal/clock"
	"trader/internal/models"
	"trader/internal/orchestrator"
	"trader/internal/repository"
	"trader/internal/risk"
	"trader/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type decoded struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (int, decoded) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out decoded
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

type memTrades struct {
	items map[uint64]*models.Trade
}

func (m *memTrades) ListTrades(context.Context, repository.ListTradesParams) ([]models.Trade, error) {
	out := make([]models.Trade, 0, len(m.items))
	for _, t := range m.items {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memTrades) CountTrades(context.Context, repository.ListTradesParams) (int64, error) {
	return int64(len(m.items)), nil
}

func (m *memTrades) GetTradeByID(_ context.Context, id uint64) (*models.Trade, error) {
	return m.items[id], nil
}

type stubGate struct {
	result risk.GateResult
	seen   []broker.TradeRequest
}

func (g *stubGate) Evaluate(_ context.Context, req broker.TradeRequest) (risk.GateResult, error) {
	g.seen = append(g.seen, req)
	return g.result, nil
}

type stubOrders struct {
	placed    []broker.TradeRequest
	cancelErr error
	placeErr  error
}

func (o *stubOrders) PlaceTrade(_ context.Context, req broker.TradeRequest) (*broker.TradeResult, error) {
	if o.placeErr != nil {
		return nil, o.placeErr
	}
	o.placed = append(o.placed, req)
	return &broker.TradeResult{TradeID: 7, GatewayOrderID: 42, Status: models.TradeStatusSubmitted}, nil
}

func (o *stubOrders) CancelTrade(context.Context, uint64) error {
	return o.cancelErr
}

func tradeRouter(gate *stubGate, orders *stubOrders, trades *memTrades) *gin.Engine {
	r := gin.New()
	(&TradeHandler{Repo: trades, Gates: gate, Orders: orders}).Register(r)
	return r
}

func TestPlaceTradeDeniedByGates(t *testing.T) {
	gate := &stubGate{result: risk.GateResult{
		Allowed: false,
		Reason:  "Risk check failed: Max positions (10) reached",
		Risk:    &risk.Decision{Reasons: []string{"Max positions (10) reached"}},
	}}
	orders := &stubOrders{}
	r := tradeRouter(gate, orders, &memTrades{})

	code, body := do(t, r, http.MethodPost, "/api/v1/trades", map[string]any{
		"symbol": "shel", "side": "buy", "quantity": 10, "limit_price": "2450", "confidence": 0.9,
	})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("got=%d want=422", code)
	}
	if body.Message != "Risk check failed: Max positions (10) reached" {
		t.Fatalf("got message=%q", body.Message)
	}
	if len(orders.placed) != 0 {
		t.Fatalf("denied trade must not be placed")
	}
	if len(gate.seen) != 1 || gate.seen[0].Symbol != "SHEL" || gate.seen[0].OrderType != models.OrderTypeLimit {
		t.Fatalf("got gate input=%+v want normalized LIMIT SHEL", gate.seen)
	}
}

func TestPlaceTradeAllowed(t *testing.T) {
	orders := &stubOrders{}
	r := tradeRouter(&stubGate{result: risk.GateResult{Allowed: true}}, orders, &memTrades{})
	code, body := do(t, r, http.MethodPost, "/api/v1/trades", map[string]any{
		"symbol": "VOD", "side": "SELL", "quantity": 5, "order_type": "MARKET",
	})
	if code != http.StatusOK {
		t.Fatalf("got=%d body=%+v", code, body)
	}
	var res broker.TradeResult
	if err := json.Unmarshal(body.Data, &res); err != nil || res.TradeID != 7 {
		t.Fatalf("got=%s err=%v", body.Data, err)
	}
	if len(orders.placed) != 1 {
		t.Fatalf("got=%d placed want=1", len(orders.placed))
	}
}

func TestPlaceTradeValidationAndBrokerErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   map[string]any
		err    error
		status int
	}{
		{"missing limit", map[string]any{"symbol": "VOD", "side": "BUY", "quantity": 5}, nil, http.StatusBadRequest},
		{"bad side", map[string]any{"symbol": "VOD", "side": "SHORT", "quantity": 5, "order_type": "MARKET"}, nil, http.StatusBadRequest},
		{"not connected", map[string]any{"symbol": "VOD", "side": "SELL", "quantity": 5, "order_type": "MARKET"}, broker.ErrNotConnected, http.StatusServiceUnavailable},
		{"timeout", map[string]any{"symbol": "VOD", "side": "SELL", "quantity": 5, "order_type": "MARKET"}, fmt.Errorf("place order for trade 3: %w", broker.ErrTimeout), http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := tradeRouter(&stubGate{result: risk.GateResult{Allowed: true}}, &stubOrders{placeErr: tc.err}, &memTrades{})
			code, _ := do(t, r, http.MethodPost, "/api/v1/trades", tc.body)
			if code != tc.status {
				t.Fatalf("got=%d want=%d", code, tc.status)
			}
		})
	}
}

func TestCancelTrade(t *testing.T) {
	trades := &memTrades{items: map[uint64]*models.Trade{
		1: {ID: 1, Symbol: "VOD", Status: models.TradeStatusFilled},
	}}
	orders := &stubOrders{cancelErr: fmt.Errorf("%w: status FILLED", broker.ErrNotCancellable)}
	r := tradeRouter(&stubGate{}, orders, trades)

	if code, _ := do(t, r, http.MethodPost, "/api/v1/trades/1/cancel", nil); code != http.StatusConflict {
		t.Fatalf("got=%d want=409", code)
	}
	if code, _ := do(t, r, http.MethodPost, "/api/v1/trades/9/cancel", nil); code != http.StatusNotFound {
		t.Fatalf("got=%d want=404", code)
	}
	if code, _ := do(t, r, http.MethodPost, "/api/v1/trades/abc/cancel", nil); code != http.StatusBadRequest {
		t.Fatalf("got=%d want=400", code)
	}
}

type memRiskSettings struct {
	items map[string]*models.RiskSetting
}

func (m *memRiskSettings) UpsertRiskSetting(_ context.Context, item *models.RiskSetting) error {
	if m.items == nil {
		m.items = map[string]*models.RiskSetting{}
	}
	m.items[item.Key] = item
	return nil
}

func (m *memRiskSettings) GetRiskSetting(_ context.Context, key string) (*models.RiskSetting, error) {
	return m.items[key], nil
}

func (m *memRiskSettings) ListRiskSettings(context.Context) ([]models.RiskSetting, error) {
	var out []models.RiskSetting
	for _, v := range m.items {
		out = append(out, *v)
	}
	return out, nil
}

func TestRiskSettingsRejectHardLimits(t *testing.T) {
	store := &memRiskSettings{}
	r := gin.New()
	(&RiskHandler{Settings: &risk.Settings{Repo: store}}).Register(r)

	cases := []struct {
		key    string
		status int
	}{
		{"max_position_pct", http.StatusForbidden},
		{"nonsense", http.StatusBadRequest},
		{"watchlist_max_size", http.StatusOK},
	}
	for _, tc := range cases {
		code, _ := do(t, r, http.MethodPut, "/api/v1/risk/settings", map[string]any{"key": tc.key, "value": "25"})
		if code != tc.status {
			t.Fatalf("key=%s got=%d want=%d", tc.key, code, tc.status)
		}
	}
	if got := store.items["watchlist_max_size"]; got == nil || !got.Value.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("got=%+v want watchlist_max_size=25", got)
	}
	if _, ok := store.items["max_position_pct"]; ok {
		t.Fatalf("hard limit must not be stored")
	}
}

func TestRiskLimitsByMode(t *testing.T) {
	r := gin.New()
	(&RiskHandler{Paper: true}).Register(r)
	code, body := do(t, r, http.MethodGet, "/api/v1/risk/limits", nil)
	if code != http.StatusOK {
		t.Fatalf("got=%d", code)
	}
	var out limitsResponse
	if err := json.Unmarshal(body.Data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := risk.HardLimits(true)
	if out.Limits.MinTradeIntervalMin != want.MinTradeIntervalMin || out.Limits.MinConfidence != want.MinConfidence {
		t.Fatalf("got=%+v want=%+v", out.Limits, want)
	}
}

type memAgentStore struct {
	logs []models.AgentLog
}

func (m *memAgentStore) InsertAgentLog(_ context.Context, item *models.AgentLog) error {
	m.logs = append(m.logs, *item)
	return nil
}

func (m *memAgentStore) ListAgentLogs(context.Context, repository.ListAgentLogsParams) ([]models.AgentLog, error) {
	return m.logs, nil
}

func (m *memAgentStore) ListDailySnapshots(context.Context, repository.ListDailySnapshotsParams) ([]models.DailySnapshot, error) {
	return nil, nil
}

type memSwitches struct {
	items map[string]*models.SystemSetting
}

func (m *memSwitches) UpsertSystemSetting(_ context.Context, item *models.SystemSetting) error {
	if m.items == nil {
		m.items = map[string]*models.SystemSetting{}
	}
	m.items[item.Key] = item
	return nil
}

func (m *memSwitches) GetSystemSettingByKey(_ context.Context, key string) (*models.SystemSetting, error) {
	return m.items[key], nil
}

type fixedState orchestrator.State

func (s fixedState) State() orchestrator.State { return orchestrator.State(s) }

type conn bool

func (c conn) IsConnected() bool { return bool(c) }

func TestAgentPauseResume(t *testing.T) {
	store := &memAgentStore{}
	flags := &service.SystemSettingsService{Repo: &memSwitches{}}
	// 2025-06-02 10:00 London.
	clk := clock.NewFake(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	r := gin.New()
	(&AgentHandler{
		Repo:    store,
		Flags:   flags,
		State:   fixedState(orchestrator.StateActiveTrading),
		Gateway: conn(true),
		Clock:   clk,
	}).Register(r)

	if code, _ := do(t, r, http.MethodPost, "/api/v1/agent/pause", nil); code != http.StatusOK {
		t.Fatalf("pause got=%d", code)
	}
	if !flags.IsPaused(context.Background()) {
		t.Fatalf("want paused")
	}
	if len(store.logs) != 1 || store.logs[0].Message != "Trading paused by api" {
		t.Fatalf("got logs=%+v", store.logs)
	}

	code, body := do(t, r, http.MethodGet, "/api/v1/agent/state", nil)
	if code != http.StatusOK {
		t.Fatalf("state got=%d", code)
	}
	var st agentStateResponse
	if err := json.Unmarshal(body.Data, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Paused || st.State != orchestrator.StateActiveTrading || st.Phase != clock.PhaseOpen || !st.GatewayConnected {
		t.Fatalf("got=%+v", st)
	}

	if code, _ := do(t, r, http.MethodPost, "/api/v1/agent/resume", nil); code != http.StatusOK {
		t.Fatalf("resume got=%d", code)
	}
	if flags.IsPaused(context.Background()) {
		t.Fatalf("want resumed")
	}
}
