package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trader/internal/broker"
	"trader/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memStore struct {
	mu        sync.Mutex
	nextID    uint64
	positions []models.Position
	trades    []models.Trade
	watchlist []models.WatchlistItem
	research  []models.Research
	logs      []models.AgentLog
	snapshots []models.DailySnapshot
	deleted   []uint64
}

func (m *memStore) ListPositions(context.Context) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Position(nil), m.positions...), nil
}

func (m *memStore) UpsertHolding(_ context.Context, item *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.positions {
		if m.positions[i].Symbol == item.Symbol {
			m.positions[i].Quantity = item.Quantity
			m.positions[i].AvgCost = item.AvgCost
			m.positions[i].SyncedAt = item.SyncedAt
			return nil
		}
	}
	m.nextID++
	item.ID = 100 + m.nextID
	m.positions = append(m.positions, *item)
	return nil
}

func (m *memStore) DeletePosition(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.positions[:0]
	for _, p := range m.positions {
		if p.ID != id {
			out = append(out, p)
		}
	}
	m.positions = out
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memStore) position(symbol string) *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.positions {
		if m.positions[i].Symbol == symbol {
			p := m.positions[i]
			return &p
		}
	}
	return nil
}

func (m *memStore) ListTradesByStatus(_ context.Context, status string) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range m.trades {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) ListTradesSince(_ context.Context, since time.Time) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range m.trades {
		if !t.CreatedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveWatchlist(_ context.Context, limit int) ([]models.WatchlistItem, error) {
	if len(m.watchlist) > limit {
		return m.watchlist[:limit], nil
	}
	return m.watchlist, nil
}

func (m *memStore) ListRecentResearch(_ context.Context, since time.Time, _ int) ([]models.Research, error) {
	var out []models.Research
	for _, r := range m.research {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) InsertAgentLog(_ context.Context, item *models.AgentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *item)
	return nil
}

func (m *memStore) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, l.Message)
	}
	return out
}

func (m *memStore) InsertDailySnapshot(_ context.Context, item *models.DailySnapshot) (bool, error) {
	for _, s := range m.snapshots {
		if s.Date == item.Date {
			return false, nil
		}
	}
	m.snapshots = append(m.snapshots, *item)
	return true, nil
}

func (m *memStore) LatestDailySnapshot(context.Context) (*models.DailySnapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	s := m.snapshots[len(m.snapshots)-1]
	return &s, nil
}

func (m *memStore) FirstDailySnapshot(context.Context) (*models.DailySnapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	s := m.snapshots[0]
	return &s, nil
}

type memSettings struct {
	items map[string]*models.SystemSetting
	err   error
}

func (m *memSettings) UpsertSystemSetting(_ context.Context, item *models.SystemSetting) error {
	if m.items == nil {
		m.items = map[string]*models.SystemSetting{}
	}
	m.items[item.Key] = item
	return nil
}

func (m *memSettings) GetSystemSettingByKey(_ context.Context, key string) (*models.SystemSetting, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.items[key], nil
}

type stubAccount struct {
	summary   broker.AccountSnapshot
	positions []broker.BrokerPosition
	err       error
	summaries int
	syncs     int
}

func (s *stubAccount) GetAccountSummary(context.Context) (*broker.AccountSnapshot, error) {
	s.summaries++
	if s.err != nil {
		return nil, s.err
	}
	out := s.summary
	return &out, nil
}

func (s *stubAccount) GetPositions(context.Context) ([]broker.BrokerPosition, error) {
	s.syncs++
	if s.err != nil {
		return nil, s.err
	}
	return s.positions, nil
}

type stubQuotes struct {
	prices map[string]string
}

func (s *stubQuotes) GetQuotes(_ context.Context, symbols []string, _ broker.QuoteOptions) (map[string]broker.Quote, error) {
	out := map[string]broker.Quote{}
	for _, sym := range symbols {
		if p, ok := s.prices[strings.ToUpper(sym)]; ok {
			out[sym] = broker.Quote{Symbol: sym, Last: decimal.NewNullDecimal(dec(p))}
		}
	}
	return out, nil
}

type recordingPlanner struct {
	mu     sync.Mutex
	inputs []PlanInput
	// block, when set, holds Plan until it is closed.
	block   chan struct{}
	entered chan struct{}
}

func (p *recordingPlanner) Plan(_ context.Context, in PlanInput) error {
	p.mu.Lock()
	p.inputs = append(p.inputs, in)
	p.mu.Unlock()
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.block != nil {
		<-p.block
	}
	return nil
}

func (p *recordingPlanner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inputs)
}

type countingCleaner struct {
	finals  int
	regular int
	err     error
}

func (c *countingCleaner) Run(_ context.Context, final bool) (broker.CleanupResult, error) {
	if final {
		c.finals++
	} else {
		c.regular++
	}
	return broker.CleanupResult{Checked: 1}, c.err
}

var errBoom = errors.New("boom")
