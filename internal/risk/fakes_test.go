package risk

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trader/internal/broker"
	"trader/internal/client/gateway"
	"trader/internal/models"
)

type memStore struct {
	positions  []models.Position
	trades     []models.Trade
	snapshots  []models.DailySnapshot
	sectors    map[string]string
	exclusions []models.Exclusion
	settings   map[string]models.RiskSetting

	listExclusions int
}

func (m *memStore) ListPositions(context.Context) ([]models.Position, error) {
	return m.positions, nil
}

func (m *memStore) GetPositionBySymbol(_ context.Context, symbol string) (*models.Position, error) {
	for i := range m.positions {
		if m.positions[i].Symbol == symbol {
			p := m.positions[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memStore) CountTradesSince(_ context.Context, since time.Time, side string) (int64, error) {
	var n int64
	for _, t := range m.trades {
		if !t.CreatedAt.Before(since) && (side == "" || t.Side == side) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) LatestTradeSince(_ context.Context, since time.Time) (*models.Trade, error) {
	var out *models.Trade
	for i := range m.trades {
		t := m.trades[i]
		if t.CreatedAt.Before(since) {
			continue
		}
		if out == nil || t.CreatedAt.After(out.CreatedAt) {
			out = &t
		}
	}
	return out, nil
}

func (m *memStore) LatestDailySnapshot(context.Context) (*models.DailySnapshot, error) {
	var out *models.DailySnapshot
	for i := range m.snapshots {
		s := m.snapshots[i]
		if out == nil || s.Date > out.Date {
			out = &s
		}
	}
	return out, nil
}

func (m *memStore) OldestDailySnapshotSince(_ context.Context, date string) (*models.DailySnapshot, error) {
	var out *models.DailySnapshot
	for i := range m.snapshots {
		s := m.snapshots[i]
		if s.Date < date {
			continue
		}
		if out == nil || s.Date < out.Date {
			out = &s
		}
	}
	return out, nil
}

func (m *memStore) SectorsBySymbol(_ context.Context, symbols []string) (map[string]string, error) {
	out := map[string]string{}
	for _, s := range symbols {
		if v, ok := m.sectors[s]; ok {
			out[s] = v
		}
	}
	return out, nil
}

func (m *memStore) ListExclusions(context.Context) ([]models.Exclusion, error) {
	m.listExclusions++
	return append([]models.Exclusion(nil), m.exclusions...), nil
}

func (m *memStore) InsertExclusion(_ context.Context, item *models.Exclusion) error {
	item.ID = uint64(len(m.exclusions) + 1)
	m.exclusions = append(m.exclusions, *item)
	return nil
}

func (m *memStore) DeleteExclusion(_ context.Context, id uint64) error {
	out := m.exclusions[:0]
	for _, e := range m.exclusions {
		if e.ID != id {
			out = append(out, e)
		}
	}
	m.exclusions = out
	return nil
}

func (m *memStore) UpsertRiskSetting(_ context.Context, item *models.RiskSetting) error {
	if m.settings == nil {
		m.settings = map[string]models.RiskSetting{}
	}
	m.settings[item.Key] = *item
	return nil
}

func (m *memStore) GetRiskSetting(_ context.Context, key string) (*models.RiskSetting, error) {
	if v, ok := m.settings[key]; ok {
		return &v, nil
	}
	return nil, nil
}

func (m *memStore) ListRiskSettings(context.Context) ([]models.RiskSetting, error) {
	out := make([]models.RiskSetting, 0, len(m.settings))
	for _, v := range m.settings {
		out = append(out, v)
	}
	return out, nil
}

type stubAccount struct {
	snap *broker.AccountSnapshot
	err  error
}

func (s stubAccount) GetAccountSummary(context.Context) (*broker.AccountSnapshot, error) {
	return s.snap, s.err
}

type stubVolume struct {
	avg map[string]string
}

func (s stubVolume) AverageVolume(_ context.Context, symbol string) (decimal.Decimal, error) {
	v, ok := s.avg[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, ErrNoLiquidityData
	}
	return d(v), nil
}

type stubBars struct {
	bars  []gateway.Bar
	err   error
	calls int
}

func (s *stubBars) HistoricalBars(context.Context, string, string, string) ([]gateway.Bar, error) {
	s.calls++
	return s.bars, s.err
}

type stubPause bool

func (p stubPause) IsPaused(context.Context) bool { return bool(p) }
