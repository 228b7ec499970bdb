package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader/internal/broker"
	"trader/internal/clock"
	"trader/internal/metrics"
	"trader/internal/models"
)

// Store is the read side the manager needs to build a Context.
type Store interface {
	ListPositions(ctx context.Context) ([]models.Position, error)
	CountTradesSince(ctx context.Context, since time.Time, side string) (int64, error)
	LatestTradeSince(ctx context.Context, since time.Time) (*models.Trade, error)
	LatestDailySnapshot(ctx context.Context) (*models.DailySnapshot, error)
	OldestDailySnapshotSince(ctx context.Context, date string) (*models.DailySnapshot, error)
	SectorsBySymbol(ctx context.Context, symbols []string) (map[string]string, error)
}

// AccountSource is satisfied by *broker.AccountService.
type AccountSource interface {
	GetAccountSummary(ctx context.Context) (*broker.AccountSnapshot, error)
}

// QuoteSource is satisfied by *broker.MarketData.
type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols []string, opts broker.QuoteOptions) (map[string]broker.Quote, error)
}

type VolumeSource interface {
	AverageVolume(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Manager gathers the inputs of CheckTradeRisk.
type Manager struct {
	Repo       Store
	Account    AccountSource
	Quotes     QuoteSource
	Liquidity  VolumeSource
	Exclusions *Exclusions
	Clock      clock.Clock
	Logger     *zap.Logger
	Paper      bool
}

func (m *Manager) now() time.Time {
	if m.Clock == nil {
		return time.Now()
	}
	return m.Clock.Now()
}

// Check evaluates a proposal. A non-nil error means the context could not be
// built; the returned decision is then a denial naming the failure.
func (m *Manager) Check(ctx context.Context, p Proposal) (Decision, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	p.Side = strings.ToUpper(strings.TrimSpace(p.Side))
	if p.Side == models.SideSell {
		return CheckTradeRisk(p, Context{}), nil
	}
	if m == nil || m.Repo == nil || m.Account == nil {
		return deny("risk manager not configured"), fmt.Errorf("risk manager not configured")
	}

	if !p.Price.IsPositive() && m.Quotes != nil {
		quotes, err := m.Quotes.GetQuotes(ctx, []string{p.Symbol}, broker.QuoteOptions{})
		if err == nil {
			if q, ok := quotes[p.Symbol]; ok {
				if px, ok := q.Price(); ok {
					p.Price = px
				}
			}
		}
	}

	rc, err := m.BuildContext(ctx, &p)
	if err != nil {
		metrics.RiskRejections.WithLabelValues("context").Inc()
		if m.Logger != nil {
			m.Logger.Warn("risk: context unavailable", zap.String("symbol", p.Symbol), zap.Error(err))
		}
		return deny("Risk context unavailable: " + err.Error()), err
	}
	d := CheckTradeRisk(p, rc)
	if !d.Approved {
		metrics.RiskRejections.WithLabelValues("risk").Inc()
	}
	if m.Logger != nil {
		m.Logger.Info("risk: checked proposal",
			zap.String("symbol", p.Symbol),
			zap.Int64("quantity", p.Quantity),
			zap.String("price", p.Price.StringFixed(2)),
			zap.Bool("approved", d.Approved),
			zap.Strings("reasons", d.Reasons),
		)
	}
	return d, nil
}

// BuildContext loads everything CheckTradeRisk needs. It fills p.Sector from
// the watchlist when the caller left it empty.
func (m *Manager) BuildContext(ctx context.Context, p *Proposal) (Context, error) {
	now := m.now()
	rc := Context{Now: now, Paper: m.Paper}

	acct, err := m.Account.GetAccountSummary(ctx)
	if err != nil {
		return rc, fmt.Errorf("account summary: %w", err)
	}
	rc.NetLiquidation = acct.NetLiquidation
	rc.TotalCash = acct.TotalCashValue

	positions, err := m.Repo.ListPositions(ctx)
	if err != nil {
		return rc, fmt.Errorf("list positions: %w", err)
	}
	symbols := make([]string, 0, len(positions)+1)
	symbols = append(symbols, p.Symbol)
	for _, pos := range positions {
		symbols = append(symbols, pos.Symbol)
	}
	sectors, err := m.Repo.SectorsBySymbol(ctx, symbols)
	if err != nil {
		return rc, fmt.Errorf("sectors: %w", err)
	}
	if p.Sector == "" {
		p.Sector = sectors[p.Symbol]
	}
	for _, pos := range positions {
		rc.Positions = append(rc.Positions, Holding{
			Symbol:      pos.Symbol,
			Quantity:    pos.Quantity,
			MarketValue: positionValue(pos),
			Sector:      sectors[pos.Symbol],
		})
	}

	dayStart := clock.StartOfDay(now)
	if rc.TodayBuys, err = m.Repo.CountTradesSince(ctx, dayStart, models.SideBuy); err != nil {
		return rc, fmt.Errorf("count trades: %w", err)
	}
	last, err := m.Repo.LatestTradeSince(ctx, dayStart)
	if err != nil {
		return rc, fmt.Errorf("last trade: %w", err)
	}
	if last != nil {
		at := last.CreatedAt
		rc.LastTradeAt = &at
	}

	daily, err := m.Repo.LatestDailySnapshot(ctx)
	if err != nil {
		return rc, fmt.Errorf("daily snapshot: %w", err)
	}
	if daily != nil {
		rc.DailyBaseline = decimal.NewNullDecimal(daily.PortfolioValue)
	}
	weekly, err := m.Repo.OldestDailySnapshotSince(ctx, clock.LocalDate(now.AddDate(0, 0, -7)))
	if err != nil {
		return rc, fmt.Errorf("weekly snapshot: %w", err)
	}
	if weekly != nil {
		rc.WeeklyBaseline = decimal.NewNullDecimal(weekly.PortfolioValue)
	}

	if m.Exclusions != nil {
		set, err := m.Exclusions.Load(ctx)
		if err != nil {
			return rc, err
		}
		rc.Exclusions = set
	}

	if m.Liquidity != nil {
		avg, err := m.Liquidity.AverageVolume(ctx, p.Symbol)
		if err == nil {
			rc.AvgVolume = decimal.NewNullDecimal(avg)
		} else if m.Logger != nil {
			m.Logger.Warn("risk: liquidity unavailable", zap.String("symbol", p.Symbol), zap.Error(err))
		}
	}
	return rc, nil
}

// MaxPositionSize sizes a BUY against the live account.
func (m *Manager) MaxPositionSize(ctx context.Context, price decimal.Decimal) (PositionSize, error) {
	if m == nil || m.Account == nil {
		return PositionSize{}, fmt.Errorf("risk manager not configured")
	}
	acct, err := m.Account.GetAccountSummary(ctx)
	if err != nil {
		return PositionSize{}, err
	}
	return MaxPositionSize(price, acct.NetLiquidation, acct.TotalCashValue), nil
}

func positionValue(p models.Position) decimal.Decimal {
	if p.MarketValue.Valid {
		return p.MarketValue.Decimal
	}
	return p.AvgCost.Mul(decimal.NewFromInt(p.Quantity))
}

func deny(reason string) Decision {
	return Decision{Approved: false, Reasons: []string{reason}}
}
