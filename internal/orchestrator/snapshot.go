package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader/internal/clock"
	"trader/internal/models"
)

// RecordDailySnapshot writes today's end-of-day row. A second call on the same
// exchange date leaves the first row in place and reports false.
func (o *Orchestrator) RecordDailySnapshot(ctx context.Context) (bool, error) {
	if o.Account == nil {
		return false, errors.New("daily snapshot: no account source")
	}
	now := o.now()
	summary, err := o.Account.GetAccountSummary(ctx)
	if err != nil {
		return false, fmt.Errorf("daily snapshot account: %w", err)
	}
	nl := summary.NetLiquidation

	prev, err := o.Repo.LatestDailySnapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("latest snapshot: %w", err)
	}
	first, err := o.Repo.FirstDailySnapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("first snapshot: %w", err)
	}
	prevValue := nl
	if prev != nil {
		prevValue = prev.PortfolioValue
	}
	firstValue := nl
	if first != nil {
		firstValue = first.PortfolioValue
	}
	dailyPnL := nl.Sub(prevValue)
	dailyPct := decimal.Zero
	if prevValue.IsPositive() {
		dailyPct = dailyPnL.Div(prevValue).Mul(decimal.NewFromInt(100))
	}

	trades, err := o.Repo.ListTradesSince(ctx, clock.StartOfDay(now))
	if err != nil {
		return false, fmt.Errorf("today trades: %w", err)
	}
	var wins, losses int
	for _, t := range trades {
		if !t.PnL.Valid {
			continue
		}
		switch {
		case t.PnL.Decimal.IsPositive():
			wins++
		case t.PnL.Decimal.IsNegative():
			losses++
		}
	}

	snap := &models.DailySnapshot{
		Date:            clock.LocalDate(now),
		PortfolioValue:  nl,
		CashBalance:     summary.TotalCashValue,
		PositionsValue:  summary.GrossPositionValue,
		DailyPnL:        dailyPnL,
		DailyPnLPercent: dailyPct.Round(6),
		TotalPnL:        nl.Sub(firstValue),
		TradesCount:     len(trades),
		WinsCount:       wins,
		LossesCount:     losses,
	}
	created, err := o.Repo.InsertDailySnapshot(ctx, snap)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	if !created {
		o.log().Info("daily snapshot already recorded", zap.String("date", snap.Date))
		return false, nil
	}
	o.log().Info("daily snapshot recorded",
		zap.String("date", snap.Date),
		zap.String("portfolio", nl.StringFixed(2)),
		zap.String("daily_pnl", dailyPnL.StringFixed(2)),
		zap.String("daily_pnl_pct", dailyPct.StringFixed(2)),
		zap.Int("trades", snap.TradesCount),
	)
	return true, nil
}
