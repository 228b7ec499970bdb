package risk

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Hard limits. They are compile-time constants so nothing read at runtime,
// including risk_config rows, can loosen them.
const (
	MaxPositionPct       = 5
	MaxPositionGBP       = 50000
	MinCashReservePct    = 20
	PerTradeStopLossPct  = 3
	DailyLossLimitPct    = 2
	WeeklyLossLimitPct   = 5
	MaxPositions         = 10
	MaxTradesPerDay      = 10
	MaxSectorExposurePct = 30
	MinAvgVolume         = 50000
	PauseWinRate         = 0.4
	PauseWeeks           = 2

	// MinPriceGBP is the penny-stock floor.
	MinPriceGBP = 0.1

	MinTradeIntervalLiveMin  = 15
	MinTradeIntervalPaperMin = 2

	MinConfidenceLive  = 0.7
	MinConfidencePaper = 0.5
)

// ISA account constraints.
const (
	ISACashOnly   = true
	ISANoShorting = true
	ISANoMargin   = true
	ISAGBPOnly    = true
	ISALSEOnly    = true
)

// TradeIntervalMin is the minimum number of minutes between trades. It is the
// only hard limit that depends on the executor mode.
func TradeIntervalMin(paper bool) int {
	if paper {
		return MinTradeIntervalPaperMin
	}
	return MinTradeIntervalLiveMin
}

func MinConfidence(paper bool) float64 {
	if paper {
		return MinConfidencePaper
	}
	return MinConfidenceLive
}

type Limits struct {
	MaxPositionPct       decimal.Decimal `json:"max_position_pct"`
	MaxPositionGBP       decimal.Decimal `json:"max_position_gbp"`
	MinCashReservePct    decimal.Decimal `json:"min_cash_reserve_pct"`
	PerTradeStopLossPct  decimal.Decimal `json:"per_trade_stop_loss_pct"`
	DailyLossLimitPct    decimal.Decimal `json:"daily_loss_limit_pct"`
	WeeklyLossLimitPct   decimal.Decimal `json:"weekly_loss_limit_pct"`
	MaxPositions         int             `json:"max_positions"`
	MaxTradesPerDay      int             `json:"max_trades_per_day"`
	MinTradeIntervalMin  int             `json:"min_trade_interval_min"`
	MaxSectorExposurePct decimal.Decimal `json:"max_sector_exposure_pct"`
	MinPriceGBP          decimal.Decimal `json:"min_price_gbp"`
	MinAvgVolume         decimal.Decimal `json:"min_avg_volume"`
	PauseWinRate         decimal.Decimal `json:"pause_win_rate"`
	PauseWeeks           int             `json:"pause_weeks"`
	MinConfidence        float64         `json:"min_confidence"`

	ISA ISAConstraints `json:"isa"`
}

type ISAConstraints struct {
	CashOnly   bool `json:"cash_only"`
	NoShorting bool `json:"no_shorting"`
	NoMargin   bool `json:"no_margin"`
	GBPOnly    bool `json:"gbp_only"`
	LSEOnly    bool `json:"lse_only"`
}

// HardLimits returns a read-only view of the limits in effect for a mode.
func HardLimits(paper bool) Limits {
	return Limits{
		MaxPositionPct:       decimal.NewFromInt(MaxPositionPct),
		MaxPositionGBP:       decimal.NewFromInt(MaxPositionGBP),
		MinCashReservePct:    decimal.NewFromInt(MinCashReservePct),
		PerTradeStopLossPct:  decimal.NewFromInt(PerTradeStopLossPct),
		DailyLossLimitPct:    decimal.NewFromInt(DailyLossLimitPct),
		WeeklyLossLimitPct:   decimal.NewFromInt(WeeklyLossLimitPct),
		MaxPositions:         MaxPositions,
		MaxTradesPerDay:      MaxTradesPerDay,
		MinTradeIntervalMin:  TradeIntervalMin(paper),
		MaxSectorExposurePct: decimal.NewFromInt(MaxSectorExposurePct),
		MinPriceGBP:          decimal.NewFromFloat(MinPriceGBP),
		MinAvgVolume:         decimal.NewFromInt(MinAvgVolume),
		PauseWinRate:         decimal.NewFromFloat(PauseWinRate),
		PauseWeeks:           PauseWeeks,
		MinConfidence:        MinConfidence(paper),
		ISA: ISAConstraints{
			CashOnly:   ISACashOnly,
			NoShorting: ISANoShorting,
			NoMargin:   ISANoMargin,
			GBPOnly:    ISAGBPOnly,
			LSEOnly:    ISALSEOnly,
		},
	}
}

var hardKeys = map[string]struct{}{
	"max_position_pct":        {},
	"max_position_gbp":        {},
	"min_cash_reserve_pct":    {},
	"per_trade_stop_loss_pct": {},
	"daily_loss_limit_pct":    {},
	"weekly_loss_limit_pct":   {},
	"max_positions":           {},
	"max_trades_per_day":      {},
	"min_trade_interval_min":  {},
	"max_sector_exposure_pct": {},
	"min_price_gbp":           {},
	"min_avg_volume":          {},
	"pause_win_rate":          {},
	"pause_weeks":             {},
	"min_confidence":          {},
}

// IsHardLimitKey reports whether key names a hard limit.
func IsHardLimitKey(key string) bool {
	_, ok := hardKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// CalculateStopLoss returns the per-trade stop for an entry price.
func CalculateStopLoss(entry decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(100 - PerTradeStopLossPct).Div(decimal.NewFromInt(100))
	return entry.Mul(factor)
}
