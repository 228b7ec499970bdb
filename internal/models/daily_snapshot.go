package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySnapshot is the end-of-day baseline for loss limits. Date is the
// exchange-local calendar day in 2006-01-02 form.
type DailySnapshot struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Date string `gorm:"type:varchar(10);not null;uniqueIndex" json:"date"`

	PortfolioValue  decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"portfolio_value"`
	CashBalance     decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"cash_balance"`
	PositionsValue  decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"positions_value"`
	DailyPnL        decimal.Decimal `gorm:"column:daily_pnl;type:numeric(20,6);not null" json:"daily_pnl"`
	DailyPnLPercent decimal.Decimal `gorm:"column:daily_pnl_percent;type:numeric(12,6);not null" json:"daily_pnl_percent"`
	TotalPnL        decimal.Decimal `gorm:"column:total_pnl;type:numeric(20,6);not null" json:"total_pnl"`

	TradesCount int `gorm:"not null;default:0" json:"trades_count"`
	WinsCount   int `gorm:"not null;default:0" json:"wins_count"`
	LossesCount int `gorm:"not null;default:0" json:"losses_count"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (DailySnapshot) TableName() string {
	return "daily_snapshots"
}
