package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one held symbol. A zero quantity row must not exist.
type Position struct {
	ID       uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol   string          `gorm:"type:varchar(20);not null;uniqueIndex" json:"symbol"`
	Quantity int64           `gorm:"not null" json:"quantity"`
	AvgCost  decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"avg_cost"`

	CurrentPrice  decimal.NullDecimal `gorm:"type:numeric(20,6)" json:"current_price"`
	UnrealizedPnL decimal.NullDecimal `gorm:"column:unrealized_pnl;type:numeric(20,6)" json:"unrealized_pnl"`
	MarketValue   decimal.NullDecimal `gorm:"type:numeric(20,6)" json:"market_value"`
	StopLossPrice decimal.NullDecimal `gorm:"type:numeric(20,6)" json:"stop_loss_price"`
	TargetPrice   decimal.NullDecimal `gorm:"type:numeric(20,6)" json:"target_price"`

	// SyncedAt is when Quantity was last taken from the gateway. Fills after
	// it are not reflected in Quantity yet.
	SyncedAt *time.Time `gorm:"type:timestamptz" json:"synced_at,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}
