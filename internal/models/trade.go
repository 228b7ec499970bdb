package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"

	TradeStatusPending         = "PENDING"
	TradeStatusSubmitted       = "SUBMITTED"
	TradeStatusPartiallyFilled = "PARTIALLY_FILLED"
	TradeStatusFilled          = "FILLED"
	TradeStatusCancelled       = "CANCELLED"
	TradeStatusError           = "ERROR"
)

// Trade is one order attempt. Rows are never deleted.
type Trade struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol   string `gorm:"type:varchar(20);not null;index" json:"symbol"`
	Side     string `gorm:"type:varchar(4);not null;index" json:"side"`
	Quantity int64  `gorm:"not null" json:"quantity"`

	OrderType  string              `gorm:"type:varchar(10);not null" json:"order_type"`
	LimitPrice decimal.NullDecimal `gorm:"type:numeric(20,6)" json:"limit_price"`
	FillPrice  decimal.NullDecimal `gorm:"type:numeric(20,6)" json:"fill_price"`
	Commission decimal.NullDecimal `gorm:"type:numeric(20,6)" json:"commission"`

	Status         string `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	GatewayOrderID *int64 `gorm:"index" json:"gateway_order_id,omitempty"`
	OrderRef       string `gorm:"type:varchar(64);index" json:"order_ref"`

	Reasoning  string              `gorm:"type:text" json:"reasoning"`
	Confidence *float64            `json:"confidence,omitempty"`
	PnL        decimal.NullDecimal `gorm:"column:pnl;type:numeric(20,6)" json:"pnl"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
	FilledAt  *time.Time `gorm:"type:timestamptz" json:"filled_at,omitempty"`
}

func (Trade) TableName() string {
	return "trades"
}

// IsTerminalStatus reports whether no further transition may leave status.
func IsTerminalStatus(status string) bool {
	switch status {
	case TradeStatusFilled, TradeStatusCancelled, TradeStatusError:
		return true
	default:
		return false
	}
}
