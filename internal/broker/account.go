package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader/internal/metrics"
)

// AccountSnapshot is a point-in-time view of account totals. It is never
// persisted as is.
type AccountSnapshot struct {
	AccountID          string          `json:"account_id"`
	NetLiquidation     decimal.Decimal `json:"net_liquidation"`
	TotalCashValue     decimal.Decimal `json:"total_cash_value"`
	BuyingPower        decimal.Decimal `json:"buying_power"`
	GrossPositionValue decimal.Decimal `json:"gross_position_value"`
}

type BrokerPosition struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
}

type AccountService struct {
	Gateway Gateway
	Logger  *zap.Logger
	Timeout time.Duration
}

func (s *AccountService) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 10 * time.Second
	}
	return s.Timeout
}

func (s *AccountService) GetAccountSummary(ctx context.Context) (*AccountSnapshot, error) {
	if s == nil || s.Gateway == nil {
		return nil, ErrNotConnected
	}
	sum, err := withTimeout(ctx, "account summary", s.timeout(), s.Gateway.AccountSummary)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, fmt.Errorf("account summary is empty")
	}
	out := &AccountSnapshot{
		AccountID:          sum.AccountID,
		NetLiquidation:     sum.NetLiquidation,
		TotalCashValue:     sum.TotalCashValue,
		BuyingPower:        sum.BuyingPower,
		GrossPositionValue: sum.GrossPositionValue,
	}
	metrics.NetLiquidation.Set(out.NetLiquidation.InexactFloat64())
	if s.Logger != nil {
		s.Logger.Debug("account summary fetched",
			zap.String("account", out.AccountID),
			zap.String("net_liquidation", out.NetLiquidation.StringFixed(2)),
			zap.String("cash", out.TotalCashValue.StringFixed(2)),
		)
	}
	return out, nil
}

// GetPositions returns non-zero gateway positions.
func (s *AccountService) GetPositions(ctx context.Context) ([]BrokerPosition, error) {
	if s == nil || s.Gateway == nil {
		return nil, ErrNotConnected
	}
	raw, err := withTimeout(ctx, "positions", s.timeout(), s.Gateway.Positions)
	if err != nil {
		return nil, err
	}
	out := make([]BrokerPosition, 0, len(raw))
	for _, p := range raw {
		qty := p.Quantity.IntPart()
		if qty == 0 {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
		if symbol == "" {
			symbol = "UNKNOWN"
		}
		out = append(out, BrokerPosition{AccountID: p.AccountID, Symbol: symbol, Quantity: qty, AvgCost: p.AvgCost})
	}
	return out, nil
}
