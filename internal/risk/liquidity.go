package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader/internal/cache"
	"trader/internal/client/gateway"
)

var ErrNoLiquidityData = errors.New("no liquidity data")

const (
	volumePeriod     = 20
	liquidityTTL     = 6 * time.Hour
	liquidityKeyRoot = "liquidity:avgvol:"
)

// BarSource is satisfied by *broker.MarketData.
type BarSource interface {
	HistoricalBars(ctx context.Context, symbol, duration, barSize string) ([]gateway.Bar, error)
}

// Liquidity averages daily volume over the last volumePeriod bars.
type Liquidity struct {
	Bars   BarSource
	Cache  cache.Store
	TTL    time.Duration
	Logger *zap.Logger
}

func (l *Liquidity) ttl() time.Duration {
	if l.TTL <= 0 {
		return liquidityTTL
	}
	return l.TTL
}

func (l *Liquidity) AverageVolume(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if l == nil || l.Bars == nil || symbol == "" {
		return decimal.Zero, ErrNoLiquidityData
	}
	key := liquidityKeyRoot + symbol
	if l.Cache != nil {
		if b, ok, err := l.Cache.Get(ctx, key); err == nil && ok {
			if v, err := decimal.NewFromString(string(b)); err == nil {
				return v, nil
			}
		} else if err != nil && l.Logger != nil {
			l.Logger.Debug("liquidity cache get failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	bars, err := l.Bars.HistoricalBars(ctx, symbol, "1 M", "1 day")
	if err != nil {
		return decimal.Zero, fmt.Errorf("historical bars %s: %w", symbol, err)
	}
	avg, err := averageVolume(bars)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, err)
	}
	if l.Cache != nil {
		if err := l.Cache.Set(ctx, key, []byte(avg.String()), l.ttl()); err != nil && l.Logger != nil {
			l.Logger.Debug("liquidity cache set failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return avg, nil
}

func averageVolume(bars []gateway.Bar) (decimal.Decimal, error) {
	vols := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Volume > 0 {
			vols = append(vols, b.Volume)
		}
	}
	if len(vols) == 0 {
		return decimal.Zero, ErrNoLiquidityData
	}
	if len(vols) > volumePeriod {
		vols = vols[len(vols)-volumePeriod:]
	}
	if len(vols) == 1 {
		return decimal.NewFromFloat(vols[0]).Round(0), nil
	}
	sma := talib.Sma(vols, len(vols))
	return decimal.NewFromFloat(sma[len(sma)-1]).Round(0), nil
}
