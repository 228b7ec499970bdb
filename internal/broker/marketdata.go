package broker

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader/internal/client/fmp"
	"trader/internal/client/gateway"
)

type Quote struct {
	Symbol    string              `json:"symbol"`
	Bid       decimal.NullDecimal `json:"bid"`
	Ask       decimal.NullDecimal `json:"ask"`
	Last      decimal.NullDecimal `json:"last"`
	Volume    decimal.NullDecimal `json:"volume"`
	High      decimal.NullDecimal `json:"high"`
	Low       decimal.NullDecimal `json:"low"`
	Close     decimal.NullDecimal `json:"close"`
	Source    string              `json:"source"`
	Timestamp time.Time           `json:"timestamp"`
}

// Price is last, falling back to bid.
func (q Quote) Price() (decimal.Decimal, bool) {
	if q.Last.Valid && q.Last.Decimal.IsPositive() {
		return q.Last.Decimal, true
	}
	if q.Bid.Valid && q.Bid.Decimal.IsPositive() {
		return q.Bid.Decimal, true
	}
	return decimal.Zero, false
}

type QuoteOptions struct {
	// SkipFallback keeps the call on the gateway only, sparing the rate
	// limit of secondary sources.
	SkipFallback bool
}

// FallbackQuotes is the secondary quote source (*fmp.Client).
type FallbackQuotes interface {
	Quotes(ctx context.Context, symbols []string) (map[string]fmp.Quote, error)
}

type MarketData struct {
	Gateway  Gateway
	Fallback FallbackQuotes
	Logger   *zap.Logger
	Timeout  time.Duration
}

func (m *MarketData) timeout() time.Duration {
	if m.Timeout <= 0 {
		return 10 * time.Second
	}
	return m.Timeout
}

func (m *MarketData) log() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

// GetQuotes returns whatever could be priced. Missing symbols are absent from
// the map; partial failure is not an error.
func (m *MarketData) GetQuotes(ctx context.Context, symbols []string, opts QuoteOptions) (map[string]Quote, error) {
	out := map[string]Quote{}
	symbols = uniqueSymbols(symbols)
	if len(symbols) == 0 || m == nil {
		return out, nil
	}
	if m.Gateway != nil {
		snap, err := withTimeout(ctx, "market snapshot", m.timeout(), func(c context.Context) ([]gateway.Quote, error) {
			return m.Gateway.Snapshot(c, symbols)
		})
		if err != nil {
			m.log().Warn("gateway snapshot failed", zap.Int("symbols", len(symbols)), zap.Error(err))
		}
		for _, q := range snap {
			sym := strings.ToUpper(strings.TrimSpace(q.Symbol))
			if sym == "" {
				continue
			}
			source := "gateway"
			if q.Delayed {
				source = "gateway-delayed"
			}
			out[sym] = Quote{
				Symbol: sym, Bid: q.Bid, Ask: q.Ask, Last: q.Last, Volume: q.Volume,
				High: q.High, Low: q.Low, Close: q.Close, Source: source, Timestamp: q.Timestamp,
			}
		}
	}
	if opts.SkipFallback || m.Fallback == nil {
		return out, nil
	}
	var missing []string
	for _, s := range symbols {
		if q, ok := out[s]; !ok {
			missing = append(missing, s)
		} else if _, priced := q.Price(); !priced {
			missing = append(missing, s)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	fq, err := m.Fallback.Quotes(ctx, missing)
	if err != nil {
		m.log().Warn("fallback quotes failed", zap.Strings("symbols", missing), zap.Error(err))
	}
	for sym, q := range fq {
		out[sym] = Quote{
			Symbol:    sym,
			Last:      decimal.NewNullDecimal(q.Last),
			Volume:    decimal.NewNullDecimal(q.Volume),
			Source:    "fmp",
			Timestamp: q.Timestamp,
		}
		m.log().Info("fallback quote", zap.String("symbol", sym), zap.String("last", q.Last.String()))
	}
	return out, nil
}

// HistoricalBars returns daily bars for a symbol.
func (m *MarketData) HistoricalBars(ctx context.Context, symbol, duration, barSize string) ([]gateway.Bar, error) {
	if m == nil || m.Gateway == nil {
		return nil, ErrNotConnected
	}
	if duration == "" {
		duration = "1 M"
	}
	if barSize == "" {
		barSize = "1 day"
	}
	return withTimeout(ctx, "historical bars", m.timeout(), func(c context.Context) ([]gateway.Bar, error) {
		return m.Gateway.HistoricalBars(c, symbol, duration, barSize)
	})
}

func uniqueSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
