package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader/internal/broker"
	"trader/internal/models"
)

// WatchQuote is a watchlist entry with its latest price, if one was quoted.
type WatchQuote struct {
	Symbol string              `json:"symbol"`
	Sector string              `json:"sector,omitempty"`
	Score  decimal.Decimal     `json:"score"`
	Price  decimal.NullDecimal `json:"price"`
}

// ResearchFlag is a recent research result the planner may act on.
type ResearchFlag struct {
	Symbol     string          `json:"symbol"`
	Action     string          `json:"action"`
	Confidence decimal.Decimal `json:"confidence"`
	Sentiment  decimal.Decimal `json:"sentiment"`
	At         time.Time       `json:"at"`
}

func watchQuotes(items []models.WatchlistItem, quotes map[string]broker.Quote) []WatchQuote {
	out := make([]WatchQuote, 0, len(items))
	for _, w := range items {
		wq := WatchQuote{Symbol: w.Symbol, Sector: w.Sector, Score: w.Score}
		if p, ok := quotes[strings.ToUpper(w.Symbol)].Price(); ok {
			wq.Price = decimal.NewNullDecimal(p)
		}
		out = append(out, wq)
	}
	return out
}

func (o *Orchestrator) moveThreshold() decimal.Decimal {
	if o.MoveThresholdPct.IsPositive() {
		return o.MoveThresholdPct.Div(decimal.NewFromInt(100))
	}
	return decimal.RequireFromString("0.02")
}

// GatherSignals collects what the planner sees during the open session:
// positions, SUBMITTED orders, quoted watchlist, drained guardian alerts and
// actionable research from the last day. Reasons lists the notable changes.
func (o *Orchestrator) GatherSignals(ctx context.Context, now time.Time) (PlanInput, error) {
	in := PlanInput{TickID: uuid.NewString(), At: now}

	positions, err := o.Repo.ListPositions(ctx)
	if err != nil {
		return in, fmt.Errorf("list positions: %w", err)
	}
	in.Positions = positions
	if len(positions) > 0 {
		in.Reasons = append(in.Reasons, fmt.Sprintf("%d open position(s) to monitor", len(positions)))
	}

	pending, err := o.Repo.ListTradesByStatus(ctx, models.TradeStatusSubmitted)
	if err != nil {
		return in, fmt.Errorf("pending orders: %w", err)
	}
	in.PendingOrders = pending
	if len(pending) > 0 {
		in.Reasons = append(in.Reasons, fmt.Sprintf("%d pending order(s)", len(pending)))
	}

	watch, err := o.Repo.ListActiveWatchlist(ctx, watchlistScanLimit)
	if err != nil {
		o.log().Warn("watchlist unavailable", zap.Error(err))
	}
	var quotes map[string]broker.Quote
	if len(watch) > 0 && o.Quotes != nil {
		symbols := make([]string, 0, len(watch))
		for _, w := range watch {
			symbols = append(symbols, w.Symbol)
		}
		quotes, err = o.Quotes.GetQuotes(ctx, symbols, broker.QuoteOptions{})
		if err != nil {
			o.log().Warn("watchlist quotes failed", zap.Error(err))
		}
	}
	in.Watchlist = watchQuotes(watch, quotes)
	in.Reasons = append(in.Reasons, o.priceMoves(in.Watchlist)...)

	in.Alerts = o.Alerts.Drain()
	for _, a := range in.Alerts {
		in.Reasons = append(in.Reasons, fmt.Sprintf("Guardian alert: %s moved %s%%", a.Symbol, a.MovePct.StringFixed(1)))
	}

	research, err := o.Repo.ListRecentResearch(ctx, now.Add(-researchLookback), researchScanLimit)
	if err != nil {
		o.log().Warn("recent research unavailable", zap.Error(err))
	}
	in.Research = actionableResearch(research, positions)
	if len(in.Research) > 0 {
		parts := make([]string, 0, len(in.Research))
		for _, r := range in.Research {
			parts = append(parts, r.Symbol+":"+r.Action)
		}
		in.Reasons = append(in.Reasons, "Actionable research: "+strings.Join(parts, ", "))
	}
	return in, nil
}

// priceMoves compares against the previous tick's prices and remembers the
// new ones.
func (o *Orchestrator) priceMoves(watch []WatchQuote) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastPrices == nil {
		o.lastPrices = map[string]decimal.Decimal{}
	}
	threshold := o.moveThreshold()
	var out []string
	for _, w := range watch {
		if !w.Price.Valid {
			continue
		}
		price := w.Price.Decimal
		if prev, ok := o.lastPrices[w.Symbol]; ok && prev.IsPositive() {
			move := price.Sub(prev).Div(prev).Abs()
			if move.GreaterThanOrEqual(threshold) {
				out = append(out, fmt.Sprintf("%s moved %s%%", w.Symbol, move.Mul(decimal.NewFromInt(100)).StringFixed(1)))
			}
		}
		o.lastPrices[w.Symbol] = price
	}
	return out
}

// actionableResearch keeps BUY flags and SELL flags on held symbols only;
// the account is long-only.
func actionableResearch(rows []models.Research, positions []models.Position) []ResearchFlag {
	held := map[string]bool{}
	for _, p := range positions {
		if p.Quantity > 0 {
			held[strings.ToUpper(p.Symbol)] = true
		}
	}
	var out []ResearchFlag
	for _, r := range rows {
		action := strings.ToUpper(strings.TrimSpace(r.SuggestedAction))
		symbol := strings.ToUpper(r.Symbol)
		switch {
		case action == models.SideBuy:
		case action == models.SideSell && held[symbol]:
		default:
			continue
		}
		out = append(out, ResearchFlag{
			Symbol:     symbol,
			Action:     action,
			Confidence: r.Confidence,
			Sentiment:  r.Sentiment,
			At:         r.CreatedAt,
		})
	}
	return out
}
