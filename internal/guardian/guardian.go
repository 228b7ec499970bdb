package guardian

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader/internal/broker"
	"trader/internal/clock"
	"trader/internal/metrics"
	"trader/internal/models"
	"trader/internal/service"
)

type Store interface {
	ListPositions(ctx context.Context) ([]models.Position, error)
	ListActiveWatchlist(ctx context.Context, limit int) ([]models.WatchlistItem, error)
	ListTradesByStatus(ctx context.Context, status string) ([]models.Trade, error)
	ListTradesSince(ctx context.Context, since time.Time) ([]models.Trade, error)
	UpdatePositionMarks(ctx context.Context, id uint64, price, marketValue, unrealized decimal.Decimal) error
	InsertAgentLog(ctx context.Context, item *models.AgentLog) error
}

// QuoteSource is satisfied by *broker.MarketData.
type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols []string, opts broker.QuoteOptions) (map[string]broker.Quote, error)
}

// OrderPlacer is satisfied by *broker.OrderService.
type OrderPlacer interface {
	PlaceTrade(ctx context.Context, req broker.TradeRequest) (*broker.TradeResult, error)
}

// Cleaner is satisfied by *broker.Reconciler.
type Cleaner interface {
	Run(ctx context.Context, final bool) (broker.CleanupResult, error)
}

type FailureReporter interface {
	Report(component string, err error) bool
}

// Guardian enforces stop-losses and queues price alerts on a fixed interval,
// independent of the orchestrator.
type Guardian struct {
	Repo     Store
	Quotes   QuoteSource
	Orders   OrderPlacer
	Cleanup  Cleaner
	Alerts   *AlertQueue
	Flags    *service.SystemSettingsService
	Failures FailureReporter
	Clock    clock.Clock
	Logger   *zap.Logger

	Interval          time.Duration
	AlertThresholdPct decimal.Decimal
	WatchlistLimit    int

	// Owned by the loop goroutine.
	lastPrices  map[string]decimal.Decimal
	cleanedDate string
}

func (g *Guardian) now() time.Time {
	if g.Clock == nil {
		return time.Now()
	}
	return g.Clock.Now()
}

func (g *Guardian) log() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

func (g *Guardian) Run(ctx context.Context) error {
	if g == nil || g.Repo == nil {
		return nil
	}
	interval := g.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	g.log().Info("position guardian started", zap.Duration("interval", interval))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := g.Tick(ctx); err != nil {
			metrics.Ticks.WithLabelValues("guardian", "error").Inc()
			g.log().Warn("guardian tick failed", zap.Error(err))
			if g.Failures != nil {
				g.Failures.Report("guardian", err)
			}
		}
		select {
		case <-ctx.Done():
			g.log().Info("position guardian stopped")
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Tick runs one guardian pass. Each step is isolated; the returned error
// joins whatever failed.
func (g *Guardian) Tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("guardian tick panic: %v", r)
		}
	}()
	if g.Flags != nil && !g.Flags.IsEnabled(ctx, service.FeatureGuardian, true) {
		metrics.Ticks.WithLabelValues("guardian", "skipped").Inc()
		return nil
	}

	now := g.now()
	switch clock.PhaseAt(now) {
	case clock.PhaseClosed, clock.PhaseResearch:
		metrics.Ticks.WithLabelValues("guardian", "skipped").Inc()
		return nil
	case clock.PhasePostMarket:
		return g.postMarket(ctx, now)
	}

	positions, err := g.Repo.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	symbols := make([]string, 0, len(positions)+g.watchlistLimit())
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	watch, err := g.Repo.ListActiveWatchlist(ctx, g.watchlistLimit())
	if err != nil {
		g.log().Warn("guardian: watchlist unavailable", zap.Error(err))
	}
	for _, w := range watch {
		symbols = append(symbols, w.Symbol)
	}
	if len(symbols) == 0 {
		metrics.Ticks.WithLabelValues("guardian", "ok").Inc()
		return nil
	}

	quotes, err := g.Quotes.GetQuotes(ctx, symbols, broker.QuoteOptions{SkipFallback: true})
	if err != nil {
		return fmt.Errorf("quotes: %w", err)
	}

	var errs []error
	if err := g.enforceStopLosses(ctx, positions, quotes); err != nil {
		errs = append(errs, err)
	}
	if err := g.refreshMarks(ctx, positions, quotes); err != nil {
		errs = append(errs, err)
	}
	g.accumulateAlerts(quotes, now)

	if len(errs) == 0 {
		metrics.Ticks.WithLabelValues("guardian", "ok").Inc()
	}
	return errors.Join(errs...)
}

func (g *Guardian) watchlistLimit() int {
	if g.WatchlistLimit <= 0 {
		return 10
	}
	return g.WatchlistLimit
}

func (g *Guardian) postMarket(ctx context.Context, now time.Time) error {
	date := clock.LocalDate(now)
	if g.cleanedDate == date || g.Cleanup == nil {
		return nil
	}
	res, err := g.Cleanup.Run(ctx, true)
	if err != nil {
		return fmt.Errorf("post-market cleanup: %w", err)
	}
	g.cleanedDate = date
	g.log().Info("guardian: post-market cleanup done",
		zap.Int("checked", res.Checked),
		zap.Int("filled", res.Filled),
		zap.Int("cancelled", res.Cancelled),
	)
	return nil
}

// openSells are symbols with a SELL still in flight; the guardian never
// stacks a second stop-loss order on top of one.
func (g *Guardian) openSells(ctx context.Context) (map[string]bool, error) {
	out := map[string]bool{}
	for _, status := range []string{models.TradeStatusPending, models.TradeStatusSubmitted, models.TradeStatusPartiallyFilled} {
		rows, err := g.Repo.ListTradesByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, t := range rows {
			if t.Side == models.SideSell {
				out[strings.ToUpper(t.Symbol)] = true
			}
		}
	}
	return out, nil
}

func syncedAt(p models.Position) time.Time {
	if p.SyncedAt == nil {
		return time.Time{}
	}
	return *p.SyncedAt
}

// soldSinceSync sums the FILLED SELL quantity per symbol that the position
// rows do not reflect yet. Rows are resynced from the gateway only around
// the session, so a filled stop-loss leaves the old quantity behind.
func (g *Guardian) soldSinceSync(ctx context.Context, positions []models.Position, now time.Time) (map[string]int64, error) {
	synced := make(map[string]time.Time, len(positions))
	since := clock.StartOfDay(now)
	for _, p := range positions {
		at := syncedAt(p)
		synced[strings.ToUpper(p.Symbol)] = at
		if !at.IsZero() && at.Before(since) {
			since = clock.StartOfDay(at)
		}
	}
	rows, err := g.Repo.ListTradesSince(ctx, since)
	if err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, t := range rows {
		if t.Side != models.SideSell || t.Status != models.TradeStatusFilled {
			continue
		}
		symbol := strings.ToUpper(t.Symbol)
		at, ok := synced[symbol]
		if !ok {
			continue
		}
		filledAt := t.CreatedAt
		if t.FilledAt != nil {
			filledAt = *t.FilledAt
		}
		if filledAt.Before(at) {
			continue
		}
		out[symbol] += t.Quantity
	}
	return out, nil
}

func (g *Guardian) enforceStopLosses(ctx context.Context, positions []models.Position, quotes map[string]broker.Quote) error {
	var breached []models.Position
	for _, p := range positions {
		if !p.StopLossPrice.Valid || !p.StopLossPrice.Decimal.IsPositive() || p.Quantity <= 0 {
			continue
		}
		price, ok := quotes[p.Symbol].Price()
		if !ok || price.GreaterThan(p.StopLossPrice.Decimal) {
			continue
		}
		breached = append(breached, p)
	}
	if len(breached) == 0 || g.Orders == nil {
		return nil
	}

	inFlight, err := g.openSells(ctx)
	if err != nil {
		return fmt.Errorf("open sells: %w", err)
	}
	sold, err := g.soldSinceSync(ctx, breached, g.now())
	if err != nil {
		return fmt.Errorf("filled sells: %w", err)
	}

	var errs []error
	for _, p := range breached {
		if inFlight[strings.ToUpper(p.Symbol)] {
			g.log().Debug("guardian: stop-loss sell already in flight", zap.String("symbol", p.Symbol))
			continue
		}
		qty := p.Quantity - sold[strings.ToUpper(p.Symbol)]
		if qty <= 0 {
			g.log().Debug("guardian: position already sold, waiting for resync", zap.String("symbol", p.Symbol))
			continue
		}
		price, _ := quotes[p.Symbol].Price()
		stop := p.StopLossPrice.Decimal
		g.log().Warn("stop-loss triggered, placing market sell",
			zap.String("symbol", p.Symbol),
			zap.String("price", price.String()),
			zap.String("stop", stop.String()),
		)
		confidence := 1.0
		_, err := g.Orders.PlaceTrade(ctx, broker.TradeRequest{
			Symbol:     p.Symbol,
			Side:       models.SideSell,
			Quantity:   qty,
			OrderType:  models.OrderTypeMarket,
			Reasoning:  fmt.Sprintf("Stop-loss triggered: price %s <= stop %s", price.String(), stop.String()),
			Confidence: &confidence,
		})
		if err != nil {
			g.log().Error("stop-loss sell failed", zap.String("symbol", p.Symbol), zap.Error(err))
			errs = append(errs, fmt.Errorf("stop-loss %s: %w", p.Symbol, err))
			continue
		}
		inFlight[strings.ToUpper(p.Symbol)] = true
		metrics.StopLossTriggers.Inc()
		msg := fmt.Sprintf("Stop-loss executed for %s: price %s <= stop %s, sold %d shares", p.Symbol, price.String(), stop.String(), qty)
		if err := g.Repo.InsertAgentLog(ctx, &models.AgentLog{
			Level:   models.LogLevelAction,
			Phase:   "guardian",
			Message: msg,
		}); err != nil {
			g.log().Warn("guardian: agent log write failed", zap.Error(err))
		}
	}
	return errors.Join(errs...)
}

func (g *Guardian) refreshMarks(ctx context.Context, positions []models.Position, quotes map[string]broker.Quote) error {
	var errs []error
	for _, p := range positions {
		price, ok := quotes[p.Symbol].Price()
		if !ok {
			continue
		}
		qty := decimal.NewFromInt(p.Quantity)
		value := price.Mul(qty)
		unrealized := price.Sub(p.AvgCost).Mul(qty)
		if err := g.Repo.UpdatePositionMarks(ctx, p.ID, price, value, unrealized); err != nil {
			errs = append(errs, fmt.Errorf("marks %s: %w", p.Symbol, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Guardian) threshold() decimal.Decimal {
	if g.AlertThresholdPct.IsPositive() {
		return g.AlertThresholdPct.Div(decimal.NewFromInt(100))
	}
	return decimal.RequireFromString("0.03")
}

func (g *Guardian) accumulateAlerts(quotes map[string]broker.Quote, now time.Time) {
	if g.lastPrices == nil {
		g.lastPrices = map[string]decimal.Decimal{}
	}
	threshold := g.threshold()
	for symbol, q := range quotes {
		price, ok := q.Price()
		if !ok {
			continue
		}
		if prev, ok := g.lastPrices[symbol]; ok && prev.IsPositive() {
			move := price.Sub(prev).Div(prev)
			if move.Abs().GreaterThanOrEqual(threshold) {
				alert := PriceAlert{
					Symbol:  symbol,
					MovePct: move.Mul(decimal.NewFromInt(1000)).Round(0).Div(decimal.NewFromInt(10)),
					Price:   price,
					At:      now,
				}
				g.Alerts.Push(alert)
				metrics.PriceAlerts.Inc()
				g.log().Info("price alert queued",
					zap.String("symbol", symbol),
					zap.String("move_pct", alert.MovePct.StringFixed(1)),
					zap.String("price", price.String()),
				)
			}
		}
		g.lastPrices[symbol] = price
	}
}
