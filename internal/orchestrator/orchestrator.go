package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader/internal/broker"
	"trader/internal/clock"
	"trader/internal/guardian"
	"trader/internal/metrics"
	"trader/internal/models"
	"trader/internal/service"
)

type State string

const (
	StateIdle          State = "idle"
	StatePreMarket     State = "pre_market"
	StateActiveTrading State = "active_trading"
	StateWindDown      State = "wind_down"
	StatePostMarket    State = "post_market"
	StateResearch      State = "research"
)

// StateFor maps a market phase to the orchestrator state it drives.
func StateFor(p clock.Phase) State {
	switch p {
	case clock.PhasePreMarket:
		return StatePreMarket
	case clock.PhaseOpen:
		return StateActiveTrading
	case clock.PhaseWindDown:
		return StateWindDown
	case clock.PhasePostMarket:
		return StatePostMarket
	case clock.PhaseResearch:
		return StateResearch
	default:
		return StateIdle
	}
}

type Store interface {
	ListPositions(ctx context.Context) ([]models.Position, error)
	UpsertHolding(ctx context.Context, item *models.Position) error
	DeletePosition(ctx context.Context, id uint64) error
	ListTradesByStatus(ctx context.Context, status string) ([]models.Trade, error)
	ListTradesSince(ctx context.Context, since time.Time) ([]models.Trade, error)
	ListActiveWatchlist(ctx context.Context, limit int) ([]models.WatchlistItem, error)
	ListRecentResearch(ctx context.Context, since time.Time, limit int) ([]models.Research, error)
	InsertAgentLog(ctx context.Context, item *models.AgentLog) error
	InsertDailySnapshot(ctx context.Context, item *models.DailySnapshot) (bool, error)
	LatestDailySnapshot(ctx context.Context) (*models.DailySnapshot, error)
	FirstDailySnapshot(ctx context.Context) (*models.DailySnapshot, error)
}

// AccountSource is satisfied by *broker.AccountService.
type AccountSource interface {
	GetAccountSummary(ctx context.Context) (*broker.AccountSnapshot, error)
	GetPositions(ctx context.Context) ([]broker.BrokerPosition, error)
}

// QuoteSource is satisfied by *broker.MarketData.
type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols []string, opts broker.QuoteOptions) (map[string]broker.Quote, error)
}

// Cleaner is satisfied by *broker.Reconciler.
type Cleaner interface {
	Run(ctx context.Context, final bool) (broker.CleanupResult, error)
}

const (
	watchlistScanLimit = 10
	researchLookback   = 24 * time.Hour
	researchScanLimit  = 50
)

// Orchestrator advances the agent through the trading day on every tick.
// At most one tick runs at a time; overlapping requests are dropped.
type Orchestrator struct {
	Repo     Store
	Account  AccountSource
	Quotes   QuoteSource
	Alerts   *guardian.AlertQueue
	Planner  Planner
	Cleanup  Cleaner
	Flags    *service.SystemSettingsService
	Clock    clock.Clock
	Logger   *zap.Logger

	// MoveThresholdPct flags a watchlist symbol whose price moved at least
	// this much since the previous tick. Zero means 2.
	MoveThresholdPct decimal.Decimal

	running atomic.Bool

	mu         sync.Mutex
	state      State
	lastPrices map[string]decimal.Decimal
}

func (o *Orchestrator) now() time.Time {
	if o.Clock == nil {
		return time.Now()
	}
	return o.Clock.Now()
}

func (o *Orchestrator) log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Orchestrator) State() State {
	if o == nil {
		return StateIdle
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == "" {
		return StateIdle
	}
	return o.state
}

// advance records the state for now and reports the previous one.
func (o *Orchestrator) advance(next State) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.state
	if prev == "" {
		prev = StateIdle
	}
	o.state = next
	return prev
}

// Tick runs one orchestrator pass. It returns nil when the tick was dropped
// or skipped.
func (o *Orchestrator) Tick(ctx context.Context) (err error) {
	if o == nil || o.Repo == nil {
		return nil
	}
	if !o.running.CompareAndSwap(false, true) {
		metrics.Ticks.WithLabelValues("orchestrator", "dropped").Inc()
		o.log().Debug("orchestrator tick already running, dropped")
		return nil
	}
	defer o.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator tick panic: %v", r)
		}
		if err != nil {
			metrics.Ticks.WithLabelValues("orchestrator", "error").Inc()
		}
	}()

	if o.Flags != nil && !o.Flags.IsEnabled(ctx, service.FeatureOrchestrator, true) {
		metrics.Ticks.WithLabelValues("orchestrator", "skipped").Inc()
		return nil
	}
	if o.Flags != nil && o.Flags.IsPaused(ctx) {
		metrics.Ticks.WithLabelValues("orchestrator", "skipped").Inc()
		o.log().Debug("trading is paused")
		return nil
	}

	now := o.now()
	phase := clock.PhaseAt(now)
	next := StateFor(phase)
	prev := o.advance(next)
	entered := prev != next
	if entered {
		o.logTransition(ctx, prev, next)
	}

	switch next {
	case StatePreMarket:
		if entered {
			err = o.onPreMarket(ctx, now)
		}
	case StateActiveTrading:
		err = o.onActiveTrading(ctx, now, phase)
	case StateWindDown:
		if entered {
			o.onWindDown(ctx)
		}
	case StatePostMarket:
		if entered {
			err = o.onPostMarket(ctx, now)
		}
	case StateResearch, StateIdle:
	}
	if err == nil {
		metrics.Ticks.WithLabelValues("orchestrator", "ok").Inc()
	}
	return err
}

func (o *Orchestrator) logTransition(ctx context.Context, prev, next State) {
	o.log().Info("state transition", zap.String("from", string(prev)), zap.String("to", string(next)))
	o.agentLog(ctx, models.LogLevelInfo, string(next), fmt.Sprintf("State transition: %s -> %s", prev, next))
}

func (o *Orchestrator) agentLog(ctx context.Context, level, phase, msg string) {
	if err := o.Repo.InsertAgentLog(ctx, &models.AgentLog{Level: level, Phase: phase, Message: msg}); err != nil {
		o.log().Warn("agent log write failed", zap.String("message", msg), zap.Error(err))
	}
}

func (o *Orchestrator) onPreMarket(ctx context.Context, now time.Time) error {
	o.log().Info("pre-market phase starting")
	if o.Account == nil {
		return errors.New("pre-market: no account source")
	}
	summary, err := o.Account.GetAccountSummary(ctx)
	if err != nil {
		return fmt.Errorf("pre-market account summary: %w", err)
	}
	o.log().Info("account synced",
		zap.String("net_liquidation", summary.NetLiquidation.StringFixed(2)),
		zap.String("cash", summary.TotalCashValue.StringFixed(2)),
	)
	if _, err := o.ReconcilePositions(ctx); err != nil {
		return fmt.Errorf("pre-market: %w", err)
	}

	positions, err := o.Repo.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("pre-market positions: %w", err)
	}
	watch, err := o.Repo.ListActiveWatchlist(ctx, 2*watchlistScanLimit)
	if err != nil {
		o.log().Warn("pre-market: watchlist unavailable", zap.Error(err))
	}
	o.handOff(ctx, PlanInput{
		TickID:    uuid.NewString(),
		At:        now,
		Phase:     clock.PhasePreMarket,
		State:     StatePreMarket,
		Account:   summary,
		Positions: positions,
		Watchlist: watchQuotes(watch, nil),
	})
	return nil
}

func (o *Orchestrator) onActiveTrading(ctx context.Context, now time.Time, phase clock.Phase) error {
	in, err := o.GatherSignals(ctx, now)
	if err != nil {
		return fmt.Errorf("gather signals: %w", err)
	}
	in.Phase = phase
	in.State = StateActiveTrading
	if o.Account != nil {
		if summary, err := o.Account.GetAccountSummary(ctx); err != nil {
			o.log().Warn("account summary unavailable", zap.Error(err))
		} else {
			in.Account = summary
		}
	}
	if len(in.Reasons) > 0 {
		o.log().Info("notable changes detected", zap.Strings("reasons", in.Reasons))
	}
	o.handOff(ctx, in)
	return nil
}

func (o *Orchestrator) onWindDown(ctx context.Context) {
	o.log().Info("entering wind-down phase, no new orders")
	o.agentLog(ctx, models.LogLevelInfo, string(StateWindDown), "Entering wind-down phase. No new orders.")
}

func (o *Orchestrator) onPostMarket(ctx context.Context, now time.Time) error {
	o.log().Info("post-market phase starting")
	var errs []error
	if _, err := o.ReconcilePositions(ctx); err != nil {
		errs = append(errs, fmt.Errorf("post-market: %w", err))
	}
	if _, err := o.RecordDailySnapshot(ctx); err != nil {
		errs = append(errs, fmt.Errorf("post-market: %w", err))
	}
	if o.Cleanup != nil {
		res, err := o.Cleanup.Run(ctx, true)
		if err != nil {
			errs = append(errs, fmt.Errorf("post-market cleanup: %w", err))
		} else {
			o.log().Info("post-market cleanup done",
				zap.String("date", clock.LocalDate(now)),
				zap.Int("checked", res.Checked),
				zap.Int("filled", res.Filled),
				zap.Int("cancelled", res.Cancelled),
				zap.Int("errored", res.Errored),
			)
		}
	}
	return errors.Join(errs...)
}

// handOff passes a tick's view to the planner. Planner failures never fail
// the tick.
func (o *Orchestrator) handOff(ctx context.Context, in PlanInput) {
	if o.Planner == nil {
		return
	}
	if err := o.Planner.Plan(ctx, in); err != nil {
		o.log().Warn("planner hand-off failed",
			zap.String("tick_id", in.TickID),
			zap.String("phase", string(in.Phase)),
			zap.Error(err),
		)
	}
}
