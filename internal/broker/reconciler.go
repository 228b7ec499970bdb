package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"trader/internal/client/gateway"
	"trader/internal/clock"
	"trader/internal/metrics"
	"trader/internal/models"
)

type CleanupResult struct {
	Checked   int `json:"checked"`
	Filled    int `json:"filled"`
	Cancelled int `json:"cancelled"`
	Errored   int `json:"errored"`
	Recovered int `json:"recovered"`
	Skipped   int `json:"skipped"`
}

// Reconciler runs the periodic and end-of-day order reconciliation passes.
type Reconciler struct {
	Gateway Gateway
	Store   TradeStore
	Events  EventLog
	Tracker *OrderTracker
	Clock   clock.Clock
	Logger  *zap.Logger
	Timeout time.Duration

	// PendingAge is how long a PENDING row without a gateway id must sit
	// before it is looked up by reference. Younger rows may still be inside
	// PlaceTrade.
	PendingAge time.Duration
}

func (r *Reconciler) timeout() time.Duration {
	if r.Timeout <= 0 {
		return 15 * time.Second
	}
	return r.Timeout
}

func (r *Reconciler) pendingAge() time.Duration {
	if r.PendingAge > 0 {
		return r.PendingAge
	}
	return 4 * r.timeout()
}

func (r *Reconciler) now() time.Time {
	if r.Clock == nil {
		return time.Now()
	}
	return r.Clock.Now()
}

func (r *Reconciler) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Run resolves SUBMITTED trades, and PENDING trades whose submission timed
// out, against the gateway. With final set, trades still unresolved are
// cancelled as expired day orders.
func (r *Reconciler) Run(ctx context.Context, final bool) (CleanupResult, error) {
	var res CleanupResult
	if r == nil || r.Gateway == nil || r.Store == nil {
		return res, nil
	}
	rows, err := r.Store.ListTradesByStatus(ctx, models.TradeStatusSubmitted)
	if err != nil {
		return res, fmt.Errorf("list submitted trades: %w", err)
	}
	submitted := make([]SubmittedTrade, 0, len(rows))
	for _, t := range rows {
		if t.GatewayOrderID == nil {
			continue
		}
		submitted = append(submitted, SubmittedTrade{ID: t.ID, GatewayOrderID: *t.GatewayOrderID, Symbol: t.Symbol})
	}
	now := r.now()
	pending, err := r.stalePending(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list pending trades: %w", err)
	}
	res.Checked = len(submitted) + len(pending)
	if res.Checked == 0 {
		return res, nil
	}

	open, err := withTimeout(ctx, "open orders", r.timeout(), r.Gateway.OpenOrders)
	if err != nil {
		return res, fmt.Errorf("fetch open orders: %w", err)
	}
	execs, err := withTimeout(ctx, "executions", r.timeout(), r.Gateway.Executions)
	if err != nil {
		return res, fmt.Errorf("fetch executions: %w", err)
	}

	source := "reconcile"
	if final {
		source = "cleanup"
	}
	submitted = append(submitted, r.resolvePending(ctx, pending, open, execs, final, now, source, &res)...)

	updates := ComputeReconciliation(submitted, open, execs)
	actions := ComputeCleanupActions(submitted, updates, final)
	for _, a := range actions {
		fill := &FillData{FillPrice: a.FillPrice, Commission: a.Commission}
		changed, err := applyTransition(ctx, r.Store, a.TradeID, a.Action, fill, now)
		r.record(&res, a.TradeID, a.Action, changed, err, source)
	}

	if final && r.Events != nil && (res.Filled > 0 || res.Cancelled > 0 || res.Errored > 0) {
		data, _ := json.Marshal(res)
		_ = r.Events.InsertAgentLog(ctx, &models.AgentLog{
			Level:   models.LogLevelAction,
			Phase:   "post_market",
			Message: fmt.Sprintf("Order cleanup: %d filled, %d cancelled, %d errored of %d checked", res.Filled, res.Cancelled, res.Errored, res.Checked),
			Data:    datatypes.JSON(data),
		})
	}
	return res, nil
}

// stalePending lists PENDING trades old enough that their submission has
// finished without recording a gateway id.
func (r *Reconciler) stalePending(ctx context.Context, now time.Time) ([]models.Trade, error) {
	rows, err := r.Store.ListTradesByStatus(ctx, models.TradeStatusPending)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-r.pendingAge())
	out := make([]models.Trade, 0, len(rows))
	for _, t := range rows {
		if t.GatewayOrderID != nil || t.OrderRef == "" || t.CreatedAt.After(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// resolvePending finds timed-out submissions by order reference. Orders
// found open come back as SUBMITTED trades for the normal pass; the final
// pass cancels the ones the gateway never saw.
func (r *Reconciler) resolvePending(ctx context.Context, pending []models.Trade, open []gateway.OpenOrder, execs []gateway.Execution, final bool, now time.Time, source string, res *CleanupResult) []SubmittedTrade {
	if len(pending) == 0 {
		return nil
	}
	refs := make([]string, 0, len(pending))
	for _, t := range pending {
		refs = append(refs, t.OrderRef)
	}
	matches := MatchByRef(refs, open, execs)

	var recovered []SubmittedTrade
	for _, t := range pending {
		m, ok := matches[t.OrderRef]
		switch {
		case ok && m.Fill != nil:
			updates := transitionUpdates(models.TradeStatusFilled, m.Fill, now)
			updates["gateway_order_id"] = m.OrderID
			changed, err := r.Store.TransitionTrade(ctx, t.ID, []string{models.TradeStatusPending}, models.TradeStatusFilled, updates)
			r.record(res, t.ID, models.TradeStatusFilled, changed, err, source)
		case ok:
			changed, err := r.Store.TransitionTrade(ctx, t.ID, []string{models.TradeStatusPending}, models.TradeStatusSubmitted, map[string]any{
				"gateway_order_id": m.OrderID,
			})
			r.record(res, t.ID, models.TradeStatusSubmitted, changed, err, source)
			if err != nil || !changed {
				continue
			}
			r.Tracker.Track(ctx, m.OrderID, t.ID)
			recovered = append(recovered, SubmittedTrade{ID: t.ID, GatewayOrderID: m.OrderID, Symbol: t.Symbol})
		case final:
			changed, err := applyTransition(ctx, r.Store, t.ID, models.TradeStatusCancelled, nil, now)
			r.record(res, t.ID, models.TradeStatusCancelled, changed, err, source)
		}
	}
	return recovered
}

func (r *Reconciler) record(res *CleanupResult, tradeID uint64, status string, changed bool, err error, source string) {
	if err != nil {
		r.log().Warn("apply reconcile action failed", zap.Uint64("trade_id", tradeID), zap.Error(err))
		return
	}
	if !changed {
		res.Skipped++
		return
	}
	metrics.OrderTransitions.WithLabelValues(source, status).Inc()
	switch status {
	case models.TradeStatusFilled:
		res.Filled++
	case models.TradeStatusCancelled:
		res.Cancelled++
	case models.TradeStatusError:
		res.Errored++
	case models.TradeStatusSubmitted:
		res.Recovered++
	}
	r.log().Info("trade reconciled",
		zap.Uint64("trade_id", tradeID),
		zap.String("status", status),
		zap.String("source", source),
	)
}
