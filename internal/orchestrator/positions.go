package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader/internal/models"
	"trader/internal/risk"
)

type ReconcileResult struct {
	Upserted int `json:"upserted"`
	Created  int `json:"created"`
	Deleted  int `json:"deleted"`
}

// ReconcilePositions makes the positions table mirror the gateway. New rows
// get the default stop-loss; existing rows keep their levels.
func (o *Orchestrator) ReconcilePositions(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	if o.Account == nil {
		return res, errors.New("reconcile positions: no account source")
	}
	// Taken before the fetch so a fill racing it is treated as unseen.
	syncedAt := o.now().UTC()
	remote, err := o.Account.GetPositions(ctx)
	if err != nil {
		return res, fmt.Errorf("broker positions: %w", err)
	}
	local, err := o.Repo.ListPositions(ctx)
	if err != nil {
		return res, fmt.Errorf("list positions: %w", err)
	}
	known := make(map[string]bool, len(local))
	for _, p := range local {
		known[strings.ToUpper(p.Symbol)] = true
	}

	live := map[string]bool{}
	var errs []error
	for _, bp := range remote {
		symbol := strings.ToUpper(strings.TrimSpace(bp.Symbol))
		if symbol == "" || bp.Quantity == 0 {
			continue
		}
		live[symbol] = true
		item := &models.Position{Symbol: symbol, Quantity: bp.Quantity, AvgCost: bp.AvgCost, SyncedAt: &syncedAt}
		if !known[symbol] && bp.AvgCost.IsPositive() {
			item.StopLossPrice = decimal.NewNullDecimal(risk.CalculateStopLoss(bp.AvgCost))
		}
		if err := o.Repo.UpsertHolding(ctx, item); err != nil {
			errs = append(errs, fmt.Errorf("upsert %s: %w", symbol, err))
			continue
		}
		res.Upserted++
		if !known[symbol] {
			res.Created++
		}
	}

	for _, p := range local {
		if live[strings.ToUpper(p.Symbol)] {
			continue
		}
		if err := o.Repo.DeletePosition(ctx, p.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", p.Symbol, err))
			continue
		}
		res.Deleted++
		o.log().Info("position removed, no longer held", zap.String("symbol", p.Symbol))
	}

	o.log().Info("positions reconciled",
		zap.Int("broker", len(remote)),
		zap.Int("upserted", res.Upserted),
		zap.Int("created", res.Created),
		zap.Int("deleted", res.Deleted),
	)
	return res, errors.Join(errs...)
}
