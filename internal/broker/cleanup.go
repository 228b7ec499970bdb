package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trader/internal/models"
)

type CleanupAction struct {
	TradeID    uint64
	Action     string // FILLED, CANCELLED or ERROR
	FillPrice  decimal.NullDecimal
	Commission decimal.NullDecimal
}

// ComputeCleanupActions decides what to write for each SUBMITTED trade given
// the reconciliation result. A terminal gateway status is applied as mapped.
// Only the final pass resolves trades that reconciliation could not, and it
// resolves them to CANCELLED.
func ComputeCleanupActions(trades []SubmittedTrade, reconciled []StatusUpdate, final bool) []CleanupAction {
	byTrade := make(map[uint64]StatusUpdate, len(reconciled))
	for _, u := range reconciled {
		byTrade[u.TradeID] = u
	}
	var actions []CleanupAction
	for _, t := range trades {
		if u, ok := byTrade[t.ID]; ok {
			switch u.NewStatus {
			case models.TradeStatusFilled:
				a := CleanupAction{TradeID: t.ID, Action: models.TradeStatusFilled}
				if u.Fill != nil {
					a.FillPrice = u.Fill.FillPrice
					a.Commission = u.Fill.Commission
				}
				actions = append(actions, a)
				continue
			case models.TradeStatusCancelled, models.TradeStatusError:
				actions = append(actions, CleanupAction{TradeID: t.ID, Action: u.NewStatus})
				continue
			}
		}
		if final {
			actions = append(actions, CleanupAction{TradeID: t.ID, Action: models.TradeStatusCancelled})
		}
	}
	return actions
}

// openStatuses are the statuses a transition may leave.
var openStatuses = []string{
	models.TradeStatusPending,
	models.TradeStatusSubmitted,
	models.TradeStatusPartiallyFilled,
}

func transitionUpdates(status string, fill *FillData, now time.Time) map[string]any {
	updates := map[string]any{}
	if status != models.TradeStatusFilled {
		return updates
	}
	updates["filled_at"] = now.UTC()
	if fill != nil {
		if fill.FillPrice.Valid {
			updates["fill_price"] = fill.FillPrice
		}
		if fill.Commission.Valid {
			updates["commission"] = fill.Commission
		}
	}
	return updates
}

// applyTransition writes status to a trade that is still open. Writing to a
// terminal trade is a no-op and reports false.
func applyTransition(ctx context.Context, store TradeStore, tradeID uint64, status string, fill *FillData, now time.Time) (bool, error) {
	return store.TransitionTrade(ctx, tradeID, openStatuses, status, transitionUpdates(status, fill, now))
}
