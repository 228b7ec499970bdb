package broker

import (
	"trader/internal/client/gateway"
	"trader/internal/models"
)

// SubmittedTrade is the slice of a SUBMITTED trade row reconciliation needs.
type SubmittedTrade struct {
	ID             uint64
	GatewayOrderID int64
	Symbol         string
}

type StatusUpdate struct {
	TradeID   uint64
	NewStatus string
	Fill      *FillData
}

// ComputeReconciliation resolves SUBMITTED trades against the gateway's open
// orders and recent executions. A trade found in neither is left alone.
func ComputeReconciliation(trades []SubmittedTrade, open []gateway.OpenOrder, executions []gateway.Execution) []StatusUpdate {
	if len(trades) == 0 {
		return nil
	}
	orderByID := make(map[int64]gateway.OpenOrder, len(open))
	for _, o := range open {
		orderByID[o.OrderID] = o
	}
	execByID := make(map[int64]gateway.Execution, len(executions))
	for _, e := range executions {
		if e.OrderID != nil {
			execByID[*e.OrderID] = e
		}
	}

	var updates []StatusUpdate
	for _, t := range trades {
		if o, ok := orderByID[t.GatewayOrderID]; ok {
			if o.OrderState == nil || o.OrderState.Status == "" {
				continue
			}
			mapped := MapGatewayStatus(o.OrderState.Status)
			if mapped == models.TradeStatusSubmitted {
				continue
			}
			u := StatusUpdate{TradeID: t.ID, NewStatus: mapped}
			if mapped == models.TradeStatusFilled {
				st, _ := decodeOrderStatus(o.OrderStatus)
				fd := ExtractFillData(o, st)
				u.Fill = &fd
			}
			updates = append(updates, u)
			continue
		}
		if e, ok := execByID[t.GatewayOrderID]; ok && e.AvgPrice.Valid && !e.AvgPrice.Decimal.IsZero() {
			updates = append(updates, StatusUpdate{
				TradeID:   t.ID,
				NewStatus: models.TradeStatusFilled,
				Fill:      &FillData{FillPrice: e.AvgPrice},
			})
		}
	}
	return updates
}

// RefMatch is where an order reference turned up at the gateway. Fill is set
// when the order is only known from an execution.
type RefMatch struct {
	OrderID int64
	Fill    *FillData
}

// MatchByRef looks up orders by the reference stamped on them at submission.
// An open order wins over an execution for the same reference.
func MatchByRef(refs []string, open []gateway.OpenOrder, executions []gateway.Execution) map[string]RefMatch {
	want := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref != "" {
			want[ref] = true
		}
	}
	out := map[string]RefMatch{}
	if len(want) == 0 {
		return out
	}
	for _, o := range open {
		if want[o.OrderRef] && o.OrderID > 0 {
			out[o.OrderRef] = RefMatch{OrderID: o.OrderID}
		}
	}
	for _, e := range executions {
		if !want[e.OrderRef] || e.OrderID == nil || *e.OrderID <= 0 {
			continue
		}
		if _, ok := out[e.OrderRef]; ok {
			continue
		}
		if !e.AvgPrice.Valid || e.AvgPrice.Decimal.IsZero() {
			continue
		}
		out[e.OrderRef] = RefMatch{OrderID: *e.OrderID, Fill: &FillData{FillPrice: e.AvgPrice}}
	}
	return out
}
