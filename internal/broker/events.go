package broker

import (
	"bytes"
	"encoding/json"

	"trader/internal/client/gateway"
	"trader/internal/models"
)

type OrderEvent struct {
	TradeID uint64
	Status  string
	Fill    *FillData
}

// decodeOrderStatus validates the raw order status block. A malformed block
// is reported as !ok and its fields are ignored.
func decodeOrderStatus(raw json.RawMessage) (*gateway.OrderStatus, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, true
	}
	var st gateway.OrderStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, false
	}
	return &st, true
}

// ProcessOrderUpdate turns one open-order update into events for tracked
// orders. Entries reaching a terminal status are removed from tracked.
func ProcessOrderUpdate(tracked map[int64]uint64, orders []gateway.OpenOrder) []OrderEvent {
	var events []OrderEvent
	for _, o := range orders {
		tradeID, ok := tracked[o.OrderID]
		if !ok {
			continue
		}
		if o.OrderState == nil || o.OrderState.Status == "" {
			continue
		}
		status := MapGatewayStatus(o.OrderState.Status)
		ev := OrderEvent{TradeID: tradeID, Status: status}
		if status == models.TradeStatusFilled {
			st, _ := decodeOrderStatus(o.OrderStatus)
			fd := ExtractFillData(o, st)
			ev.Fill = &fd
		}
		events = append(events, ev)
		if models.IsTerminalStatus(status) {
			delete(tracked, o.OrderID)
		}
	}
	return events
}
