package broker

import (
	"github.com/shopspring/decimal"

	"trader/internal/client/gateway"
	"trader/internal/models"
)

// CommissionSentinel is the value at or above which the gateway means
// "commission unknown".
var CommissionSentinel = decimal.New(1, 9)

var gatewayStatusMap = map[string]string{
	"Submitted":     models.TradeStatusSubmitted,
	"PreSubmitted":  models.TradeStatusSubmitted,
	"PendingSubmit": models.TradeStatusSubmitted,
	"PendingCancel": models.TradeStatusSubmitted,
	"Filled":        models.TradeStatusFilled,
	"Cancelled":     models.TradeStatusCancelled,
	"ApiCancelled":  models.TradeStatusCancelled,
	"Inactive":      models.TradeStatusError,
}

// MapGatewayStatus maps a gateway order status to the local enum. Unknown
// strings stay SUBMITTED rather than guessing a terminal state.
func MapGatewayStatus(status string) string {
	if mapped, ok := gatewayStatusMap[status]; ok {
		return mapped
	}
	return models.TradeStatusSubmitted
}

type FillData struct {
	FillPrice  decimal.NullDecimal
	Commission decimal.NullDecimal
}

// ExtractFillData reads fill price and commission from an order, dropping a
// non-positive price and a sentinel commission.
func ExtractFillData(o gateway.OpenOrder, st *gateway.OrderStatus) FillData {
	var fd FillData
	if st != nil && st.AvgFillPrice.Valid && st.AvgFillPrice.Decimal.IsPositive() {
		fd.FillPrice = st.AvgFillPrice
	}
	if o.OrderState != nil && o.OrderState.Commission.Valid && o.OrderState.Commission.Decimal.LessThan(CommissionSentinel) {
		fd.Commission = o.OrderState.Commission
	}
	return fd
}
