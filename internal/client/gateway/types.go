package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

func ParseConnectionState(raw string) ConnectionState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "connected":
		return StateConnected
	case "connecting":
		return StateConnecting
	default:
		return StateDisconnected
	}
}

// Contract identifies an instrument on the gateway.
type Contract struct {
	Symbol          string `json:"symbol"`
	SecType         string `json:"sec_type"`
	Exchange        string `json:"exchange"`
	PrimaryExchange string `json:"primary_exchange"`
	Currency        string `json:"currency"`
}

// LSEStock builds a London-listed stock contract. Orders are SMART routed
// because the paper venue does not fill direct LSE routing.
func LSEStock(symbol string) Contract {
	return Contract{
		Symbol:          strings.ToUpper(strings.TrimSpace(symbol)),
		SecType:         "STK",
		Exchange:        "SMART",
		PrimaryExchange: "LSE",
		Currency:        "GBP",
	}
}

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"

	OrderTypeLimit  = "LMT"
	OrderTypeMarket = "MKT"

	TimeInForceDay = "DAY"
)

type OrderRequest struct {
	Contract      Contract         `json:"contract"`
	Action        string           `json:"action"`
	TotalQuantity int64            `json:"total_quantity"`
	OrderType     string           `json:"order_type"`
	LimitPrice    *decimal.Decimal `json:"lmt_price,omitempty"`
	TimeInForce   string           `json:"tif"`
	Transmit      bool             `json:"transmit"`
	OrderRef      string           `json:"order_ref,omitempty"`
}

type OrderState struct {
	Status     string              `json:"status"`
	Commission decimal.NullDecimal `json:"commission"`
}

type OrderStatus struct {
	Status       string              `json:"status,omitempty"`
	AvgFillPrice decimal.NullDecimal `json:"avg_fill_price"`
	Filled       decimal.NullDecimal `json:"filled"`
	Remaining    decimal.NullDecimal `json:"remaining"`
}

// OpenOrder is one entry of the open-order list. OrderStatus is kept raw so
// consumers can validate its shape before trusting any field.
type OpenOrder struct {
	OrderID     int64           `json:"order_id"`
	Symbol      string          `json:"symbol,omitempty"`
	OrderRef    string          `json:"order_ref,omitempty"`
	OrderState  *OrderState     `json:"order_state,omitempty"`
	OrderStatus json.RawMessage `json:"order_status,omitempty"`
}

type Execution struct {
	OrderID  *int64              `json:"order_id,omitempty"`
	OrderRef string              `json:"order_ref,omitempty"`
	Symbol   string              `json:"symbol"`
	Side     string              `json:"side"`
	Shares   decimal.Decimal     `json:"shares"`
	AvgPrice decimal.NullDecimal `json:"avg_price"`
	Time     string              `json:"time"`
}

type Position struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
}

type AccountSummary struct {
	AccountID          string          `json:"account_id"`
	NetLiquidation     decimal.Decimal `json:"net_liquidation"`
	TotalCashValue     decimal.Decimal `json:"total_cash_value"`
	BuyingPower        decimal.Decimal `json:"buying_power"`
	GrossPositionValue decimal.Decimal `json:"gross_position_value"`
	AvailableFunds     decimal.Decimal `json:"available_funds"`
}

type Quote struct {
	Symbol    string              `json:"symbol"`
	Bid       decimal.NullDecimal `json:"bid"`
	Ask       decimal.NullDecimal `json:"ask"`
	Last      decimal.NullDecimal `json:"last"`
	Volume    decimal.NullDecimal `json:"volume"`
	High      decimal.NullDecimal `json:"high"`
	Low       decimal.NullDecimal `json:"low"`
	Close     decimal.NullDecimal `json:"close"`
	Delayed   bool                `json:"delayed"`
	Timestamp time.Time           `json:"timestamp"`
}

type Bar struct {
	Time   string          `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume float64         `json:"volume"`
}

const (
	TopicConnection = "connection"
	TopicOpenOrders = "open_orders"
)

// Envelope is one websocket message from the bridge.
type Envelope struct {
	Type   string      `json:"type"`
	State  string      `json:"state,omitempty"`
	Orders []OpenOrder `json:"orders,omitempty"`
}
