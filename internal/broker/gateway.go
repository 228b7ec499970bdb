package broker

import (
	"context"
	"time"

	"trader/internal/client/gateway"
)

// Gateway is the brokerage session as seen by the core. *gateway.Client
// implements it; tests use in-memory fakes.
type Gateway interface {
	Connect(ctx context.Context, clientID int) error
	Disconnect(ctx context.Context) error
	ServerTime(ctx context.Context) (time.Time, error)

	PlaceOrder(ctx context.Context, req gateway.OrderRequest) (int64, error)
	CancelOrder(ctx context.Context, orderID int64) error
	OpenOrders(ctx context.Context) ([]gateway.OpenOrder, error)
	Executions(ctx context.Context) ([]gateway.Execution, error)

	Positions(ctx context.Context) ([]gateway.Position, error)
	AccountSummary(ctx context.Context) (*gateway.AccountSummary, error)
	Snapshot(ctx context.Context, symbols []string) ([]gateway.Quote, error)
	HistoricalBars(ctx context.Context, symbol, duration, barSize string) ([]gateway.Bar, error)

	// Subscribe blocks delivering envelopes for topic until the stream ends.
	Subscribe(ctx context.Context, topic string, fn func(gateway.Envelope)) error
}

var _ Gateway = (*gateway.Client)(nil)

// Alerter receives operator alerts. Delivery is best effort.
type Alerter interface {
	SendCriticalAlert(ctx context.Context, subject, body string)
}

type nopAlerter struct{}

func (nopAlerter) SendCriticalAlert(context.Context, string, string) {}
