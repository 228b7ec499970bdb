// Package metrics holds the Prometheus collectors of the trading core. They
// are registered in init() and served by the admin API at /metrics.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_placed_total",
			Help: "Orders submitted to the gateway",
		},
		[]string{"mode", "side", "result"}, // result: submitted|error|timeout
	)

	OrderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_order_transitions_total",
			Help: "Trade status transitions applied, split by source",
		},
		[]string{"source", "status"}, // source: event|submit|reconcile|cleanup
	)

	RiskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_risk_rejections_total",
			Help: "BUY proposals denied by the risk gate or trade gates",
		},
		[]string{"gate"},
	)

	StopLossTriggers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_stop_loss_triggers_total",
			Help: "Stop-loss sells placed by the guardian",
		},
	)

	PriceAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_price_alerts_total",
			Help: "Price-move alerts queued by the guardian",
		},
	)

	GatewayConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_gateway_connected",
			Help: "1 while the gateway session is up",
		},
	)

	GatewayAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_gateway_disconnect_alerts_total",
			Help: "Operator alerts raised for gateway disconnects",
		},
	)

	TrackedOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_tracked_orders",
			Help: "Orders currently tracked by the live event path",
		},
	)

	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_ticks_total",
			Help: "Loop ticks by component and outcome",
		},
		[]string{"component", "outcome"}, // outcome: ok|error|skipped
	)

	NetLiquidation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_net_liquidation_gbp",
			Help: "Last observed account net liquidation",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersPlaced, OrderTransitions, RiskRejections)
	prometheus.MustRegister(StopLossTriggers, PriceAlerts)
	prometheus.MustRegister(GatewayConnected, GatewayAlerts, TrackedOrders)
	prometheus.MustRegister(Ticks, NetLiquidation)
}

// Handler exposes the default registry for gin.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
