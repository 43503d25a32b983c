// Package metrics exposes Prometheus metrics and the health endpoints.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Simulation metrics.
var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickersim_ticks_total",
		Help: "Total number of simulation ticks.",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tickersim_tick_duration_seconds",
		Help:    "Time to advance all instruments and build a snapshot.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	InstrumentPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tickersim_instrument_price",
		Help: "Latest simulated price per instrument.",
	}, []string{"symbol"})
)

// Session metrics.
var (
	SessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickersim_sessions_connected",
		Help: "Number of currently connected sessions.",
	})
)

// Order flow metrics.
var (
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickersim_orders_total",
		Help: "Orders processed by symbol, side and outcome.",
	}, []string{"symbol", "side", "status"})

	OrderRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickersim_order_rejections_total",
		Help: "Rejected orders by reason.",
	}, []string{"reason"})

	OrderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tickersim_order_latency_seconds",
		Help:    "End-to-end order handling latency.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
	})

	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickersim_trades_total",
		Help: "Filled trades by symbol and side.",
	}, []string{"symbol", "side"})
)
