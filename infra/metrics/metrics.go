// Package metrics holds the engine's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	OrdersAccepted prometheus.Counter
	OrdersRejected prometheus.Counter
	Trades         prometheus.Counter
	TradedQuantity prometheus.Counter
	Cancellations  prometheus.Counter
	Claims         *prometheus.CounterVec
	CommandErrors  prometheus.Counter
	WALAppends     prometheus.Counter

	CommandDuration  *prometheus.HistogramVec
	SnapshotDuration prometheus.Histogram
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "njord_orders_accepted_total",
			Help: "Orders that matched or rested.",
		}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "njord_orders_rejected_total",
			Help: "Remainders dropped below the item minimum.",
		}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "njord_trades_total",
			Help: "Maker orders filled, fully or partially.",
		}),
		TradedQuantity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "njord_traded_quantity_total",
			Help: "Item units traded.",
		}),
		Cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "njord_cancellations_total",
			Help: "Resting orders cancelled by their maker.",
		}),
		Claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "njord_claims_total",
			Help: "Claims settled, by kind.",
		}, []string{"kind"}),
		CommandErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "njord_command_errors_total",
			Help: "Commands that failed validation or settlement.",
		}),
		WALAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "njord_wal_appends_total",
			Help: "Records appended to the command journal.",
		}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "njord_command_duration_seconds",
			Help:    "Wall time of one command under the write lock.",
			Buckets: prometheus.ExponentialBuckets(10e-6, 4, 10),
		}, []string{"command"}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "njord_snapshot_duration_seconds",
			Help:    "Wall time of one snapshot write.",
			Buckets: prometheus.ExponentialBuckets(1e-3, 4, 8),
		}),
	}
	reg.MustRegister(
		m.OrdersAccepted, m.OrdersRejected, m.Trades, m.TradedQuantity,
		m.Cancellations, m.Claims, m.CommandErrors, m.WALAppends,
		m.CommandDuration, m.SnapshotDuration,
	)
	return m
}
