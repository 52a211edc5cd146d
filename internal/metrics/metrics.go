// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FillsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "whalewatch_fills_ingested_total", Help: "Fills stored by the collector"},
	)
	FillsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "whalewatch_fills_rejected_total", Help: "Fills dropped at the exchange boundary"},
		[]string{"reason"},
	)
	TradersTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "whalewatch_traders_tracked", Help: "Traders currently tracked"},
	)
	ConsensusSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "whalewatch_consensus_signals_total", Help: "Consensus signals emitted"},
		[]string{"asset", "direction"},
	)
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "whalewatch_notifications_total", Help: "Notification deliveries by sender and outcome"},
		[]string{"sender", "outcome"},
	)
	ExchangeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "whalewatch_exchange_requests_total", Help: "Exchange API requests by request type and outcome"},
		[]string{"type", "outcome"},
	)
	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whalewatch_cycle_duration_seconds",
			Help:    "Duration of discovery, collection and analysis cycles",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"cycle"},
	)
)

func init() {
	prometheus.MustRegister(
		FillsIngested,
		FillsRejected,
		TradersTracked,
		ConsensusSignals,
		NotificationsSent,
		ExchangeRequests,
		CycleDuration,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
