// Package metrics holds the Prometheus collectors of the ledger service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termledger_sessions_started_total",
		Help: "Sessions successfully started.",
	})

	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termledger_sessions_closed_total",
		Help: "Sessions closed, by termination path.",
	}, []string{"path"})

	RefundedSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termledger_refunded_seconds_total",
		Help: "Unused seconds returned to wallets, by termination path.",
	}, []string{"path"})

	TransitionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termledger_transition_conflicts_total",
		Help: "Terminal transitions lost to a concurrent writer.",
	}, []string{"operation"})

	PartialFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termledger_partial_failures_total",
		Help: "Close paths whose transition committed but whose settlement did not.",
	})

	PendingSettlements = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "termledger_pending_settlements",
		Help: "Settlements waiting to be retried.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "termledger_active_sessions",
		Help: "In-use terminals seen by the last sweep.",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "termledger_sweep_duration_seconds",
		Help:    "Time spent in one expiry sweep.",
		Buckets: prometheus.DefBuckets,
	})

	BusEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termledger_bus_events_total",
		Help: "Change events handed to the notification bus, by result.",
	}, []string{"result"})

	Viewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "termledger_ws_viewers",
		Help: "Connected websocket viewers.",
	})
)
