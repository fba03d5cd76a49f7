// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// Cycle metrics
	CyclesTotal   prometheus.Counter
	CycleDuration prometheus.Histogram

	// Signal metrics
	DefconLevel       prometheus.Gauge
	SignalScore       prometheus.Gauge
	DefconTransitions *prometheus.CounterVec

	// News metrics
	ArticlesRetained prometheus.Gauge
	BreakingArticles prometheus.Gauge

	// Market metrics
	SnapshotStale prometheus.Gauge

	// Ledger metrics
	OpenPositions   prometheus.Gauge
	PositionsOpened prometheus.Counter
	PositionsClosed *prometheus.CounterVec

	// Alert metrics
	AlertsDropped *prometheus.CounterVec

	// Command metrics
	CommandsProcessed *prometheus.CounterVec

	// Persistence metrics
	PersistRetries prometheus.Counter
	SpilledWrites  prometheus.Counter
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hightrade"
	}

	return &Metrics{
		CyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of monitoring cycles run",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Wall time of one monitoring cycle",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		DefconLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "defcon_level",
			Help:      "Current defcon level (1 crisis .. 5 peacetime)",
		}),
		SignalScore: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "composite_score",
			Help:      "Latest composite signal score in [0,100]",
		}),
		DefconTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "defcon_transitions_total",
			Help:      "Total defcon transitions by direction",
		}, []string{"direction"}),

		ArticlesRetained: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "news",
			Name:      "articles_retained",
			Help:      "Articles retained after dedup in the latest cycle",
		}),
		BreakingArticles: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "news",
			Name:      "breaking_articles",
			Help:      "Breaking-urgency articles in the latest cycle",
		}),
		SnapshotStale: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "snapshot_stale",
			Help:      "1 when the latest snapshot carries synthetic prices",
		}),

		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "open_positions",
			Help:      "Currently open paper positions",
		}),
		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "positions_opened_total",
			Help:      "Total paper positions opened",
		}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "positions_closed_total",
			Help:      "Total paper positions closed by exit reason",
		}, []string{"reason"}),

		AlertsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "dropped_total",
			Help:      "Alerts dropped on transport failure by channel",
		}, []string{"channel"}),

		CommandsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "processed_total",
			Help:      "Operator commands processed by verb",
		}, []string{"verb"}),

		PersistRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "persist_retries_total",
			Help:      "Write retries after a persistence failure",
		}),
		SpilledWrites: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "spilled_writes_total",
			Help:      "Cycle artifacts diverted to the spill file",
		}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
