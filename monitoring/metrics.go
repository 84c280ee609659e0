package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_mutations_total",
			Help: "Total mutation commands by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	debounced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_debounced_total",
			Help: "Mutation requests suppressed by the debounce guard",
		},
		[]string{"operation"},
	)

	broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_total",
			Help: "Change events delivered to subscribers",
		},
		[]string{"event"},
	)

	broadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_dropped_subscribers_total",
			Help: "Subscribers detached for not draining their channel",
		},
	)

	connectedDashboards = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connected_dashboards_total",
			Help: "Currently connected dashboard sessions",
		},
	)

	storeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_call_duration_seconds",
			Help:    "Duration of registration store calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"operation"},
	)
)

func TrackMutation(operation, outcome string) {
	mutations.WithLabelValues(operation, outcome).Inc()
}

func TrackDebounced(operation string) {
	debounced.WithLabelValues(operation).Inc()
}

func TrackBroadcast(event string) {
	broadcasts.WithLabelValues(event).Inc()
}

func TrackBroadcastDrop() {
	broadcastDrops.Inc()
}

func DashboardConnected() {
	connectedDashboards.Inc()
}

func DashboardDisconnected() {
	connectedDashboards.Dec()
}

func TrackStoreCall(operation string, duration time.Duration) {
	storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
