// Package metrics holds the Prometheus collectors exported by the service.
// Collectors are created unregistered; the metrics server registers them on
// its own registry via Collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "payplay"

var (
	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total number of game sessions created",
	})

	SessionsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_consumed_total",
		Help:      "Total number of sessions that submitted a score",
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of live sessions in the registry",
	})

	FeesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fees_recorded_total",
		Help:      "Total number of fee records appended to the journal",
	})

	PayoutCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_cycles_total",
		Help:      "Payout cycles by outcome",
	}, []string{"outcome"})

	PayoutCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payout_cycle_duration_seconds",
		Help:      "Wall time of a payout cycle including settlement",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	Settlements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Settlement attempts by status",
	}, []string{"status"})

	BroadcastDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_dropped_total",
		Help:      "Events dropped because a subscriber was not keeping up",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP API requests by route and status code",
	}, []string{"method", "route", "code"})
)

// Collectors returns every application collector for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SessionsCreated,
		SessionsConsumed,
		ActiveSessions,
		FeesRecorded,
		PayoutCycles,
		PayoutCycleDuration,
		Settlements,
		BroadcastDropped,
		HTTPRequests,
	}
}
