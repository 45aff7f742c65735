package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// FleetRequestsTotal: operation = find_driver|order_count|classify_position,
	// outcome = ok|not_found|timeout|error|status_<code>
	FleetRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_requests_total",
			Help: "Requests to the Yandex Fleet API by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	FleetRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_request_duration_seconds",
			Help:    "Latency of Yandex Fleet API requests",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	SweepCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_cycles_total",
			Help: "Reconciliation cycles by result",
		},
		[]string{"result"},
	)

	// SweepEntriesTotal: result = updated|unknown|notified|skipped|error
	SweepEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_entries_total",
			Help: "Referral entries processed by the reconciliation sweep",
		},
		[]string{"result"},
	)

	SweepCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_cycle_duration_seconds",
			Help:    "Duration of a full reconciliation cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications by kind and result",
		},
		[]string{"kind", "result"},
	)

	EnrollmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_checks_total",
			Help: "Phone checks by resulting status",
		},
		[]string{"status"},
	)
)
