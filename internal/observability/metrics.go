// README: Prometheus metrics for dispatch and the HTTP API.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideservice", Name: "assignments_total", Help: "Rides successfully assigned to a driver"})
	UnmatchedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideservice", Name: "unmatched_total", Help: "Dispatch attempts that exhausted the search radius"})
	ConflictsTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideservice", Name: "assign_conflicts_total", Help: "Assignment attempts lost to a concurrent write"})
	DispatchErrors   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideservice", Name: "dispatch_errors_total", Help: "Per-ride dispatch attempts that failed with an error"})
	PendingRides     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "rideservice", Name: "pending_rides", Help: "Rides awaiting a driver at the last dispatch pass"})

	SearchRadiusKm = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rideservice",
		Name:      "search_radius_km",
		Help:      "Radius at which a driver was found",
		Buckets:   prometheus.LinearBuckets(1, 1, 20),
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rideservice", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rideservice",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
