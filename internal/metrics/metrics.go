// Package metrics provides Prometheus observability for the rotation
// service: allocation outcomes, latency, and pool health.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for the service.
var Registry = prometheus.NewRegistry()

// factory registers metrics to the custom Registry directly.
var factory = promauto.With(Registry)

// AllocationsTotal counts allocation requests by outcome
// (allocated, none_available, rate_limited, invalid_input,
// invalid_destination, unavailable).
var AllocationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rotation",
	Name:      "allocations_total",
	Help:      "Total allocation requests by outcome",
}, []string{"outcome"})

// AllocationDurationSeconds tracks end-to-end allocation latency.
var AllocationDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "rotation",
	Name:      "allocation_duration_seconds",
	Help:      "Time taken to serve one allocation request",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
})

// CandidateScanDepth tracks how many candidates one tier scan examined
// before a reservation was won or the tier was exhausted.
var CandidateScanDepth = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "rotation",
	Name:      "candidate_scan_depth",
	Help:      "Candidates examined per allocation tier scan",
	Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 50},
})

// ReservationAttemptsTotal counts conditional reservation creates, including
// ones lost to contention or rolled back on a cap violation.
var ReservationAttemptsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "rotation",
	Name:      "reservation_attempts_total",
	Help:      "Conditional reservation creates attempted during allocation",
})

// ReleasesTotal counts explicit reservation releases.
var ReleasesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "rotation",
	Name:      "releases_total",
	Help:      "Total explicit reservation releases",
})

// PoolActiveNumbers reports the number of active caller-IDs, refreshed by
// the admin surface on list/create/deactivate.
var PoolActiveNumbers = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "rotation",
	Name:      "pool_active_numbers",
	Help:      "Active caller-IDs currently in the pool",
})

// ObserveAllocation records one request's outcome and latency.
func ObserveAllocation(outcome string, elapsed time.Duration) {
	AllocationsTotal.WithLabelValues(outcome).Inc()
	AllocationDurationSeconds.Observe(elapsed.Seconds())
}
