package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	// Namespace is the metrics namespace for the sandbox platform
	Namespace = "daytona"
)

var (
	// FleetRunners tracks the current number of runners by classification
	FleetRunners = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fleet_runners",
			Help:      "Current number of runners by classification (active, idle, deletable)",
		},
		[]string{"state"},
	)

	// FleetNodes tracks the current number of pool nodes
	FleetNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fleet_nodes",
			Help:      "Current number of nodes in the sandbox pool",
		},
	)

	// FleetNascentNodes tracks nodes whose runner has not registered yet
	FleetNascentNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fleet_nascent_nodes",
			Help:      "Current number of provisioned nodes without a registered runner",
		},
	)

	// FleetPlaceholders tracks placeholder pods by phase
	FleetPlaceholders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fleet_placeholder_pods",
			Help:      "Current number of placeholder pods by phase (pending, scheduled)",
		},
		[]string{"phase"},
	)

	// FleetCPUCapacity tracks aggregate CPU capacity in cores
	FleetCPUCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fleet_cpu_capacity_cores",
			Help:      "Aggregate CPU capacity of the runner fleet in cores",
		},
	)

	// FleetMemoryCapacity tracks aggregate memory capacity in GiB
	FleetMemoryCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fleet_memory_capacity_gib",
			Help:      "Aggregate memory capacity of the runner fleet in GiB",
		},
	)

	// FleetCPUAvailable tracks unallocated CPU in cores (may go negative)
	FleetCPUAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fleet_cpu_available_cores",
			Help:      "Unallocated CPU of the runner fleet in cores",
		},
	)

	// FleetMemoryAvailable tracks unallocated memory in GiB (may go negative)
	FleetMemoryAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fleet_memory_available_gib",
			Help:      "Unallocated memory of the runner fleet in GiB",
		},
	)

	// ScaleUpTotal tracks scale-up events
	ScaleUpTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scale_up_total",
			Help:      "Total number of scale-up events",
		},
	)

	// ScaleDownBlockedTotal tracks rejected scale-down candidates by reason
	ScaleDownBlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scale_down_blocked_total",
			Help:      "Total number of scale-down candidates rejected by reason",
		},
		[]string{"reason"},
	)

	// PlaceholdersCreatedTotal tracks placeholder pod creations
	PlaceholdersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "placeholder_pods_created_total",
			Help:      "Total number of placeholder pods created",
		},
	)

	// PlaceholdersDeletedTotal tracks placeholder pod deletions by reason
	PlaceholdersDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "placeholder_pods_deleted_total",
			Help:      "Total number of placeholder pods deleted by reason (scale_down, unjustified)",
		},
		[]string{"reason"},
	)

	// TickDuration tracks the duration of reconcile ticks
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fleet_tick_duration_seconds",
			Help:      "Duration of fleet reconcile ticks",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	// TickErrorsTotal tracks aborted reconcile ticks
	TickErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fleet_tick_errors_total",
			Help:      "Total number of reconcile ticks aborted by an error",
		},
	)

	// AuthAttemptsTotal tracks proxy credential attempts by method and outcome
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "proxy_auth_attempts_total",
			Help:      "Total number of proxy credential attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// AuthAttemptDuration tracks the duration of individual credential attempts
	AuthAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "proxy_auth_attempt_duration_seconds",
			Help:      "Duration of individual proxy credential attempts",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method"},
	)

	// AuthRedirectsTotal tracks redirects to the auth URL
	AuthRedirectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "proxy_auth_redirects_total",
			Help:      "Total number of unauthenticated requests redirected to the auth URL",
		},
	)

	// APIRequests tracks Daytona API requests by method and status
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "api_requests_total",
			Help:      "Total number of Daytona API requests by method and status",
		},
		[]string{"method", "status"},
	)

	// APIRequestDuration tracks Daytona API request durations
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Duration of Daytona API requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// APIRateLimitWaitDuration tracks time spent waiting on the client rate limiter
	APIRateLimitWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "api_rate_limit_wait_duration_seconds",
			Help:      "Time spent waiting for the Daytona API client rate limiter",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"method"},
	)
)

// RegisterMetrics registers all metrics with the controller-runtime metrics registry
func RegisterMetrics() {
	metrics.Registry.MustRegister(
		FleetRunners,
		FleetNodes,
		FleetNascentNodes,
		FleetPlaceholders,
		FleetCPUCapacity,
		FleetMemoryCapacity,
		FleetCPUAvailable,
		FleetMemoryAvailable,
		ScaleUpTotal,
		ScaleDownBlockedTotal,
		PlaceholdersCreatedTotal,
		PlaceholdersDeletedTotal,
		TickDuration,
		TickErrorsTotal,
		AuthAttemptsTotal,
		AuthAttemptDuration,
		AuthRedirectsTotal,
		APIRequests,
		APIRequestDuration,
		APIRateLimitWaitDuration,
	)
}

// ResetMetrics resets all vector metrics (useful for testing)
func ResetMetrics() {
	FleetRunners.Reset()
	FleetPlaceholders.Reset()
	ScaleDownBlockedTotal.Reset()
	PlaceholdersDeletedTotal.Reset()
	AuthAttemptsTotal.Reset()
	AuthAttemptDuration.Reset()
	APIRequests.Reset()
	APIRequestDuration.Reset()
	APIRateLimitWaitDuration.Reset()
}
