package metrics

import (
	"time"
)

// RecordFleetState records gauges derived from a reconcile tick's snapshot.
func RecordFleetState(active, idle, deletable, nodes, nascent, pending, scheduled int) {
	FleetRunners.WithLabelValues("active").Set(float64(active))
	FleetRunners.WithLabelValues("idle").Set(float64(idle))
	FleetRunners.WithLabelValues("deletable").Set(float64(deletable))
	FleetNodes.Set(float64(nodes))
	FleetNascentNodes.Set(float64(nascent))
	FleetPlaceholders.WithLabelValues("pending").Set(float64(pending))
	FleetPlaceholders.WithLabelValues("scheduled").Set(float64(scheduled))
}

// RecordFleetCapacity records the aggregated capacity gauges.
func RecordFleetCapacity(cpuCapacity, memCapacity, cpuAvailable, memAvailable float64) {
	FleetCPUCapacity.Set(cpuCapacity)
	FleetMemoryCapacity.Set(memCapacity)
	FleetCPUAvailable.Set(cpuAvailable)
	FleetMemoryAvailable.Set(memAvailable)
}

// RecordTick records the duration of a reconcile tick and whether it aborted.
func RecordTick(duration time.Duration, err error) {
	TickDuration.Observe(duration.Seconds())
	if err != nil {
		TickErrorsTotal.Inc()
	}
}

// RecordAuthAttempt records one proxy credential attempt.
func RecordAuthAttempt(method, outcome string, duration time.Duration) {
	AuthAttemptsTotal.WithLabelValues(method, outcome).Inc()
	AuthAttemptDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordAPIRequest records a completed Daytona API request.
func RecordAPIRequest(method, status string, duration time.Duration) {
	APIRequests.WithLabelValues(method, status).Inc()
	APIRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
