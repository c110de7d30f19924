package fleet

import (
	"math"

	"go.uber.org/zap"
)

// Decision is the scale-up evaluation for one tick. NodesToCreate already
// accounts for pending placeholders; it may be zero or negative even when
// ScaleUp is true, meaning enough capacity is already in flight.
type Decision struct {
	ScaleUp bool

	UtilizationHigh bool
	IdleBufferLow   bool
	CPUIdleLow      bool
	MemIdleLow      bool

	CPUUtilizationPercent float32
	MemUtilizationPercent float32

	NodesNeeded   int
	NodesToCreate int
}

// EvaluateScaleUp decides whether the fleet needs more nodes and how many
// placeholder pods to create. Idle and nascent counts both count toward the
// idle buffer since a nascent node becomes an idle runner without any action.
func EvaluateScaleUp(agg *Capacity, cfg *Config, idleRunners, nascentNodes, pendingPlaceholders int) Decision {
	d := Decision{}

	if agg.TotalCPUCapacity > 0 {
		d.CPUUtilizationPercent = (agg.TotalAllocatedCPU / agg.TotalCPUCapacity) * 100
		if d.CPUUtilizationPercent > float32(cfg.MaxResourceUtilizationPercent) {
			d.UtilizationHigh = true
		}
	}
	if agg.TotalMemoryGiBCapacity > 0 {
		d.MemUtilizationPercent = (agg.TotalAllocatedMemoryGiB / agg.TotalMemoryGiBCapacity) * 100
		if d.MemUtilizationPercent > float32(cfg.MaxResourceUtilizationPercent) {
			d.UtilizationHigh = true
		}
	}

	idleIncludingNascent := idleRunners + nascentNodes
	d.IdleBufferLow = idleIncludingNascent < cfg.MinIdleRunners
	d.CPUIdleLow = agg.TotalAvailableCPU < float32(cfg.MinIdleCPU)
	d.MemIdleLow = agg.TotalAvailableMemoryGiB < float32(cfg.MinIdleMemoryGiB)

	d.ScaleUp = d.UtilizationHigh || d.IdleBufferLow || d.CPUIdleLow || d.MemIdleLow
	if !d.ScaleUp {
		return d
	}

	if d.CPUIdleLow && agg.AvgCPUPerNode > 0 {
		needed := int(math.Ceil(float64(float32(cfg.MinIdleCPU)-agg.TotalAvailableCPU) / float64(agg.AvgCPUPerNode)))
		d.NodesNeeded = maxInt(d.NodesNeeded, needed)
	}
	if d.MemIdleLow && agg.AvgMemPerNode > 0 {
		needed := int(math.Ceil(float64(float32(cfg.MinIdleMemoryGiB)-agg.TotalAvailableMemoryGiB) / float64(agg.AvgMemPerNode)))
		d.NodesNeeded = maxInt(d.NodesNeeded, needed)
	}
	if d.IdleBufferLow {
		d.NodesNeeded = maxInt(d.NodesNeeded, cfg.MinIdleRunners-idleIncludingNascent)
	}

	// Utilization alone still guarantees at least one node
	if d.UtilizationHigh && d.NodesNeeded == 0 {
		d.NodesNeeded = 1
	}

	d.NodesToCreate = d.NodesNeeded - pendingPlaceholders

	return d
}

// Log writes the scale-up evaluation at info level when scale-up is needed.
func (d Decision) Log(logger *zap.SugaredLogger, cfg *Config, idleRunners, nascentNodes, pendingPlaceholders int) {
	if !d.ScaleUp {
		return
	}
	logger.Infow("scale-up conditions met",
		"utilizationHigh", d.UtilizationHigh,
		"cpuUtilizationPercent", d.CPUUtilizationPercent,
		"memUtilizationPercent", d.MemUtilizationPercent,
		"idleBufferLow", d.IdleBufferLow,
		"idleIncludingNascent", idleRunners+nascentNodes,
		"minIdleRunners", cfg.MinIdleRunners,
		"cpuIdleLow", d.CPUIdleLow,
		"memIdleLow", d.MemIdleLow,
		"nodesNeeded", d.NodesNeeded,
		"pendingPlaceholders", pendingPlaceholders,
		"nodesToCreate", d.NodesToCreate,
	)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
