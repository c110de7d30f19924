package fleet

import (
	"go.uber.org/zap"

	"github.com/caredai/daytona/pkg/utils"
)

// Capacity holds the aggregated resource view of the fleet for one tick.
// CPU is in cores, memory in GiB. Available figures may go negative when
// allocation exceeds reported capacity.
type Capacity struct {
	TotalCPUCapacity        float32
	TotalMemoryGiBCapacity  float32
	TotalAllocatedCPU       float32
	TotalAllocatedMemoryGiB float32
	TotalAvailableCPU       float32
	TotalAvailableMemoryGiB float32
	AvgCPUPerNode           float32
	AvgMemPerNode           float32
}

// ComputeCapacity aggregates fleet capacity from a snapshot. Schedulable
// runners contribute their self-reported capacity; schedulable nodes whose
// addresses map to no runner contribute their Kubernetes allocatable
// resources instead, so a node is never counted twice. Allocation always
// comes from runner reports.
func ComputeCapacity(state *ClusterState, logger *zap.SugaredLogger) *Capacity {
	agg := &Capacity{}

	nodesWithRunners := make(map[string]bool)

	for _, runner := range state.Runners {
		if runner.Unschedulable {
			continue
		}
		agg.TotalCPUCapacity += runner.CPU
		agg.TotalMemoryGiBCapacity += runner.Memory
		if runner.Domain != "" {
			if node, found := state.NodeByIP[runner.Domain]; found {
				nodesWithRunners[node.Name] = true
			}
		}
	}

	for i := range state.Nodes {
		node := &state.Nodes[i]
		if node.Spec.Unschedulable || nodesWithRunners[node.Name] {
			continue
		}
		nodeCPU, nodeMem := utils.NodeAllocatable(node)
		if nodeCPU == 0 && nodeMem == 0 {
			logger.Warnw("node reports no allocatable resources, skipping", "node", node.Name)
			continue
		}
		agg.TotalCPUCapacity += nodeCPU
		agg.TotalMemoryGiBCapacity += nodeMem
	}

	for _, runner := range state.ActiveRunners {
		agg.TotalAllocatedCPU += runner.CurrentAllocatedCPU
		agg.TotalAllocatedMemoryGiB += runner.CurrentAllocatedMemoryGiB
	}

	agg.TotalAvailableCPU = agg.TotalCPUCapacity - agg.TotalAllocatedCPU
	agg.TotalAvailableMemoryGiB = agg.TotalMemoryGiBCapacity - agg.TotalAllocatedMemoryGiB

	schedulableNodes := 0
	for i := range state.Nodes {
		if !state.Nodes[i].Spec.Unschedulable {
			schedulableNodes++
		}
	}
	if schedulableNodes > 0 {
		agg.AvgCPUPerNode = agg.TotalCPUCapacity / float32(schedulableNodes)
		agg.AvgMemPerNode = agg.TotalMemoryGiBCapacity / float32(schedulableNodes)
	}

	return agg
}
