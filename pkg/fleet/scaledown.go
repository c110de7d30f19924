package fleet

import (
	"go.uber.org/zap"

	corev1 "k8s.io/api/core/v1"

	"github.com/caredai/daytona/pkg/metrics"
	"github.com/caredai/daytona/pkg/utils"
)

// PlanScaleDown selects the scheduled placeholder pods whose nodes can be
// released. Candidates are the deletable runners in snapshot order; each is
// admitted only if removing its node's allocatable capacity keeps the fleet
// above the configured idle floors. All hypotheticals are computed against
// the snapshot totals, so admitting one candidate does not make the next one
// look safer than it is.
func PlanScaleDown(state *ClusterState, agg *Capacity, cfg *Config, logger *zap.SugaredLogger) []*corev1.Pod {
	if len(state.DeletableRunners) == 0 {
		logger.Debug("no deletable runners found for scale-down")
		return nil
	}

	var toDelete []*corev1.Pod
	logger.Infow("considering scale-down", "deletableRunners", len(state.DeletableRunners))

	for _, runner := range state.DeletableRunners {
		if runner.Domain == "" {
			logger.Warnw("deletable runner has no domain, skipping", "runner", runner.Name)
			metrics.ScaleDownBlockedTotal.WithLabelValues("no_domain").Inc()
			continue
		}

		node, found := state.NodeByIP[runner.Domain]
		if !found {
			logger.Warnw("no pool node found for deletable runner, skipping",
				"runner", runner.Name,
				"domain", runner.Domain)
			metrics.ScaleDownBlockedTotal.WithLabelValues("no_node").Inc()
			continue
		}

		nodeCPU, nodeMem := utils.NodeAllocatable(node)

		hypotheticalCPU := agg.TotalAvailableCPU - nodeCPU
		hypotheticalMem := agg.TotalAvailableMemoryGiB - nodeMem

		safe := true
		if hypotheticalCPU < float32(cfg.MinIdleCPU) {
			logger.Infow("scale-down would violate the CPU idle floor, skipping",
				"node", node.Name,
				"domain", runner.Domain,
				"hypotheticalAvailableCPU", hypotheticalCPU,
				"minIdleCPU", cfg.MinIdleCPU)
			metrics.ScaleDownBlockedTotal.WithLabelValues("min_idle_cpu").Inc()
			safe = false
		}
		if hypotheticalMem < float32(cfg.MinIdleMemoryGiB) {
			logger.Infow("scale-down would violate the memory idle floor, skipping",
				"node", node.Name,
				"domain", runner.Domain,
				"hypotheticalAvailableMemoryGiB", hypotheticalMem,
				"minIdleMemoryGiB", cfg.MinIdleMemoryGiB)
			metrics.ScaleDownBlockedTotal.WithLabelValues("min_idle_memory").Inc()
			safe = false
		}
		if !safe {
			continue
		}

		var placeholder *corev1.Pod
		for _, pod := range state.ScheduledPlaceholders {
			if pod.Spec.NodeName == node.Name {
				placeholder = pod
				break
			}
		}
		if placeholder == nil {
			logger.Warnw("no scheduled placeholder found on node for deletable runner, skipping",
				"node", node.Name,
				"domain", runner.Domain)
			metrics.ScaleDownBlockedTotal.WithLabelValues("no_placeholder").Inc()
			continue
		}

		logger.Infow("placeholder identified for scale-down",
			"placeholder", placeholder.Name,
			"node", node.Name,
			"domain", runner.Domain)
		toDelete = append(toDelete, placeholder)
	}

	return toDelete
}
