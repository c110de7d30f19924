package fleet

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/caredai/daytona/pkg/daytona/client"
	"github.com/caredai/daytona/pkg/utils"
)

// ClusterState is a point-in-time snapshot of the runner fleet: runners as
// reported by the Daytona API, placeholder pods, and pool nodes. All decision
// logic in a tick operates on one snapshot.
type ClusterState struct {
	Runners          []client.Runner
	ActiveRunners    []client.Runner
	IdleRunners      []client.Runner
	DeletableRunners []client.Runner

	// RunnerByDomain maps a runner domain (node IP) to the runner
	RunnerByDomain map[string]client.Runner

	PendingPlaceholders   []*corev1.Pod
	ScheduledPlaceholders []*corev1.Pod

	Nodes []corev1.Node

	// NodeByIP maps any node address to the node
	NodeByIP map[string]*corev1.Node

	// NascentNodes are schedulable nodes carrying a scheduled placeholder
	// whose runner has not registered yet
	NascentNodes []*corev1.Node
}

// Collector builds ClusterState snapshots from the Daytona API and the
// Kubernetes API server.
type Collector struct {
	fleetAPI  client.FleetAPI
	clientset kubernetes.Interface
	logger    *zap.SugaredLogger

	regionID  string
	namespace string
}

// NewCollector creates a snapshot collector.
func NewCollector(fleetAPI client.FleetAPI, clientset kubernetes.Interface, logger *zap.SugaredLogger, regionID, namespace string) *Collector {
	return &Collector{
		fleetAPI:  fleetAPI,
		clientset: clientset,
		logger:    logger,
		regionID:  regionID,
		namespace: namespace,
	}
}

// Snapshot gathers the current cluster state. Any fetch failure aborts the
// snapshot; callers skip the tick and retry on the next one.
func (c *Collector) Snapshot(ctx context.Context) (*ClusterState, error) {
	state := &ClusterState{
		RunnerByDomain: make(map[string]client.Runner),
		NodeByIP:       make(map[string]*corev1.Node),
	}

	fetchCtx, cancel := context.WithTimeout(ctx, RunnerFetchTimeout)
	defer cancel()

	runners, err := c.fleetAPI.ListRunners(fetchCtx, c.regionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runners: %w", err)
	}
	state.Runners = runners

	for _, runner := range state.Runners {
		if runner.Domain != "" {
			state.RunnerByDomain[runner.Domain] = runner
		}
		switch classifyRunner(runner) {
		case runnerActive:
			state.ActiveRunners = append(state.ActiveRunners, runner)
		case runnerDeletable:
			state.DeletableRunners = append(state.DeletableRunners, runner)
		case runnerIdle:
			state.IdleRunners = append(state.IdleRunners, runner)
		}
	}

	placeholders, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app=" + PlaceholderPodLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list placeholder pods: %w", err)
	}
	for i := range placeholders.Items {
		pod := &placeholders.Items[i]
		if pod.Spec.NodeName == "" {
			state.PendingPlaceholders = append(state.PendingPlaceholders, pod)
		} else {
			state.ScheduledPlaceholders = append(state.ScheduledPlaceholders, pod)
		}
	}

	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		LabelSelector: NodeSelectorKey + "=true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pool nodes: %w", err)
	}
	state.Nodes = nodes.Items

	for i := range state.Nodes {
		node := &state.Nodes[i]
		for _, addr := range utils.NodeAddresses(node) {
			state.NodeByIP[addr] = node
		}
	}

	// A node is nascent when it is schedulable, no runner has registered
	// from any of its addresses, and a placeholder is scheduled on it.
	for i := range state.Nodes {
		node := &state.Nodes[i]
		if node.Spec.Unschedulable {
			continue
		}
		hasRunner := false
		for _, addr := range utils.NodeAddresses(node) {
			if _, found := state.RunnerByDomain[addr]; found {
				hasRunner = true
				break
			}
		}
		if hasRunner {
			continue
		}
		for _, pod := range state.ScheduledPlaceholders {
			if pod.Spec.NodeName == node.Name {
				state.NascentNodes = append(state.NascentNodes, node)
				break
			}
		}
	}

	return state, nil
}

type runnerClass int

const (
	runnerActive runnerClass = iota
	runnerIdle
	runnerDeletable
)

// classifyRunner assigns a runner to exactly one class. Any allocation makes
// the runner active, even when it is cordoned; only fully drained
// unschedulable runners are deletable.
func classifyRunner(r client.Runner) runnerClass {
	allocated := r.CurrentAllocatedCPU > 0 ||
		r.CurrentAllocatedMemoryGiB > 0 ||
		r.CurrentAllocatedDiskGiB > 0 ||
		r.CurrentStartedSandboxes > 0 ||
		r.CurrentSnapshotCount > 0

	switch {
	case allocated:
		return runnerActive
	case r.Unschedulable:
		return runnerDeletable
	default:
		return runnerIdle
	}
}

// LogState writes a one-line summary of the snapshot and its capacity.
func (c *Collector) LogState(state *ClusterState, agg *Capacity) {
	c.logger.Infow("cluster state",
		"runners", len(state.Runners),
		"active", len(state.ActiveRunners),
		"idle", len(state.IdleRunners),
		"deletable", len(state.DeletableRunners),
		"nodes", len(state.Nodes),
		"nascentNodes", len(state.NascentNodes),
		"pendingPlaceholders", len(state.PendingPlaceholders),
		"scheduledPlaceholders", len(state.ScheduledPlaceholders),
	)
	c.logger.Infow("aggregated capacity",
		"cpuCapacity", agg.TotalCPUCapacity,
		"memCapacityGiB", agg.TotalMemoryGiBCapacity,
		"cpuAllocated", agg.TotalAllocatedCPU,
		"memAllocatedGiB", agg.TotalAllocatedMemoryGiB,
		"cpuAvailable", agg.TotalAvailableCPU,
		"memAvailableGiB", agg.TotalAvailableMemoryGiB,
		"avgCPUPerNode", agg.AvgCPUPerNode,
		"avgMemPerNode", agg.AvgMemPerNode,
	)
}
