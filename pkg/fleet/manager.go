package fleet

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"

	"github.com/caredai/daytona/pkg/daytona/client"
	"github.com/caredai/daytona/pkg/metrics"
)

// Manager drives the autoscaler reconcile loop. Ticks run serially on a
// fixed interval; a tick that creates placeholder pods skips scale-down so
// the next snapshot sees the new pods first.
type Manager struct {
	collector    *Collector
	placeholders *Placeholders
	cfg          *Config
	logger       *zap.SugaredLogger
}

// NewManager wires the collector and placeholder manager into a reconcile loop.
func NewManager(fleetAPI client.FleetAPI, clientset kubernetes.Interface, cfg *Config, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		collector:    NewCollector(fleetAPI, clientset, logger, cfg.RegionID, cfg.ProviderNamespace),
		placeholders: NewPlaceholders(clientset, logger, cfg.ProviderNamespace),
		cfg:          cfg,
		logger:       logger,
	}
}

// Run executes the reconcile loop until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(CheckInterval)
	defer ticker.Stop()

	m.logger.Infow("reconcile loop started", "interval", CheckInterval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("reconcile loop stopped")
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			err := m.Tick(ctx)
			metrics.RecordTick(time.Since(start), err)
			if err != nil {
				m.logger.Errorw("tick failed", "error", err)
			}
		}
	}
}

// Tick runs one reconcile pass against a fresh snapshot.
func (m *Manager) Tick(ctx context.Context) error {
	m.logger.Debug("running reconcile tick")

	state, err := m.collector.Snapshot(ctx)
	if err != nil {
		return err
	}

	agg := ComputeCapacity(state, m.logger)
	m.collector.LogState(state, agg)

	metrics.RecordFleetState(
		len(state.ActiveRunners),
		len(state.IdleRunners),
		len(state.DeletableRunners),
		len(state.Nodes),
		len(state.NascentNodes),
		len(state.PendingPlaceholders),
		len(state.ScheduledPlaceholders),
	)
	metrics.RecordFleetCapacity(
		float64(agg.TotalCPUCapacity),
		float64(agg.TotalMemoryGiBCapacity),
		float64(agg.TotalAvailableCPU),
		float64(agg.TotalAvailableMemoryGiB),
	)

	decision := EvaluateScaleUp(agg, m.cfg, len(state.IdleRunners), len(state.NascentNodes), len(state.PendingPlaceholders))
	decision.Log(m.logger, m.cfg, len(state.IdleRunners), len(state.NascentNodes), len(state.PendingPlaceholders))

	if decision.ScaleUp {
		if m.scaleUp(ctx, decision) {
			// New pods are invisible to this snapshot; let the next
			// tick reassess before considering scale-down
			return nil
		}
	}

	m.scaleDown(ctx, state, agg, decision.ScaleUp)
	return nil
}

// scaleUp creates the placeholder pods the decision calls for. Returns true
// when at least one creation was attempted.
func (m *Manager) scaleUp(ctx context.Context, decision Decision) bool {
	if decision.NodesToCreate <= 0 {
		m.logger.Infow("scale-up conditions met but enough placeholders are in flight",
			"nodesNeeded", decision.NodesNeeded,
			"inFlight", decision.NodesNeeded-decision.NodesToCreate)
		return false
	}

	m.logger.Infow("triggering scale-up",
		"nodesToCreate", decision.NodesToCreate,
		"nodesNeeded", decision.NodesNeeded)
	metrics.ScaleUpTotal.Inc()

	for i := 0; i < decision.NodesToCreate; i++ {
		if _, err := m.placeholders.Create(ctx); err != nil {
			m.logger.Errorw("failed to create placeholder pod", "error", err)
		}
	}
	return true
}

// scaleDown removes unjustified pending placeholders and releases nodes whose
// deletable runners pass the safety filter.
func (m *Manager) scaleDown(ctx context.Context, state *ClusterState, agg *Capacity, needsScaleUp bool) {
	if !needsScaleUp && len(state.PendingPlaceholders) > 0 {
		m.logger.Infow("deleting pending placeholders, scale-up no longer justified",
			"count", len(state.PendingPlaceholders))
		for _, pod := range state.PendingPlaceholders {
			if err := m.placeholders.Delete(ctx, pod.Name, "unjustified"); err != nil {
				m.logger.Errorw("failed to delete pending placeholder", "pod", pod.Name, "error", err)
			}
		}
	}

	toDelete := PlanScaleDown(state, agg, m.cfg, m.logger)
	for _, pod := range toDelete {
		if err := m.placeholders.Delete(ctx, pod.Name, "scale_down"); err != nil {
			m.logger.Errorw("failed to delete placeholder for scale-down", "pod", pod.Name, "error", err)
		}
	}
	if len(toDelete) > 0 {
		m.logger.Infow("initiated scale-down", "placeholdersDeleted", len(toDelete))
	} else {
		m.logger.Debug("no safe scale-down candidates this tick")
	}
}
