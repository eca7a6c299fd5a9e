package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

// Reaper discards settled tasks once they have been idle for longer than the
// retention window, and removes orphaned workspaces left by earlier runs.
type Reaper struct {
	logger    *slog.Logger
	registry  *TaskRegistry
	service   *BatchService
	workspace *WorkspaceManager
	interval  time.Duration // default 1 minute
	retention time.Duration // default 1 hour
	now       func() time.Time
}

func NewReaper(logger *slog.Logger, registry *TaskRegistry, service *BatchService, workspace *WorkspaceManager, interval, retention time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &Reaper{
		logger:    logger,
		registry:  registry,
		service:   service,
		workspace: workspace,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Run prunes orphans once, then sweeps on every tick. Blocks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("reaper started", "interval", r.interval, "retention", r.retention)
	r.pruneOrphans()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep discards every settled task idle past retention and returns how many.
func (r *Reaper) Sweep() int {
	cutoff := r.now().Add(-r.retention)
	reaped := 0
	for _, task := range r.registry.List() {
		if !task.Settled() || task.UpdatedAt().After(cutoff) {
			continue
		}
		if err := r.service.Discard(task.ID()); err != nil {
			r.logger.Warn("reaper: failed to discard task", "task_id", task.ID(), "error", err)
			continue
		}
		reaped++
	}
	if reaped > 0 {
		r.logger.Info("reaper: discarded expired tasks", "count", reaped)
	}
	return reaped
}

func (r *Reaper) pruneOrphans() {
	n, err := r.workspace.PruneOrphans(r.retention, func(id domain.TaskID) bool {
		_, ok := r.registry.Get(id)
		return ok
	})
	if err != nil {
		r.logger.Warn("reaper: failed to prune orphaned workspaces", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("reaper: pruned orphaned workspaces", "count", n)
	}
}
