package main

import (
	"log/slog"

	"github.com/manthysbr/ocrflow/internal/adapters/archive"
	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/manthysbr/ocrflow/internal/core/ports"
	"github.com/manthysbr/ocrflow/internal/core/services"
)

// engine is the in-process batch stack shared by serve and convert.
type engine struct {
	registry  *services.TaskRegistry
	bus       *services.EventBus
	workspace *services.WorkspaceManager
	pool      *services.WorkerPool
	service   *services.BatchService
	progress  *services.ProgressPublisher
}

func newEngine(logger *slog.Logger, rc domain.RuntimeConfig, workspaceDir string, conv ports.Converter) *engine {
	registry := services.NewTaskRegistry()
	eventBus := services.NewEventBus(logger)
	workspaceMgr := services.NewWorkspaceManager(workspaceDir)

	pool := services.NewWorkerPool(logger, services.PoolConfig{
		MaxConcurrentJobs: rc.Workers,
		QueueSize:         rc.QueueSize,
	}, registry, conv)

	return &engine{
		registry:  registry,
		bus:       eventBus,
		workspace: workspaceMgr,
		pool:      pool,
		service:   services.NewBatchService(logger, registry, pool, workspaceMgr, eventBus, archive.NewZipArchiver()),
		progress:  services.NewProgressPublisher(logger, registry, eventBus, rc.PollInterval),
	}
}
