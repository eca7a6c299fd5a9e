package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/manthysbr/ocrflow/internal/core/ports"
	"golang.org/x/sync/semaphore"
)

// PoolConfig defines concurrency limits
type PoolConfig struct {
	MaxConcurrentJobs int64 // conversions in flight across all tasks
	QueueSize         int
}

// TaskLookup resolves a task id at dispatch time.
type TaskLookup interface {
	Get(id domain.TaskID) (*BatchTask, bool)
}

// HistoryRecorder is the minimal persistence interface for conversion audits.
type HistoryRecorder interface {
	SaveConversion(ctx context.Context, rec domain.ConversionRecord) error
}

type workItem struct {
	TaskID domain.TaskID
	Index  int
}

// WorkerPool runs conversions with a process-wide concurrency bound.
type WorkerPool struct {
	logger    *slog.Logger
	queue     chan workItem
	semaphore *semaphore.Weighted
	capacity  int64
	tasks     TaskLookup
	metrics   *conversionMetrics

	convMu    sync.RWMutex
	converter ports.Converter
	history   HistoryRecorder // optional

	active atomic.Int64
	wg     sync.WaitGroup
}

func NewWorkerPool(logger *slog.Logger, cfg PoolConfig, tasks TaskLookup, converter ports.Converter) *WorkerPool {
	// Default to 5 concurrent conversions if not set
	limit := cfg.MaxConcurrentJobs
	if limit <= 0 {
		limit = 5
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 4096
	}

	return &WorkerPool{
		logger:    logger,
		queue:     make(chan workItem, size),
		semaphore: semaphore.NewWeighted(limit),
		capacity:  limit,
		tasks:     tasks,
		metrics:   newConversionMetrics(),
		converter: converter,
	}
}

// SetHistory wires an audit recorder. Call before Start.
func (p *WorkerPool) SetHistory(h HistoryRecorder) {
	p.history = h
}

// SetConverter swaps the adapter used for conversions that start afterwards.
func (p *WorkerPool) SetConverter(c ports.Converter) {
	p.convMu.Lock()
	defer p.convMu.Unlock()
	p.converter = c
}

// Converter returns the adapter currently in use.
func (p *WorkerPool) Converter() ports.Converter {
	p.convMu.RLock()
	defer p.convMu.RUnlock()
	return p.converter
}

// Capacity returns the configured concurrency limit.
func (p *WorkerPool) Capacity() int64 { return p.capacity }

// Active returns the number of conversions currently executing.
func (p *WorkerPool) Active() int64 { return p.active.Load() }

// Submit adds a job to the scheduling queue. It never blocks.
func (p *WorkerPool) Submit(taskID domain.TaskID, index int) error {
	select {
	case p.queue <- workItem{TaskID: taskID, Index: index}:
		p.logger.Debug("job submitted", "task_id", taskID, "index", index)
		return nil
	default:
		return fmt.Errorf("submit %s[%d]: %w", taskID, index, domain.ErrQueueFull)
	}
}

// Start consumes the queue until ctx is done.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", "capacity", p.capacity)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				p.logger.Info("stopping worker pool")
				return
			case item := <-p.queue:
				if err := p.semaphore.Acquire(ctx, 1); err != nil {
					p.logger.Info("worker pool stopped while waiting for a slot", "error", err)
					return
				}

				// Launch in background so we don't block the consumer loop
				p.wg.Add(1)
				go func(it workItem) {
					defer p.wg.Done()
					defer p.semaphore.Release(1)
					p.execute(ctx, it)
				}(item)
			}
		}
	}()
}

// Run starts the pool and blocks until ctx is done and in-flight work has returned.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.wg.Wait()
	return nil
}

// execute re-checks the task right before starting, since the job may have
// been paused out or cancelled while queued.
func (p *WorkerPool) execute(ctx context.Context, it workItem) {
	task, ok := p.tasks.Get(it.TaskID)
	if !ok {
		p.logger.Debug("skipping job of discarded task", "task_id", it.TaskID, "index", it.Index)
		return
	}
	job, ok := task.Begin(it.Index)
	if !ok {
		p.logger.Debug("skipping job no longer pending", "task_id", it.TaskID, "index", it.Index)
		return
	}

	p.active.Add(1)
	p.metrics.started(ctx)
	started := time.Now()
	p.logger.Info("converting document", "task_id", it.TaskID, "file", job.Name)

	result, err := p.convert(ctx, job)
	elapsed := time.Since(started)

	p.active.Add(-1)
	task.Finish(it.Index, result, err)

	rec := domain.ConversionRecord{
		ID:         uuid.New().String(),
		TaskID:     it.TaskID,
		FileIndex:  it.Index,
		FileName:   job.Name,
		StartedAt:  started,
		FinishedAt: started.Add(elapsed),
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		kind := domain.ConversionKind(err)
		rec.Status = domain.FileStatusFailed
		rec.ErrorKind = string(kind)
		rec.Error = err.Error()
		p.metrics.finished(ctx, string(domain.FileStatusFailed), string(kind), elapsed)
		p.logger.Warn("conversion failed", "task_id", it.TaskID, "file", job.Name, "kind", kind, "error", err)
	} else {
		rec.Status = domain.FileStatusCompleted
		rec.OutputDir = result.OutputDir
		p.metrics.finished(ctx, string(domain.FileStatusCompleted), "", elapsed)
		p.logger.Info("conversion completed", "task_id", it.TaskID, "file", job.Name,
			"pages", result.Pages, "images", result.Images, "duration_ms", rec.DurationMs)
	}

	p.record(rec)
}

// convert shields the pool from a panicking adapter so siblings keep running.
func (p *WorkerPool) convert(ctx context.Context, job domain.FileJob) (result domain.ConversionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.ConversionError{
				Kind:    domain.ConversionUnknown,
				Message: fmt.Sprintf("converter panic: %v", r),
			}
		}
	}()

	conv := p.Converter()
	if conv == nil {
		return domain.ConversionResult{}, &domain.ConversionError{
			Kind:    domain.ConversionAuthMissing,
			Message: "no OCR provider configured",
		}
	}
	return conv.Convert(ctx, job.SourcePath, job.OutputDir)
}

func (p *WorkerPool) record(rec domain.ConversionRecord) {
	if p.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.history.SaveConversion(ctx, rec); err != nil {
		p.logger.Warn("failed to record conversion", "task_id", rec.TaskID, "error", err)
	}
}
