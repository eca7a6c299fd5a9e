package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

// ProgressPublisher turns task state into an ordered stream of snapshots.
type ProgressPublisher struct {
	logger   *slog.Logger
	tasks    TaskLookup
	bus      *EventBus // optional; wakes subscribers before the next tick
	interval time.Duration
}

func NewProgressPublisher(logger *slog.Logger, tasks TaskLookup, bus *EventBus, interval time.Duration) *ProgressPublisher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &ProgressPublisher{
		logger:   logger,
		tasks:    tasks,
		bus:      bus,
		interval: interval,
	}
}

// Subscribe streams snapshots of a task: one immediately, then one per tick
// and one per change event. The channel is closed after the first terminal
// snapshot or when ctx is done. An unknown id yields a single error snapshot.
func (p *ProgressPublisher) Subscribe(ctx context.Context, id domain.TaskID) <-chan domain.TaskSnapshot {
	out := make(chan domain.TaskSnapshot, 1)

	task, ok := p.tasks.Get(id)
	if !ok {
		out <- domain.TaskSnapshot{
			TaskID: id,
			Status: domain.SnapshotStatusError,
			Error:  domain.ErrTaskNotFound.Error(),
			Files:  []domain.FileSnapshot{},
		}
		close(out)
		return out
	}

	var (
		changes <-chan Event
		unsub   = func() {}
	)
	if p.bus != nil {
		changes, unsub = p.bus.Subscribe(id)
	}

	go func() {
		defer close(out)
		defer unsub()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			snap := task.Snapshot()
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
			if snap.Terminal() {
				p.logger.Debug("progress stream finished", "task_id", id, "status", snap.Status)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case evt, ok := <-changes:
				if !ok || evt.Type == EventTypeDiscarded {
					// Emit the last known state once more, then stop.
					final := task.Snapshot()
					select {
					case out <- final:
					case <-ctx.Done():
					}
					return
				}
			}
		}
	}()

	return out
}
