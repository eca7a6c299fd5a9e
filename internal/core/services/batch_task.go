package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

// jobOutcome is posted by a worker when a conversion returns.
type jobOutcome struct {
	index      int
	result     domain.ConversionResult
	err        error
	finishedAt time.Time
}

// BatchTask owns the FileJobs of one submission and the task-level state machine.
// Every read and write of state and files goes through mu. Worker outcomes are
// not applied by the workers themselves: they are posted to outcomes and a
// single consumer goroutine per task applies them.
type BatchTask struct {
	id        domain.TaskID
	workDir   string
	createdAt time.Time
	notify    func(Event) // optional

	mu        sync.Mutex
	state     domain.TaskState
	files     []domain.FileJob
	updatedAt time.Time

	outcomes     chan jobOutcome
	closed       chan struct{}
	closeOnce    sync.Once
	consumerDone chan struct{}
}

// NewBatchTask creates a running task over files and starts its outcome consumer.
// Files are re-indexed by position and reset to pending.
func NewBatchTask(id domain.TaskID, workDir string, files []domain.FileJob, notify func(Event)) *BatchTask {
	now := time.Now()
	jobs := make([]domain.FileJob, len(files))
	for i, f := range files {
		f.Index = i
		f.Status = domain.FileStatusPending
		f.Error = nil
		f.OutputPath = nil
		jobs[i] = f
	}

	t := &BatchTask{
		id:           id,
		workDir:      workDir,
		createdAt:    now,
		notify:       notify,
		state:        domain.TaskStateRunning,
		files:        jobs,
		updatedAt:    now,
		outcomes:     make(chan jobOutcome, len(jobs)), // each job posts at most one outcome
		closed:       make(chan struct{}),
		consumerDone: make(chan struct{}),
	}
	go t.consume()
	return t
}

func (t *BatchTask) ID() domain.TaskID { return t.id }

func (t *BatchTask) WorkDir() string { return t.workDir }

func (t *BatchTask) CreatedAt() time.Time { return t.createdAt }

// Len returns the fixed number of FileJobs.
func (t *BatchTask) Len() int { return len(t.files) }

// State returns the current task-level state.
func (t *BatchTask) State() domain.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Pause stops new jobs from starting. Pending jobs become cancelled (paused
// out); processing jobs keep running. Valid only while running.
func (t *BatchTask) Pause() error {
	t.mu.Lock()
	if t.state != domain.TaskStateRunning {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("pause task in state %s: %w", state, domain.ErrInvalidTransition)
	}
	t.state = domain.TaskStatePaused
	for i := range t.files {
		if t.files[i].Status == domain.FileStatusPending {
			t.files[i].Status = domain.FileStatusCancelled
		}
	}
	t.touchLocked()
	t.mu.Unlock()

	t.publishChange(EventTypeState)
	return nil
}

// Resume moves a paused task back to running and returns the indices of the
// paused-out jobs, now pending again, which the caller must resubmit.
func (t *BatchTask) Resume() ([]int, error) {
	t.mu.Lock()
	if t.state != domain.TaskStatePaused {
		state := t.state
		t.mu.Unlock()
		return nil, fmt.Errorf("resume task in state %s: %w", state, domain.ErrInvalidTransition)
	}
	t.state = domain.TaskStateRunning
	var resumed []int
	for i := range t.files {
		if t.files[i].Status == domain.FileStatusCancelled {
			t.files[i].Status = domain.FileStatusPending
			resumed = append(resumed, i)
		}
	}
	t.finalizeLocked()
	t.touchLocked()
	t.mu.Unlock()

	t.publishChange(EventTypeState)
	return resumed, nil
}

// Cancel ends the task. Pending jobs become cancelled; processing jobs run to
// completion and still record their outcome. Valid from running or paused.
func (t *BatchTask) Cancel() error {
	t.mu.Lock()
	if t.state != domain.TaskStateRunning && t.state != domain.TaskStatePaused {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("cancel task in state %s: %w", state, domain.ErrInvalidTransition)
	}
	t.state = domain.TaskStateCancelled
	for i := range t.files {
		if t.files[i].Status == domain.FileStatusPending {
			t.files[i].Status = domain.FileStatusCancelled
		}
	}
	t.touchLocked()
	t.mu.Unlock()

	t.publishChange(EventTypeState)
	return nil
}

// Begin marks a job as processing if the task is running and the job is still
// pending. The returned copy carries the paths the worker needs.
func (t *BatchTask) Begin(index int) (domain.FileJob, bool) {
	t.mu.Lock()
	if t.state != domain.TaskStateRunning || index < 0 || index >= len(t.files) {
		t.mu.Unlock()
		return domain.FileJob{}, false
	}
	job := &t.files[index]
	if job.Status != domain.FileStatusPending {
		t.mu.Unlock()
		return domain.FileJob{}, false
	}
	now := time.Now()
	job.Status = domain.FileStatusProcessing
	job.StartedAt = &now
	cp := *job
	t.touchLocked()
	t.mu.Unlock()

	t.publishChange(EventTypeFile)
	return cp, true
}

// Finish posts the outcome of a processing job to the task's consumer.
// It never blocks once the task has been closed.
func (t *BatchTask) Finish(index int, result domain.ConversionResult, err error) {
	o := jobOutcome{index: index, result: result, err: err, finishedAt: time.Now()}
	select {
	case t.outcomes <- o:
	case <-t.closed:
	}
}

func (t *BatchTask) consume() {
	defer close(t.consumerDone)
	for {
		select {
		case o := <-t.outcomes:
			t.apply(o)
		case <-t.closed:
			return
		}
	}
}

func (t *BatchTask) apply(o jobOutcome) {
	t.mu.Lock()
	if o.index < 0 || o.index >= len(t.files) || t.files[o.index].Status != domain.FileStatusProcessing {
		t.mu.Unlock()
		return
	}
	job := &t.files[o.index]
	finished := o.finishedAt
	job.FinishedAt = &finished
	if o.err != nil {
		msg := o.err.Error()
		job.Status = domain.FileStatusFailed
		job.Error = &msg
	} else {
		out := o.result.OutputDir
		if out == "" {
			out = job.OutputDir
		}
		job.Status = domain.FileStatusCompleted
		job.OutputPath = &out
	}
	before := t.state
	t.finalizeLocked()
	after := t.state
	t.touchLocked()
	t.mu.Unlock()

	t.publishChange(EventTypeFile)
	if after != before {
		t.publishChange(EventTypeState)
	}
}

// finalizeLocked derives completed/failed once every job has an outcome.
// A paused task holding paused-out jobs stays open so it can be resumed.
func (t *BatchTask) finalizeLocked() {
	if t.state != domain.TaskStateRunning && t.state != domain.TaskStatePaused {
		return
	}
	failed := false
	for _, f := range t.files {
		if !f.Status.Settled() {
			return
		}
		if f.Status == domain.FileStatusFailed {
			failed = true
		}
	}
	if failed {
		t.state = domain.TaskStateFailed
	} else {
		t.state = domain.TaskStateCompleted
	}
}

func (t *BatchTask) touchLocked() {
	t.updatedAt = time.Now()
}

// Snapshot returns a consistent copy of the task for publishing.
func (t *BatchTask) Snapshot() domain.TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := domain.TaskSnapshot{
		TaskID:    t.id,
		Status:    string(t.state),
		Files:     make([]domain.FileSnapshot, len(t.files)),
		CreatedAt: t.createdAt,
		UpdatedAt: t.updatedAt,
	}
	for i, f := range t.files {
		fs := domain.FileSnapshot{Index: f.Index, Name: f.Name, Status: f.Status}
		if f.Error != nil {
			fs.Error = *f.Error
		}
		if f.OutputPath != nil {
			fs.OutputDir = *f.OutputPath
		}
		snap.Files[i] = fs
		snap.Progress.Count(f.Status)
	}
	return snap
}

// Summary returns the list form of the task.
func (t *BatchTask) Summary() domain.TaskSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := domain.TaskSummary{
		TaskID:    t.id,
		Status:    t.state,
		Files:     len(t.files),
		CreatedAt: t.createdAt,
	}
	for _, f := range t.files {
		s.Progress.Count(f.Status)
	}
	return s
}

// Job returns a copy of the job at index.
func (t *BatchTask) Job(index int) (domain.FileJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.files) {
		return domain.FileJob{}, false
	}
	return t.files[index], true
}

// CompletedJobs returns copies of every completed job in index order.
func (t *BatchTask) CompletedJobs() []domain.FileJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.FileJob
	for _, f := range t.files {
		if f.Status == domain.FileStatusCompleted {
			out = append(out, f)
		}
	}
	return out
}

// Settled reports whether the task is terminal and no conversion is still running.
func (t *BatchTask) Settled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Terminal() {
		return false
	}
	for _, f := range t.files {
		if f.Status == domain.FileStatusProcessing {
			return false
		}
	}
	return true
}

// UpdatedAt returns the time of the last state change.
func (t *BatchTask) UpdatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updatedAt
}

// Close stops the outcome consumer. Outcomes posted afterwards are dropped.
func (t *BatchTask) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		<-t.consumerDone
	})
}

// publishChange wakes progress subscribers; they read the new state through Snapshot.
func (t *BatchTask) publishChange(kind EventType) {
	if t.notify == nil {
		return
	}
	t.notify(Event{TaskID: t.id, Type: kind, Timestamp: time.Now().UnixMilli()})
}
