package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

// TaskRegistry maps task ids to live BatchTasks. Its lock only guards the map;
// each task serializes its own state.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[domain.TaskID]*BatchTask
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[domain.TaskID]*BatchTask),
	}
}

// Add registers a task. Ids are unique per process.
func (r *TaskRegistry) Add(task *BatchTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID()]; exists {
		return fmt.Errorf("task %s already registered", task.ID())
	}
	r.tasks[task.ID()] = task
	return nil
}

// Get looks up a task by id.
func (r *TaskRegistry) Get(id domain.TaskID) (*BatchTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	return task, ok
}

// Lookup is Get returning domain.ErrTaskNotFound for unknown ids.
func (r *TaskRegistry) Lookup(id domain.TaskID) (*BatchTask, error) {
	task, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrTaskNotFound)
	}
	return task, nil
}

// Remove unregisters a task and returns it.
func (r *TaskRegistry) Remove(id domain.TaskID) (*BatchTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if ok {
		delete(r.tasks, id)
	}
	return task, ok
}

// List returns all tasks, newest first.
func (r *TaskRegistry) List() []*BatchTask {
	r.mu.RLock()
	out := make([]*BatchTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	return out
}

// Len returns the number of registered tasks.
func (r *TaskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
