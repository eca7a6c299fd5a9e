package services

import (
	"log/slog"
	"sync"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

type EventType string

const (
	EventTypeState     EventType = "state"     // task-level transition
	EventTypeFile      EventType = "file"      // a file changed status
	EventTypeDiscarded EventType = "discarded" // task removed from the registry
)

// Event tells subscribers that a task changed. It carries no state of its own.
type Event struct {
	TaskID    domain.TaskID
	Type      EventType
	Timestamp int64
}

// EventBus fans task change notifications out to subscribers.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[domain.TaskID][]chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[domain.TaskID][]chan Event),
	}
}

// Subscribe returns a channel that receives events for a specific task
func (b *EventBus) Subscribe(taskID domain.TaskID) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100) // Buffer to prevent blocking publisher
	b.subs[taskID] = append(b.subs[taskID], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subscribers := b.subs[taskID]
			for i, sub := range subscribers {
				if sub == ch {
					close(ch)
					b.subs[taskID] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			if len(b.subs[taskID]) == 0 {
				delete(b.subs, taskID)
			}
		})
	}

	return ch, unsub
}

// Publish sends an event to all subscribers of the task
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers, ok := b.subs[e.TaskID]
	if !ok {
		return
	}

	for _, ch := range subscribers {
		select {
		case ch <- e:
		default:
			// Subscribers also poll on a ticker, so a dropped wake-up only adds latency.
			b.logger.Debug("event bus channel full, dropping event", "task_id", e.TaskID)
		}
	}
}

// SubscriberCount returns the number of live subscriptions for a task.
func (b *EventBus) SubscriberCount(taskID domain.TaskID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[taskID])
}
