// Package events carries domain events from committed mutations to asynchronous subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/UnknownOlympus/custodian/internal/models"
)

// Type names a domain event.
type Type string

const (
	TaskStarted   Type = "task.started"
	TaskCompleted Type = "task.completed"
	TaskCommented Type = "task.commented"
	TaskFailed    Type = "task.failed"
)

// TypeFor maps a mutation to the event it emits.
func TypeFor(kind models.MutationKind) Type {
	switch kind {
	case models.MutationBegin:
		return TaskStarted
	case models.MutationComplete:
		return TaskCompleted
	case models.MutationFail:
		return TaskFailed
	default:
		return TaskCommented
	}
}

// Event is emitted after a mutation has been committed.
type Event struct {
	Type       Type
	Task       models.Task
	Actor      models.Actor
	PrevStatus models.TaskStatus
	Comment    string
	At         time.Time
}

// Handler processes one event. Errors are logged and never reach the publisher.
type Handler func(ctx context.Context, event Event) error

// Publisher is what mutating services depend on.
type Publisher interface {
	Publish(event Event)
}

// Bus is a buffered in-process event bus. Publish never blocks: events are
// dropped with a warning when the buffer is full or the bus is closed.
type Bus struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	queue   chan Event

	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

// NewBus creates a bus with room for buffer pending events. Metrics may be nil.
func NewBus(log *slog.Logger, buffer int, m *metrics.Metrics) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		log:     log,
		metrics: m,
		queue:   make(chan Event, buffer),
	}
}

// Subscribe registers a handler for every event.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues event without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.log.Warn("Event bus is closed, dropping event", "type", event.Type, "task_id", event.Task.ID)
		b.dropped()
		return
	}

	select {
	case b.queue <- event:
	default:
		b.log.Warn("Event bus is full, dropping event", "type", event.Type, "task_id", event.Task.ID)
		b.dropped()
	}
}

// Run dispatches events to the handlers until ctx is done or the bus is closed and drained.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-b.queue:
			if !ok {
				return
			}
			b.dispatch(ctx, event)
		}
	}
}

// Close stops accepting events. Run returns once the queue is drained.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.queue)
	}
}

func (b *Bus) dispatch(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.log.WarnContext(ctx, "Event handler failed", "type", event.Type, "task_id", event.Task.ID, "error", err)
		}
	}
}

func (b *Bus) dropped() {
	if b.metrics != nil {
		b.metrics.EventsDropped.Inc()
	}
}
