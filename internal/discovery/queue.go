package discovery

import (
	"context"
	"sync/atomic"
)

// DefaultQueueSize is the buffer used when a queue is created with size <= 0.
const DefaultQueueSize = 256

// Queue is an Observer that hands events to a worker goroutine.
//
// OnDeviceEvent never blocks: when the buffer is full the event is dropped
// and counted. Run drains the buffer until its context is cancelled.
type Queue struct {
	name    string
	events  chan Event
	handle  func(ctx context.Context, ev Event)
	dropped atomic.Uint64
	handled atomic.Uint64
	logger  Logger
}

// NewQueue creates a queue named name that calls handle for each event.
func NewQueue(name string, size int, handle func(ctx context.Context, ev Event)) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		name:   name,
		events: make(chan Event, size),
		handle: handle,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the queue.
func (q *Queue) SetLogger(logger Logger) {
	q.logger = logger
}

// OnDeviceEvent implements Observer.
func (q *Queue) OnDeviceEvent(ev Event) {
	select {
	case q.events <- ev:
	default:
		if q.dropped.Add(1) == 1 {
			q.logger.Warn("observer queue full, dropping events", "queue", q.name)
		}
	}
}

// Run processes events until ctx is cancelled. Events still buffered at
// cancellation are handled with ctx before Run returns.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-q.events:
			q.process(ctx, ev)
		case <-ctx.Done():
			q.drain(ctx)
			return nil
		}
	}
}

func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case ev := <-q.events:
			q.process(ctx, ev)
		default:
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			q.logger.Error("observer queue handler panic recovered", "queue", q.name, "panic", p)
		}
	}()
	q.handle(ctx, ev)
	q.handled.Add(1)
}

// Dropped returns how many events were discarded because the buffer was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Handled returns how many events the worker has processed.
func (q *Queue) Handled() uint64 { return q.handled.Load() }

// Pending returns the number of buffered events.
func (q *Queue) Pending() int { return len(q.events) }
