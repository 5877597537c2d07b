package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("event queue closed")

// Sink accepts outbound events for one connection.
type Sink interface {
	// Publish blocks until the event is queued, ctx ends, or the sink closes.
	Publish(ctx context.Context, e Event) error
	// TryPublish queues the event only if there is room.
	TryPublish(e Event) bool
}

// Queue is a bounded in-order event buffer drained by a single writer.
type Queue struct {
	ch      chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
	onDrop  func(Event)
}

// QueueOption customises a Queue.
type QueueOption func(*Queue)

// WithDropHook is invoked for every advisory event dropped by TryPublish.
func WithDropHook(fn func(Event)) QueueOption {
	return func(q *Queue) { q.onDrop = fn }
}

// NewQueue creates a queue holding at most size pending events.
func NewQueue(size int, opts ...QueueOption) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{ch: make(chan Event, size), done: make(chan struct{})}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Publish(ctx context.Context, e Event) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

func (q *Queue) TryPublish(e Event) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.ch <- e:
		return true
	default:
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop(e)
		}
		return false
	}
}

// Events is read by the connection writer.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Done is closed once Close has been called.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Dropped counts events discarded by TryPublish.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Close stops accepting events. The data channel itself is never closed so
// concurrent publishers cannot panic.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
