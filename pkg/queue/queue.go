// Package queue is a bounded FIFO of received frames. It implements the
// sink's Enqueuer and hands frames to consumers in arrival order.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull is returned by Enqueue when the queue holds its limit
	ErrFull = errors.New("queue: full")
	// ErrClosed is returned once the queue has been closed
	ErrClosed = errors.New("queue: closed")
)

// Frame is a completed frame waiting for a consumer
type Frame struct {
	Seq      uint64
	Data     []byte
	Received time.Time
}

// Queue is a bounded, goroutine-safe frame queue
type Queue struct {
	mu     sync.Mutex
	items  []Frame
	limit  int
	seq    uint64
	closed bool
	notify chan struct{}
	now    func() time.Time
}

// New creates a queue holding at most limit frames; limit <= 0 means unbounded
func New(limit int) *Queue {
	return &Queue{
		limit:  limit,
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Enqueue appends a frame. The first length bytes of frame are kept.
func (q *Queue) Enqueue(frame []byte, length int) error {
	if length < 0 || length > len(frame) {
		length = len(frame)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.limit > 0 && len(q.items) >= q.limit {
		q.mu.Unlock()
		return ErrFull
	}
	q.seq++
	q.items = append(q.items, Frame{
		Seq:      q.seq,
		Data:     frame[:length],
		Received: q.now(),
	})
	q.mu.Unlock()

	q.wake()
	return nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryDequeue removes the oldest frame without blocking
func (q *Queue) TryDequeue() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue) popLocked() (Frame, bool) {
	if len(q.items) == 0 {
		return Frame{}, false
	}
	f := q.items[0]
	q.items[0] = Frame{}
	q.items = q.items[1:]
	return f, true
}

// Dequeue blocks until a frame is available, the context ends, or the queue
// is closed and drained
func (q *Queue) Dequeue(ctx context.Context) (Frame, error) {
	for {
		q.mu.Lock()
		f, ok := q.popLocked()
		closed := q.closed
		remaining := len(q.items)
		q.mu.Unlock()

		if ok {
			if remaining > 0 || closed {
				// Let other waiters see the remaining items or the close
				q.wake()
			}
			return f, nil
		}
		if closed {
			q.wake()
			return Frame{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of pending frames
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Limit returns the configured capacity
func (q *Queue) Limit() int {
	return q.limit
}

// Sequence returns the number of frames accepted so far
func (q *Queue) Sequence() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

// Close rejects further frames; pending frames can still be dequeued
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}
