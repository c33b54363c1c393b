package engine

import (
	"sync"

	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/metrics"
)

// Envelope is a queued batch stamped with its arrival order.
type Envelope struct {
	Seq   int64
	Batch *ir.Batch
}

// Queue is the shared FIFO of batches between module workers and the
// listener.
//
// The queue is unbounded so a module worker never blocks on a slow store;
// backpressure lives in the driver's retry loop instead.
//
// Thread-safety: Push may be called from any goroutine. TryPop and Done
// are called by the single listener.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the listener loop.
type Queue struct {
	mu       sync.Mutex
	items    []Envelope
	closed   bool
	inflight int
	signal   chan struct{} // Signals batch availability (buffered, size 1)

	arrivals  *Clock // stamps Envelope.Seq
	completed *Clock // counts batches the listener finished
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		items:     make([]Envelope, 0, 64),
		signal:    make(chan struct{}, 1),
		arrivals:  NewClock(),
		completed: NewClock(),
	}
}

// Push adds b to the back of the queue.
// Returns false if the queue is closed.
func (q *Queue) Push(b *ir.Batch) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, Envelope{Seq: q.arrivals.Next(), Batch: b})
	metrics.QueueDepth.Set(float64(len(q.items)))

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryPop removes and returns the front batch without blocking.
// Every successful TryPop must be followed by Done once the batch has
// been consumed.
func (q *Queue) TryPop() (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Envelope{}, false
	}

	e := q.items[0]

	// Nil out the slot so the consumed batch can be collected.
	q.items[0] = Envelope{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	q.inflight++
	metrics.QueueDepth.Set(float64(len(q.items)))

	return e, true
}

// Done marks one popped batch as fully consumed.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight > 0 {
		q.inflight--
	}
	q.completed.Next()
}

// Wait returns a channel that signals when batches may be available.
// The channel is closed by Close. Use with select:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryPop
//	}
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of batches waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns waiting plus popped-but-unfinished batches.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) + q.inflight
}

// Completed returns how many batches the listener has finished.
func (q *Queue) Completed() int64 {
	return q.completed.Current()
}

// Drained reports whether the queue is closed and empty.
func (q *Queue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Close signals that no more batches will be pushed.
// Wakes any blocked waiter by closing the signal channel.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
