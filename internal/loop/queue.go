package loop

import "sync"

// callbackQueue is a thread-safe FIFO of callbacks.
//
// It is unbounded so that a reader goroutine never blocks on a slow pump.
// The signal channel (buffered, size 1) coalesces availability notifications
// and is closed by Close to wake any waiter for good.
type callbackQueue struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	signal chan struct{}
}

func newCallbackQueue() *callbackQueue {
	return &callbackQueue{
		items:  make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends fn. Returns false once the queue is closed.
func (q *callbackQueue) Enqueue(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, fn)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front callback without blocking.
func (q *callbackQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	fn := q.items[0]
	// Release the closure for GC before reslicing.
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return fn, true
}

// Wait returns a channel that signals when callbacks may be available.
// It is closed once the queue is closed.
func (q *callbackQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued callbacks.
func (q *callbackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close refuses further callbacks. Queued callbacks can still be dequeued.
func (q *callbackQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

func (q *callbackQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
