package loop

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrClosed is returned by PumpOnce once the loop is closed and drained.
var ErrClosed = errors.New("event loop closed")

// Block makes PumpOnce wait until a callback is delivered.
const Block time.Duration = -1

// Loop is the callback pump.
type Loop struct {
	queue  *callbackQueue
	wake   chan struct{}
	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		lp.logger = l
	}
}

// New creates an open Loop.
func New(opts ...Option) *Loop {
	lp := &Loop{
		queue:  newCallbackQueue(),
		wake:   make(chan struct{}, 1),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(lp)
	}
	return lp
}

// Post schedules fn to run inside a later PumpOnce.
// Returns false if the loop is closed; fn is then dropped.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return true
	}
	if !l.queue.Enqueue(fn) {
		l.logger.Debug("callback dropped, loop closed")
		return false
	}
	return true
}

// Nudge makes a blocked PumpOnce return without delivering a callback,
// so that its caller re-evaluates whatever it is waiting on.
func (l *Loop) Nudge() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting callbacks and wakes the pump. Already queued
// callbacks are still delivered by subsequent pumps.
func (l *Loop) Close() {
	l.queue.Close()
}

// Len returns the number of callbacks waiting to be delivered.
func (l *Loop) Len() int {
	return l.queue.Len()
}

// PumpOnce runs at most one posted callback.
//
// With a negative timeout it blocks until a callback is delivered, the loop
// is nudged, or ctx is done. With a non-negative timeout it also returns nil
// once the timeout elapses with nothing delivered.
//
// A panic raised by the callback propagates to the caller.
func (l *Loop) PumpOnce(ctx context.Context, timeout time.Duration) error {
	if l.deliver() {
		return nil
	}
	if l.queue.isClosed() {
		return ErrClosed
	}

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			return nil
		case <-expired:
			return nil
		case _, open := <-l.queue.Wait():
			if l.deliver() {
				return nil
			}
			if !open {
				return ErrClosed
			}
		}
	}
}

// deliver runs the front callback, if any.
func (l *Loop) deliver() bool {
	fn, ok := l.queue.TryDequeue()
	if !ok {
		return false
	}
	defer l.drainWake()
	fn()
	return true
}

// drainWake discards a nudge issued while a callback ran: the pump is about
// to return anyway.
func (l *Loop) drainWake() {
	select {
	case <-l.wake:
	default:
	}
}
