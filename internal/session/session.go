package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/redpesk-addons/afb-jscli/internal/diag"
	"github.com/redpesk-addons/afb-jscli/internal/loop"
)

// Session is the shared state of one test run.
type Session struct {
	loop   *loop.Loop
	diag   *diag.Diagnostics
	logger *slog.Logger

	pending  int
	expected int
}

// Option configures a Session.
type Option func(*Session)

// WithLoop sets the event loop (default: a new loop).
func WithLoop(lp *loop.Loop) Option {
	return func(s *Session) {
		s.loop = lp
	}
}

// WithDiagnostics sets the assertion report (default: diag.New()).
func WithDiagnostics(d *diag.Diagnostics) Option {
	return func(s *Session) {
		s.diag = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New creates a Session with zeroed counters.
func New(opts ...Option) *Session {
	s := &Session{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loop == nil {
		s.loop = loop.New(loop.WithLogger(s.logger))
	}
	if s.diag == nil {
		s.diag = diag.New(diag.WithLogger(s.logger))
	}
	return s
}

// Loop returns the event loop callbacks are posted to.
func (s *Session) Loop() *loop.Loop {
	return s.loop
}

// Diag returns the assertion report.
func (s *Session) Diag() *diag.Diagnostics {
	return s.diag
}

// Pending returns the number of calls whose completion has not run yet.
func (s *Session) Pending() int {
	return s.pending
}

// Expected returns the number of declared events not received yet.
func (s *Session) Expected() int {
	return s.expected
}

// EnterCall accounts for a newly issued call.
func (s *Session) EnterCall() {
	s.pending++
}

// LeaveCall accounts for a completed call and nudges the loop so that
// waiters re-evaluate their predicate.
func (s *Session) LeaveCall() {
	if s.pending > 0 {
		s.pending--
	} else {
		s.logger.Warn("call left without matching enter")
	}
	s.loop.Nudge()
}

// Complete runs fn, then LeaveCall, on every exit path including a panic.
// The panic keeps propagating once the counter is released.
func (s *Session) Complete(fn func()) {
	defer s.LeaveCall()
	if fn != nil {
		fn()
	}
}

// Track wraps a completion callback so that LeaveCall runs after it.
// EnterCall is performed immediately.
func Track[T any](s *Session, fn func(T)) func(T) {
	s.EnterCall()
	return func(v T) {
		s.Complete(func() {
			if fn != nil {
				fn(v)
			}
		})
	}
}

// ExpectEvent declares that one more event is anticipated.
func (s *Session) ExpectEvent() {
	s.expected++
}

// GotEvent accounts for an arrived event. Events beyond those declared are
// absorbed: the counter saturates at zero.
func (s *Session) GotEvent() {
	if s.expected > 0 {
		s.expected--
	}
	s.loop.Nudge()
}

// Reset zeroes both counters and returns their previous values. It ends a
// test phase whose calls or events will not be waited for; completions
// arriving later are no longer accounted.
func (s *Session) Reset() (pending, expected int) {
	pending, expected = s.pending, s.expected
	s.pending, s.expected = 0, 0
	return pending, expected
}

// Wait pumps the loop while pred returns true. Each pump uses timeout
// (loop.Block to wait for a callback). A nil pred waits forever.
//
// Wait returns nil once pred is false, the context error when ctx is done,
// or loop.ErrClosed when the loop is closed and drained.
func (s *Session) Wait(ctx context.Context, timeout time.Duration, pred func() bool) error {
	if pred == nil {
		pred = func() bool { return true }
	}
	for pred() {
		if err := s.loop.PumpOnce(ctx, timeout); err != nil {
			return err
		}
	}
	return nil
}

// WaitWhile is Wait with blocking pumps.
func (s *Session) WaitWhile(ctx context.Context, pred func() bool) error {
	return s.Wait(ctx, loop.Block, pred)
}

// WaitForever pumps until ctx is done or the loop is closed.
// Long running services end with it.
func (s *Session) WaitForever(ctx context.Context) error {
	return s.Wait(ctx, loop.Block, nil)
}

// WaitCalls waits until every issued call has completed.
func (s *Session) WaitCalls(ctx context.Context) error {
	return s.WaitWhile(ctx, func() bool { return s.pending != 0 })
}

// WaitEvents waits until every declared event has arrived.
func (s *Session) WaitEvents(ctx context.Context) error {
	return s.WaitWhile(ctx, func() bool { return s.expected != 0 })
}

// WaitCount pumps exactly n times, whatever the counters say.
func (s *Session) WaitCount(ctx context.Context, n int) error {
	i := 0
	return s.WaitWhile(ctx, func() bool {
		i++
		return i <= n
	})
}

// WaitCompletion waits for the settle point: no pending call and no
// expected event left.
func (s *Session) WaitCompletion(ctx context.Context) error {
	return s.WaitWhile(ctx, func() bool { return s.expected+s.pending != 0 })
}
