package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redpesk-addons/afb-jscli/internal/afb"
	"github.com/redpesk-addons/afb-jscli/internal/diag"
	"github.com/redpesk-addons/afb-jscli/internal/match"
	"github.com/redpesk-addons/afb-jscli/internal/session"
	"github.com/redpesk-addons/afb-jscli/internal/wsapi"
)

// ErrUnknownConnection is returned for steps naming an undeclared
// connection. Validated scenarios never produce it.
var ErrUnknownConnection = errors.New("unknown connection")

// Runner executes scenarios on a session.
type Runner struct {
	sess      *session.Session
	logger    *slog.Logger
	facade    []afb.Option
	overrides diag.Config
	settle    time.Duration
	drain     time.Duration

	names []string
	apis  map[string]*afb.API
	j1s   map[string]*afb.J1
}

// eventSource is the part of a connection handling declared events.
type eventSource interface {
	ExpectEvent(name string, spec match.Spec[any])
	FailUnreceived() int
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithFacadeOptions sets options applied to every connection.
func WithFacadeOptions(opts ...afb.Option) Option {
	return func(r *Runner) {
		r.facade = append(r.facade, opts...)
	}
}

// WithOverrides sets diagnostics options applied after the scenario's own,
// typically from command line flags.
func WithOverrides(cfg diag.Config) Option {
	return func(r *Runner) {
		r.overrides = cfg
	}
}

// WithSettleTimeout bounds the final wait_completion and wait steps without
// an explicit timeout. Zero waits without bound.
func WithSettleTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.settle = d
	}
}

// WithDrainTimeout bounds how long a finished scenario waits for the
// replies of calls interrupted by closing its connections (default 2s).
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.drain = d
	}
}

// NewRunner creates a Runner reporting to sess.
func NewRunner(sess *session.Session, opts ...Option) *Runner {
	r := &Runner{
		sess:   sess,
		logger: slog.Default(),
		drain:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run opens the scenario's connections, executes its steps and waits for
// the settle point. Assertion outcomes go to the session's diagnostics; the
// returned error reports setup failures and waits that did not complete.
//
// On return the connections are closed, calls they interrupted have
// reported their disconnected replies (within the drain timeout), declared
// events that did not arrive are reported as failures, and the session
// counters are zero, so the session can run the next scenario.
func (r *Runner) Run(ctx context.Context, sc *Scenario) error {
	logger := r.logger.With("scenario", sc.Name)

	cfg, err := diag.ParseConfig(sc.Options)
	if err != nil {
		return fmt.Errorf("options: %w", err)
	}
	d := r.sess.Diag()
	d.Options(cfg)
	settings := d.Options(r.overrides)
	logger.Debug("diagnostics settings", "settings", settings.Map())

	r.names = nil
	r.apis = make(map[string]*afb.API)
	r.j1s = make(map[string]*afb.J1)
	defer r.closeAll()

	err = r.run(ctx, sc, logger)
	r.release(logger)
	return err
}

func (r *Runner) run(ctx context.Context, sc *Scenario, logger *slog.Logger) error {
	for _, c := range sc.Connections {
		if err := r.connect(ctx, c); err != nil {
			return fmt.Errorf("connection %q: %w", c.Name, err)
		}
		logger.Debug("connected", "conn", c.Name, "kind", c.Kind, "uri", c.URI)
	}

	for i, step := range sc.Steps {
		logger.Debug("step", "index", i, "op", step.Op, "conn", step.Conn)
		if err := r.exec(ctx, step); err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
	}

	if err := r.wait(ctx, r.settle, r.sess.WaitCompletion); err != nil {
		return fmt.Errorf("final wait_completion: %w", err)
	}
	return nil
}

func (r *Runner) connect(ctx context.Context, c Connection) error {
	switch c.Kind {
	case KindAPI:
		a, err := afb.DialAPI(ctx, r.sess, c.URI, r.facade...)
		if err != nil {
			return err
		}
		r.apis[c.Name] = a
	case KindJ1:
		j, err := afb.DialJ1(ctx, r.sess, c.URI, r.facade...)
		if err != nil {
			return err
		}
		r.j1s[c.Name] = j
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
	r.names = append(r.names, c.Name)
	return nil
}

func (r *Runner) source(name string) eventSource {
	if j, ok := r.j1s[name]; ok {
		return j
	}
	if a, ok := r.apis[name]; ok {
		return a
	}
	return nil
}

// closeAll disconnects the open connections in declaration order. It may
// run more than once.
func (r *Runner) closeAll() {
	for _, name := range r.names {
		var err error
		if j, ok := r.j1s[name]; ok {
			err = j.Disconnect()
		} else if a, ok := r.apis[name]; ok {
			err = a.Disconnect()
		}
		if err != nil {
			r.logger.Debug("disconnect", "conn", name, "error", err)
		}
	}
	r.names = nil
}

func (r *Runner) release(logger *slog.Logger) {
	for _, name := range r.names {
		if n := r.source(name).FailUnreceived(); n > 0 {
			logger.Warn("expected events not received", "conn", name, "count", n)
		}
	}
	r.closeAll()

	if r.sess.Pending() > 0 && r.drain > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), r.drain)
		defer cancel()
		if err := r.sess.WaitCalls(ctx); err != nil {
			logger.Warn("calls still pending after disconnect", "pending", r.sess.Pending(), "error", err)
		}
	}
	if pending, expected := r.sess.Reset(); pending > 0 || expected > 0 {
		logger.Debug("abandoned", "pending", pending, "events", expected)
	}
}

// wait runs fn under timeout, or the settle timeout when zero.
func (r *Runner) wait(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout == 0 {
		timeout = r.settle
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (r *Runner) exec(ctx context.Context, step Step) error {
	timeout, err := step.timeout()
	if err != nil {
		return err
	}

	switch step.Op {
	case OpExpectEvent:
		n := step.Count
		if n == 0 {
			n = 1
		}
		if step.Conn == "" {
			for i := 0; i < n; i++ {
				r.sess.ExpectEvent()
			}
			return nil
		}
		src := r.source(step.Conn)
		if src == nil {
			return fmt.Errorf("%w: %q", ErrUnknownConnection, step.Conn)
		}
		for i := 0; i < n; i++ {
			src.ExpectEvent(step.Event, match.Pattern[any](step.Match))
		}
		return nil
	case OpWaitCompletion:
		return r.wait(ctx, timeout, r.sess.WaitCompletion)
	case OpWaitCalls:
		return r.wait(ctx, timeout, r.sess.WaitCalls)
	case OpWaitEvents:
		return r.wait(ctx, timeout, r.sess.WaitEvents)
	case OpWaitCount:
		return r.wait(ctx, timeout, func(ctx context.Context) error {
			return r.sess.WaitCount(ctx, step.Count)
		})
	}

	if j, ok := r.j1s[step.Conn]; ok {
		return r.execJ1(j, step)
	}
	if a, ok := r.apis[step.Conn]; ok {
		return r.execAPI(a, step)
	}
	return fmt.Errorf("%w: %q", ErrUnknownConnection, step.Conn)
}

// logCallError logs transport errors of call steps. The call's completion
// still runs and reports the failure through the diagnostics.
func (r *Runner) logCallError(step Step, err error) error {
	if err != nil {
		r.logger.Warn("call not sent", "conn", step.Conn, "verb", step.Verb, "error", err)
	}
	return nil
}

func (r *Runner) execJ1(j *afb.J1, step Step) error {
	switch step.Op {
	case OpCall:
		return r.logCallError(step, j.Call(step.API, step.Verb, step.Args, nil))
	case OpCallSuccess:
		return r.logCallError(step, j.CallSuccess(step.API, step.Verb, step.Args))
	case OpCallError:
		return r.logCallError(step, j.CallError(step.API, step.Verb, step.Args))
	case OpCallMatch:
		m, nm := match.Pattern[any](step.Match), match.Pattern[any](step.NotMatch)
		return r.logCallError(step, j.CallMatch(step.API, step.Verb, step.Args, m, nm))
	case OpDisconnect:
		return j.Disconnect()
	}
	return fmt.Errorf("not supported on j1 connection %q", step.Conn)
}

func (r *Runner) execAPI(a *afb.API, step Step) error {
	switch step.Op {
	case OpCall:
		return r.logCallError(step, a.Call(step.Verb, step.Args, nil))
	case OpCallSuccess:
		return r.logCallError(step, a.CallSuccess(step.Verb, step.Args))
	case OpCallError:
		return r.logCallError(step, a.CallError(step.Verb, step.Args))
	case OpCallMatch:
		m, nm := match.Pattern[wsapi.Reply](step.Match), match.Pattern[wsapi.Reply](step.NotMatch)
		return r.logCallError(step, a.CallMatch(step.Verb, step.Args, m, nm))
	case OpSessionCreate:
		return a.SessionCreate(step.ID, step.Name)
	case OpSessionRemove:
		return a.SessionRemove(step.ID)
	case OpTokenCreate:
		return a.TokenCreate(step.ID, step.Name)
	case OpTokenRemove:
		return a.TokenRemove(step.ID)
	case OpSetSession:
		a.SetSession(step.ID)
		return nil
	case OpSetToken:
		a.SetToken(step.ID)
		return nil
	case OpUnexpected:
		a.SetUnexpected(step.Enable == nil || *step.Enable)
		return nil
	case OpDescribe:
		return r.logCallError(step, a.Describe(func(desc any) {
			r.logger.Info("description", "conn", step.Conn, "description", desc)
		}))
	case OpDisconnect:
		return a.Disconnect()
	}
	return fmt.Errorf("not supported on api connection %q", step.Conn)
}
