package afb

import (
	"context"
	"log/slog"

	"github.com/redpesk-addons/afb-jscli/internal/match"
	"github.com/redpesk-addons/afb-jscli/internal/session"
	"github.com/redpesk-addons/afb-jscli/internal/wsj1"
)

// J1 is a tracked websocket-json1 connection.
type J1 struct {
	sess   *session.Session
	conn   *wsj1.Conn
	logger *slog.Logger

	onEvent EventHook
	onHup   func()
	expect  expectations
}

// DialJ1 connects to uri. Callbacks run when sess pumps its loop.
func DialJ1(ctx context.Context, sess *session.Session, uri string, opts ...Option) (*J1, error) {
	o := newOptions(opts)
	j := &J1{
		sess:    sess,
		logger:  o.logger.With("uri", uri),
		onEvent: o.onEvent,
		onHup:   o.onHup,
		expect:  expectations{sess: sess},
	}

	dialOpts := []wsj1.Option{wsj1.WithLogger(o.logger)}
	if o.dialer != nil {
		dialOpts = append(dialOpts, wsj1.WithDialer(o.dialer))
	}
	conn, err := wsj1.Dial(ctx, uri, sess.Loop(), j1Handler{j}, dialOpts...)
	if err != nil {
		return nil, err
	}
	j.conn = conn
	return j, nil
}

// SetEventHook replaces the event hook.
func (j *J1) SetEventHook(fn EventHook) {
	j.onEvent = fn
}

// Call calls api/verb. done, if any, receives the reply object; the call is
// pending until done returns.
func (j *J1) Call(api, verb string, args any, done func(reply any)) error {
	return j.conn.Call(api, verb, args, session.Track(j.sess, done))
}

// CallMatch calls api/verb and asserts that the reply object is accepted
// by m and not by nm.
func (j *J1) CallMatch(api, verb string, args any, m, nm match.Spec[any]) error {
	check := match.Compile(m, nm, match.Identity)
	return j.Call(api, verb, args, func(reply any) {
		j.sess.Diag().Assert(check(reply), CallRecord{
			API:      api,
			Verb:     verb,
			Request:  args,
			Reply:    reply,
			Match:    m.Value(),
			NotMatch: nm.Value(),
		})
	})
}

// J1 reply patterns.
var (
	j1Success    = map[string]any{"jtype": "afb-reply", "request": map[string]any{"status": "success"}}
	j1HasStatus  = map[string]any{"jtype": "afb-reply", "request": map[string]any{"status": nil}}
	j1NotSuccess = map[string]any{"request": map[string]any{"status": "success"}}
)

// CallSuccess asserts that api/verb replies with status "success".
func (j *J1) CallSuccess(api, verb string, args any) error {
	return j.CallMatch(api, verb, args, match.Pattern[any](j1Success), match.Wildcard[any]())
}

// CallError asserts that api/verb replies with a status other than
// "success".
func (j *J1) CallError(api, verb string, args any) error {
	return j.CallMatch(api, verb, args, match.Pattern[any](j1HasStatus), match.Pattern[any](j1NotSuccess))
}

// ExpectEvent declares an event named name ("api/event"), or any event
// when name is empty, whose data must be accepted by spec.
func (j *J1) ExpectEvent(name string, spec match.Spec[any]) {
	j.expect.add(name, spec)
}

// FailUnreceived reports the declared events that did not arrive as
// failures and returns their number.
func (j *J1) FailUnreceived() int {
	return j.expect.fail(j.sess.Diag())
}

// IsConnected reports whether the connection is open.
func (j *J1) IsConnected() bool {
	return j.conn.IsConnected()
}

// Disconnect closes the connection.
func (j *J1) Disconnect() error {
	return j.conn.Disconnect()
}

// j1Handler keeps the transport callbacks off the facade's method set.
type j1Handler struct {
	j *J1
}

func (h j1Handler) OnEvent(name string, data any) {
	j := h.j
	j.logger.Debug("received event", "event", name, "data", data)
	defer j.sess.GotEvent()
	if j.onEvent != nil {
		j.onEvent(name, data)
	}
	j.expect.check(name, data)
}

func (h j1Handler) OnHangup() {
	j := h.j
	j.logger.Info("hangup")
	if j.onHup != nil {
		j.onHup()
	}
}
