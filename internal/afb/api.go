package afb

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/redpesk-addons/afb-jscli/internal/match"
	"github.com/redpesk-addons/afb-jscli/internal/session"
	"github.com/redpesk-addons/afb-jscli/internal/wsapi"
)

// API is a tracked wsapi connection.
//
// It keeps the names announced by the peer for its event ids, so that hooks
// see names rather than ids.
type API struct {
	wsapi.BaseHandler

	sess *session.Session
	conn *wsapi.Conn

	onEvent EventHook
	onHup   func()
	expect  expectations

	mu         sync.Mutex
	unexpected bool
	events     map[uint16]string
}

// DialAPI connects to uri. Callbacks run when sess pumps its loop.
func DialAPI(ctx context.Context, sess *session.Session, uri string, opts ...Option) (*API, error) {
	o := newOptions(opts)
	a := newAPI(sess, o, o.logger.With("uri", uri))

	dialOpts := []wsapi.Option{wsapi.WithLogger(o.logger), wsapi.WithHandler(a)}
	if o.dialer != nil {
		dialOpts = append(dialOpts, wsapi.WithDialer(o.dialer))
	}
	if o.ids != nil {
		dialOpts = append(dialOpts, wsapi.WithIDGenerator(o.ids))
	}
	conn, err := wsapi.Dial(ctx, uri, sess.Loop(), dialOpts...)
	if err != nil {
		return nil, err
	}
	a.conn = conn
	return a, nil
}

// WrapAPI tracks an existing connection, such as one accepted by a
// wsapi.Server, and installs the facade as its handler.
func WrapAPI(sess *session.Session, conn *wsapi.Conn, opts ...Option) *API {
	o := newOptions(opts)
	a := newAPI(sess, o, o.logger)
	a.conn = conn
	conn.SetHandler(a)
	return a
}

func newAPI(sess *session.Session, o options, logger *slog.Logger) *API {
	return &API{
		BaseHandler: wsapi.BaseHandler{Logger: logger},
		sess:        sess,
		onEvent:     o.onEvent,
		onHup:       o.onHup,
		expect:      expectations{sess: sess},
		events:      make(map[uint16]string),
	}
}

// Conn returns the underlying connection.
func (a *API) Conn() *wsapi.Conn {
	return a.conn
}

// SetEventHook replaces the event hook.
func (a *API) SetEventHook(fn EventHook) {
	a.onEvent = fn
}

// SetUnexpected controls whether pushed events are reported back to the
// peer as unexpected. Reported events still count as received.
func (a *API) SetUnexpected(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unexpected = on
}

// EventName returns the name the peer announced for id.
func (a *API) EventName(id uint16) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	name, ok := a.events[id]
	return name, ok
}

// Call calls verb. done, if any, receives the reply; the call is pending
// until done returns.
func (a *API) Call(verb string, args any, done func(wsapi.Reply)) error {
	return a.conn.Call(verb, args, session.Track(a.sess, done))
}

// Describe requests the peer's description. It is tracked like a call.
func (a *API) Describe(done func(description any)) error {
	return a.conn.Describe(session.Track(a.sess, done))
}

func replyResult(r wsapi.Reply) any {
	return r.Result
}

// CallMatch calls verb and asserts that the reply is accepted by m and not
// by nm. Patterns are compared with the reply result; predicates see the
// whole reply.
func (a *API) CallMatch(verb string, args any, m, nm match.Spec[wsapi.Reply]) error {
	check := match.Compile(m, nm, replyResult)
	return a.Call(verb, args, func(r wsapi.Reply) {
		a.sess.Diag().Assert(check(r), CallRecord{
			Verb:     verb,
			Request:  args,
			Reply:    r.Result,
			Error:    r.Error,
			Info:     r.Info,
			Match:    m.Value(),
			NotMatch: nm.Value(),
		})
	})
}

// CallSuccess asserts that verb completes without error.
func (a *API) CallSuccess(verb string, args any) error {
	return a.CallMatch(verb, args, match.Predicate(wsapi.Reply.Succeeded), match.Wildcard[wsapi.Reply]())
}

// CallError asserts that verb completes with an error.
func (a *API) CallError(verb string, args any) error {
	failed := func(r wsapi.Reply) bool { return !r.Succeeded() }
	return a.CallMatch(verb, args, match.Predicate(failed), match.Wildcard[wsapi.Reply]())
}

// SetSession selects the session sent with calls.
func (a *API) SetSession(id int) {
	a.conn.SetSession(id)
}

// SetToken selects the token sent with calls.
func (a *API) SetToken(id int) {
	a.conn.SetToken(id)
}

// SessionCreate announces a session to the peer.
func (a *API) SessionCreate(id int, name string) error {
	return a.conn.SessionCreate(id, name)
}

// SessionRemove withdraws a session.
func (a *API) SessionRemove(id int) error {
	return a.conn.SessionRemove(id)
}

// TokenCreate announces a token to the peer.
func (a *API) TokenCreate(id int, name string) error {
	return a.conn.TokenCreate(id, name)
}

// TokenRemove withdraws a token.
func (a *API) TokenRemove(id int) error {
	return a.conn.TokenRemove(id)
}

// EventCreate announces an event to the peer.
func (a *API) EventCreate(id uint16, name string) error {
	return a.conn.EventCreate(id, name)
}

// EventRemove withdraws an event.
func (a *API) EventRemove(id uint16) error {
	return a.conn.EventRemove(id)
}

// EventPush pushes data on an event.
func (a *API) EventPush(id uint16, data any) error {
	return a.conn.EventPush(id, data)
}

// EventUnexpected flags an event of the peer as unexpected.
func (a *API) EventUnexpected(id uint16) error {
	return a.conn.EventUnexpected(id)
}

// ExpectEvent declares an event named name, or any event when name is
// empty, whose data must be accepted by spec. The outcome is asserted when
// the event arrives.
func (a *API) ExpectEvent(name string, spec match.Spec[any]) {
	a.expect.add(name, spec)
}

// FailUnreceived reports the declared events that did not arrive as
// failures and returns their number.
func (a *API) FailUnreceived() int {
	return a.expect.fail(a.sess.Diag())
}

// IsConnected reports whether the connection is open.
func (a *API) IsConnected() bool {
	return a.conn.IsConnected()
}

// Disconnect closes the connection.
func (a *API) Disconnect() error {
	return a.conn.Disconnect()
}

// EventBroadcast broadcasts data under name and returns its uuid.
func (a *API) EventBroadcast(name string, data any, hops int) (string, error) {
	return a.conn.EventBroadcast(name, data, hops)
}

// wsapi.Handler

func (a *API) OnHangup() {
	a.BaseHandler.OnHangup()
	if a.onHup != nil {
		a.onHup()
	}
}

func (a *API) OnEventCreate(id uint16, name string) {
	a.BaseHandler.OnEventCreate(id, name)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events[id] = name
}

func (a *API) OnEventRemove(id uint16) {
	a.BaseHandler.OnEventRemove(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.events, id)
}

func (a *API) OnEventPush(id uint16, data any) {
	a.BaseHandler.OnEventPush(id, data)
	defer a.sess.GotEvent()

	a.mu.Lock()
	name, known := a.events[id]
	unexpected := a.unexpected
	a.mu.Unlock()

	if unexpected {
		a.Logger.Info("unexpected event", "event", id, "name", name)
		if err := a.conn.EventUnexpected(id); err != nil {
			a.Logger.Warn("failed to flag unexpected event", "event", id, "error", err)
		}
	}
	if !known {
		name = strconv.Itoa(int(id))
	}
	if a.onEvent != nil {
		a.onEvent(name, data)
	}
	a.expect.check(name, data)
}

func (a *API) OnEventBroadcast(name string, data any, hops int, uuid string) {
	a.BaseHandler.OnEventBroadcast(name, data, hops, uuid)
	defer a.sess.GotEvent()
	if a.onEvent != nil {
		a.onEvent(name, data)
	}
	a.expect.check(name, data)
}
