package wsapi

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redpesk-addons/afb-jscli/internal/loop"
	"github.com/redpesk-addons/afb-jscli/internal/testutil"
)

// recorder records every notification as a short string.
type recorder struct {
	BaseHandler
	seen  []string
	calls []*Request
	reply func(req *Request)
}

func (r *recorder) add(s string) { r.seen = append(r.seen, s) }

func (r *recorder) OnHangup() { r.add("hangup") }
func (r *recorder) OnEventCreate(id uint16, n string) { r.add("create " + n) }
func (r *recorder) OnEventRemove(id uint16) { r.add("remove") }
func (r *recorder) OnEventSubscribe(id uint16) { r.add("subscribe") }
func (r *recorder) OnEventUnsubscribe(id uint16) { r.add("unsubscribe") }
func (r *recorder) OnEventPush(id uint16, data any) { r.add("push") }
func (r *recorder) OnEventUnexpected(id uint16) { r.add("unexpected") }
func (r *recorder) OnSessionCreate(id int, n string) { r.add("session " + n) }
func (r *recorder) OnSessionRemove(id int) { r.add("session-remove") }
func (r *recorder) OnTokenCreate(id int, n string) { r.add("token " + n) }
func (r *recorder) OnTokenRemove(id int) { r.add("token-remove") }

func (r *recorder) OnEventBroadcast(name string, data any, hops int, uuid string) {
	r.add("broadcast " + name + " " + uuid)
}

func (r *recorder) OnCall(req *Request) {
	r.calls = append(r.calls, req)
	if r.reply != nil {
		r.reply(req)
		return
	}
	r.BaseHandler.OnCall(req)
}

type pair struct {
	lp     *loop.Loop
	client *Conn
	server *Server
	peer   *Conn
	remote *recorder
	local  *recorder
}

// connect starts a server whose connections are handled by a fresh
// recorder and dials it.
func connect(t *testing.T, reply func(req *Request), opts ...Option) *pair {
	t.Helper()
	p := &pair{lp: loop.New()}
	p.remote = &recorder{BaseHandler: BaseHandler{Logger: testutil.Logger()}, reply: reply}
	p.local = &recorder{BaseHandler: BaseHandler{Logger: testutil.Logger()}}

	opts = append([]Option{WithLogger(testutil.Logger())}, opts...)
	p.server = NewServer(p.lp, func(c *Conn) {
		p.peer = c
		c.SetHandler(p.remote)
	}, opts...)
	hs := httptest.NewServer(p.server)
	t.Cleanup(hs.Close)

	uri := strings.TrimPrefix(hs.URL, "http://") + "/"
	client, err := Dial(context.Background(), uri, p.lp, append(opts, WithHandler(p.local))...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect() })
	p.client = client

	testutil.PumpUntil(t, p.lp, func() bool { return p.peer != nil })
	return p
}

func (p *pair) call(t *testing.T, verb string, args any) Reply {
	t.Helper()
	var got *Reply
	require.NoError(t, p.client.Call(verb, args, func(r Reply) { got = &r }))
	testutil.PumpUntil(t, p.lp, func() bool { return got != nil })
	return *got
}

func echo(req *Request) {
	_ = req.Reply(req.Args, "", req.Verb)
}

func TestCall_Echo(t *testing.T) {
	p := connect(t, echo)
	p.client.SetSession(3)
	p.client.SetToken(4)
	p.client.SetCreds("me")

	reply := p.call(t, "hello", map[string]any{"x": 1})

	assert.Equal(t, Reply{Result: map[string]any{"x": float64(1)}, Info: "hello"}, reply)
	assert.True(t, reply.Succeeded())
	require.Len(t, p.remote.calls, 1)
	req := p.remote.calls[0]
	assert.Equal(t, 3, req.SessionID)
	assert.Equal(t, 4, req.TokenID)
	assert.Equal(t, "me", req.Creds)
	assert.Same(t, p.peer, req.Conn())
}

func TestCall_DefaultHandlerAnswersUnhandled(t *testing.T) {
	p := connect(t, nil)

	reply := p.call(t, "anything", nil)

	assert.Equal(t, StatusUnhandled, reply.Error)
	assert.Nil(t, reply.Result)
	assert.False(t, reply.Succeeded())
}

func TestRequest_ReplyTwice(t *testing.T) {
	var second error
	p := connect(t, func(req *Request) {
		_ = req.Reply(true, "", "")
		second = req.Reply(false, "", "")
	})

	reply := p.call(t, "x", nil)

	assert.Equal(t, true, reply.Result)
	assert.ErrorIs(t, second, ErrAlreadyReplied)
}

func TestDescribe(t *testing.T) {
	p := connect(t, nil)

	var desc any
	done := false
	require.NoError(t, p.client.Describe(func(d any) { desc, done = d, true }))
	testutil.PumpUntil(t, p.lp, func() bool { return done })
	assert.Nil(t, desc)
}

type describer struct {
	BaseHandler
}

func (describer) OnDescribe(req *DescribeRequest) {
	_ = req.Reply(map[string]any{"openapi": "3.0.0"})
}

func TestDescribe_Custom(t *testing.T) {
	p := connect(t, nil)
	p.peer.SetHandler(describer{})

	var desc any
	require.NoError(t, p.client.Describe(func(d any) { desc = d }))
	testutil.PumpUntil(t, p.lp, func() bool { return desc != nil })
	assert.Equal(t, map[string]any{"openapi": "3.0.0"}, desc)
}

func TestEvents_SubscribeAndPush(t *testing.T) {
	p := connect(t, func(req *Request) {
		c := req.Conn()
		_ = c.EventCreate(7, "hello/ev")
		_ = req.Subscribe(7)
		_ = c.EventPush(7, map[string]any{"n": 1})
		_ = req.Unsubscribe(7)
		_ = c.EventRemove(7)
		_ = req.Reply(nil, "", "")
	})

	p.call(t, "sub", nil)
	testutil.PumpUntil(t, p.lp, func() bool { return len(p.local.seen) == 5 })

	assert.Equal(t, []string{"create hello/ev", "subscribe", "push", "unsubscribe", "remove"}, p.local.seen)
}

func TestEvents_UnexpectedReachesPeer(t *testing.T) {
	p := connect(t, nil)

	require.NoError(t, p.client.EventUnexpected(7))
	testutil.PumpUntil(t, p.lp, func() bool { return len(p.remote.seen) == 1 })
	assert.Equal(t, []string{"unexpected"}, p.remote.seen)
}

func TestEventBroadcast_CarriesUUID(t *testing.T) {
	p := connect(t, nil, WithIDGenerator(testutil.FixedID("uuid-1")))

	id, err := p.client.EventBroadcast("hello/all", true, 2)
	require.NoError(t, err)
	assert.Equal(t, "uuid-1", id)

	testutil.PumpUntil(t, p.lp, func() bool { return len(p.remote.seen) == 1 })
	assert.Equal(t, []string{"broadcast hello/all uuid-1"}, p.remote.seen)
}

func TestSessionsAndTokens(t *testing.T) {
	p := connect(t, nil)

	require.NoError(t, p.client.SessionCreate(1, "s1"))
	require.NoError(t, p.client.TokenCreate(2, "t2"))
	require.NoError(t, p.client.TokenRemove(2))
	require.NoError(t, p.client.SessionRemove(1))

	testutil.PumpUntil(t, p.lp, func() bool { return len(p.remote.seen) == 4 })
	assert.Equal(t, []string{"session s1", "token t2", "token-remove", "session-remove"}, p.remote.seen)
}

func TestInvalidFramesAreRejectedLocally(t *testing.T) {
	p := connect(t, nil)

	assert.ErrorIs(t, p.client.EventCreate(0, "x"), ErrInvalidFrame)
	assert.ErrorIs(t, p.client.SessionCreate(1, ""), ErrInvalidFrame)
}

func TestHangup_CompletesPendingCalls(t *testing.T) {
	p := connect(t, func(req *Request) {})

	var reply *Reply
	require.NoError(t, p.client.Call("never", nil, func(r Reply) { reply = &r }))
	testutil.PumpUntil(t, p.lp, func() bool { return len(p.remote.calls) == 1 })

	p.server.CloseAll()
	testutil.PumpUntil(t, p.lp, func() bool {
		return reply != nil && len(p.local.seen) == 1
	})

	assert.Equal(t, StatusDisconnected, reply.Error)
	assert.Equal(t, []string{"hangup"}, p.local.seen)
	assert.False(t, p.client.IsConnected())

	var late *Reply
	err := p.client.Call("late", nil, func(r Reply) { late = &r })
	assert.ErrorIs(t, err, ErrNotConnected)
	testutil.PumpUntil(t, p.lp, func() bool { return late != nil })
	assert.Equal(t, StatusDisconnected, late.Error)

	assert.NoError(t, p.client.Disconnect(), "disconnect after hangup")
}

func TestCall_UnencodableArgs(t *testing.T) {
	p := connect(t, nil)

	var reply *Reply
	err := p.client.Call("x", make(chan int), func(r Reply) { reply = &r })
	assert.Error(t, err)
	testutil.PumpUntil(t, p.lp, func() bool { return reply != nil })
	assert.Equal(t, StatusInvalidRequest, reply.Error)
}

func TestServe_UnixSocket(t *testing.T) {
	lp := loop.New()
	var peer *Conn
	srv := NewServer(lp, func(c *Conn) {
		peer = c
		c.SetHandler(&recorder{BaseHandler: BaseHandler{Logger: testutil.Logger()}, reply: echo})
	}, WithLogger(testutil.Logger()))

	uri := "unix:" + filepath.Join(t.TempDir(), "api.sock")
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, uri) }()

	var client *Conn
	require.Eventually(t, func() bool {
		c, err := Dial(context.Background(), uri, lp, WithLogger(testutil.Logger()))
		if err != nil {
			return false
		}
		client = c
		return true
	}, 2*time.Second, 20*time.Millisecond)

	var reply *Reply
	require.NoError(t, client.Call("ping", "pong", func(r Reply) { reply = &r }))
	testutil.PumpUntil(t, lp, func() bool { return reply != nil })
	assert.Equal(t, "pong", reply.Result)
	assert.Equal(t, "ping", reply.Info)
	assert.NotNil(t, peer)

	cancel()
	require.NoError(t, <-served)
}
