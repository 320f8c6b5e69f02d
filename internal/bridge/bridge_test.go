package bridge

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redpesk-addons/afb-jscli/internal/afb"
	"github.com/redpesk-addons/afb-jscli/internal/diag"
	"github.com/redpesk-addons/afb-jscli/internal/services"
	"github.com/redpesk-addons/afb-jscli/internal/session"
	"github.com/redpesk-addons/afb-jscli/internal/testutil"
	"github.com/redpesk-addons/afb-jscli/internal/wsapi"
)

type memorySink struct {
	records []Record
	err     error
}

func (s *memorySink) Insert(_ context.Context, rec Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

type fakeStreams struct {
	mu   sync.Mutex
	adds []*redis.XAddArgs
	err  error
}

func (f *fakeStreams) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, a)
	return redis.NewStringResult("1-0", f.err)
}

func newSession(out *bytes.Buffer) *session.Session {
	d := diag.New(
		diag.WithWriter(out),
		diag.WithExit(func(int) {}),
		diag.WithLogger(testutil.Logger()),
	)
	return session.New(session.WithDiagnostics(d), session.WithLogger(testutil.Logger()))
}

func serve(t *testing.T, sess *session.Session, onIncoming func(*wsapi.Conn)) string {
	t.Helper()
	srv := wsapi.NewServer(sess.Loop(), onIncoming, wsapi.WithLogger(testutil.Logger()))
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	return strings.TrimPrefix(hs.URL, "http://") + "/"
}

func dial(t *testing.T, sess *session.Session, uri string) *afb.API {
	t.Helper()
	a, err := afb.DialAPI(context.Background(), sess, uri, afb.WithLogger(testutil.Logger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Disconnect() })
	return a
}

func settle(t *testing.T, sess *session.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sess.WaitCompletion(ctx))
}

func TestBridge_ForwardsPushedEvents(t *testing.T) {
	var out bytes.Buffer
	sess := newSession(&out)
	pubsub := services.NewPubSub(testutil.Logger())
	source := dial(t, sess, serve(t, sess, pubsub.Attach))

	sink := &memorySink{}
	b := New(source, sink, WithLogger(testutil.Logger()))
	require.NoError(t, b.Subscribe("1510SP/dig", "1510SP/ana"))
	settle(t, sess)
	assert.Equal(t, [3]int{2, 2, 0}, counts(sess))

	sess.ExpectEvent()
	sess.ExpectEvent()
	assert.Equal(t, 1, pubsub.Publish("1510SP/dig", map[string]any{"value": 1}))
	assert.Equal(t, 1, pubsub.Publish("1510SP/ana", 3.5))
	assert.Zero(t, pubsub.Publish("1510SP/none", true))
	settle(t, sess)

	require.Len(t, sink.records, 2)
	assert.Equal(t, Record{Class: "1510SP/dig", Data: map[string]any{"value": float64(1)}, Timestamp: AutoTimestamp}, sink.records[0])
	assert.Equal(t, Record{Class: "1510SP/ana", Data: 3.5, Timestamp: AutoTimestamp}, sink.records[1])
	forwarded, failed := b.Stats()
	assert.Equal(t, 2, forwarded)
	assert.Zero(t, failed)
}

func TestBridge_CountsSinkFailures(t *testing.T) {
	var out bytes.Buffer
	sess := newSession(&out)
	pubsub := services.NewPubSub(testutil.Logger())
	source := dial(t, sess, serve(t, sess, pubsub.Attach))

	b := New(source, &memorySink{err: errors.New("down")}, WithLogger(testutil.Logger()))
	require.NoError(t, b.Subscribe("topic"))
	settle(t, sess)

	sess.ExpectEvent()
	pubsub.Publish("topic", 1)
	settle(t, sess)

	forwarded, failed := b.Stats()
	assert.Zero(t, forwarded)
	assert.Equal(t, 1, failed)
}

func TestBridge_SubscribeFailureIsReported(t *testing.T) {
	var out bytes.Buffer
	sess := newSession(&out)
	hello := services.NewHello(testutil.Logger())
	source := dial(t, sess, serve(t, sess, hello.Attach))

	b := New(source, &memorySink{}, WithLogger(testutil.Logger()))
	require.NoError(t, b.Subscribe("nosuchverb"))
	settle(t, sess)

	assert.Equal(t, [3]int{1, 0, 1}, counts(sess))
	assert.Contains(t, out.String(), "not ok 1")
}

type insertRecorder struct {
	wsapi.BaseHandler
	mu    sync.Mutex
	verbs []string
	args  []any
}

func (h *insertRecorder) OnCall(req *wsapi.Request) {
	h.mu.Lock()
	h.verbs = append(h.verbs, req.Verb)
	h.args = append(h.args, req.Args)
	h.mu.Unlock()
	_ = req.Reply(true, "", "")
}

func TestAPISink_CallsInsertVerb(t *testing.T) {
	var out bytes.Buffer
	sess := newSession(&out)
	rec := &insertRecorder{BaseHandler: wsapi.BaseHandler{Logger: testutil.Logger()}}
	target := dial(t, sess, serve(t, sess, func(c *wsapi.Conn) { c.SetHandler(rec) }))

	sink := NewAPISink(target, "")
	require.NoError(t, sink.Insert(context.Background(), Record{Class: "temp", Data: 21, Timestamp: AutoTimestamp}))
	assert.Equal(t, 1, sess.Pending())
	settle(t, sess)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{DefaultInsertVerb}, rec.verbs)
	assert.Equal(t, []any{map[string]any{"class": "temp", "data": float64(21), "timestamp": "*"}}, rec.args)
	assert.Empty(t, out.String())
}

func TestAPISink_EndToEnd(t *testing.T) {
	var out bytes.Buffer
	sess := newSession(&out)
	pubsub := services.NewPubSub(testutil.Logger())
	rec := &insertRecorder{BaseHandler: wsapi.BaseHandler{Logger: testutil.Logger()}}
	source := dial(t, sess, serve(t, sess, pubsub.Attach))
	target := dial(t, sess, serve(t, sess, func(c *wsapi.Conn) { c.SetHandler(rec) }))

	b := New(source, NewAPISink(target, "store"), WithLogger(testutil.Logger()))
	require.NoError(t, b.Subscribe("modbus"))
	settle(t, sess)

	sess.ExpectEvent()
	pubsub.Publish("modbus", "on")
	settle(t, sess)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"store"}, rec.verbs)
	assert.Equal(t, []any{map[string]any{"class": "modbus", "data": "on", "timestamp": "*"}}, rec.args)
}

func TestRedisSink_Insert(t *testing.T) {
	streams := &fakeStreams{}
	sink := NewRedisSink(streams, WithPrefix("ts"), WithMaxLen(100))

	require.NoError(t, sink.Insert(context.Background(), Record{Class: "1510SP/dig", Data: map[string]any{"v": 1}, Timestamp: AutoTimestamp}))
	require.NoError(t, sink.Insert(context.Background(), Record{Class: "ana", Data: nil, Timestamp: "1700000000000-0"}))
	require.NoError(t, sink.Insert(context.Background(), Record{Class: "ana", Data: 2}))

	require.Len(t, streams.adds, 3)
	first := streams.adds[0]
	assert.Equal(t, "ts:1510SP/dig", first.Stream)
	assert.Equal(t, "*", first.ID)
	assert.Equal(t, map[string]any{"data": `{"v":1}`}, first.Values)
	assert.Equal(t, int64(100), first.MaxLen)
	assert.True(t, first.Approx)

	assert.Equal(t, "1700000000000-0", streams.adds[1].ID)
	assert.Equal(t, map[string]any{"data": "null"}, streams.adds[1].Values)
	assert.Equal(t, "*", streams.adds[2].ID)
}

func TestRedisSink_Errors(t *testing.T) {
	streams := &fakeStreams{err: errors.New("READONLY")}
	sink := NewRedisSink(streams)
	assert.Equal(t, "afb:x", sink.Stream("x"))

	err := sink.Insert(context.Background(), Record{Class: "x", Data: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xadd afb:x")

	err = sink.Insert(context.Background(), Record{Class: "x", Data: make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode x")
}

func TestRedisSink_NoPrefix(t *testing.T) {
	sink := NewRedisSink(&fakeStreams{}, WithPrefix(""))
	assert.Equal(t, "x", sink.Stream("x"))
}

const testRedisAddr = "localhost:6379"

func TestRedisSink_Live(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	sink := NewRedisSink(client, WithPrefix("afb-jscli-test"))
	stream := sink.Stream("live")
	client.Del(ctx, stream)
	defer client.Del(ctx, stream)

	require.NoError(t, sink.Insert(ctx, Record{Class: "live", Data: []int{1, 2}, Timestamp: AutoTimestamp}))
	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "[1,2]", entries[0].Values["data"])
}

func counts(sess *session.Session) [3]int {
	tests, ok, ko := sess.Diag().Counts()
	return [3]int{tests, ok, ko}
}
