package afb_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redpesk-addons/afb-jscli/internal/afb"
	"github.com/redpesk-addons/afb-jscli/internal/diag"
	"github.com/redpesk-addons/afb-jscli/internal/match"
	"github.com/redpesk-addons/afb-jscli/internal/testutil"
	"github.com/redpesk-addons/afb-jscli/internal/wsj1"
)

func dialJ1(t *testing.T, h *harness, opts ...afb.Option) (*afb.J1, *testutil.J1Server) {
	t.Helper()
	srv := testutil.NewJ1Server(t, nil)
	opts = append([]afb.Option{afb.WithLogger(testutil.Logger())}, opts...)
	j, err := afb.DialJ1(context.Background(), h.sess, srv.URI(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Disconnect() })
	return j, srv
}

func TestJ1_CallSuccess(t *testing.T) {
	h := newHarness(t, diag.Settings{})
	j, _ := dialJ1(t, h)

	require.NoError(t, j.CallSuccess("hello", "ping", true))
	assert.Equal(t, 1, h.sess.Pending())
	h.settle(t)

	assert.Equal(t, 0, h.sess.Pending())
	assert.Equal(t, [3]int{1, 1, 0}, h.counts())
	line := h.out.String()
	assert.True(t, strings.HasPrefix(line, "ok 1 {"), line)
	assert.Contains(t, line, `"api":"hello"`)
	assert.Contains(t, line, `"verb":"ping"`)
	assert.Contains(t, line, `"match":{"jtype":"afb-reply","request":{"status":"success"}}`)
	assert.NotContains(t, line, `"notmatch"`)
}

func TestJ1_CallErrorOnFailingVerbPasses(t *testing.T) {
	h := newHarness(t, diag.Settings{})
	j, _ := dialJ1(t, h)

	require.NoError(t, j.CallError("hello", "pingfail", true))
	require.NoError(t, j.CallError("hello", "pingbug", true))
	h.settle(t)

	assert.Equal(t, [3]int{2, 2, 0}, h.counts())
	assert.Equal(t, diag.ExitSuccess, h.sess.Diag().ExitCode())
}

func TestJ1_CallErrorOnSucceedingVerbFails(t *testing.T) {
	h := newHarness(t, diag.Settings{})
	j, _ := dialJ1(t, h)

	require.NoError(t, j.CallError("hello", "ping", true))
	h.settle(t)

	assert.Equal(t, [3]int{1, 0, 1}, h.counts())
	assert.True(t, strings.HasPrefix(h.out.String(), "not ok 1 "))
	assert.Equal(t, diag.ExitFailure, h.sess.Diag().ExitCode())
}

func TestJ1_CallMatch(t *testing.T) {
	h := newHarness(t, diag.Settings{})
	j, _ := dialJ1(t, h)

	args := map[string]any{"a": 1, "b": []any{"x", "y"}}
	responseHas := func(key string) match.Spec[any] {
		return match.Predicate(func(r any) bool {
			return match.Contains(r, map[string]any{"response": map[string]any{key: nil}})
		})
	}

	require.NoError(t, j.CallMatch("hello", "ping", args,
		match.Pattern[any](map[string]any{"response": map[string]any{"b": []any{"x"}}}),
		match.Wildcard[any]()))
	require.NoError(t, j.CallMatch("hello", "ping", args, responseHas("a"), responseHas("c")))
	require.NoError(t, j.CallMatch("hello", "ping", args, match.Wildcard[any](), responseHas("a")))
	h.settle(t)

	assert.Equal(t, [3]int{3, 2, 1}, h.counts())
	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[2], "not ok 3 "))
}

func TestJ1_EventsSettle(t *testing.T) {
	h := newHarness(t, diag.Settings{})
	var names []string
	j, _ := dialJ1(t, h, afb.WithEventHook(func(name string, data any) {
		names = append(names, name)
	}))

	h.sess.ExpectEvent()
	require.NoError(t, j.CallSuccess("hello", "broadcast", map[string]any{"name": "ev", "data": 1}))
	h.settle(t)

	assert.Equal(t, 0, h.sess.Expected())
	assert.Equal(t, []string{"hello/ev"}, names)
	assert.Equal(t, [3]int{1, 1, 0}, h.counts())
}

func TestJ1_ExpectedEvents(t *testing.T) {
	h := newHarness(t, diag.Settings{})
	j, _ := dialJ1(t, h)

	j.ExpectEvent("hello/ev", match.Pattern[any](map[string]any{"n": 1}))
	j.ExpectEvent("hello/other", match.Wildcard[any]())
	assert.Equal(t, 2, h.sess.Expected())

	require.NoError(t, j.CallSuccess("hello", "broadcast", map[string]any{"name": "ev", "data": map[string]any{"n": 1, "m": 2}}))
	testutil.PumpUntil(t, h.sess.Loop(), func() bool { return h.counts()[0] == 2 })
	assert.Equal(t, [3]int{2, 2, 0}, h.counts())
	assert.Contains(t, h.out.String(), `{"event":"hello/ev","data":{"m":2,"n":1},"match":{"n":1}}`)

	assert.Equal(t, 1, j.FailUnreceived())
	assert.Equal(t, 0, j.FailUnreceived())
	assert.Equal(t, [3]int{3, 2, 1}, h.counts())
	assert.Contains(t, h.out.String(), `not ok 3 {"event":"hello/other","data":null,"error":"not received"}`)
}

func TestJ1_HangupCompletesCalls(t *testing.T) {
	h := newHarness(t, diag.Settings{})
	hungUp := false
	j, srv := dialJ1(t, h, afb.WithHangupHook(func() { hungUp = true }))

	// Register the connection server side before dropping it.
	require.NoError(t, j.CallSuccess("hello", "ping", nil))
	h.settle(t)

	require.NoError(t, j.CallSuccess("hello", "silent", nil))
	srv.DropClients()
	h.settle(t)

	assert.Equal(t, [3]int{2, 1, 1}, h.counts())
	assert.Contains(t, h.out.String(), wsj1.StatusDisconnected)
	testutil.PumpUntil(t, h.sess.Loop(), func() bool { return hungUp })
	assert.False(t, j.IsConnected())
}

func TestJ1_PanickingCallbackReleasesCall(t *testing.T) {
	h := newHarness(t, diag.Settings{})
	j, _ := dialJ1(t, h)

	require.NoError(t, j.Call("hello", "ping", nil, func(any) { panic("boom") }))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.PanicsWithValue(t, "boom", func() { _ = h.sess.WaitCalls(ctx) })
	assert.Equal(t, 0, h.sess.Pending())
}

func TestJ1_StopOnFailure(t *testing.T) {
	h := newHarness(t, diag.Settings{StopOnFailure: true})
	j, _ := dialJ1(t, h)

	require.NoError(t, j.CallSuccess("hello", "pingfail", nil))
	h.settle(t)

	assert.Equal(t, []int{diag.ExitFailure}, h.exits)
}
