package afb_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redpesk-addons/afb-jscli/internal/diag"
	"github.com/redpesk-addons/afb-jscli/internal/session"
	"github.com/redpesk-addons/afb-jscli/internal/testutil"
)

type harness struct {
	sess  *session.Session
	out   *bytes.Buffer
	exits []int
}

func newHarness(t *testing.T, settings diag.Settings) *harness {
	t.Helper()
	h := &harness{out: &bytes.Buffer{}}
	d := diag.New(
		diag.WithWriter(h.out),
		diag.WithExit(func(code int) { h.exits = append(h.exits, code) }),
		diag.WithLogger(testutil.Logger()),
		diag.WithSettings(settings),
	)
	h.sess = session.New(session.WithDiagnostics(d), session.WithLogger(testutil.Logger()))
	return h
}

func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.sess.WaitCompletion(ctx))
}

func (h *harness) counts() [3]int {
	tests, ok, ko := h.sess.Diag().Counts()
	return [3]int{tests, ok, ko}
}
