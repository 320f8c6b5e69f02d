package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redpesk-addons/afb-jscli/internal/loop"
)

// PumpTimeout bounds PumpUntil.
const PumpTimeout = 2 * time.Second

// PumpUntil pumps lp until cond holds, failing the test after PumpTimeout.
func PumpUntil(t *testing.T, lp *loop.Loop, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), PumpTimeout)
	defer cancel()
	for !cond() {
		require.NoError(t, lp.PumpOnce(ctx, loop.Block))
	}
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
