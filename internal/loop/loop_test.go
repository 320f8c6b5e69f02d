package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPumpOnce_DeliversInFIFOOrder(t *testing.T) {
	lp := New()
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		require.True(t, lp.Post(func() { got = append(got, i) }))
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, lp.PumpOnce(context.Background(), Block))
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Zero(t, lp.Len())
}

func TestPumpOnce_AtMostOneCallback(t *testing.T) {
	lp := New()
	count := 0
	lp.Post(func() { count++ })
	lp.Post(func() { count++ })

	require.NoError(t, lp.PumpOnce(context.Background(), 0))
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, lp.Len())
}

func TestPumpOnce_TimeoutWithoutCallback(t *testing.T) {
	lp := New()

	start := time.Now()
	require.NoError(t, lp.PumpOnce(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPumpOnce_BlocksUntilPostFromAnotherGoroutine(t *testing.T) {
	lp := New()
	delivered := false

	go func() {
		time.Sleep(10 * time.Millisecond)
		lp.Post(func() { delivered = true })
	}()

	require.NoError(t, lp.PumpOnce(context.Background(), Block))
	assert.True(t, delivered)
}

func TestPumpOnce_ContextCancel(t *testing.T) {
	lp := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := lp.PumpOnce(ctx, Block)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNudge_WakesBlockedPump(t *testing.T) {
	lp := New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		lp.Nudge()
	}()

	require.NoError(t, lp.PumpOnce(context.Background(), Block))
	assert.Zero(t, lp.Len())
}

func TestNudge_DuringCallbackIsDiscarded(t *testing.T) {
	lp := New()
	lp.Post(func() { lp.Nudge() })

	require.NoError(t, lp.PumpOnce(context.Background(), Block))

	// The nudge must not make the next pump return early.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, lp.PumpOnce(ctx, Block), context.DeadlineExceeded)
}

func TestClose_DrainsThenReportsClosed(t *testing.T) {
	lp := New()
	ran := false
	lp.Post(func() { ran = true })
	lp.Close()

	assert.False(t, lp.Post(func() {}))
	require.NoError(t, lp.PumpOnce(context.Background(), Block))
	assert.True(t, ran)

	err := lp.PumpOnce(context.Background(), Block)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestClose_WakesBlockedPump(t *testing.T) {
	lp := New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		lp.Close()
	}()

	assert.ErrorIs(t, lp.PumpOnce(context.Background(), Block), ErrClosed)
}

func TestPumpOnce_CallbackPanicPropagates(t *testing.T) {
	lp := New()
	lp.Post(func() { panic("boom") })

	assert.PanicsWithValue(t, "boom", func() {
		_ = lp.PumpOnce(context.Background(), Block)
	})
}

func TestPost_ConcurrentProducers(t *testing.T) {
	lp := New()
	const producers, each = 8, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				lp.Post(func() {})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*each, lp.Len())
	for i := 0; i < producers*each; i++ {
		require.NoError(t, lp.PumpOnce(context.Background(), 0))
	}
	assert.Zero(t, lp.Len())
}
