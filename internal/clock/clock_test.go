package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNow(t *testing.T) {
	clk := New()

	before := time.Now()
	now := clk.Now()
	after := time.Now()

	assert.False(t, now.Before(before))
	assert.False(t, now.After(after))
}

func TestSleep_Elapses(t *testing.T) {
	clk := New()

	start := time.Now()
	require.NoError(t, clk.Sleep(context.Background(), 20*time.Millisecond))

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleep_ZeroDuration(t *testing.T) {
	clk := New()

	assert.NoError(t, clk.Sleep(context.Background(), 0))
	assert.NoError(t, clk.Sleep(context.Background(), -time.Second))
}

func TestSleep_Interrupted(t *testing.T) {
	clk := New()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := clk.Sleep(ctx, 5*time.Second)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSleep_AlreadyCancelled(t *testing.T) {
	clk := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Cancellation wins even when there is nothing to wait for.
	assert.ErrorIs(t, clk.Sleep(ctx, 0), context.Canceled)
	assert.ErrorIs(t, clk.Sleep(ctx, time.Hour), context.Canceled)
}
