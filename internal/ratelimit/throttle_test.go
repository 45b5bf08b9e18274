package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleZeroDelayNeverBlocks(t *testing.T) {
	th := NewThrottle(0)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, th.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestThrottleEnforcesMinDelay(t *testing.T) {
	th := NewThrottle(60 * time.Millisecond)

	require.NoError(t, th.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, th.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestThrottleWaitCancellation(t *testing.T) {
	th := NewThrottle(time.Minute)
	require.NoError(t, th.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := th.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestThrottleReset(t *testing.T) {
	th := NewThrottle(time.Minute)
	require.NoError(t, th.Wait(context.Background()))

	th.Reset()
	start := time.Now()
	require.NoError(t, th.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
