package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_ReadyImmediately(t *testing.T) {
	err := Wait(context.Background(), "artifact", func(ctx context.Context) (bool, error) {
		return true, nil
	}, 10*time.Millisecond, time.Second)

	assert.NoError(t, err)
}

func TestWait_BecomesReadyAfterRetries(t *testing.T) {
	var calls atomic.Int32

	err := Wait(context.Background(), "artifact", func(ctx context.Context) (bool, error) {
		return calls.Add(1) >= 3, nil
	}, 5*time.Millisecond, time.Second)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWait_TimeoutIdentifiesResource(t *testing.T) {
	start := time.Now()

	err := Wait(context.Background(), "shared-canvas", func(ctx context.Context) (bool, error) {
		return false, nil
	}, 10*time.Millisecond, 80*time.Millisecond)

	require.Error(t, err)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "shared-canvas", timeoutErr.Resource)
	assert.Contains(t, err.Error(), "shared-canvas")

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond, "must not fail before the bound")
	assert.Less(t, elapsed, time.Second, "must not poll indefinitely")
}

func TestWait_CheckErrorStopsPolling(t *testing.T) {
	boom := errors.New("backend unavailable")

	var calls atomic.Int32

	err := Wait(context.Background(), "artifact", func(ctx context.Context) (bool, error) {
		calls.Add(1)

		return false, boom
	}, 5*time.Millisecond, time.Second)

	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, calls.Load())
}

func TestWait_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Wait(ctx, "artifact", func(ctx context.Context) (bool, error) {
		return false, nil
	}, 10*time.Millisecond, 10*time.Second)

	assert.ErrorIs(t, err, context.Canceled)
}
