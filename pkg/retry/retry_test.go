package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingPolicy(delays *[]time.Duration) Policy {
	p := DefaultPolicy()
	p.MaxAttempts = 4
	p.InitialDelay = 100 * time.Millisecond
	p.MaxDelay = 300 * time.Millisecond
	p.JitterFraction = 0
	p.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return p
}

func TestDo_BackoffIsCapped(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := Do(context.Background(), recordingPolicy(&delays), func(ctx context.Context) error {
		calls++
		return errors.New("503")
	})

	require.EqualError(t, err, "503")
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, delays)
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	var delays []time.Duration
	calls := 0
	got, err := DoValue(context.Background(), recordingPolicy(&delays), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("timeout")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Len(t, delays, 2)
}

func TestDo_StopsOnPermanentAndNonRetryable(t *testing.T) {
	var delays []time.Duration
	badRequest := errors.New("400 bad request")

	calls := 0
	err := Do(context.Background(), recordingPolicy(&delays), func(ctx context.Context) error {
		calls++
		return Permanent(badRequest)
	})
	assert.Equal(t, badRequest, err)
	assert.Equal(t, 1, calls)

	p := recordingPolicy(&delays)
	p.ShouldRetry = func(err error) bool { return !errors.Is(err, badRequest) }
	calls = 0
	err = Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return badRequest
	})
	assert.ErrorIs(t, err, badRequest)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var delays []time.Duration
	p := recordingPolicy(&delays)

	calls := 0
	err := Do(ctx, p, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("conn reset")
	})
	assert.EqualError(t, err, "conn reset")
	assert.Equal(t, 1, calls)

	err = Do(ctx, p, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
}
