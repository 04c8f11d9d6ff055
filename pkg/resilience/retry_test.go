package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), "nats-connect", fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "connected", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "connected", result)
	assert.Equal(t, 3, calls)
}

func TestRetryReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "exhausted", fastPolicy(2), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("still down")
	})

	assert.EqualError(t, err, "still down")
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	fatal := errors.New("bad credentials")
	policy := fastPolicy(5)
	policy.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	_, err := Retry(context.Background(), "auth", policy, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryDoesNotRetryOpenBreaker(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "directions", fastPolicy(3), func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, ErrCircuitOpen
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, "cancelled", fastPolicy(3), func(context.Context) (struct{}, error) {
		t.Fatal("operation should not run")
		return struct{}{}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffStaysUnderCeiling(t *testing.T) {
	policy := RetryPolicy{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 25 * time.Millisecond}
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoff(policy, attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 25*time.Millisecond)
	}
	assert.Zero(t, backoff(RetryPolicy{}, 1))
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	assert.True(t, IsRetryableHTTPStatus(503))
	assert.True(t, IsRetryableHTTPStatus(429))
	assert.False(t, IsRetryableHTTPStatus(404))
	assert.False(t, IsRetryableHTTPStatus(200))
}
