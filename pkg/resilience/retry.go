package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/richxcame/navigator/pkg/logger"
	"go.uber.org/zap"
)

// RetryPolicy controls Retry. The delay before attempt n+1 is drawn
// uniformly from [0, min(MaxBackoff, InitialBackoff*2^(n-1))).
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Retryable reports whether an error is worth another attempt. Nil retries
	// everything except cancellation and an open breaker.
	Retryable func(error) bool
}

// StartupRetryPolicy is used while dependencies come up: a few quick
// attempts, then the service starts degraded.
func StartupRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Retry runs operation until it succeeds, fails with a non-retryable error,
// runs out of attempts or ctx ends. Nothing that mutates upstream state
// should go through here.
func Retry[T any](ctx context.Context, name string, policy RetryPolicy, operation func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(policy.MaxAttempts, 1)
	retryable := policy.Retryable
	if retryable == nil {
		retryable = defaultRetryable
	}

	start := time.Now()
	finish := func(ok bool) {
		retryDuration.WithLabelValues(name, resultLabel(ok)).Observe(time.Since(start).Seconds())
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			finish(false)
			return zero, err
		}

		result, err := operation(ctx)
		retryAttemptsTotal.WithLabelValues(name, resultLabel(err == nil)).Inc()
		if err == nil {
			finish(true)
			return result, nil
		}
		lastErr = err
		if !retryable(err) || attempt == attempts {
			break
		}

		delay := backoff(policy, attempt)
		logger.Debug("retrying after backoff",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			finish(false)
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	finish(false)
	logger.Warn("operation failed", zap.String("operation", name), zap.Error(lastErr))
	return zero, lastErr
}

func backoff(policy RetryPolicy, attempt int) time.Duration {
	ceiling := policy.InitialBackoff << (attempt - 1)
	if ceiling <= 0 || (policy.MaxBackoff > 0 && ceiling > policy.MaxBackoff) {
		ceiling = policy.MaxBackoff
	}
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling)
}

func defaultRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrCircuitOpen)
}

// IsRetryableHTTPStatus reports whether a response status is worth retrying.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
