package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/richxcame/navigator/pkg/resilience"
)

// RetryableOperation runs a Redis operation, retrying transient connection failures.
func RetryableOperation[T any](ctx context.Context, operation func(context.Context) (T, error), operationName string) (T, error) {
	return resilience.Retry(ctx, operationName, resilience.RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
		Retryable:      isRetryable,
	}, operation)
}

// RetryableSet sets a key with expiration, retrying transient failures.
func (c *Client) RetryableSet(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	_, err := RetryableOperation(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.SetWithExpiration(ctx, key, value, expiration)
	}, "redis.set")
	return err
}

// RetryableGet reads a key, retrying transient failures.
func (c *Client) RetryableGet(ctx context.Context, key string) (string, error) {
	return RetryableOperation(ctx, func(ctx context.Context) (string, error) {
		return c.GetString(ctx, key)
	}, "redis.get")
}

var transientMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"pool timeout",
	"unexpected eof",
	"server closed",
	"loading",
	"tryagain",
	"clusterdown",
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
