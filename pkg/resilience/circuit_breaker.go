package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/richxcame/navigator/pkg/logger"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without calling the upstream while its breaker
// is open or probing.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Operation is a call guarded by a breaker.
type Operation func(ctx context.Context) (interface{}, error)

// Settings tunes one upstream breaker.
type Settings struct {
	Name             string
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	// IsFailure decides which errors count against the breaker. Nil counts every error.
	IsFailure func(error) bool
}

// SettingsFromSeconds builds Settings from the integer values carried in configuration.
func SettingsFromSeconds(name string, failureThreshold, successThreshold, timeoutSeconds, intervalSeconds int) Settings {
	return Settings{
		Name:             name,
		Interval:         time.Duration(intervalSeconds) * time.Second,
		Timeout:          time.Duration(timeoutSeconds) * time.Second,
		FailureThreshold: uint32(max(failureThreshold, 0)),
		SuccessThreshold: uint32(max(successThreshold, 0)),
	}
}

// CircuitBreaker guards one upstream. There is no fallback: an open breaker
// surfaces as ErrCircuitOpen, since a made-up route or hazard list is worse
// than none. A nil *CircuitBreaker passes every call through.
type CircuitBreaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	name := breakerName(settings.Name)
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	gs := gobreaker.Settings{
		Name:        name,
		Timeout:     settings.Timeout,
		Interval:    settings.Interval,
		MaxRequests: settings.SuccessThreshold,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observeTransition(name, from, to)
			logger.Warn("upstream breaker changed state",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	if isFailure := settings.IsFailure; isFailure != nil {
		gs.IsSuccessful = func(err error) bool { return err == nil || !isFailure(err) }
	}

	upstreamBreakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))
	return &CircuitBreaker{name: name, breaker: gobreaker.NewCircuitBreaker(gs)}
}

// Execute runs operation through the breaker.
func (c *CircuitBreaker) Execute(ctx context.Context, operation Operation) (interface{}, error) {
	if c == nil {
		return operation(ctx)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return operation(ctx)
	})
	switch {
	case err == nil:
		observeCall(c.name, outcomeOK)
		return result, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		observeCall(c.name, outcomeRejected)
		return nil, ErrCircuitOpen
	default:
		observeCall(c.name, outcomeFailed)
		return nil, err
	}
}

// Allow reports whether a call would currently reach the upstream.
func (c *CircuitBreaker) Allow() bool {
	return c == nil || c.breaker.State() != gobreaker.StateOpen
}

// Call is Execute with a typed result.
func Call[T any](ctx context.Context, breaker *CircuitBreaker, operation func(ctx context.Context) (T, error)) (T, error) {
	result, err := breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return operation(ctx)
	})
	typed, _ := result.(T)
	return typed, err
}
