package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("boom")

func TestCircuitBreakerTripsAndReturnsOpenError(t *testing.T) {
	breaker := NewCircuitBreaker(Settings{
		Name:             "test-breaker",
		Timeout:          50 * time.Millisecond,
		Interval:         50 * time.Millisecond,
		FailureThreshold: 2,
		SuccessThreshold: 1,
	})

	ctx := context.Background()
	failingOp := func(context.Context) (interface{}, error) {
		return nil, errUpstream
	}

	for i := 0; i < 2; i++ {
		if _, err := breaker.Execute(ctx, failingOp); !errors.Is(err, errUpstream) {
			t.Fatalf("expected upstream error on iteration %d, got %v", i, err)
		}
	}

	if breaker.Allow() {
		t.Fatalf("breaker should be open after consecutive failures")
	}

	if _, err := breaker.Execute(ctx, func(context.Context) (interface{}, error) {
		return "ok", nil
	}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	breaker := NewCircuitBreaker(Settings{
		Name:             "recovering-breaker",
		Timeout:          20 * time.Millisecond,
		FailureThreshold: 1,
		SuccessThreshold: 1,
	})

	ctx := context.Background()
	_, _ = breaker.Execute(ctx, func(context.Context) (interface{}, error) { return nil, errUpstream })
	if breaker.Allow() {
		t.Fatalf("breaker should be open")
	}

	time.Sleep(40 * time.Millisecond)
	result, err := breaker.Execute(ctx, func(context.Context) (interface{}, error) { return "live", nil })
	if err != nil {
		t.Fatalf("probe should reach upstream, got %v", err)
	}
	if result != "live" {
		t.Fatalf("expected live result, got %v", result)
	}
	if !breaker.Allow() {
		t.Fatalf("breaker should close after a successful probe")
	}
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	notFound := errors.New("not found")
	breaker := NewCircuitBreaker(Settings{
		Name:             "filtered-breaker",
		Timeout:          time.Minute,
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = breaker.Execute(ctx, func(context.Context) (interface{}, error) { return nil, notFound })
	}
	if !breaker.Allow() {
		t.Fatalf("breaker should stay closed for ignored errors")
	}
}

func TestCallReturnsTypedResult(t *testing.T) {
	breaker := NewCircuitBreaker(SettingsFromSeconds("typed", 5, 1, 30, 60))

	got, err := Call(context.Background(), breaker, func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestNilBreakerPassesThrough(t *testing.T) {
	var breaker *CircuitBreaker

	got, err := Call(context.Background(), breaker, func(context.Context) (string, error) {
		return "direct", nil
	})
	if err != nil || got != "direct" {
		t.Fatalf("expected passthrough, got %q, %v", got, err)
	}
	if !breaker.Allow() {
		t.Fatalf("nil breaker should allow")
	}
}
