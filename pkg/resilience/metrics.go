package resilience

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

var (
	upstreamBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "navigator",
		Subsystem: "upstream",
		Name:      "breaker_state",
		Help:      "Breaker state per upstream: 0 closed, 0.5 half-open, 1 open.",
	}, []string{"upstream"})

	upstreamCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "navigator",
		Subsystem: "upstream",
		Name:      "calls_total",
		Help:      "Calls made through an upstream breaker, by outcome.",
	}, []string{"upstream", "outcome"})

	upstreamBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "navigator",
		Subsystem: "upstream",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state transitions per upstream.",
	}, []string{"upstream", "from", "to"})

	retryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "navigator",
		Name:      "retry_attempts_total",
		Help:      "Attempts made by retried operations, by result.",
	}, []string{"operation", "result"})

	retryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "navigator",
		Name:      "retry_duration_seconds",
		Help:      "Wall time of retried operations including backoff.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"operation", "result"})

	anonymousBreakers uint64
)

// Call outcomes.
const (
	outcomeOK       = "ok"
	outcomeFailed   = "failed"
	outcomeRejected = "rejected"
)

func breakerName(name string) string {
	if name != "" {
		return name
	}
	return "upstream-" + strconv.FormatUint(atomic.AddUint64(&anonymousBreakers, 1), 10)
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	}
	return -1
}

func observeTransition(name string, from, to gobreaker.State) {
	upstreamBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	upstreamBreakerState.WithLabelValues(name).Set(stateValue(to))
}

func observeCall(name, outcome string) {
	upstreamCallsTotal.WithLabelValues(name, outcome).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
