// Package async runs background work detached from the request or session
// that started it. Correlation id, session id and trace span follow the task
// across the goroutine boundary, and panics are reported instead of crashing
// the process.
package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richxcame/navigator/pkg/logger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "navigator",
	Name:      "async_tasks_total",
	Help:      "Background tasks by name and outcome.",
}, []string{"task", "outcome"})

// origin is what a task keeps of the context that spawned it.
type origin struct {
	task          string
	correlationID string
	sessionID     string
	span          trace.SpanContext
	started       time.Time
}

func capture(ctx context.Context, task string) origin {
	return origin{
		task:          task,
		correlationID: logger.CorrelationIDFromContext(ctx),
		sessionID:     logger.SessionIDFromContext(ctx),
		span:          trace.SpanContextFromContext(ctx),
		started:       time.Now(),
	}
}

// detach rebuilds the propagated values on a fresh background context, so
// the task outlives the caller's cancellation.
func (o origin) detach() context.Context {
	ctx := context.Background()
	if o.correlationID != "" {
		ctx = logger.ContextWithCorrelationID(ctx, o.correlationID)
	}
	if o.sessionID != "" {
		ctx = logger.ContextWithSessionID(ctx, o.sessionID)
	}
	if o.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, o.span)
	}
	return ctx
}

// Go runs fn in its own goroutine.
func Go(ctx context.Context, task string, fn func(ctx context.Context)) {
	o := capture(ctx, task)
	go func() {
		defer o.recoverPanic()
		taskCtx := o.detach()
		fn(taskCtx)
		o.done(taskCtx, "completed")
	}()
}

// GoWithTimeout is Go with a deadline on the task context. fn must honour
// ctx; a task still running at the deadline is only logged.
func GoWithTimeout(ctx context.Context, task string, timeout time.Duration, fn func(ctx context.Context)) {
	o := capture(ctx, task)
	go func() {
		defer o.recoverPanic()
		taskCtx, cancel := context.WithTimeout(o.detach(), timeout)
		defer cancel()

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			defer o.recoverPanic()
			fn(taskCtx)
		}()

		select {
		case <-finished:
			o.done(taskCtx, "completed")
		case <-taskCtx.Done():
			logger.WarnContext(taskCtx, "async task timed out",
				zap.String("task", o.task),
				zap.Duration("timeout", timeout),
			)
			tasksTotal.WithLabelValues(o.task, "timeout").Inc()
		}
	}()
}

// WithSessionID tags ctx with a navigation session id for propagation.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return logger.ContextWithSessionID(ctx, sessionID)
}

func (o origin) done(ctx context.Context, outcome string) {
	tasksTotal.WithLabelValues(o.task, outcome).Inc()
	logger.DebugContext(ctx, "async task finished",
		zap.String("task", o.task),
		zap.Duration("duration", time.Since(o.started)),
	)
}

func (o origin) recoverPanic() {
	r := recover()
	if r == nil {
		return
	}
	tasksTotal.WithLabelValues(o.task, "panic").Inc()
	logger.ErrorContext(o.detach(), "async task panicked",
		zap.String("task", o.task),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()),
	)

	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("task", o.task)
		if o.sessionID != "" {
			scope.SetTag("session_id", o.sessionID)
		}
		if o.correlationID != "" {
			scope.SetTag("correlation_id", o.correlationID)
		}
	})
	hub.Recover(r)
}
