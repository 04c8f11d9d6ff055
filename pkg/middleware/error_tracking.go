package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/richxcame/navigator/pkg/common"
	apperrors "github.com/richxcame/navigator/pkg/errors"
	"github.com/richxcame/navigator/pkg/logger"
	"go.uber.org/zap"
)

// SentryMiddleware attaches a per-request Sentry hub. Panics are re-raised so
// RecoveryWithSentry can answer the request.
func SentryMiddleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// ErrorHandler reports unexpected handler errors and 5xx responses to Sentry.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		apperrors.AddBreadcrumbForRequest(c.Request.Method, c.Request.URL.Path, status, duration)

		reported := false
		for _, ginErr := range c.Errors {
			if apperrors.ShouldReportError(ginErr.Err, status) {
				captureRequestError(c, ginErr.Err, status, duration)
				reported = true
			}
		}
		if status >= http.StatusInternalServerError && !reported {
			captureRequestError(c, fmt.Errorf("HTTP %d: %s %s", status, c.Request.Method, c.FullPath()), status, duration)
		}
	}
}

// RecoveryWithSentry turns a panic into a 500 response after reporting it.
func RecoveryWithSentry() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				hub := hubFor(c)
				hub.WithScope(func(scope *sentry.Scope) {
					scope.SetRequest(c.Request)
					scope.SetTag("correlation_id", GetCorrelationID(c))
					hub.RecoverWithContext(c.Request.Context(), r)
				})

				logger.WithContext(c.Request.Context()).Error("handler panicked",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
				)
				common.ErrorResponse(c, http.StatusInternalServerError, "an unexpected error occurred")
				c.Abort()
			}
		}()
		c.Next()
	}
}

func captureRequestError(c *gin.Context, err error, status int, duration time.Duration) {
	hub := hubFor(c)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(c.Request)
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("http.method", c.Request.Method)
		scope.SetTag("http.status_code", fmt.Sprintf("%d", status))
		scope.SetTag("route", c.FullPath())
		scope.SetTag("correlation_id", GetCorrelationID(c))
		if sessionID := c.Param("id"); sessionID != "" {
			scope.SetTag("session_id", sessionID)
		}
		scope.SetContext("http", map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
			"user_agent":  c.Request.UserAgent(),
		})
		hub.CaptureException(err)
	})
}

func hubFor(c *gin.Context) *sentry.Hub {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		return hub
	}
	return sentry.CurrentHub().Clone()
}
