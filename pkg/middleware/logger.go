package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/navigator/pkg/logger"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request. Fix ingestion is high volume, so
// successful requests under /fixes log at debug.
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("service", serviceName),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("response_size", c.Writer.Size()),
		}

		reqLogger := logger.WithContext(c.Request.Context())
		switch {
		case len(c.Errors) > 0:
			reqLogger.Error("request completed with errors", append(fields, zap.String("errors", c.Errors.String()))...)
		case status >= 500:
			reqLogger.Error("request failed", fields...)
		case c.FullPath() == "/api/v1/sessions/:id/fixes" && status < 400:
			reqLogger.Debug("request completed", fields...)
		default:
			reqLogger.Info("request completed", fields...)
		}
	}
}
