package relay

import (
	"net/http"
	"strconv"
	"time"

	"careers-relay/internal/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BodySizeLimit caps how much of the request body handlers may read.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))
		c.Next()
	}
}

// Recovery turns a panic into the same opaque failure a send error produces.
func Recovery(log *zap.Logger, m *metrics.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered",
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.Any("error", rec),
					zap.Stack("stack"),
				)
				if m != nil {
					m.Panics.Inc()
					m.Submissions.WithLabelValues(metrics.ResultFailed).Inc()
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": failedToSend})
			}
		}()
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if id := c.GetString(submissionIDKey); id != "" {
			fields = append(fields, zap.String("submission_id", id))
		}

		switch {
		case status >= 500:
			log.Error("server error", fields...)
		case status >= 400:
			log.Warn("client error", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
