package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"commons-chat/pkg/logger"
)

// LoggingMiddleware emits one line per request through the context-aware
// logger, so the request id installed upstream ends up on every line.
func LoggingMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log := l
		if log == nil {
			log = logger.GetGlobalLogger()
		}
		if log == nil {
			return
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if status >= 500 {
			log.ErrorCtx(c.Request.Context(), "request failed", fields...)
			return
		}
		log.InfoCtx(c.Request.Context(), "request completed", fields...)
	}
}
