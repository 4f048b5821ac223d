package middleware

import (
	"time"

	"PPRelay/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog logs one line per request once it completes. For websocket
// upgrades that is when the connection ends.
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	log = logger.Or(log)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
			log.Warn("[HTTP] request", fields...)
			return
		}
		log.Debug("[HTTP] request", fields...)
	}
}
