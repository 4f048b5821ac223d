package middleware

import (
	"net/http"

	"PPRelay/logger"
	"PPRelay/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 and a log line.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	log = logger.Or(log)
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Error("[HTTP] panic recovered",
				zap.String("path", c.Request.URL.Path),
				zap.Error(errs.ErrPanic(r)),
				zap.Stack("stack"))
			// hijacked (upgraded) connections have nothing left to write to
			if !c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}
