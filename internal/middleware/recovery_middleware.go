// internal/middleware/recovery_middleware.go
package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"astrobot-service/internal/pkg/metrics"
	"astrobot-service/internal/pkg/response"
)

// RecoveryMiddleware turns a handler panic into a 500 and counts it per route.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			route := c.FullPath()
			if route == "" {
				route = "unknown"
			}
			metrics.RecordPanic(route)
			logger.Error("panic recovered",
				zap.String("panic", fmt.Sprint(rec)),
				zap.String("route", route),
				zap.String("request_id", GetRequestID(c)),
				zap.Stack("stack"),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, http.StatusInternalServerError, "internal server error", nil)
		}()
		c.Next()
	}
}
