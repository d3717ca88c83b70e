// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

const (
	operatorKey  = "operator"
	requestIDKey = "request_id"
)

// IsOperator reports whether the request passed API key auth.
func IsOperator(c *gin.Context) bool {
	_, exists := c.Get(operatorKey)
	return exists
}

// GetRequestID returns the id assigned by LoggingMiddleware.
func GetRequestID(c *gin.Context) string {
	id, exists := c.Get(requestIDKey)
	if !exists {
		return ""
	}
	s, _ := id.(string)
	return s
}
