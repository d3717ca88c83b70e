// internal/middleware/auth_middleware.go
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"astrobot-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const APIKeyHeader = "X-API-Key"

type AuthMiddleware struct {
	apiKey string
}

func NewAuthMiddleware(apiKey string) *AuthMiddleware {
	return &AuthMiddleware{
		apiKey: apiKey,
	}
}

// APIKey guards operator routes. With no key configured every request is refused.
func (m *AuthMiddleware) APIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.apiKey == "" {
			response.Error(c, http.StatusServiceUnavailable, "operator API is disabled", nil)
			return
		}

		key := extractKey(c)
		if key == "" {
			response.Unauthorized(c, "missing API key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
			response.Unauthorized(c, "invalid API key")
			return
		}

		c.Set(operatorKey, true)
		c.Next()
	}
}

// extractKey reads the API key header, falling back to a Bearer token.
func extractKey(c *gin.Context) string {
	if key := c.GetHeader(APIKeyHeader); key != "" {
		return key
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}
