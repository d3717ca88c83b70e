// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// WebhookClaims is the payload of a billing webhook signature. Data carries
// the exact request body that was signed.
type WebhookClaims struct {
	Data string `json:"data"`
	jwt.RegisteredClaims
}

// Matches reports whether the signed data is the received body.
func (c *WebhookClaims) Matches(body []byte) bool {
	return c.Data == string(body)
}
