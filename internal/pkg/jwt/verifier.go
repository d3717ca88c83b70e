// internal/pkg/jwt/verifier.go
package jwt

import (
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks RS256 webhook signatures.
type Verifier struct {
	pub    *rsa.PublicKey
	issuer string
}

// NewVerifier builds a verifier. An empty issuer skips the issuer check.
func NewVerifier(pub *rsa.PublicKey, issuer string) *Verifier {
	return &Verifier{
		pub:    pub,
		issuer: issuer,
	}
}

// Verify validates a signature token and returns its claims.
func (v *Verifier) Verify(tokenString string) (*WebhookClaims, error) {
	if v.pub == nil {
		return nil, fmt.Errorf("jwt verifier has nil public key")
	}

	token, err := jwt.ParseWithClaims(tokenString, &WebhookClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*WebhookClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", v.issuer, claims.Issuer)
	}

	return claims, nil
}

// VerifyBody validates the signature and that it covers body.
func (v *Verifier) VerifyBody(tokenString string, body []byte) error {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return err
	}
	if !claims.Matches(body) {
		return fmt.Errorf("signature does not cover the request body")
	}
	return nil
}
