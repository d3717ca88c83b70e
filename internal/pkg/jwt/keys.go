package jwt

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ParseRSAPublicKey reads a PEM public key. The PEM may itself be base64
// encoded, which is how the billing provider publishes its webhook key.
func ParseRSAPublicKey(raw string) (*rsa.PublicKey, error) {
	b := []byte(strings.TrimSpace(raw))
	if !strings.HasPrefix(string(b), "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(string(b))
		if err != nil {
			return nil, fmt.Errorf("failed to decode public key: %w", err)
		}
		b = decoded
	}

	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return pub, nil
}
