package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, key *rsa.PrivateKey, method jwt.SigningMethod, data, issuer string) string {
	t.Helper()
	claims := WebhookClaims{Data: data, RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}}
	var signKey interface{} = key
	if method == jwt.SigningMethodHS256 {
		signKey = []byte("shared")
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(signKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestVerifyBody(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	body := `{"webhook_type":"subscription.terminated"}`
	v := NewVerifier(&key.PublicKey, "https://api.getlago.com")

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", signed(t, key, jwt.SigningMethodRS256, body, "https://api.getlago.com"), false},
		{"body mismatch", signed(t, key, jwt.SigningMethodRS256, `{}`, "https://api.getlago.com"), true},
		{"wrong issuer", signed(t, key, jwt.SigningMethodRS256, body, "https://evil.example"), true},
		{"wrong key", signed(t, other, jwt.SigningMethodRS256, body, "https://api.getlago.com"), true},
		{"hmac", signed(t, key, jwt.SigningMethodHS256, body, "https://api.getlago.com"), true},
		{"garbage", "not-a-token", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifyBody(tt.token, []byte(body))
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyBody() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRSAPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	pkcs1Text := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)}))

	for name, raw := range map[string]string{
		"pem":          pemText,
		"base64":       base64.StdEncoding.EncodeToString([]byte(pemText)),
		"pkcs1":        pkcs1Text,
		"pkcs1 base64": base64.StdEncoding.EncodeToString([]byte(pkcs1Text)),
	} {
		t.Run(name, func(t *testing.T) {
			pub, err := ParseRSAPublicKey(raw)
			if err != nil {
				t.Fatal(err)
			}
			if pub.N.Cmp(key.PublicKey.N) != 0 {
				t.Error("parsed a different key")
			}
		})
	}

	if _, err := ParseRSAPublicKey("!!!"); err == nil {
		t.Error("expected an error for junk input")
	}
	if _, err := ParseRSAPublicKey(base64.StdEncoding.EncodeToString([]byte("not a pem"))); err == nil {
		t.Error("expected an error for base64 text without a PEM block")
	}
}
