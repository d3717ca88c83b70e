package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		value      string
		want       int
	}{
		{"valid header", "secret", APIKeyHeader, "secret", http.StatusOK},
		{"valid bearer", "secret", "Authorization", "Bearer secret", http.StatusOK},
		{"wrong key", "secret", APIKeyHeader, "nope", http.StatusUnauthorized},
		{"missing key", "secret", "", "", http.StatusUnauthorized},
		{"disabled", "", APIKeyHeader, "secret", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/ops", NewAuthMiddleware(tt.configured).APIKey(), func(c *gin.Context) {
				if !IsOperator(c) {
					t.Error("operator flag not set")
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/ops", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(LoggingMiddleware(zap.NewNop()), RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("request id header missing")
	}
}
