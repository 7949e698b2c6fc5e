package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newAuthRouter(apiKeys []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth(apiKeys))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func TestAuthKeyExtraction(t *testing.T) {
	r := newAuthRouter([]string{"good-key"})

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"x-api-key valid", "X-API-Key", "good-key", http.StatusOK},
		{"bearer valid", "Authorization", "Bearer good-key", http.StatusOK},
		{"x-api-key wrong", "X-API-Key", "bad-key", http.StatusUnauthorized},
		{"bearer wrong", "Authorization", "Bearer bad-key", http.StatusUnauthorized},
		{"wrong auth scheme", "Authorization", "Token good-key", http.StatusUnauthorized},
		{"no credentials", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
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

func TestAuthPrefersAPIKeyHeader(t *testing.T) {
	r := newAuthRouter([]string{"good-key"})

	// X-API-Key wins over a bogus Authorization header.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-API-Key", "good-key")
	req.Header.Set("Authorization", "Bearer bad-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthOpenAccessWithoutKeys(t *testing.T) {
	r := newAuthRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", w.Code)
	}
}
