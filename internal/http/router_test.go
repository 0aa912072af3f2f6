package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"crazygift/internal/http/handlers"

	"github.com/gin-gonic/gin"
)

type staticTokens struct{}

func (staticTokens) Parse(token string) (int64, error) {
	if token == "ok" {
		return 1, nil
	}
	return 0, errors.New("invalid")
}

func TestRouter_Guards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(&handlers.Handler{Tokens: staticTokens{}}, RouterConfig{
		AllowedOrigins: []string{"*"},
		AdminToken:     "adm",
		WebhookSecret:  "hook",
	})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/users/me", http.StatusUnauthorized},
		{http.MethodPost, "/api/cases/1/open", http.StatusUnauthorized},
		{http.MethodGet, "/api/inventory", http.StatusUnauthorized},
		{http.MethodPost, "/api/payments/ton/deposit", http.StatusUnauthorized},
		{http.MethodPost, "/api/payments/webhook/ton", http.StatusForbidden},
		{http.MethodPost, "/api/payments/webhook/telegram", http.StatusForbidden},
		{http.MethodDelete, "/api/admin/inventory/1?user_id=1", http.StatusForbidden},
		{http.MethodGet, "/ws/drops", http.StatusUnauthorized},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s %s: статус %d, ожидали %d", tt.method, tt.path, w.Code, tt.want)
		}
	}
}
