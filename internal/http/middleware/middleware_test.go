package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crazygift/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTokens struct{}

func (fakeTokens) Parse(token string) (int64, error) {
	if token == "good" {
		return 42, nil
	}
	return 0, errors.New("bad token")
}

func TestJWTAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", JWTAuth(fakeTokens{}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt64(UserIDKey)})
	})

	tests := []struct {
		header string
		want   int
	}{
		{"Bearer good", http.StatusOK},
		{"Bearer bad", http.StatusUnauthorized},
		{"good", http.StatusUnauthorized},
		{"", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("header %q: статус %d, ожидали %d", tt.header, w.Code, tt.want)
		}
	}
}

func TestHeaderSecrets(t *testing.T) {
	r := gin.New()
	r.POST("/hook", WebhookSecret("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.DELETE("/admin", AdminToken(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set("X-Webhook-Secret", "s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("верный секрет отклонен: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set("X-Webhook-Secret", "nope")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("неверный секрет пропущен: %d", w.Code)
	}

	// без настроенного токена админка закрыта
	req = httptest.NewRequest(http.MethodDelete, "/admin", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("админка открыта без токена: %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		seen = logger.RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || w.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("request id не проброшен: ctx=%q header=%q", seen, w.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Fatalf("входящий id потерян: %q", seen)
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("preflight: %d %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("чужой origin получил CORS заголовки")
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRateLimiter(client, 1, time.Minute, "test")
	r := gin.New()
	r.POST("/open", l.Middleware("open"), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/open", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("запрос %d отклонен при недоступном redis: %d", i, w.Code)
		}
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	var l *RateLimiter
	ok, err := l.Allow(context.Background(), "k")
	if !ok || err != nil {
		t.Fatalf("nil лимитер должен пропускать: %v %v", ok, err)
	}
	if NewRedisClient("", "", 0) != nil {
		t.Fatal("пустой адрес должен отключать redis")
	}
}
