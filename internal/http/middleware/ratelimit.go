package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"crazygift/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter ограничивает число запросов пользователя в окне фиксированной длины.
// При недоступном redis запросы пропускаются
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration, prefix string) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window, prefix: prefix}
}

// NewRedisClient клиент для лимитера. Пустой addr отключает лимиты
func NewRedisClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

// Allow увеличивает счетчик и сообщает, укладывается ли запрос в лимит
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil || l.limit <= 0 {
		return true, nil
	}

	slot := time.Now().UnixNano() / int64(l.window)
	rkey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.Expire(ctx, rkey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}
	return incr.Val() <= l.limit, nil
}

// Middleware лимитирует по id пользователя, ставится после JWTAuth
func (l *RateLimiter) Middleware(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()
		if v, ok := c.Get(UserIDKey); ok {
			key = fmt.Sprintf("%s:u%d", scope, v.(int64))
		}

		ok, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			logger.WithContext(c.Request.Context()).Warn("rate limiter недоступен", "error", err)
		}
		if !ok {
			c.Header("Retry-After", fmt.Sprintf("%d", int(l.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
