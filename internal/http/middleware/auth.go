package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDKey ключ gin.Context с id пользователя из JWT
const UserIDKey = "user_id"

// TokenParser разбирает сессионный JWT
type TokenParser interface {
	Parse(token string) (int64, error)
}

// JWTAuth пропускает запрос только с валидным Bearer токеном
func JWTAuth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		userID, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// AdminToken проверяет X-Admin-Token. Пустой токен закрывает админские маршруты
func AdminToken(token string) gin.HandlerFunc {
	return headerSecret("X-Admin-Token", token)
}

// WebhookSecret проверяет X-Webhook-Secret у платежных webhook
func WebhookSecret(secret string) gin.HandlerFunc {
	return headerSecret("X-Webhook-Secret", secret)
}

func headerSecret(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(header)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
