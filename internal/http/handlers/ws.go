package handlers

import (
	"net/http"

	"crazygift/internal/logger"
	"crazygift/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// LiveDrops подключает клиента к ленте выигрышей, JWT передается в ?token=
func (h *Handler) LiveDrops(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	userID, err := h.Tokens.Parse(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithContext(c.Request.Context()).Warn("ws upgrade error", "error", err)
		return
	}

	go ws.NewClient(h.Hub, conn, userID).Serve()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return len(h.AllowedOrigins) == 0
}
