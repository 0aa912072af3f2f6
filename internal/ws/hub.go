package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"crazygift/internal/logger"
	"crazygift/internal/metrics"
)

// Событие ленты выигрышей
type DropEvent struct {
	Type     string    `json:"type"`
	User     string    `json:"user"`
	ItemName string    `json:"item_name"`
	Rarity   string    `json:"rarity"`
	Stars    int64     `json:"stars"`
	CaseName string    `json:"case_name"`
	At       time.Time `json:"at"`
}

// Hub раздает события всем подключенным клиентам.
// Медленный клиент отключается, отправитель никогда не ждет
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	broadcast chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan []byte, 256),
	}
}

// Run рассылает события до отмены контекста
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Publish ставит событие в очередь. Если очередь полна, событие теряется
func (h *Hub) Publish(ev DropEvent) {
	if ev.Type == "" {
		ev.Type = "drop"
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Error("ws: marshal drop", "error", err)
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		logger.Warn("ws: очередь событий заполнена, событие пропущено")
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.LiveDropClients.Set(float64(n))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.LiveDropClients.Set(float64(n))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanOut(msg []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.Debug("ws: клиент не успевает, отключаем", "user_id", c.userID)
		h.unregister(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	metrics.LiveDropClients.Set(0)
}
