package service

import (
	"context"
	"sync"
	"time"

	"crazygift/internal/logger"
	"crazygift/internal/metrics"
)

// Notifier доставляет сообщение пользователю. false значит не доставлено
type Notifier interface {
	Notify(ctx context.Context, telegramID int64, message string) bool
}

type notification struct {
	telegramID int64
	message    string
}

// NotificationQueue отправляет уведомления в фоне. Переполнение и ошибки доставки
// только логируются и никогда не доходят до вызывающего
type NotificationQueue struct {
	notifier Notifier
	ch       chan notification
	timeout  time.Duration

	once sync.Once
	wg   sync.WaitGroup
}

func NewNotificationQueue(n Notifier, size int) *NotificationQueue {
	if size <= 0 {
		size = 1
	}
	return &NotificationQueue{
		notifier: n,
		ch:       make(chan notification, size),
		timeout:  10 * time.Second,
	}
}

// Enqueue не блокируется
func (q *NotificationQueue) Enqueue(telegramID int64, message string) {
	if q == nil || q.notifier == nil || telegramID == 0 {
		return
	}
	select {
	case q.ch <- notification{telegramID: telegramID, message: message}:
	default:
		metrics.Notifications.WithLabelValues(metrics.ResultDropped).Inc()
		logger.Warn("очередь уведомлений заполнена, сообщение пропущено", "telegram_id", telegramID)
	}
}

// Start запускает отправителей. Stop дожидается отправки уже поставленных сообщений
func (q *NotificationQueue) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for n := range q.ch {
				q.deliver(n)
			}
		}()
	}
}

func (q *NotificationQueue) Stop() {
	q.once.Do(func() { close(q.ch) })
	q.wg.Wait()
}

func (q *NotificationQueue) deliver(n notification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Notifications.WithLabelValues(metrics.ResultFailed).Inc()
			logger.Error("паника при отправке уведомления", "panic", r, "telegram_id", n.telegramID)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if q.notifier.Notify(ctx, n.telegramID, n.message) {
		metrics.Notifications.WithLabelValues(metrics.ResultOK).Inc()
		return
	}
	metrics.Notifications.WithLabelValues(metrics.ResultFailed).Inc()
	logger.Warn("уведомление не доставлено", "telegram_id", n.telegramID)
}
