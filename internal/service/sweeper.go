package service

import (
	"context"
	"fmt"
	"time"

	"crazygift/internal/logger"
	"crazygift/internal/metrics"
	"crazygift/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
)

// Sweeper закрывает депозиты, застрявшие в processing после падения процесса
type Sweeper struct {
	txs        *repository.TransactionRepository
	users      *repository.UserRepository
	notify     *NotificationQueue
	stuckAfter time.Duration
	cron       *cron.Cron
	now        func() time.Time
}

func NewSweeper(db *pgxpool.Pool, notify *NotificationQueue, stuckAfter time.Duration) *Sweeper {
	return &Sweeper{
		txs:        repository.NewTransactionRepository(db),
		users:      repository.NewUserRepository(db),
		notify:     notify,
		stuckAfter: stuckAfter,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:        time.Now,
	}
}

// Start планирует проверку по расписанию, например "@every 1m"
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			logger.Error("sweeper: ошибка", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("sweeper schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	logger.Info("sweeper запущен", "schedule", schedule, "stuck_after", s.stuckAfter)
	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep переводит в failed все processing депозиты старше stuckAfter
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stuck, err := s.txs.FailStuck(ctx, s.now().Add(-s.stuckAfter))
	if err != nil {
		return 0, err
	}

	for _, t := range stuck {
		logger.Warn("sweeper: депозит завис в processing, помечен failed", "transaction_id", t.ID, "type", t.Type)
		metrics.Reconciliations.WithLabelValues(string(railOf(t.Type)), "swept").Inc()

		user, err := s.users.GetByID(ctx, t.UserID)
		if err != nil || user == nil {
			continue
		}
		s.notify.Enqueue(user.TelegramID, PaymentFailedMessage("проверка платежа не завершилась вовремя"))
	}
	return len(stuck), nil
}
