package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crazygift/internal/domain"
	"crazygift/internal/logger"
	"crazygift/internal/metrics"
	"crazygift/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Verifier проверяет перевод в блокчейне TON
type Verifier interface {
	Verify(ctx context.Context, txHash string, expected decimal.Decimal, memo string) (bool, error)
}

type ReconcileJob struct {
	Rail          domain.PaymentRail
	TransactionID int64
	// статус платежа от Telegram, для TON пустой
	Status string
}

const (
	outcomeCompleted = "completed"
	outcomeRejected  = "rejected"
	outcomeErrored   = "errored"
	outcomeSkipped   = "skipped"
)

// Reconciler доводит processing депозиты до completed или failed пулом воркеров
type Reconciler struct {
	db       *pgxpool.Pool
	users    *repository.UserRepository
	txs      *repository.TransactionRepository
	balance  *BalanceService
	audit    *AuditService
	verifier Verifier
	deposits DepositBuilder
	notify   *NotificationQueue

	jobs    chan ReconcileJob
	workers int
	timeout time.Duration

	// closed защищает jobs от отправки после Stop
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type ReconcilerConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

func NewReconciler(db *pgxpool.Pool, balance *BalanceService, audit *AuditService, verifier Verifier,
	deposits DepositBuilder, notify *NotificationQueue, cfg ReconcilerConfig) *Reconciler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Reconciler{
		db:       db,
		users:    repository.NewUserRepository(db),
		txs:      repository.NewTransactionRepository(db),
		balance:  balance,
		audit:    audit,
		verifier: verifier,
		deposits: deposits,
		notify:   notify,
		jobs:     make(chan ReconcileJob, cfg.QueueSize),
		workers:  cfg.Workers,
		timeout:  cfg.Timeout,
	}
}

func (r *Reconciler) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	logger.Info("reconciler запущен", "workers", r.workers, "timeout", r.timeout)
}

// Stop закрывает очередь и ждет, пока воркеры обработают оставшиеся задачи
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()
	r.wg.Wait()
	logger.Info("reconciler остановлен")
}

// Submit ждет места в очереди, пока жив контекст запроса.
// Не поставленная задача останется в processing и будет закрыта Sweeper
func (r *Reconciler) Submit(ctx context.Context, job ReconcileJob) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		logger.WithContext(ctx).Warn("reconciler остановлен, задача не поставлена",
			"rail", job.Rail, "transaction_id", job.TransactionID)
		return
	}

	select {
	case r.jobs <- job:
		metrics.ReconcileQueueDepth.Set(float64(len(r.jobs)))
	case <-ctx.Done():
		logger.WithContext(ctx).Warn("очередь сверки заполнена, задача не поставлена",
			"rail", job.Rail, "transaction_id", job.TransactionID)
	}
}

func (r *Reconciler) worker() {
	defer r.wg.Done()
	for job := range r.jobs {
		metrics.ReconcileQueueDepth.Set(float64(len(r.jobs)))
		r.Process(job)
	}
}

// Process выполняет одну задачу. Любая ошибка или таймаут переводят депозит в failed
func (r *Reconciler) Process(job ReconcileJob) {
	log := logger.With("rail", job.Rail, "transaction_id", job.TransactionID)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	outcome, err := r.safeReconcile(ctx, job)
	if err != nil {
		log.Error("сверка завершилась ошибкой", "error", err)
		r.fail(job)
		outcome = outcomeErrored
	}
	metrics.Reconciliations.WithLabelValues(string(job.Rail), outcome).Inc()
}

func (r *Reconciler) safeReconcile(ctx context.Context, job ReconcileJob) (outcome string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	switch job.Rail {
	case domain.RailTON:
		return r.reconcileTON(ctx, job)
	case domain.RailTelegram:
		return r.reconcileStars(ctx, job)
	}
	return "", fmt.Errorf("unknown rail %q", job.Rail)
}

func (r *Reconciler) reconcileTON(ctx context.Context, job ReconcileJob) (string, error) {
	t, user, err := r.load(ctx, job.TransactionID)
	if err != nil {
		return "", err
	}
	if t.Status != domain.StatusProcessing {
		return outcomeSkipped, nil
	}
	if t.ExternalID == nil {
		return "", errors.New("processing deposit without tx hash")
	}

	memo := r.deposits.Memo(user.ID, t.Amount)
	valid, err := r.verifier.Verify(ctx, *t.ExternalID, t.Amount, memo)
	if err != nil {
		return "", fmt.Errorf("verify: %w", err)
	}
	if !valid {
		r.reject(ctx, t, user, "Transaction verification failed")
		return outcomeRejected, nil
	}

	return r.complete(ctx, t, user, TonToStars(t.Amount), domain.RailTON)
}

func (r *Reconciler) reconcileStars(ctx context.Context, job ReconcileJob) (string, error) {
	t, user, err := r.load(ctx, job.TransactionID)
	if err != nil {
		return "", err
	}
	if t.Status != domain.StatusProcessing {
		return outcomeSkipped, nil
	}
	if job.Status != domain.StarsStatusPaid {
		r.reject(ctx, t, user, "Payment status: "+job.Status)
		return outcomeRejected, nil
	}

	return r.complete(ctx, t, user, t.Amount.IntPart(), domain.RailTelegram)
}

func (r *Reconciler) load(ctx context.Context, txID int64) (*domain.Transaction, *domain.User, error) {
	t, err := r.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, nil, fmt.Errorf("load tx: %w", err)
	}
	if t == nil {
		return nil, nil, fmt.Errorf("transaction %d: %w", txID, domain.ErrNotFound)
	}
	user, err := r.users.GetByID(ctx, t.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, nil, fmt.Errorf("user %d: %w", t.UserID, domain.ErrNotFound)
	}
	return t, user, nil
}

// complete зачисляет звезды и закрывает депозит одной транзакцией
func (r *Reconciler) complete(ctx context.Context, t *domain.Transaction, user *domain.User, stars int64, rail domain.PaymentRail) (string, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ok, err := r.txs.TransitionTx(ctx, tx, t.ID, domain.StatusProcessing, domain.StatusCompleted)
	if err != nil {
		return "", fmt.Errorf("transition: %w", err)
	}
	if !ok {
		// закрыта параллельно, например Sweeper
		return outcomeSkipped, nil
	}

	newBalance, err := r.balance.CreditWithTx(ctx, tx, user.ID, stars)
	if err != nil {
		return "", fmt.Errorf("credit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	logger.Info("депозит зачислен", "rail", rail, "transaction_id", t.ID, "user_id", user.ID, "stars", stars)
	r.audit.LogDeposit(ctx, user.ID, rail, t.ID, t.Amount, stars, true)
	r.notify.Enqueue(user.TelegramID, PaymentSuccessMessage(stars, newBalance))
	return outcomeCompleted, nil
}

func (r *Reconciler) reject(ctx context.Context, t *domain.Transaction, user *domain.User, reason string) {
	ok, err := r.txs.Transition(ctx, t.ID, domain.StatusProcessing, domain.StatusFailed)
	if err != nil {
		logger.Error("не удалось пометить депозит failed", "transaction_id", t.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	logger.Warn("депозит отклонен", "transaction_id", t.ID, "reason", reason)
	r.audit.LogDeposit(ctx, user.ID, railOf(t.Type), t.ID, t.Amount, 0, false)
	r.notify.Enqueue(user.TelegramID, PaymentFailedMessage(reason))
}

// fail переводит депозит в failed после ошибки. Контекст задачи уже может быть отменен
func (r *Reconciler) fail(job ReconcileJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ok, err := r.txs.Transition(ctx, job.TransactionID, domain.StatusProcessing, domain.StatusFailed)
	if err != nil {
		logger.Error("не удалось пометить депозит failed", "transaction_id", job.TransactionID, "error", err)
		return
	}
	if !ok {
		return
	}

	t, user, err := r.load(ctx, job.TransactionID)
	if err != nil {
		return
	}
	r.audit.LogDeposit(ctx, user.ID, job.Rail, t.ID, t.Amount, 0, false)
	r.notify.Enqueue(user.TelegramID, PaymentFailedMessage(""))
}

func railOf(t domain.TransactionType) domain.PaymentRail {
	if t == domain.TxDepositStars {
		return domain.RailTelegram
	}
	return domain.RailTON
}

func PaymentSuccessMessage(stars, newBalance int64) string {
	return fmt.Sprintf("🎉 <b>Платёж успешно обработан!</b>\n\n"+
		"💰 Получено: %s звёзд\n"+
		"⭐ Ваш баланс: %s звёзд\n\n"+
		"Теперь вы можете открывать кейсы и выигрывать призы!",
		groupThousands(stars), groupThousands(newBalance))
}

func PaymentFailedMessage(reason string) string {
	msg := "❌ <b>Ошибка платежа</b>\n\nК сожалению, не удалось обработать ваш платёж.\n"
	if reason != "" {
		msg += "Причина: " + reason + "\n"
	}
	return msg + "\nПопробуйте ещё раз или обратитесь в поддержку."
}

// 12345 -> 12,345
func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := false
	if n < 0 {
		neg = true
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
