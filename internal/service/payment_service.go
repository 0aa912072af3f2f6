package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crazygift/internal/domain"
	"crazygift/internal/logger"
	"crazygift/internal/metrics"
	"crazygift/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var minTonDeposit = decimal.New(1, -2)

// DepositBuilder собирает сообщение TON Connect и memo депозита
type DepositBuilder interface {
	CreateDeposit(userID int64, amount decimal.Decimal) domain.DepositDescriptor
	Memo(userID int64, amount decimal.Decimal) string
}

// InvoiceCreator создает ссылку на оплату в Telegram Stars
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, req domain.InvoiceRequest) (string, error)
}

// JobSubmitter принимает задачу сверки, реализуется Reconciler
type JobSubmitter interface {
	Submit(ctx context.Context, job ReconcileJob)
}

type PaymentService struct {
	db       *pgxpool.Pool
	users    *repository.UserRepository
	txs      *repository.TransactionRepository
	deposits DepositBuilder
	invoices InvoiceCreator
	jobs     JobSubmitter
}

func NewPaymentService(db *pgxpool.Pool, deposits DepositBuilder, invoices InvoiceCreator, jobs JobSubmitter) *PaymentService {
	return &PaymentService{
		db:       db,
		users:    repository.NewUserRepository(db),
		txs:      repository.NewTransactionRepository(db),
		deposits: deposits,
		invoices: invoices,
		jobs:     jobs,
	}
}

// CreateTonDeposit создает pending депозит и описание перевода для кошелька
func (s *PaymentService) CreateTonDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (*domain.TonDepositResult, error) {
	if amount.LessThan(minTonDeposit) || amount.GreaterThan(domain.MaxTonDeposit) {
		return nil, fmt.Errorf("%w: Invalid amount. Must be between 0.01 and 1000 TON", domain.ErrValidation)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load user: %v", domain.ErrInternal, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: пользователь не найден", domain.ErrNotFound)
	}

	t := &domain.Transaction{
		UserID:      userID,
		Type:        domain.TxDepositTON,
		Amount:      amount,
		Currency:    domain.CurrencyTON,
		Status:      domain.StatusPending,
		Description: fmt.Sprintf("TON deposit: %s TON", amount.String()),
	}
	if err := s.txs.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: create deposit: %v", domain.ErrInternal, err)
	}

	logger.WithContext(ctx).Info("создан TON депозит", "user_id", userID, "transaction_id", t.ID, "amount", amount.String())

	return &domain.TonDepositResult{
		TransactionID:  t.ID,
		TonTransaction: s.deposits.CreateDeposit(userID, amount),
	}, nil
}

// CreateStarsInvoice создает pending транзакцию и ссылку на оплату.
// При сбое Telegram транзакция сразу переводится в failed
func (s *PaymentService) CreateStarsInvoice(ctx context.Context, userID, stars int64) (*domain.StarsInvoiceResult, error) {
	if stars < domain.MinStarsPurchase || stars > domain.MaxStarsPurchase {
		return nil, fmt.Errorf("%w: Invalid stars amount. Must be between 1 and 100,000", domain.ErrValidation)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load user: %v", domain.ErrInternal, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: пользователь не найден", domain.ErrNotFound)
	}

	t := &domain.Transaction{
		UserID:      userID,
		Type:        domain.TxDepositStars,
		Amount:      starsAmount(stars),
		Currency:    domain.CurrencyStars,
		Status:      domain.StatusPending,
		Description: fmt.Sprintf("Stars purchase: %d stars", stars),
	}
	if err := s.txs.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: create invoice tx: %v", domain.ErrInternal, err)
	}

	link, err := s.invoices.CreateInvoice(ctx, domain.InvoiceRequest{
		TransactionID: t.ID,
		UserID:        userID,
		StarsAmount:   stars,
		TelegramID:    user.TelegramID,
	})
	if err != nil {
		logger.WithContext(ctx).Error("telegram не создал счет", "transaction_id", t.ID, "error", err)
		if _, ferr := s.txs.Transition(context.WithoutCancel(ctx), t.ID, domain.StatusPending, domain.StatusFailed); ferr != nil {
			logger.WithContext(ctx).Error("не удалось пометить счет failed", "transaction_id", t.ID, "error", ferr)
		}
		return nil, fmt.Errorf("%w: telegram: %v", domain.ErrUpstreamUnavailable, err)
	}

	logger.WithContext(ctx).Info("создан счет Stars", "user_id", userID, "transaction_id", t.ID, "stars", stars)
	return &domain.StarsInvoiceResult{InvoiceLink: link, TransactionID: t.ID}, nil
}

// HandleTonWebhook переводит депозит в processing и ставит проверку в очередь.
// Повтор с тем же id дает Conflict, начисление будет одно
func (s *PaymentService) HandleTonWebhook(ctx context.Context, txID int64, txHash string) error {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return fmt.Errorf("%w: tx_hash is required", domain.ErrValidation)
	}
	if err := s.claim(ctx, domain.RailTON, txID, domain.TxDepositTON, txHash); err != nil {
		return err
	}
	s.jobs.Submit(ctx, ReconcileJob{Rail: domain.RailTON, TransactionID: txID})
	return nil
}

// HandleStarsWebhook то же самое для Telegram Stars
func (s *PaymentService) HandleStarsWebhook(ctx context.Context, txID int64, paymentID, status string) error {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return fmt.Errorf("%w: payment_id is required", domain.ErrValidation)
	}
	if err := s.claim(ctx, domain.RailTelegram, txID, domain.TxDepositStars, paymentID); err != nil {
		return err
	}
	s.jobs.Submit(ctx, ReconcileJob{Rail: domain.RailTelegram, TransactionID: txID, Status: status})
	return nil
}

func (s *PaymentService) claim(ctx context.Context, rail domain.PaymentRail, txID int64, txType domain.TransactionType, externalID string) error {
	ok, err := s.txs.ClaimPending(ctx, txID, txType, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.Webhooks.WithLabelValues(string(rail), metrics.ResultConflict).Inc()
			return fmt.Errorf("%w: платеж %s уже использован", domain.ErrConflict, externalID)
		}
		metrics.Webhooks.WithLabelValues(string(rail), metrics.ResultError).Inc()
		return fmt.Errorf("%w: claim: %v", domain.ErrInternal, err)
	}
	if ok {
		metrics.Webhooks.WithLabelValues(string(rail), metrics.ResultOK).Inc()
		logger.WithContext(ctx).Info("webhook принят", "rail", rail, "transaction_id", txID)
		return nil
	}

	exists, err := s.txs.Exists(ctx, txID)
	if err != nil {
		metrics.Webhooks.WithLabelValues(string(rail), metrics.ResultError).Inc()
		return fmt.Errorf("%w: exists: %v", domain.ErrInternal, err)
	}
	if exists {
		metrics.Webhooks.WithLabelValues(string(rail), metrics.ResultConflict).Inc()
		return fmt.Errorf("%w: транзакция уже обработана", domain.ErrConflict)
	}
	metrics.Webhooks.WithLabelValues(string(rail), metrics.ResultNotFound).Inc()
	return fmt.Errorf("%w: транзакция не найдена", domain.ErrNotFound)
}

func (s *PaymentService) GetTransaction(ctx context.Context, txID int64) (*domain.Transaction, error) {
	t, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%w: load tx: %v", domain.ErrInternal, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: Transaction not found", domain.ErrNotFound)
	}
	return t, nil
}

// CanAcceptStarsPayment используется ботом на pre_checkout_query
func (s *PaymentService) CanAcceptStarsPayment(ctx context.Context, txID, userID, stars int64) bool {
	t, err := s.txs.GetByID(ctx, txID)
	if err != nil || t == nil {
		return false
	}
	return t.Type == domain.TxDepositStars &&
		t.Status == domain.StatusPending &&
		t.UserID == userID &&
		t.Amount.Equal(starsAmount(stars))
}
