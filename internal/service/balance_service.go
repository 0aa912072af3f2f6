package service

import (
	"context"
	"errors"
	"fmt"

	"crazygift/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrInsufficientFunds = errors.New("недостаточно звезд")
	ErrInvalidAmount     = fmt.Errorf("%w: неверная сумма", domain.ErrValidation)
)

// все изменения balance_stars идут через этот сервис внутри pgx.Tx вызывающего
type BalanceService struct {
	db *pgxpool.Pool
}

func NewBalanceService(db *pgxpool.Pool) *BalanceService {
	return &BalanceService{db: db}
}

func (s *BalanceService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `SELECT balance_stars FROM users WHERE id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: пользователь %d", domain.ErrNotFound, userID)
	}
	return balance, err
}

// ChargeCaseWithTx списывает цену кейса и обновляет счетчики пользователя.
// Списание условное, баланс не уходит в минус даже без предварительной блокировки
func (s *BalanceService) ChargeCaseWithTx(ctx context.Context, tx pgx.Tx, userID, price int64) (newBalance int64, err error) {
	if price <= 0 {
		return 0, ErrInvalidAmount
	}

	err = tx.QueryRow(ctx, `
		UPDATE users
		SET balance_stars = balance_stars - $1,
		    total_cases_opened = total_cases_opened + 1,
		    total_spent_stars = total_spent_stars + $1,
		    last_active = now()
		WHERE id = $2 AND balance_stars >= $1
		RETURNING balance_stars
	`, price, userID).Scan(&newBalance)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, s.explainMiss(ctx, tx, userID)
	}
	return newBalance, err
}

// CreditWithTx начисляет звезды: депозиты и реферальные бонусы
func (s *BalanceService) CreditWithTx(ctx context.Context, tx pgx.Tx, userID, amount int64) (newBalance int64, err error) {
	return s.credit(ctx, tx, userID, amount, false)
}

// CreditEarnedWithTx начисляет выручку от продажи и учитывает ее в total_earned_stars
func (s *BalanceService) CreditEarnedWithTx(ctx context.Context, tx pgx.Tx, userID, amount int64) (newBalance int64, err error) {
	return s.credit(ctx, tx, userID, amount, true)
}

func (s *BalanceService) credit(ctx context.Context, tx pgx.Tx, userID, amount int64, earned bool) (newBalance int64, err error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	err = tx.QueryRow(ctx, `
		UPDATE users
		SET balance_stars = balance_stars + $1,
		    total_earned_stars = total_earned_stars + CASE WHEN $3 THEN $1 ELSE 0 END,
		    updated_at = now()
		WHERE id = $2
		RETURNING balance_stars
	`, amount, userID, earned).Scan(&newBalance)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: пользователь %d", domain.ErrNotFound, userID)
	}
	return newBalance, err
}

// различает отсутствующего пользователя и нехватку средств
func (s *BalanceService) explainMiss(ctx context.Context, tx pgx.Tx, userID int64) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: пользователь %d", domain.ErrNotFound, userID)
	}
	return ErrInsufficientFunds
}
