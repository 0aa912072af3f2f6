package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crazygift/internal/domain"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, type, amount, currency, status, external_id,
	COALESCE(description, ''), extra_data, created_at, completed_at`

type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create пишет транзакцию вне других изменений, например pending депозит
func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	return insertTransaction(ctx, r.db, t)
}

func (r *TransactionRepository) CreateTx(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	return insertTransaction(ctx, tx, t)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertTransaction(ctx context.Context, q queryRower, t *domain.Transaction) error {
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	err := q.QueryRow(ctx, `
		INSERT INTO transactions (user_id, type, amount, currency, status, external_id, description, extra_data, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8,
		        CASE WHEN $5 = 'completed' THEN now() END)
		RETURNING id, created_at, completed_at
	`, t.UserID, t.Type, t.Amount, t.Currency, t.Status, t.ExternalID, t.Description, t.ExtraData).
		Scan(&t.ID, &t.CreatedAt, &t.CompletedAt)
	return mapUniqueViolation(err)
}

// нарушение уникальности external_id означает повторное использование платежа
func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *TransactionRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// ClaimPending атомарно переводит pending транзакцию нужного типа в processing.
// Возвращает false если транзакции нет, тип другой или она уже обработана
func (r *TransactionRepository) ClaimPending(ctx context.Context, id int64, txType domain.TransactionType, externalID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET status = 'processing', external_id = $2, processing_at = now()
		WHERE id = $1 AND type = $3 AND status = 'pending'
	`, id, externalID, txType)
	if err != nil {
		return false, mapUniqueViolation(err)
	}
	return tag.RowsAffected() == 1, nil
}

// TransitionTx меняет статус только если текущий равен from
func (r *TransactionRepository) TransitionTx(ctx context.Context, tx pgx.Tx, id int64, from, to domain.TransactionStatus) (bool, error) {
	return transition(ctx, tx, id, from, to)
}

func (r *TransactionRepository) Transition(ctx context.Context, id int64, from, to domain.TransactionStatus) (bool, error) {
	return transition(ctx, r.db, id, from, to)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func transition(ctx context.Context, q execer, id int64, from, to domain.TransactionStatus) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("%w: transition %s -> %s", domain.ErrValidation, from, to)
	}
	tag, err := q.Exec(ctx, `
		UPDATE transactions
		SET status = $3,
		    completed_at = CASE WHEN $3 = 'completed' THEN now() ELSE completed_at END
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID int64, f domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = $1
		  AND ($2 = '' OR type = $2)
		  AND ($3 = '' OR currency = $3)
		  AND ($4 = '' OR status = $4)
	`, userID, f.Type, f.Currency, f.Status).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		  AND ($2 = '' OR type = $2)
		  AND ($3 = '' OR currency = $3)
		  AND ($4 = '' OR status = $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5 OFFSET $6
	`, userID, f.Type, f.Currency, f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list, err := scanTransactions(rows)
	return list, total, err
}

func (r *TransactionRepository) ListByUserAndType(ctx context.Context, userID int64, txType domain.TransactionType) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1 AND type = $2
		ORDER BY created_at DESC, id DESC
	`, userID, txType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListByStatus нужен админ боту для очереди выводов
func (r *TransactionRepository) ListByStatus(ctx context.Context, txType domain.TransactionType, status domain.TransactionStatus, limit int) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE type = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3
	`, txType, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// FailStuck переводит в failed депозиты, которые находятся в processing дольше olderThan.
// Отсчет идет от захвата webhook, а не от создания счета
func (r *TransactionRepository) FailStuck(ctx context.Context, olderThan time.Time) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE transactions
		SET status = 'failed'
		WHERE status = 'processing'
		  AND type IN ('deposit_ton', 'deposit_stars')
		  AND processing_at < $1
		RETURNING `+transactionColumns,
		olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// UserTotals считает покупки кейсов и продажи для статистики профиля
type UserTotals struct {
	Purchases   int64
	TotalSpent  decimal.Decimal
	TotalEarned decimal.Decimal
}

func (r *TransactionRepository) UserTotals(ctx context.Context, userID int64) (*UserTotals, error) {
	t := &UserTotals{}
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE type = 'case_purchase'),
			COALESCE(SUM(amount) FILTER (WHERE type = 'case_purchase'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'item_sale'), 0)
		FROM transactions
		WHERE user_id = $1 AND status = 'completed'
	`, userID).Scan(&t.Purchases, &t.TotalSpent, &t.TotalEarned)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// StatusSummary количество транзакций по типу и статусу
type StatusSummary struct {
	Type   domain.TransactionType
	Status domain.TransactionStatus
	Count  int64
	Amount decimal.Decimal
}

func (r *TransactionRepository) Summary(ctx context.Context, since time.Time) ([]StatusSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT type, status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE created_at >= $1
		GROUP BY type, status
		ORDER BY type, status
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StatusSummary
	for rows.Next() {
		var s StatusSummary
		if err := rows.Scan(&s.Type, &s.Status, &s.Count, &s.Amount); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Currency, &t.Status, &t.ExternalID,
		&t.Description, &t.ExtraData, &t.CreatedAt, &t.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	list := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}
