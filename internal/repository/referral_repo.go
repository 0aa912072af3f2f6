package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Начисление пригласившему за приведенного пользователя
type ReferralReward struct {
	ID               int64           `json:"id"`
	ReferrerID       int64           `json:"referrer_id"`
	ReferredID       int64           `json:"referred_id"`
	TransactionID    int64           `json:"transaction_id"`
	CommissionAmount int64           `json:"commission_amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
}

type ReferralStats struct {
	TotalReferrals int64 `json:"total_referrals"`
	TotalEarned    int64 `json:"total_earned"`
}

type ReferralRepository struct {
	db *pgxpool.Pool
}

func NewReferralRepository(db *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// CreatePaidTx записывает уже выплаченный бонус в транзакции регистрации
func (r *ReferralRepository) CreatePaidTx(ctx context.Context, tx pgx.Tx, rw *ReferralReward) error {
	return tx.QueryRow(ctx, `
		INSERT INTO referral_transactions
			(referrer_id, referred_id, transaction_id, commission_amount, commission_rate, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, 'paid', now())
		RETURNING id, status, created_at, paid_at
	`, rw.ReferrerID, rw.ReferredID, rw.TransactionID, rw.CommissionAmount, rw.CommissionRate).
		Scan(&rw.ID, &rw.Status, &rw.CreatedAt, &rw.PaidAt)
}

func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID int64) ([]ReferralReward, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, referrer_id, referred_id, transaction_id, commission_amount, commission_rate,
		       status, created_at, paid_at
		FROM referral_transactions
		WHERE referrer_id = $1
		ORDER BY created_at DESC
	`, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []ReferralReward
	for rows.Next() {
		var rw ReferralReward
		if err := rows.Scan(&rw.ID, &rw.ReferrerID, &rw.ReferredID, &rw.TransactionID, &rw.CommissionAmount,
			&rw.CommissionRate, &rw.Status, &rw.CreatedAt, &rw.PaidAt); err != nil {
			return nil, err
		}
		rewards = append(rewards, rw)
	}
	return rewards, rows.Err()
}

// Stats число приглашенных и сумма выплаченных бонусов
func (r *ReferralRepository) Stats(ctx context.Context, referrerID int64) (*ReferralStats, error) {
	stats := &ReferralStats{}
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE referred_by = $1),
			(SELECT COALESCE(SUM(commission_amount), 0)::bigint FROM referral_transactions
			 WHERE referrer_id = $1 AND status = 'paid')
	`, referrerID).Scan(&stats.TotalReferrals, &stats.TotalEarned)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
