package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxDepositTON     TransactionType = "deposit_ton"
	TxDepositStars   TransactionType = "deposit_stars"
	TxCasePurchase   TransactionType = "case_purchase"
	TxItemSale       TransactionType = "item_sale"
	TxItemWithdrawal TransactionType = "item_withdrawal"
	TxReferralBonus  TransactionType = "referral_bonus"
)

type Currency string

const (
	CurrencyTON   Currency = "TON"
	CurrencyStars Currency = "STARS"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
)

// Terminal сообщает, что из статуса больше нет переходов
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition проверяет переход по машине состояний pending -> processing -> completed|failed.
// Снятые вручную выводы переходят из pending сразу в completed или failed
func CanTransition(from, to TransactionStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

type Transaction struct {
	ID          int64                  `db:"id" json:"id"`
	UserID      int64                  `db:"user_id" json:"user_id"`
	Type        TransactionType        `db:"type" json:"type"`
	Amount      decimal.Decimal        `db:"amount" json:"amount"`
	Currency    Currency               `db:"currency" json:"currency"`
	Status      TransactionStatus      `db:"status" json:"status"`
	ExternalID  *string                `db:"external_id" json:"external_id,omitempty"`
	Description string                 `db:"description" json:"description,omitempty"`
	ExtraData   map[string]interface{} `db:"extra_data" json:"extra_data,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	CompletedAt *time.Time             `db:"completed_at" json:"completed_at,omitempty"`
}

type TransactionFilter struct {
	Type     string
	Currency string
	Status   string
	Limit    int
	Offset   int
}

type HistoryPage struct {
	Transactions []Transaction `json:"transactions"`
	Total        int64         `json:"total"`
	HasMore      bool          `json:"has_more"`
}
