package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// минимальная стоимость предмета в звездах для вывода
const MinWithdrawalStars = 1000

// Выигранный предмет. Поля приза копируются на момент выигрыша
type InventoryItem struct {
	ID                    int64           `db:"id" json:"id"`
	UserID                int64           `db:"user_id" json:"user_id"`
	ItemName              string          `db:"item_name" json:"item_name"`
	ItemValue             decimal.Decimal `db:"item_value" json:"item_value"`
	ItemStars             int64           `db:"item_stars" json:"item_stars"`
	Rarity                Rarity          `db:"rarity" json:"rarity"`
	ImageURL              string          `db:"image_url" json:"image_url,omitempty"`
	CaseName              string          `db:"case_name" json:"case_name,omitempty"`
	CaseID                *int64          `db:"case_id" json:"case_id,omitempty"`
	IsWithdrawn           bool            `db:"is_withdrawn" json:"is_withdrawn"`
	IsUpgraded            bool            `db:"is_upgraded" json:"is_upgraded"`
	WithdrawalRequestedAt *time.Time      `db:"withdrawal_requested_at" json:"withdrawal_requested_at,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
}

type InventoryFilter struct {
	Rarity           string
	IncludeWithdrawn bool
	Limit            int
	Offset           int
}

type RarityStats struct {
	Count      int64           `json:"count"`
	TotalValue decimal.Decimal `json:"total_value"`
	TotalStars int64           `json:"total_stars"`
}

type InventoryStats struct {
	TotalItems       int64                  `json:"total_items"`
	PortfolioValue   decimal.Decimal        `json:"portfolio_value"`
	PortfolioStars   int64                  `json:"portfolio_stars"`
	WithdrawnItems   int64                  `json:"withdrawn_items"`
	ByRarity         map[string]RarityStats `json:"by_rarity"`
	MostValuableItem *InventoryItem         `json:"most_valuable_item"`
}

type SellResult struct {
	Success     bool   `json:"success"`
	StarsEarned int64  `json:"stars_earned"`
	NewBalance  int64  `json:"new_balance"`
	Message     string `json:"message"`
}

type WithdrawResult struct {
	Success       bool   `json:"success"`
	TransactionID int64  `json:"transaction_id"`
	Message       string `json:"message"`
}

type WithdrawalHistory struct {
	Items        []InventoryItem `json:"withdrawn_items"`
	Transactions []Transaction   `json:"transactions"`
}
