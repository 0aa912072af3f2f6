package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID               int64           `db:"id" json:"id"`
	TelegramID       int64           `db:"telegram_id" json:"telegram_id"`
	Username         string          `db:"username" json:"username,omitempty"`
	FirstName        string          `db:"first_name" json:"first_name,omitempty"`
	LastName         string          `db:"last_name" json:"last_name,omitempty"`
	BalanceStars     int64           `db:"balance_stars" json:"balance_stars"`
	BalanceTON       decimal.Decimal `db:"balance_ton" json:"balance_ton"`
	ReferralCode     string          `db:"referral_code" json:"referral_code,omitempty"`
	ReferredBy       *int64          `db:"referred_by" json:"referred_by,omitempty"`
	TotalCasesOpened int64           `db:"total_cases_opened" json:"total_cases_opened"`
	TotalSpentStars  int64           `db:"total_spent_stars" json:"total_spent_stars"`
	TotalEarnedStars int64           `db:"total_earned_stars" json:"total_earned_stars"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	LastActive       time.Time       `db:"last_active" json:"last_active"`
}

// данные пользователя, подтвержденные подписью Telegram
type TelegramIdentity struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	StartParam string
}

// поля профиля, которые пользователь может менять сам
type ProfileUpdate struct {
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Бонусы при регистрации
const (
	WelcomeBonusStars  = 100
	ReferralBonusStars = 50
)

type UserStats struct {
	UserID           int64            `json:"user_id"`
	TotalCasesOpened int64            `json:"total_cases_opened"`
	TotalSpentStars  int64            `json:"total_spent_stars"`
	TotalEarnedStars int64            `json:"total_earned_stars"`
	Inventory        map[string]int64 `json:"inventory"`
	TotalPurchases   int64            `json:"total_purchases"`
	TotalSpent       decimal.Decimal  `json:"total_spent"`
	TotalEarned      decimal.Decimal  `json:"total_earned"`
	ReferralsCount   int64            `json:"referrals_count"`
	MemberSince      time.Time        `json:"member_since"`
	LastActive       time.Time        `json:"last_active"`
}

type ReferralInfo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Username    string    `json:"username,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	CasesOpened int64     `json:"cases_opened"`
	LastActive  time.Time `json:"last_active"`
	IsActive    bool      `json:"is_active"`
}
