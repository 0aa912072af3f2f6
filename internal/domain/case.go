package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
	RarityMythic    Rarity = "mythic"
)

func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary, RarityMythic:
		return true
	}
	return false
}

// Кейс из каталога. Items хранится в базе как JSON и разбирается только при чтении
type Case struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	PriceStars  int64     `db:"price_stars" json:"price_stars"`
	Items       string    `db:"items" json:"-"`
	Active      bool      `db:"active" json:"active"`
	ImageURL    string    `db:"image_url" json:"image_url,omitempty"`
	Category    string    `db:"category" json:"category,omitempty"`
	TotalOpened int64     `db:"total_opened" json:"total_opened"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Один возможный приз внутри кейса
type PrizeEntry struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Value  decimal.Decimal `json:"value"`
	Stars  int64           `json:"stars"`
	Rarity Rarity          `json:"rarity"`
	Weight int64           `json:"weight"`
	Image  string          `json:"image"`
}

type CaseDetail struct {
	Case
	Items []PrizeEntry `json:"items"`
}

type CaseCategory struct {
	Name        string `json:"name"`
	Count       int64  `json:"count"`
	DisplayName string `json:"display_name"`
}

type CaseStats struct {
	TotalCases  int64 `json:"total_cases"`
	TotalOpened int64 `json:"total_opened"`
	PopularCase struct {
		Name        *string `json:"name"`
		TimesOpened int64   `json:"times_opened"`
	} `json:"popular_case"`
	PriceRange struct {
		Min     int64   `json:"min"`
		Max     int64   `json:"max"`
		Average float64 `json:"average"`
	} `json:"price_range"`
}

var categoryNames = map[string]string{
	"basic":   "Базовые",
	"premium": "Премиум",
	"vip":     "VIP",
	"special": "Специальные",
	"limited": "Лимитированные",
}

// отображаемое имя категории
func CategoryDisplayName(category string) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	if category == "" {
		return "Разное"
	}
	return category
}

// Результат открытия кейса. Нехватка звезд это обычный ответ с Success=false
type OpenResult struct {
	Success    bool           `json:"success"`
	Item       *InventoryItem `json:"item,omitempty"`
	NewBalance int64          `json:"new_balance"`
	Message    string         `json:"message"`
}
