package game

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"

	"crazygift/internal/domain"
)

var (
	ErrNoSelection   = errors.New("no selection possible")
	ErrBadPrizeTable = errors.New("malformed prize table")
)

// IntN возвращает равномерное число в [0, n)
type IntN func(n int64) (int64, error)

// CryptoIntN источник случайности по умолчанию
func CryptoIntN(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// Selector выбирает приз из таблицы с вероятностью weight_i / sum(weight)
type Selector struct {
	intn IntN
}

func NewSelector() *Selector {
	return &Selector{intn: CryptoIntN}
}

// NewSelectorWithSource нужен тестам для детерминированного выбора
func NewSelectorWithSource(src IntN) *Selector {
	if src == nil {
		src = CryptoIntN
	}
	return &Selector{intn: src}
}

// вес <= 0 считается единицей
func effectiveWeight(w int64) int64 {
	if w <= 0 {
		return 1
	}
	return w
}

// сумма весов не должна выходить за int64
func totalWeight(entries []domain.PrizeEntry) (int64, error) {
	var total int64
	for i, e := range entries {
		w := effectiveWeight(e.Weight)
		if w > math.MaxInt64-total {
			return 0, fmt.Errorf("%w: weight sum overflows at entry %d", ErrBadPrizeTable, i)
		}
		total += w
	}
	return total, nil
}

// Select возвращает ровно один приз. Пустая таблица дает ErrNoSelection
func (s *Selector) Select(entries []domain.PrizeEntry) (domain.PrizeEntry, error) {
	if len(entries) == 0 {
		return domain.PrizeEntry{}, ErrNoSelection
	}

	total, err := totalWeight(entries)
	if err != nil {
		return domain.PrizeEntry{}, err
	}

	r, err := s.intn(total)
	if err != nil {
		return domain.PrizeEntry{}, fmt.Errorf("random source: %w", err)
	}
	if r < 0 || r >= total {
		return domain.PrizeEntry{}, fmt.Errorf("random source returned %d outside [0, %d)", r, total)
	}

	var cumulative int64
	for _, e := range entries {
		cumulative += effectiveWeight(e.Weight)
		if r < cumulative {
			return e, nil
		}
	}

	// сюда не попадаем: r < total
	return entries[len(entries)-1], nil
}

// SelectPrize выбор через crypto/rand
func SelectPrize(entries []domain.PrizeEntry) (domain.PrizeEntry, error) {
	return NewSelector().Select(entries)
}

// ParsePrizeTable разбирает JSON таблицу призов кейса. Частичный результат не возвращается
func ParsePrizeTable(raw []byte) ([]domain.PrizeEntry, error) {
	var entries []domain.PrizeEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPrizeTable, err)
	}
	if len(entries) == 0 {
		return nil, ErrNoSelection
	}
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrBadPrizeTable, i)
		}
		if e.Stars < 0 {
			return nil, fmt.Errorf("%w: entry %d has negative stars", ErrBadPrizeTable, i)
		}
		if !e.Rarity.Valid() {
			return nil, fmt.Errorf("%w: entry %d has unknown rarity %q", ErrBadPrizeTable, i, e.Rarity)
		}
	}
	if _, err := totalWeight(entries); err != nil {
		return nil, err
	}
	return entries, nil
}
