package service

import "github.com/shopspring/decimal"

// курс пополнения: 1 TON = 100 звезд
var starsPerTON = decimal.NewFromInt(100)

func starsAmount(stars int64) decimal.Decimal {
	return decimal.NewFromInt(stars)
}

// TonToStars отбрасывает дробную часть, как и memo депозита
func TonToStars(amount decimal.Decimal) int64 {
	return amount.Mul(starsPerTON).Truncate(0).IntPart()
}
