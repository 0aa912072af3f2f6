package ton

import (
	"fmt"
	"time"

	"crazygift/internal/domain"

	"github.com/shopspring/decimal"
)

// Builder собирает сообщение TON Connect для пополнения на кошелек платформы
type Builder struct {
	wallet string
	now    func() time.Time
}

func NewBuilder(walletAddress string) *Builder {
	return &Builder{wallet: walletAddress, now: time.Now}
}

// Memo идентифицирует депозит: deposit_{userId}_{сумма в сотых TON}
func (b *Builder) Memo(userID int64, amount decimal.Decimal) string {
	return fmt.Sprintf("deposit_%d_%d", userID, amount.Shift(2).Truncate(0).IntPart())
}

func (b *Builder) CreateDeposit(userID int64, amount decimal.Decimal) domain.DepositDescriptor {
	return domain.DepositDescriptor{
		ValidUntil: b.now().Add(DepositValidity).Unix(),
		Messages: []domain.DepositMessage{{
			Address: b.wallet,
			Amount:  ToNano(amount).String(),
			Payload: b.Memo(userID, amount),
		}},
	}
}
