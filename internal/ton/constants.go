package ton

import (
	"time"

	"github.com/shopspring/decimal"
)

// представляет тип сети TON
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// конечные точки toncenter
const (
	TonCenterMainnet = "https://toncenter.com/api/v2"
	TonCenterTestnet = "https://testnet.toncenter.com/api/v2"
)

// глобальные конфиги лайтсерверов
const (
	LiteConfigMainnet = "https://ton.org/global.config.json"
	LiteConfigTestnet = "https://ton.org/testnet-global.config.json"
)

const (
	// наименьшая единица TON (1 TON = 10^9 наноTON)
	NanoTON = 1_000_000_000

	// сколько действует сообщение TON Connect
	DepositValidity = 10 * time.Minute

	// сколько последних транзакций кошелька просматриваем при проверке
	LookupLimit = 100
)

// допустимое расхождение суммы перевода
var AmountTolerance = decimal.New(1, -3)

var nanoPerTON = decimal.NewFromInt(NanoTON)

// ToNano переводит TON в наноTON с отбрасыванием остатка
func ToNano(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(nanoPerTON).Truncate(0)
}

// FromNano переводит наноTON в TON
func FromNano(nano decimal.Decimal) decimal.Decimal {
	return nano.Div(nanoPerTON)
}

// AmountMatches сравнивает сумму перевода с ожидаемой с допуском 0.001 TON
func AmountMatches(got, expected decimal.Decimal) bool {
	return got.Sub(expected).Abs().LessThanOrEqual(AmountTolerance)
}

func ParseNetwork(s string) Network {
	if s == string(NetworkTestnet) {
		return NetworkTestnet
	}
	return NetworkMainnet
}
