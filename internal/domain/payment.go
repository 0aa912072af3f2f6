package domain

import "github.com/shopspring/decimal"

// Лимиты пополнения
var (
	MaxTonDeposit = decimal.NewFromInt(1000)
)

const (
	MinStarsPurchase = 1
	MaxStarsPurchase = 100000
)

// Сообщение для TON Connect sendTransaction
type DepositMessage struct {
	Address string `json:"address"`
	Amount  string `json:"amount"` // в нанотонах
	Payload string `json:"payload"`
}

type DepositDescriptor struct {
	ValidUntil int64            `json:"valid_until"`
	Messages   []DepositMessage `json:"messages"`
}

type TonDepositResult struct {
	TransactionID  int64             `json:"transaction_id"`
	TonTransaction DepositDescriptor `json:"ton_transaction"`
}

type StarsInvoiceResult struct {
	InvoiceLink   string `json:"invoice_link"`
	TransactionID int64  `json:"transaction_id"`
}

// Данные для создания счета в Telegram Stars
type InvoiceRequest struct {
	TransactionID int64
	UserID        int64
	StarsAmount   int64
	TelegramID    int64
}

// Тип задачи сверки
type PaymentRail string

const (
	RailTON      PaymentRail = "ton"
	RailTelegram PaymentRail = "telegram"
)

// статус платежа Telegram Stars, при котором начисляем звезды
const StarsStatusPaid = "paid"
