package bot

import (
	"context"
	"errors"

	"crazygift/internal/domain"
	"crazygift/internal/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// pre_checkout_query подтверждаем только для pending счета с теми же суммой и пользователем
func (b *Bot) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}

	p, err := telegram.ParseInvoicePayload(q.InvoicePayload)
	switch {
	case err != nil:
		answer.OK = false
		answer.ErrorMessage = "Неверный счет"
	case q.Currency != telegram.CurrencyStars:
		answer.OK = false
		answer.ErrorMessage = "Неверная валюта"
	case !b.deps.Payments.CanAcceptStarsPayment(ctx, p.TransactionID, p.UserID, int64(q.TotalAmount)):
		answer.OK = false
		answer.ErrorMessage = "Счет уже оплачен или устарел"
	}

	if _, err := b.send.Request(answer); err != nil {
		b.log.Error("не удалось ответить на pre_checkout_query", "query_id", q.ID, "error", err)
		return
	}
	b.log.Info("pre_checkout_query", "ok", answer.OK, "transaction_id", p.TransactionID)
}

// successful_payment запускает ту же сверку, что и webhook
func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	pay := msg.SuccessfulPayment
	p, err := telegram.ParseInvoicePayload(pay.InvoicePayload)
	if err != nil {
		b.log.Error("successful_payment с неверным payload", "charge_id", pay.TelegramPaymentChargeID, "error", err)
		return
	}

	err = b.deps.Payments.HandleStarsWebhook(ctx, p.TransactionID, pay.TelegramPaymentChargeID, domain.StarsStatusPaid)
	switch {
	case err == nil:
		b.log.Info("оплата звездами принята", "transaction_id", p.TransactionID, "stars", pay.TotalAmount)
	case errors.Is(err, domain.ErrConflict):
		b.log.Warn("повторный successful_payment", "transaction_id", p.TransactionID)
	default:
		b.log.Error("не удалось принять оплату", "transaction_id", p.TransactionID, "error", err)
	}
}
