package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"crazygift/internal/domain"
	"crazygift/internal/logger"
	"crazygift/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// Sender часть *tgbotapi.BotAPI для отправки сообщений и ответов
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Payments принимает оплату звездами
type Payments interface {
	CanAcceptStarsPayment(ctx context.Context, txID, userID, stars int64) bool
	HandleStarsWebhook(ctx context.Context, txID int64, paymentID, status string) error
}

// Withdrawals очередь выводов для администраторов
type Withdrawals interface {
	PendingWithdrawals(ctx context.Context, limit int) ([]domain.Transaction, error)
	ResolveWithdrawal(ctx context.Context, txID, adminID int64, approve bool) (*domain.Transaction, error)
}

// Platform статистика и поиск пользователей
type Platform interface {
	Stats(ctx context.Context) (*service.PlatformStats, error)
	FindUser(ctx context.Context, identifier string) (*domain.User, error)
	TopUsers(ctx context.Context, limit int) ([]domain.User, error)
}

// WalletBalancer баланс кошелька платформы, может отсутствовать
type WalletBalancer interface {
	WalletBalance(ctx context.Context) (decimal.Decimal, error)
}

type Deps struct {
	Payments    Payments
	Withdrawals Withdrawals
	Platform    Platform
	Wallet      WalletBalancer
}

// Bot принимает платежи Stars, доставляет уведомления и обслуживает команды админов
type Bot struct {
	api      *tgbotapi.BotAPI
	send     Sender
	deps     Deps
	adminIDs []int64
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      *slog.Logger
}

// New создает бота без зависимостей, их передает SetDeps до Start
func New(api *tgbotapi.BotAPI, adminIDs []int64) *Bot {
	b := newBot(api, Deps{}, adminIDs)
	b.log.Info("bot authorized", "username", api.Self.UserName)
	return b
}

func newBot(send Sender, deps Deps, adminIDs []int64) *Bot {
	b := &Bot{
		send:     send,
		deps:     deps,
		adminIDs: adminIDs,
		stopCh:   make(chan struct{}),
		log:      logger.With("component", "bot"),
	}
	if api, ok := send.(*tgbotapi.BotAPI); ok {
		b.api = api
	}
	return b
}

func (b *Bot) SetDeps(deps Deps) {
	b.deps = deps
}

// Start слушает обновления до Stop
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.wg.Done()
				b.handleUpdate(upd)
			}(update)
		}
	}
}

// Stop ждет обработчики не дольше 10 секунд
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		if b.api != nil {
			b.api.StopReceivingUpdates()
		}
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("bot stopped gracefully")
	case <-time.After(10 * time.Second):
		b.log.Warn("bot shutdown timeout, some handlers may not have completed")
	}
}

func (b *Bot) handleUpdate(upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in update handler", "panic", r, "update_id", upd.UpdateID)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case upd.PreCheckoutQuery != nil:
		b.handlePreCheckout(ctx, upd.PreCheckoutQuery)
	case upd.Message != nil && upd.Message.SuccessfulPayment != nil:
		b.handleSuccessfulPayment(ctx, upd.Message)
	case upd.Message != nil && upd.Message.IsCommand() && b.isAdmin(upd.Message.From):
		b.handleCommand(ctx, upd.Message)
	}
}

func (b *Bot) isAdmin(from *tgbotapi.User) bool {
	if from == nil {
		return false
	}
	for _, id := range b.adminIDs {
		if id == from.ID {
			return true
		}
	}
	return false
}

// Notify отправляет HTML сообщение пользователю
func (b *Bot) Notify(ctx context.Context, telegramID int64, message string) bool {
	if ctx.Err() != nil {
		return false
	}
	msg := tgbotapi.NewMessage(telegramID, message)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.send.Send(msg); err != nil {
		b.log.Warn("не удалось отправить уведомление", "telegram_id", telegramID, "error", err)
		return false
	}
	return true
}

// NotifyAdminsWithdrawal рассылает админам новый запрос на вывод
func (b *Bot) NotifyAdminsWithdrawal(ctx context.Context, n service.WithdrawalNotice) {
	message := withdrawalNoticeText(n)
	for _, adminID := range b.adminIDs {
		if !b.Notify(ctx, adminID, message) {
			b.log.Error("failed to notify admin", "admin_id", adminID, "transaction_id", n.TransactionID)
		}
	}
}
