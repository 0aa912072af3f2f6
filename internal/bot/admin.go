package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"crazygift/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	var response string

	switch msg.Command() {
	case "start", "help":
		response = helpMessage
	case "stats":
		response = b.handleStats(ctx)
	case "user":
		response = b.handleUser(ctx, msg.CommandArguments())
	case "top":
		response = b.handleTop(ctx, msg.CommandArguments())
	case "withdrawals":
		response = b.handleWithdrawals(ctx)
	case "done":
		response = b.handleResolve(ctx, msg.From.ID, msg.CommandArguments(), true)
	case "reject":
		response = b.handleResolve(ctx, msg.From.ID, msg.CommandArguments(), false)
	case "wallet":
		response = b.handleWallet(ctx)
	default:
		response = "❌ Неизвестная команда. Используйте /help для списка команд."
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, response)
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyToMessageID = msg.MessageID

	if _, err := b.send.Send(reply); err != nil {
		b.log.Error("error sending message", "error", err)
	}
}

const helpMessage = `<b>🤖 Команды администратора</b>

<b>📊 Статистика:</b>
/stats - Статистика платформы
/top [лимит] - Топ по открытым кейсам
/wallet - Баланс кошелька платформы

<b>👤 Пользователи:</b>
/user &lt;@username|tg_id|#id&gt; - Информация о пользователе

<b>💸 Выводы:</b>
/withdrawals - Ожидающие выводы
/done &lt;id&gt; - Вывод выполнен
/reject &lt;id&gt; - Отклонить, предмет вернется в инвентарь`

func (b *Bot) handleStats(ctx context.Context) string {
	stats, err := b.deps.Platform.Stats(ctx)
	if err != nil {
		return fmt.Sprintf("Ошибка: %v", err)
	}
	return statsText(stats)
}

func statsText(s *service.PlatformStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<b>Статистика платформы</b>

<b>Пользователи:</b>
- Всего: %d
- Активных сегодня: %d
- Новых сегодня: %d

<b>Кейсы:</b>
- Открыто всего: %d
- Открыто сегодня: %d

<b>Экономика:</b>
- Звезд на балансах: %d
- Пополнено звездами: %d
- Пополнено TON: %s
- Ожидает вывода: %d`,
		s.TotalUsers, s.ActiveUsersToday, s.NewUsersToday,
		s.CasesOpenedTotal, s.CasesOpenedToday,
		s.StarsInCirculation, s.DepositedStars, s.DepositedTON.StringFixed(2), s.PendingWithdrawals)

	if len(s.Today) > 0 {
		sb.WriteString("\n\n<b>Транзакции за сегодня:</b>\n")
		for _, row := range s.Today {
			fmt.Fprintf(&sb, "- %s / %s: %d\n", row.Type, row.Status, row.Count)
		}
	}
	return sb.String()
}

func (b *Bot) handleUser(ctx context.Context, args string) string {
	if strings.TrimSpace(args) == "" {
		return "Использование: /user &lt;@username|tg_id|#id&gt;"
	}
	u, err := b.deps.Platform.FindUser(ctx, args)
	if err != nil {
		return fmt.Sprintf("Пользователь не найден: %s", html.EscapeString(err.Error()))
	}

	return fmt.Sprintf(`<b>Информация о пользователе</b>

- ID: %d
- Telegram ID: %d
- Username: @%s
- Имя: %s
- Баланс: %d ⭐
- Открыто кейсов: %d
- Потрачено: %d ⭐
- Заработано: %d ⭐
- Реферальный код: <code>%s</code>
- Регистрация: %s`,
		u.ID, u.TelegramID, html.EscapeString(u.Username), html.EscapeString(u.FirstName),
		u.BalanceStars, u.TotalCasesOpened, u.TotalSpentStars, u.TotalEarnedStars,
		u.ReferralCode, u.CreatedAt.Format("02.01.2006 15:04"))
}

func (b *Bot) handleTop(ctx context.Context, args string) string {
	limit := 10
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 && n <= 50 {
		limit = n
	}

	users, err := b.deps.Platform.TopUsers(ctx, limit)
	if err != nil {
		return fmt.Sprintf("Ошибка: %v", err)
	}
	if len(users) == 0 {
		return "Пользователи не найдены"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Топ %d по открытым кейсам</b>\n\n", limit)
	for i, u := range users {
		name := u.Username
		if name == "" {
			name = u.FirstName
		}
		fmt.Fprintf(&sb, "%d. @%s - %d кейсов, %d ⭐\n", i+1, html.EscapeString(name), u.TotalCasesOpened, u.BalanceStars)
	}
	return sb.String()
}

func (b *Bot) handleWithdrawals(ctx context.Context) string {
	list, err := b.deps.Withdrawals.PendingWithdrawals(ctx, 20)
	if err != nil {
		return fmt.Sprintf("Ошибка: %v", err)
	}
	if len(list) == 0 {
		return "Нет ожидающих выводов"
	}

	var sb strings.Builder
	sb.WriteString("<b>Ожидающие выводы</b>\n\n")
	for _, t := range list {
		fmt.Fprintf(&sb, "#%d | user %d | %s ⭐\n", t.ID, t.UserID, t.Amount.String())
		if t.Description != "" {
			fmt.Fprintf(&sb, "%s\n", html.EscapeString(t.Description))
		}
		if contact, _ := t.ExtraData["contact_info"].(string); contact != "" {
			fmt.Fprintf(&sb, "Контакт: %s\n", html.EscapeString(contact))
		}
		fmt.Fprintf(&sb, "%s\n\n", t.CreatedAt.Format("02.01.2006 15:04"))
	}
	sb.WriteString("/done &lt;id&gt; - выполнено\n/reject &lt;id&gt; - отклонить")
	return sb.String()
}

func (b *Bot) handleResolve(ctx context.Context, adminID int64, args string, approve bool) string {
	usage := "Использование: /done &lt;id&gt;"
	if !approve {
		usage = "Использование: /reject &lt;id&gt;"
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return usage
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(fields[0], "#"), 10, 64)
	if err != nil {
		return "Неверный ID вывода"
	}

	if _, err := b.deps.Withdrawals.ResolveWithdrawal(ctx, id, adminID, approve); err != nil {
		return fmt.Sprintf("Ошибка: %s", html.EscapeString(err.Error()))
	}
	if approve {
		return fmt.Sprintf("Вывод #%d отмечен выполненным", id)
	}
	return fmt.Sprintf("Вывод #%d отклонён. Предмет возвращён пользователю.", id)
}

func (b *Bot) handleWallet(ctx context.Context) string {
	if b.deps.Wallet == nil {
		return "Кошелек не настроен"
	}
	bal, err := b.deps.Wallet.WalletBalance(ctx)
	if err != nil {
		return fmt.Sprintf("Ошибка: %v", err)
	}
	return fmt.Sprintf("<b>Баланс кошелька:</b> %s TON", bal.StringFixed(4))
}

func withdrawalNoticeText(n service.WithdrawalNotice) string {
	username := n.User.Username
	if username == "" {
		username = fmt.Sprintf("id:%d", n.User.ID)
	}
	contact := n.ContactInfo
	if contact == "" {
		contact = "не указан"
	}
	return fmt.Sprintf(`<b>Новый запрос на вывод!</b>

Пользователь: @%s (TG: %d)
Предмет: %s (%s)
Стоимость: %d ⭐
Контакт: %s
Создан: %s

ID: #%d

/done %d - выполнено
/reject %d - отклонить`,
		html.EscapeString(username), n.User.TelegramID,
		html.EscapeString(n.Item.ItemName), n.Item.Rarity, n.Item.ItemStars,
		html.EscapeString(contact), n.RequestedAt.Format("02.01.2006 15:04"),
		n.TransactionID, n.TransactionID, n.TransactionID)
}

