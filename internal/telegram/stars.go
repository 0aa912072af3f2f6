package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"crazygift/internal/domain"
	"crazygift/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrBotDisabled бот не настроен, счета создавать нечем
var ErrBotDisabled = errors.New("telegram bot is not configured")

// CurrencyStars код валюты Telegram Stars
const CurrencyStars = "XTR"

// Requester часть *tgbotapi.BotAPI, нужная для вызова методов Bot API
type Requester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

type price struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// StarsGateway создает ссылки на оплату звездами
type StarsGateway struct {
	api Requester
}

func NewStarsGateway(api Requester) *StarsGateway {
	return &StarsGateway{api: api}
}

func (g *StarsGateway) CreateInvoice(ctx context.Context, req domain.InvoiceRequest) (string, error) {
	if g.api == nil {
		return "", ErrBotDisabled
	}
	payload, err := NewInvoicePayload(req.TransactionID, req.UserID, req.StarsAmount).Encode()
	if err != nil {
		return "", err
	}
	prices, err := json.Marshal([]price{{Label: formatStars(req.StarsAmount) + " звёзд", Amount: req.StarsAmount}})
	if err != nil {
		return "", err
	}

	params := tgbotapi.Params{
		"title":       "Пополнение баланса",
		"description": fmt.Sprintf("Покупка %s звёзд в CrazyGift", formatStars(req.StarsAmount)),
		"payload":     payload,
		"currency":    CurrencyStars,
		"prices":      string(prices),
	}

	// tgbotapi не принимает context, поэтому проверяем отмену до запроса
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := g.api.MakeRequest("createInvoiceLink", params)
	if err != nil {
		return "", fmt.Errorf("createInvoiceLink: %w", err)
	}
	if !resp.Ok {
		return "", fmt.Errorf("createInvoiceLink: %s", resp.Description)
	}

	var link string
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("createInvoiceLink result: %w", err)
	}
	logger.WithContext(ctx).Info("создан счет Stars", "transaction_id", req.TransactionID, "stars", req.StarsAmount)
	return link, nil
}

// 12345 -> 12,345
func formatStars(n int64) string {
	s := strconv.FormatInt(n, 10)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
