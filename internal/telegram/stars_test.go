package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"crazygift/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeAPI struct {
	endpoint string
	params   tgbotapi.Params
	err      error
}

func (f *fakeAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.endpoint = endpoint
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &tgbotapi.APIResponse{Ok: true, Result: json.RawMessage(`"https://t.me/$invoice"`)}, nil
}

func TestStarsGateway_CreateInvoice(t *testing.T) {
	api := &fakeAPI{}
	g := NewStarsGateway(api)

	link, err := g.CreateInvoice(context.Background(), domain.InvoiceRequest{TransactionID: 9, UserID: 3, StarsAmount: 1500})
	if err != nil {
		t.Fatal(err)
	}
	if link != "https://t.me/$invoice" {
		t.Fatalf("неверная ссылка: %s", link)
	}
	if api.endpoint != "createInvoiceLink" || api.params["currency"] != "XTR" {
		t.Fatalf("неверный запрос: %s %v", api.endpoint, api.params)
	}
	if !strings.Contains(api.params["prices"], `"amount":1500`) {
		t.Fatalf("в prices нет суммы: %s", api.params["prices"])
	}

	p, err := ParseInvoicePayload(api.params["payload"])
	if err != nil {
		t.Fatal(err)
	}
	if p.TransactionID != 9 || p.UserID != 3 || p.StarsAmount != 1500 || p.Nonce == "" {
		t.Fatalf("неверный payload: %+v", p)
	}
}

func TestStarsGateway_Error(t *testing.T) {
	g := NewStarsGateway(&fakeAPI{err: errors.New("Bad Request")})

	if _, err := g.CreateInvoice(context.Background(), domain.InvoiceRequest{TransactionID: 1, UserID: 1, StarsAmount: 1}); err == nil {
		t.Fatal("ошибка Bot API должна возвращаться")
	}
}

func TestParseInvoicePayload_Rejects(t *testing.T) {
	for _, raw := range []string{"", "{}", `{"type":"other","transaction_id":1,"user_id":1,"stars_amount":1}`, "not json"} {
		if _, err := ParseInvoicePayload(raw); !errors.Is(err, ErrBadPayload) {
			t.Errorf("payload %q: ожидалась ErrBadPayload, получили %v", raw, err)
		}
	}
}

func TestFormatStars(t *testing.T) {
	if got := formatStars(100000); got != "100,000" {
		t.Fatalf("ожидали 100,000, получили %s", got)
	}
}

func TestStarsGateway_Disabled(t *testing.T) {
	_, err := NewStarsGateway(nil).CreateInvoice(context.Background(), domain.InvoiceRequest{TransactionID: 1, UserID: 1, StarsAmount: 10})
	if !errors.Is(err, ErrBotDisabled) {
		t.Fatalf("expected ErrBotDisabled, got %v", err)
	}
}
