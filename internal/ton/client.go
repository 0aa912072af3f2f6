package ton

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crazygift/internal/logger"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

var ErrAPI = errors.New("toncenter api error")

// Client проверяет депозиты через toncenter v2
type Client struct {
	http   *resty.Client
	apiKey string
	wallet string
}

func NewClient(network Network, baseURL, apiKey, wallet string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = TonCenterMainnet
		if network == NetworkTestnet {
			baseURL = TonCenterTestnet
		}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:   resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")).SetTimeout(timeout),
		apiKey: apiKey,
		wallet: wallet,
	}
}

type transactionID struct {
	Lt   string `json:"lt"`
	Hash string `json:"hash"`
}

type message struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Value       string `json:"value"`
	Message     string `json:"message"`
}

// Transaction транзакция кошелька в формате toncenter
type Transaction struct {
	TransactionID transactionID `json:"transaction_id"`
	Utime         int64         `json:"utime"`
	InMsg         *message      `json:"in_msg"`
	OutMsgs       []message     `json:"out_msgs"`
}

type transactionsResponse struct {
	OK     bool          `json:"ok"`
	Error  string        `json:"error"`
	Result []Transaction `json:"result"`
}

type balanceResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result string `json:"result"`
}

// GetTransactions последние транзакции кошелька платформы
func (c *Client) GetTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	var out transactionsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.params(map[string]string{"address": c.wallet, "limit": strconv.Itoa(limit)})).
		SetResult(&out).
		SetError(&out).
		Get("/getTransactions")
	if err != nil {
		return nil, fmt.Errorf("getTransactions: %w", err)
	}
	if resp.IsError() || !out.OK {
		return nil, fmt.Errorf("%w: %s %s", ErrAPI, resp.Status(), out.Error)
	}
	return out.Result, nil
}

// WalletBalance баланс кошелька платформы в TON
func (c *Client) WalletBalance(ctx context.Context) (decimal.Decimal, error) {
	var out balanceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.params(map[string]string{"address": c.wallet})).
		SetResult(&out).
		SetError(&out).
		Get("/getAddressBalance")
	if err != nil {
		return decimal.Zero, fmt.Errorf("getAddressBalance: %w", err)
	}
	if resp.IsError() || !out.OK {
		return decimal.Zero, fmt.Errorf("%w: %s %s", ErrAPI, resp.Status(), out.Error)
	}
	nano, err := decimal.NewFromString(out.Result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad balance %q: %w", out.Result, err)
	}
	return FromNano(nano), nil
}

func (c *Client) params(p map[string]string) map[string]string {
	if c.apiKey != "" {
		p["api_key"] = c.apiKey
	}
	return p
}

// Verify ищет транзакцию по хэшу среди последних и сверяет сумму, memo и успешность.
// Ненайденная транзакция дает false без ошибки
func (c *Client) Verify(ctx context.Context, txHash string, expected decimal.Decimal, memo string) (bool, error) {
	txs, err := c.GetTransactions(ctx, LookupLimit)
	if err != nil {
		return false, err
	}

	log := logger.With("component", "toncenter", "tx_hash", txHash)
	for _, tx := range txs {
		if tx.TransactionID.Hash != txHash {
			continue
		}
		if matchTransaction(tx, expected, memo, log.Warn) {
			log.Info("транзакция подтверждена")
			return true, nil
		}
	}

	log.Warn("транзакция не найдена или не прошла проверку")
	return false, nil
}

func matchTransaction(tx Transaction, expected decimal.Decimal, memo string, warn func(string, ...any)) bool {
	if tx.InMsg == nil {
		return false
	}
	nano, err := decimal.NewFromString(tx.InMsg.Value)
	if err != nil {
		return false
	}
	if got := FromNano(nano); !AmountMatches(got, expected) {
		warn("сумма не совпадает", "expected", expected.String(), "got", got.String())
		return false
	}
	if memo != "" && !strings.Contains(tx.InMsg.Message, memo) {
		warn("memo не совпадает", "expected", memo, "got", tx.InMsg.Message)
		return false
	}
	// toncenter отдает out_msgs только для обработанных транзакций
	return tx.OutMsgs != nil
}
