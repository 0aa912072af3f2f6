package ton

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"crazygift/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// LiteVerifier проверяет депозиты напрямую через лайтсерверы
type LiteVerifier struct {
	network Network
	wallet  *address.Address

	mu     sync.Mutex
	client ton.APIClientWrapped
}

func NewLiteVerifier(network Network, walletAddress string) (*LiteVerifier, error) {
	addr, err := address.ParseAddr(walletAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address: %w", err)
	}
	return &LiteVerifier{network: network, wallet: addr}, nil
}

// подключение откладывается до первой проверки
func (v *LiteVerifier) connect(ctx context.Context) (ton.APIClientWrapped, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client != nil {
		return v.client, nil
	}

	configURL := LiteConfigMainnet
	if v.network == NetworkTestnet {
		configURL = LiteConfigTestnet
	}
	pool := liteclient.NewConnectionPool()
	if err := pool.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
		return nil, fmt.Errorf("failed to connect to lite servers: %w", err)
	}
	v.client = ton.NewAPIClient(pool).WithRetry()
	return v.client, nil
}

type incoming struct {
	hash    []byte
	amount  *big.Int
	comment string
	bounced bool
}

func (v *LiteVerifier) Verify(ctx context.Context, txHash string, expected decimal.Decimal, memo string) (bool, error) {
	api, err := v.connect(ctx)
	if err != nil {
		return false, err
	}

	master, err := api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return false, fmt.Errorf("masterchain info: %w", err)
	}
	account, err := api.GetAccount(ctx, master, v.wallet)
	if err != nil {
		return false, fmt.Errorf("get account: %w", err)
	}
	if !account.IsActive {
		return false, nil
	}

	txs, err := api.ListTransactions(ctx, v.wallet, LookupLimit, account.LastTxLT, account.LastTxHash)
	if err != nil {
		return false, fmt.Errorf("list transactions: %w", err)
	}

	log := logger.With("component", "liteclient", "tx_hash", txHash)
	for _, tx := range txs {
		in, ok := parseIncoming(tx)
		if !ok || !hashMatches(in.hash, txHash) {
			continue
		}
		got := FromNano(decimal.NewFromBigInt(in.amount, 0))
		if !AmountMatches(got, expected) {
			log.Warn("сумма не совпадает", "expected", expected.String(), "got", got.String())
			return false, nil
		}
		if memo != "" && !strings.Contains(in.comment, memo) {
			log.Warn("memo не совпадает", "expected", memo, "got", in.comment)
			return false, nil
		}
		return !in.bounced, nil
	}
	return false, nil
}

// AsInternal паникует на внешних сообщениях
func parseIncoming(tx *tlb.Transaction) (in incoming, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	if tx == nil || tx.IO.In == nil {
		return incoming{}, false
	}
	msg := tx.IO.In.AsInternal()
	if msg == nil {
		return incoming{}, false
	}
	return incoming{
		hash:    tx.Hash,
		amount:  msg.Amount.Nano(),
		comment: extractComment(msg.Body),
		bounced: msg.Bounced,
	}, true
}

// хэш приходит от кошелька в base64 или hex
func hashMatches(hash []byte, want string) bool {
	want = strings.TrimSpace(want)
	return base64.StdEncoding.EncodeToString(hash) == want ||
		base64.URLEncoding.EncodeToString(hash) == want ||
		strings.EqualFold(hex.EncodeToString(hash), want)
}

// текстовый комментарий: op = 0 и snake строка
func extractComment(body *cell.Cell) string {
	if body == nil {
		return ""
	}
	slice := body.BeginParse()
	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}
	data, err := slice.LoadBinarySnake()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ValidateAddress проверяет адрес кошелька в любом формате
func ValidateAddress(addr string) error {
	if _, err := address.ParseAddr(addr); err == nil {
		return nil
	}
	if _, err := address.ParseRawAddr(addr); err != nil {
		return fmt.Errorf("invalid TON address %q: %w", addr, err)
	}
	return nil
}
