package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crazygift/internal/db/dbtest"
	"crazygift/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const premiumItems = `[
	{"id":1,"name":"Сердце","value":"1.00","stars":100,"rarity":"common","weight":90,"image":"heart.png"},
	{"id":2,"name":"Кубок","value":"50.00","stars":5000,"rarity":"legendary","weight":10,"image":"cup.png"}
]`

func seedUser(t *testing.T, pool *pgxpool.Pool, telegramID, balance int64) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (telegram_id, first_name, balance_stars, referral_code)
		VALUES ($1, 'Тест', $2, $3) RETURNING id
	`, telegramID, balance, GenerateReferralCode(telegramID)).Scan(&id)
	if err != nil {
		t.Fatalf("создание пользователя: %v", err)
	}
	return id
}

func seedCase(t *testing.T, pool *pgxpool.Pool, price int64, items string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO cases (name, price_stars, items, active) VALUES ('Премиум', $1, $2, TRUE) RETURNING id
	`, price, items).Scan(&id)
	if err != nil {
		t.Fatalf("создание кейса: %v", err)
	}
	return id
}

func seedItem(t *testing.T, pool *pgxpool.Pool, userID, stars int64) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO inventory (user_id, item_name, item_value, item_stars, rarity, case_name)
		VALUES ($1, 'Кубок', 10, $2, 'epic', 'Премиум') RETURNING id
	`, userID, stars).Scan(&id)
	if err != nil {
		t.Fatalf("создание предмета: %v", err)
	}
	return id
}

func balanceOf(t *testing.T, pool *pgxpool.Pool, userID int64) int64 {
	t.Helper()
	b, err := NewBalanceService(pool).GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func countRows(t *testing.T, pool *pgxpool.Pool, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func newCaseService(pool *pgxpool.Pool) *CaseService {
	return NewCaseService(pool, NewBalanceService(pool), NewAuditService(pool), nil)
}

func TestOpenCase_DebitsAndGrantsItem(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 1001, 500)
	caseID := seedCase(t, pool, 150, premiumItems)

	res, err := newCaseService(pool).OpenCase(context.Background(), caseID, userID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.NewBalance != 350 {
		t.Fatalf("ожидался успех и баланс 350, получили %+v", res)
	}
	if s := res.Item.ItemStars; s != 100 && s != 5000 {
		t.Fatalf("приз не из таблицы: %d", s)
	}
	if balanceOf(t, pool, userID) != 350 {
		t.Fatal("баланс в базе не совпадает")
	}
	if n := countRows(t, pool, `SELECT COUNT(*) FROM inventory WHERE user_id = $1`, userID); n != 1 {
		t.Fatalf("ожидался один предмет, получили %d", n)
	}
	if n := countRows(t, pool, `SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND type = 'case_purchase'`, userID); n != 1 {
		t.Fatalf("ожидалась одна покупка, получили %d", n)
	}
	if n := countRows(t, pool, `SELECT total_opened FROM cases WHERE id = $1`, caseID); n != 1 {
		t.Fatalf("счетчик кейса не увеличен: %d", n)
	}
}

func TestOpenCase_InsufficientFundsChangesNothing(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 1002, 100)
	caseID := seedCase(t, pool, 150, premiumItems)

	res, err := newCaseService(pool).OpenCase(context.Background(), caseID, userID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.NewBalance != 100 {
		t.Fatalf("ожидался отказ с балансом 100, получили %+v", res)
	}
	if balanceOf(t, pool, userID) != 100 {
		t.Fatal("баланс изменился")
	}
	if n := countRows(t, pool, `SELECT COUNT(*) FROM inventory WHERE user_id = $1`, userID); n != 0 {
		t.Fatalf("предмет создан при нехватке средств")
	}
	if n := countRows(t, pool, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID); n != 0 {
		t.Fatalf("транзакция создана при нехватке средств")
	}
}

func TestOpenCase_EmptyPrizeTable(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 1003, 500)
	caseID := seedCase(t, pool, 150, `[]`)

	_, err := newCaseService(pool).OpenCase(context.Background(), caseID, userID)
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("ожидалась ErrInternal, получили %v", err)
	}
	if balanceOf(t, pool, userID) != 500 {
		t.Fatal("баланс списан для пустого кейса")
	}
}

func TestOpenCase_UnknownCase(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 1004, 500)

	if _, err := newCaseService(pool).OpenCase(context.Background(), 999, userID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получили %v", err)
	}
}

func TestGetCase_InactiveIsNotFound(t *testing.T) {
	pool := dbtest.Pool(t)
	caseID := seedCase(t, pool, 150, premiumItems)
	if _, err := pool.Exec(context.Background(), `UPDATE cases SET active = FALSE WHERE id = $1`, caseID); err != nil {
		t.Fatal(err)
	}

	svc := newCaseService(pool)
	if _, err := svc.GetCase(context.Background(), caseID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound для неактивного кейса, получили %v", err)
	}
	if _, err := svc.GetCase(context.Background(), 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получили %v", err)
	}
}

func TestOpenCase_ConcurrentNeverOverdraws(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 1005, 1000)
	caseID := seedCase(t, pool, 150, premiumItems)
	svc := newCaseService(pool)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.OpenCase(context.Background(), caseID, userID)
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			if res.Success {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 6 {
		t.Fatalf("ожидалось 6 успешных открытий, получили %d", wins.Load())
	}
	if b := balanceOf(t, pool, userID); b != 100 {
		t.Fatalf("ожидался остаток 100, получили %d", b)
	}
}

func newInventoryService(pool *pgxpool.Pool) *InventoryService {
	return NewInventoryService(pool, NewBalanceService(pool), NewAuditService(pool), nil)
}

func TestSellItem_Twice(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 2001, 0)
	itemID := seedItem(t, pool, userID, 300)
	svc := newInventoryService(pool)

	res, err := svc.SellItem(context.Background(), itemID, userID)
	if err != nil {
		t.Fatal(err)
	}
	if res.NewBalance != 300 || res.StarsEarned != 300 {
		t.Fatalf("неверный результат продажи: %+v", res)
	}

	if _, err := svc.SellItem(context.Background(), itemID, userID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("повторная продажа: ожидалась ErrNotFound, получили %v", err)
	}
	if balanceOf(t, pool, userID) != 300 {
		t.Fatal("повторная продажа начислила звезды")
	}
}

func TestSellItem_ForeignItem(t *testing.T) {
	pool := dbtest.Pool(t)
	owner := seedUser(t, pool, 2002, 0)
	thief := seedUser(t, pool, 2003, 0)
	itemID := seedItem(t, pool, owner, 300)

	if _, err := newInventoryService(pool).SellItem(context.Background(), itemID, thief); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("чужой предмет: ожидалась ErrNotFound, получили %v", err)
	}
}

func TestRequestWithdrawal_Threshold(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 3001, 0)
	cheap := seedItem(t, pool, userID, domain.MinWithdrawalStars-1)
	rich := seedItem(t, pool, userID, domain.MinWithdrawalStars)
	svc := newInventoryService(pool)
	ctx := context.Background()

	if _, err := svc.RequestWithdrawal(ctx, cheap, userID, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидалась ErrValidation, получили %v", err)
	}

	res, err := svc.RequestWithdrawal(ctx, rich, userID, "@me")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.TransactionID == 0 {
		t.Fatalf("неверный результат вывода: %+v", res)
	}

	items, err := svc.ListInventory(ctx, userID, domain.InventoryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != cheap {
		t.Fatalf("в инвентаре должен остаться только дешевый предмет: %+v", items)
	}
	hist, err := svc.Withdrawals(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist.Items) != 1 || hist.Items[0].ID != rich {
		t.Fatalf("выведенный предмет должен быть в истории выводов: %+v", hist)
	}

	// повторный вывод замороженного предмета
	if _, err := svc.RequestWithdrawal(ctx, rich, userID, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получили %v", err)
	}

	// отказ возвращает предмет
	if _, err := svc.ResolveWithdrawal(ctx, res.TransactionID, 1, false); err != nil {
		t.Fatal(err)
	}
	items, _ = svc.ListInventory(ctx, userID, domain.InventoryFilter{})
	if len(items) != 2 {
		t.Fatalf("после отказа предмет должен вернуться, получили %d", len(items))
	}
	if _, err := svc.ResolveWithdrawal(ctx, res.TransactionID, 1, true); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("повторное решение: ожидалась ErrConflict, получили %v", err)
	}
}

func TestResolveWithdrawal_RejectAfterItemDeleted(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 3002, 0)
	itemID := seedItem(t, pool, userID, domain.MinWithdrawalStars)
	svc := newInventoryService(pool)
	ctx := context.Background()

	res, err := svc.RequestWithdrawal(ctx, itemID, userID, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AdminDeleteItem(ctx, itemID, userID); err != nil {
		t.Fatal(err)
	}

	got, err := svc.ResolveWithdrawal(ctx, res.TransactionID, 1, false)
	if err != nil {
		t.Fatalf("отказ без предмета должен пройти: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("ожидался статус failed, получили %s", got.Status)
	}
	if n := countRows(t, pool, `SELECT COUNT(*) FROM inventory WHERE user_id = $1`, userID); n != 0 {
		t.Fatalf("удаленный предмет не должен воскреснуть: %d", n)
	}
}

type fakeDeposits struct{}

func (fakeDeposits) CreateDeposit(userID int64, amount decimal.Decimal) domain.DepositDescriptor {
	return domain.DepositDescriptor{}
}

func (fakeDeposits) Memo(userID int64, amount decimal.Decimal) string {
	return "memo"
}

type fakeVerifier struct {
	ok    bool
	err   error
	calls atomic.Int64
}

func (v *fakeVerifier) Verify(_ context.Context, _ string, _ decimal.Decimal, _ string) (bool, error) {
	v.calls.Add(1)
	return v.ok, v.err
}

// выполняет сверку сразу, без очереди
type syncJobs struct{ r *Reconciler }

func (s syncJobs) Submit(_ context.Context, job ReconcileJob) { s.r.Process(job) }

type fakeInvoices struct{ err error }

func (f fakeInvoices) CreateInvoice(context.Context, domain.InvoiceRequest) (string, error) {
	return "https://t.me/invoice/test", f.err
}

func newPaymentStack(pool *pgxpool.Pool, v Verifier) *PaymentService {
	balance := NewBalanceService(pool)
	rec := NewReconciler(pool, balance, NewAuditService(pool), v, fakeDeposits{}, nil, ReconcilerConfig{Timeout: 5 * time.Second})
	return NewPaymentService(pool, fakeDeposits{}, fakeInvoices{}, syncJobs{rec})
}

func TestTonWebhook_DuplicateCreditsOnce(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 4001, 0)
	v := &fakeVerifier{ok: true}
	svc := newPaymentStack(pool, v)
	ctx := context.Background()

	dep, err := svc.CreateTonDeposit(ctx, userID, decimal.RequireFromString("2.5"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleTonWebhook(ctx, dep.TransactionID, "hash-1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleTonWebhook(ctx, dep.TransactionID, "hash-1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("повторный webhook: ожидалась ErrConflict, получили %v", err)
	}

	if b := balanceOf(t, pool, userID); b != 250 {
		t.Fatalf("ожидалось 250 звезд, получили %d", b)
	}
	if v.calls.Load() != 1 {
		t.Fatalf("проверка в сети должна быть одна, получили %d", v.calls.Load())
	}
	got, err := svc.GetTransaction(ctx, dep.TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("депозит должен быть completed: %+v", got)
	}
}

func TestTonWebhook_HashReuseRejected(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 4002, 0)
	svc := newPaymentStack(pool, &fakeVerifier{ok: true})
	ctx := context.Background()

	first, _ := svc.CreateTonDeposit(ctx, userID, decimal.NewFromInt(1))
	second, _ := svc.CreateTonDeposit(ctx, userID, decimal.NewFromInt(1))

	if err := svc.HandleTonWebhook(ctx, first.TransactionID, "same-hash"); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleTonWebhook(ctx, second.TransactionID, "same-hash"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("хэш использован дважды: ожидалась ErrConflict, получили %v", err)
	}
	if b := balanceOf(t, pool, userID); b != 100 {
		t.Fatalf("ожидалось 100 звезд, получили %d", b)
	}
}

func TestTonWebhook_VerifierErrorFails(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 4003, 0)
	svc := newPaymentStack(pool, &fakeVerifier{err: errors.New("toncenter timeout")})
	ctx := context.Background()

	dep, _ := svc.CreateTonDeposit(ctx, userID, decimal.NewFromInt(1))
	if err := svc.HandleTonWebhook(ctx, dep.TransactionID, "hash-x"); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.GetTransaction(ctx, dep.TransactionID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("ошибка проверки должна давать failed, получили %s", got.Status)
	}
	if balanceOf(t, pool, userID) != 0 {
		t.Fatal("начисление после ошибки проверки")
	}
}

func TestWebhook_UnknownTransaction(t *testing.T) {
	pool := dbtest.Pool(t)
	svc := newPaymentStack(pool, &fakeVerifier{ok: true})

	if err := svc.HandleTonWebhook(context.Background(), 12345, "h"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получили %v", err)
	}
}

func TestStarsWebhook_DuplicateCreditsOnce(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 5001, 10)
	svc := newPaymentStack(pool, &fakeVerifier{})
	ctx := context.Background()

	inv, err := svc.CreateStarsInvoice(ctx, userID, 500)
	if err != nil {
		t.Fatal(err)
	}
	if !svc.CanAcceptStarsPayment(ctx, inv.TransactionID, userID, 500) {
		t.Fatal("pending счет должен приниматься")
	}
	if err := svc.HandleStarsWebhook(ctx, inv.TransactionID, "charge-1", domain.StarsStatusPaid); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleStarsWebhook(ctx, inv.TransactionID, "charge-1", domain.StarsStatusPaid); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("ожидалась ErrConflict, получили %v", err)
	}
	if b := balanceOf(t, pool, userID); b != 510 {
		t.Fatalf("ожидалось 510 звезд, получили %d", b)
	}
	if svc.CanAcceptStarsPayment(ctx, inv.TransactionID, userID, 500) {
		t.Fatal("оплаченный счет не должен приниматься повторно")
	}
}

func TestCreateStarsInvoice_GatewayFailure(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 5002, 0)
	svc := NewPaymentService(pool, fakeDeposits{}, fakeInvoices{err: errors.New("bot api 502")}, nil)

	if _, err := svc.CreateStarsInvoice(context.Background(), userID, 100); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("ожидалась ErrUpstreamUnavailable, получили %v", err)
	}
	n := countRows(t, pool, `SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND status = 'failed'`, userID)
	if n != 1 {
		t.Fatalf("счет должен быть помечен failed, получили %d", n)
	}
}

func TestSweeper_FailsStuckDeposits(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 6001, 0)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `
		INSERT INTO transactions (user_id, type, amount, currency, status, created_at, processing_at)
		VALUES ($1, 'deposit_ton', 1, 'TON', 'processing', now() - interval '1 hour', now() - interval '1 hour'),
		       ($1, 'deposit_ton', 1, 'TON', 'processing', now(), now())
	`, userID); err != nil {
		t.Fatal(err)
	}

	n, err := NewSweeper(pool, nil, 15*time.Minute).Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("ожидался один зависший депозит, получили %d", n)
	}
	if c := countRows(t, pool, `SELECT COUNT(*) FROM transactions WHERE status = 'processing'`); c != 1 {
		t.Fatalf("свежий депозит не должен трогаться, processing: %d", c)
	}
}

// задача принята, но сверка еще не началась
type heldJobs struct{ jobs *[]ReconcileJob }

func (h heldJobs) Submit(_ context.Context, job ReconcileJob) { *h.jobs = append(*h.jobs, job) }

func TestSweeper_CountsFromClaimNotCreation(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 6002, 0)
	ctx := context.Background()

	var held []ReconcileJob
	svc := NewPaymentService(pool, fakeDeposits{}, fakeInvoices{}, heldJobs{&held})

	dep, err := svc.CreateTonDeposit(ctx, userID, decimal.NewFromInt(1))
	if err != nil {
		t.Fatal(err)
	}
	// счет создан час назад, оплачен только сейчас
	if _, err := pool.Exec(ctx, `UPDATE transactions SET created_at = now() - interval '1 hour' WHERE id = $1`, dep.TransactionID); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleTonWebhook(ctx, dep.TransactionID, "hash-late"); err != nil {
		t.Fatal(err)
	}
	if len(held) != 1 {
		t.Fatalf("ожидалась одна задача сверки, получили %d", len(held))
	}

	n, err := NewSweeper(pool, nil, 15*time.Minute).Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("только что захваченный депозит не должен считаться зависшим, помечено %d", n)
	}
	got, _ := svc.GetTransaction(ctx, dep.TransactionID)
	if got.Status != domain.StatusProcessing {
		t.Fatalf("депозит должен остаться processing, получили %s", got.Status)
	}
}

func TestTonWebhook_VerificationRejected(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 4004, 30)
	v := &fakeVerifier{ok: false}
	svc := newPaymentStack(pool, v)
	ctx := context.Background()

	dep, err := svc.CreateTonDeposit(ctx, userID, decimal.NewFromInt(3))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleTonWebhook(ctx, dep.TransactionID, "hash-wrong"); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.GetTransaction(ctx, dep.TransactionID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("непрошедший проверку перевод должен давать failed, получили %s", got.Status)
	}
	if b := balanceOf(t, pool, userID); b != 30 {
		t.Fatalf("баланс не должен меняться, получили %d", b)
	}
	if v.calls.Load() != 1 {
		t.Fatalf("ожидалась одна проверка, получили %d", v.calls.Load())
	}
	if err := svc.HandleTonWebhook(ctx, dep.TransactionID, "hash-wrong"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("повтор после отказа: ожидалась ErrConflict, получили %v", err)
	}
}

func TestStarsWebhook_NotPaidFails(t *testing.T) {
	pool := dbtest.Pool(t)
	userID := seedUser(t, pool, 5003, 10)
	svc := newPaymentStack(pool, &fakeVerifier{})
	ctx := context.Background()

	inv, err := svc.CreateStarsInvoice(ctx, userID, 200)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleStarsWebhook(ctx, inv.TransactionID, "charge-c", "canceled"); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.GetTransaction(ctx, inv.TransactionID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("неоплаченный счет должен давать failed, получили %s", got.Status)
	}
	if b := balanceOf(t, pool, userID); b != 10 {
		t.Fatalf("баланс не должен меняться, получили %d", b)
	}
	if err := svc.HandleStarsWebhook(ctx, inv.TransactionID, "charge-c", domain.StarsStatusPaid); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("повторная доставка: ожидалась ErrConflict, получили %v", err)
	}
	if b := balanceOf(t, pool, userID); b != 10 {
		t.Fatalf("повторная доставка не должна начислять, получили %d", b)
	}
}
