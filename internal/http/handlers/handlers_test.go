package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"crazygift/internal/domain"
	"crazygift/internal/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCases struct {
	Cases
	open *domain.OpenResult
	err  error
}

func (f *fakeCases) OpenCase(_ context.Context, caseID, userID int64) (*domain.OpenResult, error) {
	return f.open, f.err
}

func (f *fakeCases) GetCase(_ context.Context, caseID int64) (*domain.CaseDetail, error) {
	if caseID == 1 {
		return &domain.CaseDetail{Case: domain.Case{ID: 1, Name: "Starter"}}, nil
	}
	return nil, fmt.Errorf("%w: кейс не найден", domain.ErrNotFound)
}

type fakePayments struct {
	Payments
	tx        *domain.Transaction
	hookErr   error
	invoiceFn func(stars int64) (*domain.StarsInvoiceResult, error)
	hooks     int
}

func (f *fakePayments) GetTransaction(context.Context, int64) (*domain.Transaction, error) {
	if f.tx == nil {
		return nil, fmt.Errorf("%w: Transaction not found", domain.ErrNotFound)
	}
	return f.tx, nil
}

func (f *fakePayments) HandleTonWebhook(context.Context, int64, string) error {
	f.hooks++
	return f.hookErr
}

func (f *fakePayments) CreateStarsInvoice(_ context.Context, _ int64, stars int64) (*domain.StarsInvoiceResult, error) {
	return f.invoiceFn(stars)
}

func (f *fakePayments) CreateTonDeposit(_ context.Context, _ int64, amount decimal.Decimal) (*domain.TonDepositResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: Amount must be positive", domain.ErrValidation)
	}
	return &domain.TonDepositResult{TransactionID: 9}, nil
}

type fakeInventory struct {
	Inventory
	deleted []int64
}

func (f *fakeInventory) AdminDeleteItem(_ context.Context, itemID, userID int64) (*domain.InventoryItem, error) {
	f.deleted = append(f.deleted, itemID, userID)
	return &domain.InventoryItem{ID: itemID, UserID: userID}, nil
}

func (f *fakeInventory) RequestWithdrawal(_ context.Context, itemID, _ int64, contact string) (*domain.WithdrawResult, error) {
	if itemID == 2 {
		return nil, fmt.Errorf("%w: Item value too low for withdrawal", domain.ErrValidation)
	}
	return &domain.WithdrawResult{Success: true, TransactionID: 5, Message: contact}, nil
}

// engine с уже аутентифицированным пользователем 7
func newEngine(register func(r gin.IRoutes)) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, int64(7))
		c.Next()
	})
	register(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело не json: %s", w.Body.String())
	}
	return body.Error
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{fmt.Errorf("%w: кейс не найден", domain.ErrNotFound), http.StatusNotFound, "кейс не найден"},
		{fmt.Errorf("%w: bad amount", domain.ErrValidation), http.StatusBadRequest, "bad amount"},
		{fmt.Errorf("%w: уже обработана", domain.ErrConflict), http.StatusConflict, "уже обработана"},
		{fmt.Errorf("%w: bot api down", domain.ErrUpstreamUnavailable), http.StatusBadGateway, "upstream unavailable"},
		{fmt.Errorf("%w: pq: secret details", domain.ErrInternal), http.StatusInternalServerError, "internal error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		r := gin.New()
		r.GET("/", func(c *gin.Context) { writeError(c, tt.err) })
		w := do(r, http.MethodGet, "/", "")
		if w.Code != tt.code {
			t.Errorf("%v: статус %d, ожидали %d", tt.err, w.Code, tt.code)
		}
		if got := errorBody(t, w); got != tt.msg {
			t.Errorf("%v: сообщение %q, ожидали %q", tt.err, got, tt.msg)
		}
	}
}

func TestOpenCase_InsufficientIsOK(t *testing.T) {
	h := &Handler{Cases: &fakeCases{open: &domain.OpenResult{Success: false, NewBalance: 10, Message: "Недостаточно звёзд"}}}
	r := newEngine(func(r gin.IRoutes) { r.POST("/cases/:id/open", h.OpenCase) })

	w := do(r, http.MethodPost, "/cases/3/open", "")
	if w.Code != http.StatusOK {
		t.Fatalf("статус %d", w.Code)
	}
	var res domain.OpenResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Success || res.NewBalance != 10 {
		t.Fatalf("ответ %+v", res)
	}
}

func TestOpenCase_BadID(t *testing.T) {
	h := &Handler{Cases: &fakeCases{}}
	r := newEngine(func(r gin.IRoutes) { r.POST("/cases/:id/open", h.OpenCase) })

	if w := do(r, http.MethodPost, "/cases/abc/open", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("статус %d", w.Code)
	}
}

func TestOpenCase_Unauthenticated(t *testing.T) {
	h := &Handler{Cases: &fakeCases{}}
	r := gin.New()
	r.POST("/cases/:id/open", h.OpenCase)

	if w := do(r, http.MethodPost, "/cases/1/open", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("статус %d", w.Code)
	}
}

func TestGetCase_NotFound(t *testing.T) {
	h := &Handler{Cases: &fakeCases{}}
	r := newEngine(func(r gin.IRoutes) { r.GET("/cases/:id", h.GetCase) })

	if w := do(r, http.MethodGet, "/cases/1", ""); w.Code != http.StatusOK {
		t.Fatalf("существующий кейс: %d", w.Code)
	}
	w := do(r, http.MethodGet, "/cases/2", "")
	if w.Code != http.StatusNotFound || errorBody(t, w) != "кейс не найден" {
		t.Fatalf("отсутствующий кейс: %d %s", w.Code, w.Body.String())
	}
}

func TestGetTransaction_OwnerOnly(t *testing.T) {
	pay := &fakePayments{tx: &domain.Transaction{ID: 1, UserID: 8}}
	h := &Handler{Payments: pay}
	r := newEngine(func(r gin.IRoutes) { r.GET("/tx/:id", h.GetTransaction) })

	if w := do(r, http.MethodGet, "/tx/1", ""); w.Code != http.StatusNotFound {
		t.Fatalf("чужая транзакция: %d", w.Code)
	}

	pay.tx.UserID = 7
	if w := do(r, http.MethodGet, "/tx/1", ""); w.Code != http.StatusOK {
		t.Fatalf("своя транзакция: %d", w.Code)
	}
}

func TestTonWebhook(t *testing.T) {
	pay := &fakePayments{}
	h := &Handler{Payments: pay}
	r := newEngine(func(r gin.IRoutes) { r.POST("/hook", h.TonWebhook) })

	if w := do(r, http.MethodPost, "/hook", `{"transaction_id":1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("без tx_hash: %d", w.Code)
	}
	if pay.hooks != 0 {
		t.Fatal("сервис вызван для неполного запроса")
	}

	if w := do(r, http.MethodPost, "/hook", `{"transaction_id":1,"tx_hash":"abc"}`); w.Code != http.StatusOK {
		t.Fatalf("первый webhook: %d", w.Code)
	}

	pay.hookErr = fmt.Errorf("%w: транзакция уже обработана", domain.ErrConflict)
	if w := do(r, http.MethodPost, "/hook", `{"transaction_id":1,"tx_hash":"abc"}`); w.Code != http.StatusConflict {
		t.Fatalf("повторный webhook: %d", w.Code)
	}
}

func TestCreateStarsInvoice_Upstream(t *testing.T) {
	pay := &fakePayments{invoiceFn: func(int64) (*domain.StarsInvoiceResult, error) {
		return nil, fmt.Errorf("%w: createInvoiceLink: timeout", domain.ErrUpstreamUnavailable)
	}}
	h := &Handler{Payments: pay}
	r := newEngine(func(r gin.IRoutes) { r.POST("/invoice", h.CreateStarsInvoice) })

	if w := do(r, http.MethodPost, "/invoice", `{"stars_amount":100}`); w.Code != http.StatusBadGateway {
		t.Fatalf("статус %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/invoice", `{"stars_amount":"many"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("нечисловая сумма: %d", w.Code)
	}
}

func TestCreateTonDeposit_DecimalAmount(t *testing.T) {
	h := &Handler{Payments: &fakePayments{}}
	r := newEngine(func(r gin.IRoutes) { r.POST("/deposit", h.CreateTonDeposit) })

	if w := do(r, http.MethodPost, "/deposit", `{"amount":"1.5"}`); w.Code != http.StatusOK {
		t.Fatalf("строковая сумма: %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/deposit", `{"amount":2.25}`); w.Code != http.StatusOK {
		t.Fatalf("числовая сумма: %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/deposit", `{"amount":0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("нулевая сумма: %d", w.Code)
	}
}

func TestWithdrawItem(t *testing.T) {
	h := &Handler{Inventory: &fakeInventory{}}
	r := newEngine(func(r gin.IRoutes) { r.POST("/inventory/:id/withdraw", h.WithdrawItem) })

	w := do(r, http.MethodPost, "/inventory/1/withdraw", `{"contact_info":"@me"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "@me") {
		t.Fatalf("вывод с контактом: %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/inventory/1/withdraw", ""); w.Code != http.StatusOK {
		t.Fatalf("вывод без тела: %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/inventory/2/withdraw", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("дешевый предмет: %d", w.Code)
	}
}

func TestAdminDeleteItem(t *testing.T) {
	inv := &fakeInventory{}
	h := &Handler{Inventory: inv}
	r := gin.New()
	r.DELETE("/admin/inventory/:id", h.AdminDeleteItem)

	if w := do(r, http.MethodDelete, "/admin/inventory/4", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("без user_id: %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/admin/inventory/4?user_id=9", ""); w.Code != http.StatusOK {
		t.Fatalf("удаление: %d", w.Code)
	}
	if len(inv.deleted) != 2 || inv.deleted[0] != 4 || inv.deleted[1] != 9 {
		t.Fatalf("удалено %v", inv.deleted)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	h := &Handler{DB: fakePinger{}, Version: "test"}
	r := gin.New()
	r.GET("/health", h.Health)

	if w := do(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("здоровый сервис: %d", w.Code)
	}

	h.DB = fakePinger{err: errors.New("down")}
	if w := do(r, http.MethodGet, "/health", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("база недоступна: %d", w.Code)
	}
}
