package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"crazygift/internal/domain"
	"crazygift/internal/http/middleware"
	"crazygift/internal/logger"
	"crazygift/internal/service"
	"crazygift/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Authenticator interface {
	Authenticate(ctx context.Context, initData, ip, userAgent string) (*service.AuthResult, error)
}

type Users interface {
	Profile(ctx context.Context, userID int64) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID int64, upd domain.ProfileUpdate) (*domain.User, error)
	Stats(ctx context.Context, userID int64) (*domain.UserStats, error)
	History(ctx context.Context, userID int64, f domain.TransactionFilter) (*domain.HistoryPage, error)
	Referrals(ctx context.Context, userID int64) (*service.ReferralsPage, error)
}

type Cases interface {
	ListCases(ctx context.Context, category string, activeOnly bool) ([]domain.Case, error)
	Categories(ctx context.Context) ([]domain.CaseCategory, error)
	Stats(ctx context.Context) (*domain.CaseStats, error)
	GetCase(ctx context.Context, caseID int64) (*domain.CaseDetail, error)
	OpenCase(ctx context.Context, caseID, userID int64) (*domain.OpenResult, error)
}

type Inventory interface {
	ListInventory(ctx context.Context, userID int64, f domain.InventoryFilter) ([]domain.InventoryItem, error)
	InventoryStats(ctx context.Context, userID int64) (*domain.InventoryStats, error)
	Withdrawals(ctx context.Context, userID int64) (*domain.WithdrawalHistory, error)
	SellItem(ctx context.Context, itemID, userID int64) (*domain.SellResult, error)
	RequestWithdrawal(ctx context.Context, itemID, userID int64, contactInfo string) (*domain.WithdrawResult, error)
	AdminDeleteItem(ctx context.Context, itemID, userID int64) (*domain.InventoryItem, error)
}

type Payments interface {
	CreateTonDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (*domain.TonDepositResult, error)
	CreateStarsInvoice(ctx context.Context, userID, stars int64) (*domain.StarsInvoiceResult, error)
	HandleTonWebhook(ctx context.Context, txID int64, txHash string) error
	HandleStarsWebhook(ctx context.Context, txID int64, paymentID, status string) error
	GetTransaction(ctx context.Context, txID int64) (*domain.Transaction, error)
}

// Pinger проверка базы для /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler общий набор зависимостей http слоя
type Handler struct {
	Auth      Authenticator
	Users     Users
	Cases     Cases
	Inventory Inventory
	Payments  Payments
	Tokens    middleware.TokenParser
	Hub       *ws.Hub
	DB        Pinger
	Version   string
	// origin для websocket, пусто или "*" пропускает всех
	AllowedOrigins []string
}

func getUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrValidation, http.StatusBadRequest},
	{domain.ErrConflict, http.StatusConflict},
	{domain.ErrUpstreamUnavailable, http.StatusBadGateway},
	{domain.ErrInternal, http.StatusInternalServerError},
}

// writeError выбирает статус по классу ошибки. Детали 5xx остаются в логе
func writeError(c *gin.Context, err error) {
	for _, e := range errorStatuses {
		if !errors.Is(err, e.err) {
			continue
		}
		if e.status >= 500 {
			logger.WithContext(c.Request.Context()).Error("request failed", "route", c.FullPath(), "error", err)
			c.JSON(e.status, gin.H{"error": e.err.Error()})
			return
		}
		c.JSON(e.status, gin.H{"error": errorMessage(err, e.err)})
		return
	}

	logger.WithContext(c.Request.Context()).Error("unclassified error", "route", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": domain.ErrInternal.Error()})
}

// "not found: кейс не найден" -> "кейс не найден"
func errorMessage(err, class error) string {
	msg := err.Error()
	if i := strings.Index(msg, class.Error()+": "); i >= 0 {
		return msg[i+len(class.Error())+2:]
	}
	return msg
}
