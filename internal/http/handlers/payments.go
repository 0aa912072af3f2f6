package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type tonDepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) CreateTonDeposit(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req tonDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	res, err := h.Payments.CreateTonDeposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type starsInvoiceRequest struct {
	StarsAmount int64 `json:"stars_amount"`
}

func (h *Handler) CreateStarsInvoice(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req starsInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stars_amount"})
		return
	}

	res, err := h.Payments.CreateStarsInvoice(c.Request.Context(), userID, req.StarsAmount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Транзакция доступна только владельцу, чужая выглядит как несуществующая
func (h *Handler) GetTransaction(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	txID, ok := pathID(c, "id")
	if !ok {
		return
	}

	t, err := h.Payments.GetTransaction(c.Request.Context(), txID)
	if err != nil {
		writeError(c, err)
		return
	}
	if t.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

type tonWebhookRequest struct {
	TransactionID int64  `json:"transaction_id" binding:"required"`
	TxHash        string `json:"tx_hash" binding:"required"`
}

// Webhook принимает заявку и отвечает сразу, сверка идет в фоне
func (h *Handler) TonWebhook(c *gin.Context) {
	var req tonWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id and tx_hash are required"})
		return
	}

	if err := h.Payments.HandleTonWebhook(c.Request.Context(), req.TransactionID, req.TxHash); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type telegramWebhookRequest struct {
	TransactionID int64  `json:"transaction_id" binding:"required"`
	PaymentID     string `json:"payment_id" binding:"required"`
	Status        string `json:"status" binding:"required"`
}

func (h *Handler) TelegramWebhook(c *gin.Context) {
	var req telegramWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id, payment_id and status are required"})
		return
	}

	if err := h.Payments.HandleStarsWebhook(c.Request.Context(), req.TransactionID, req.PaymentID, req.Status); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
