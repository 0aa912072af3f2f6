package handlers

import (
	"net/http"
	"strconv"

	"crazygift/internal/domain"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListInventory(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items, err := h.Inventory.ListInventory(c.Request.Context(), userID, domain.InventoryFilter{
		Rarity:           c.Query("rarity"),
		IncludeWithdrawn: c.Query("include_withdrawn") == "true",
		Limit:            queryInt(c, "limit", 50),
		Offset:           queryInt(c, "offset", 0),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) InventoryStats(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	stats, err := h.Inventory.InventoryStats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) MyWithdrawals(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	history, err := h.Inventory.Withdrawals(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) SellItem(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, err := h.Inventory.SellItem(c.Request.Context(), itemID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type withdrawRequest struct {
	ContactInfo string `json:"contact_info"`
}

func (h *Handler) WithdrawItem(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}

	// тело необязательно
	var req withdrawRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}
	}

	res, err := h.Inventory.RequestWithdrawal(c.Request.Context(), itemID, userID, req.ContactInfo)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Удаление предмета администратором, владелец в ?user_id=
func (h *Handler) AdminDeleteItem(c *gin.Context) {
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	item, err := h.Inventory.AdminDeleteItem(c.Request.Context(), itemID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted_item": item})
}
