package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListCases(c *gin.Context) {
	activeOnly := c.DefaultQuery("active_only", "true") != "false"

	cases, err := h.Cases.ListCases(c.Request.Context(), c.Query("category"), activeOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cases)
}

func (h *Handler) CaseCategories(c *gin.Context) {
	cats, err := h.Cases.Categories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (h *Handler) CaseStats(c *gin.Context) {
	stats, err := h.Cases.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetCase(c *gin.Context) {
	caseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.Cases.GetCase(c.Request.Context(), caseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Открытие кейса. Нехватка звезд отдается 200 с success=false
func (h *Handler) OpenCase(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	caseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, err := h.Cases.OpenCase(c.Request.Context(), caseID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
