package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for ledger read-back.
type Handler struct {
	store Store
}

// NewHandler creates a new ledger handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up ledger routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/accounts/:accountId/ledger", h.ListLedger)
}

// ListLedger handles GET /v1/accounts/:accountId/ledger
//
// Returns records in commit order. Pass after=<record id> to resume a
// previous read from the last record seen.
func (h *Handler) ListLedger(c *gin.Context) {
	accountID := c.Param("accountId")
	afterID := c.Query("after")

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	records, err := h.store.List(c.Request.Context(), accountID, afterID, limit)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Cursor record not found for this account",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	next := ""
	if len(records) > 0 {
		next = records[len(records)-1].ID
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
		"next":    next,
	})
}
