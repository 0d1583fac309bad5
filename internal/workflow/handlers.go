package workflow

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spendwatch/spendwatch/internal/feature"
	"github.com/spendwatch/spendwatch/internal/validation"
)

// Handler provides HTTP endpoints for purchase evaluation and decision
// resolution.
type Handler struct {
	service *Service
}

// NewHandler creates a new workflow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up workflow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/purchases/evaluate", h.Evaluate)
	r.POST("/decisions/:workflowId/confirm", h.Confirm)
	r.POST("/decisions/:workflowId/cancel", h.Cancel)
	r.GET("/decisions/pending", h.Pending)
	r.POST("/accounts/:accountId/rescreen", h.Rescreen)
}

type evaluateRequest struct {
	AccountID   string     `json:"account_id"`
	MerchantID  string     `json:"merchant_id"`
	Amount      float64    `json:"amount"`
	Category    string     `json:"merchant_category"`
	Subtype     string     `json:"merchant_type"`
	Description string     `json:"description"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty"`

	// Optional caller-supplied behavioral context.
	TxCountLastHour *int     `json:"num_transactions_last_hour,omitempty"`
	SpendLastHour   *float64 `json:"total_spent_last_hour,omitempty"`
	RollingAvg      *float64 `json:"rolling_avg_amount,omitempty"`
	DistanceKm      *float64 `json:"distance_from_home,omitempty"`
}

// Evaluate handles POST /v1/purchases/evaluate
func (h *Handler) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("account_id", req.AccountID),
		validation.Required("merchant_id", req.MerchantID),
		validation.Required("merchant_category", req.Category),
		validation.Required("merchant_type", req.Subtype),
		validation.PositiveAmount("amount", req.Amount),
		validation.MaxLength("description", req.Description, 500),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"fields":  errs,
		})
		return
	}

	cand := feature.Candidate{
		AccountID:   req.AccountID,
		MerchantID:  req.MerchantID,
		Amount:      req.Amount,
		Category:    req.Category,
		Subtype:     req.Subtype,
		Description: validation.SanitizeString(req.Description, 500),
	}
	if req.PurchasedAt != nil {
		cand.PurchasedAt = *req.PurchasedAt
	}

	inst, err := h.service.Evaluate(c.Request.Context(), cand, feature.Context{
		TxCountLastHour: req.TxCountLastHour,
		SpendLastHour:   req.SpendLastHour,
		RollingAvg:      req.RollingAvg,
		DistanceKm:      req.DistanceKm,
	})
	if err != nil {
		h.evaluateError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id": inst.ID,
		"state":       inst.State,
		"assessment":  inst.Assessment,
		"commit":      inst.Commit,
	})
}

func (h *Handler) evaluateError(c *gin.Context, err error) {
	var ucErr *feature.UnknownCategoryError
	var mfErr *feature.MissingFeatureError

	switch {
	case errors.Is(err, feature.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": err.Error(),
		})
	case errors.As(err, &ucErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unknown_category",
			"message": ucErr.Error(),
		})
	case errors.As(err, &mfErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_feature",
			"message": mfErr.Error(),
			"field":   mfErr.Field,
		})
	case errors.Is(err, ErrConcurrentEvaluation):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "concurrent_evaluation",
			"message": "Account has an unresolved pending decision. Confirm or cancel it first.",
		})
	case errors.Is(err, ErrClassifierUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "classifier_unavailable",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}

// Confirm handles POST /v1/decisions/:workflowId/confirm
func (h *Handler) Confirm(c *gin.Context) {
	inst, err := h.service.Confirm(c.Request.Context(), c.Param("workflowId"))
	if err != nil {
		h.resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id": inst.ID,
		"state":       inst.State,
		"commit":      inst.Commit,
	})
}

// Cancel handles POST /v1/decisions/:workflowId/cancel
func (h *Handler) Cancel(c *gin.Context) {
	if _, err := h.service.Cancel(c.Request.Context(), c.Param("workflowId")); err != nil {
		h.resolveError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) resolveError(c *gin.Context, err error) {
	if errors.Is(err, ErrNoPendingDecision) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "no_pending_decision",
			"message": "No pending decision exists for this workflow",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": err.Error(),
	})
}

// Pending handles GET /v1/decisions/pending?accountId=
func (h *Handler) Pending(c *gin.Context) {
	accountID := c.Query("accountId")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_account_id",
			"message": "accountId query parameter is required",
		})
		return
	}

	inst, ok := h.service.Pending(accountID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "no_pending_decision",
			"message": "Account has no pending decision",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id": inst.ID,
		"state":       inst.State,
		"candidate":   inst.Candidate,
		"assessment":  inst.Assessment,
		"created_at":  inst.CreatedAt,
	})
}

// Rescreen handles POST /v1/accounts/:accountId/rescreen
func (h *Handler) Rescreen(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 500 {
				limit = 500
			}
		}
	}

	rows, err := h.service.Rescreen(c.Request.Context(), c.Param("accountId"), limit)
	if err != nil {
		if errors.Is(err, ErrClassifierUnavailable) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "classifier_unavailable",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	flagged := 0
	for _, r := range rows {
		if r.Flagged {
			flagged++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"results": rows,
		"count":   len(rows),
		"flagged": flagged,
	})
}
