package sandbox

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes thin passthrough endpoints for sandbox CRUD, so the
// dashboard can set up demo customers, accounts, and merchants without
// talking to the sandbox directly.
type Handler struct {
	client *Client
}

// NewHandler creates a sandbox passthrough handler.
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes sets up sandbox passthrough routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/customers", h.CreateCustomer)
	r.POST("/customers/:customerId/accounts", h.CreateAccount)
	r.POST("/merchants", h.CreateMerchant)
}

// CreateCustomer handles POST /v1/customers
func (h *Handler) CreateCustomer(c *gin.Context) {
	var req Customer
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	id, err := h.client.CreateCustomer(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "sandbox_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"customer_id": id})
}

// CreateAccount handles POST /v1/customers/:customerId/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req Account
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	id, err := h.client.CreateAccount(c.Request.Context(), c.Param("customerId"), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "sandbox_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account_id": id})
}

// CreateMerchant handles POST /v1/merchants
func (h *Handler) CreateMerchant(c *gin.Context) {
	var req Merchant
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	id, err := h.client.CreateMerchant(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "sandbox_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"merchant_id": id})
}
