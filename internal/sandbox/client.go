// Package sandbox is a thin client for the external banking sandbox the
// demo runs against: customer, account, merchant, and purchase CRUD. No
// business logic lives here; the risk core treats the sandbox as a
// collaborator.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the sandbox bank API. The sandbox authenticates with an
// API key passed as a query parameter and wraps created objects in an
// objectCreated envelope.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a sandbox client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Address is a sandbox postal address.
type Address struct {
	StreetNumber string `json:"street_number"`
	StreetName   string `json:"street_name"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
}

// Geocode is a merchant location.
type Geocode struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Customer is a sandbox customer creation request.
type Customer struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Address   Address `json:"address"`
}

// Account is a sandbox account creation request.
type Account struct {
	Type     string  `json:"type"`
	Nickname string  `json:"nickname"`
	Rewards  int     `json:"rewards"`
	Balance  float64 `json:"balance"`
}

// Merchant is a sandbox merchant creation request.
type Merchant struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Address  Address `json:"address"`
	Geocode  Geocode `json:"geocode"`
}

// Purchase is a sandbox purchase creation request.
type Purchase struct {
	MerchantID   string  `json:"merchant_id"`
	Medium       string  `json:"medium"`
	PurchaseDate string  `json:"purchase_date"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status"`
	Description  string  `json:"description"`
}

// PurchaseRecord is a purchase as returned by the sandbox.
type PurchaseRecord struct {
	ID           string  `json:"_id"`
	MerchantID   string  `json:"merchant_id"`
	PurchaseDate string  `json:"purchase_date"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status"`
	Description  string  `json:"description"`
}

type createdEnvelope struct {
	ObjectCreated struct {
		ID string `json:"_id"`
	} `json:"objectCreated"`
}

// CreateCustomer creates a customer and returns its sandbox ID.
func (c *Client) CreateCustomer(ctx context.Context, cust Customer) (string, error) {
	return c.create(ctx, "/customers", cust)
}

// CreateAccount creates an account under a customer and returns its ID.
func (c *Client) CreateAccount(ctx context.Context, customerID string, acct Account) (string, error) {
	return c.create(ctx, "/customers/"+url.PathEscape(customerID)+"/accounts", acct)
}

// CreateMerchant creates a merchant and returns its sandbox ID.
func (c *Client) CreateMerchant(ctx context.Context, m Merchant) (string, error) {
	return c.create(ctx, "/merchants", m)
}

// CreatePurchase records a purchase against an account and returns its ID.
func (c *Client) CreatePurchase(ctx context.Context, accountID string, p Purchase) (string, error) {
	return c.create(ctx, "/accounts/"+url.PathEscape(accountID)+"/purchases", p)
}

// ListPurchases fetches an account's purchases.
func (c *Client) ListPurchases(ctx context.Context, accountID string) ([]PurchaseRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint("/accounts/"+url.PathEscape(accountID)+"/purchases"), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var purchases []PurchaseRecord
	if err := json.NewDecoder(resp.Body).Decode(&purchases); err != nil {
		return nil, fmt.Errorf("decode purchases: %w", err)
	}
	return purchases, nil
}

// create POSTs a payload and unwraps the objectCreated envelope.
func (c *Client) create(ctx context.Context, path string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call sandbox: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return "", c.apiError(resp)
	}

	var envelope createdEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if envelope.ObjectCreated.ID == "" {
		return "", fmt.Errorf("sandbox created object without an ID")
	}
	return envelope.ObjectCreated.ID, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path + "?key=" + url.QueryEscape(c.apiKey)
}

func (c *Client) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("sandbox returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
