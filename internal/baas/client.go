// Package baas is the HTTP client for the backend service that owns all
// durable commerce data: the product catalog, coupon rules, order records and
// payment verification. This service treats it as opaque infrastructure and
// never bypasses it.
package baas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/safar/go-bookstore/internal/config"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RejectionError carries a business-rule rejection from the backend. The
// reason is surfaced to the user verbatim.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     logrus.FieldLogger
}

func NewClient(cfg *config.BaaSConfig, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

// ListProducts fetches the full product collection. Filtering and ordering
// happen locally in the catalog package.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := c.getJSON(ctx, "/api/products", &products); err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := c.getJSON(ctx, "/api/products/"+id, &product); err != nil {
		return nil, errors.Wrapf(err, "get product %s", id)
	}
	return &product, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := c.getJSON(ctx, "/api/categories", &categories); err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return categories, nil
}

// ValidateCoupon asks the backend to check a code against the current
// subtotal. Business rules (existence, expiry, usage caps, minimum order) are
// enforced remotely; a rejection comes back as *RejectionError.
func (c *Client) ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*models.Coupon, error) {
	req := struct {
		Code     string          `json:"code"`
		Subtotal decimal.Decimal `json:"subtotal"`
	}{Code: code, Subtotal: subtotal}

	var coupon models.Coupon
	if err := c.postJSON(ctx, "/api/coupons/validate", req, &coupon); err != nil {
		return nil, err
	}
	return &coupon, nil
}

// CreateGatewayOrder creates the server-side payment intent and returns the
// gateway's order reference. The charge amount is authoritative here, never
// restated by the client to the gateway.
func (c *Client) CreateGatewayOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error) {
	req := struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Receipt  string          `json:"receipt"`
	}{Amount: amount, Currency: currency, Receipt: receipt}

	var resp struct {
		GatewayOrderID string `json:"gateway_order_id"`
	}
	if err := c.postJSON(ctx, "/api/payments/order", req, &resp); err != nil {
		return "", errors.Wrap(err, "create gateway order")
	}
	if resp.GatewayOrderID == "" {
		return "", errors.New("create gateway order: empty order id in response")
	}
	return resp.GatewayOrderID, nil
}

// VerifyPayment submits payment credentials and the pending order draft. The
// endpoint confirms the charge with the gateway (signature and amount checks
// happen there) and, only if genuine, creates the order record. It is the
// sole writer of orders, which is what makes retries of this call safe.
func (c *Client) VerifyPayment(ctx context.Context, creds models.PaymentCredentials, pending models.PendingOrder) (*models.Order, error) {
	req := struct {
		Credentials models.PaymentCredentials `json:"credentials"`
		Order       models.PendingOrder       `json:"order"`
	}{Credentials: creds, Order: pending}

	var order models.Order
	if err := c.postJSON(ctx, "/api/payments/verify", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) ListReviews(ctx context.Context, productID string) ([]models.Review, error) {
	var reviews []models.Review
	if err := c.getJSON(ctx, "/api/products/"+productID+"/reviews", &reviews); err != nil {
		return nil, errors.Wrapf(err, "list reviews for %s", productID)
	}
	return reviews, nil
}

func (c *Client) CreateReview(ctx context.Context, review models.Review) (*models.Review, error) {
	var created models.Review
	if err := c.postJSON(ctx, "/api/products/"+review.ProductID+"/reviews", review, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// SendOrderConfirmation fires the confirmation notification. Best effort: the
// caller must never let a failure here touch an already-confirmed order.
func (c *Client) SendOrderConfirmation(ctx context.Context, order models.Order) error {
	return c.postJSON(ctx, "/api/notifications/order-confirmation", order, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"method":  req.Method,
		"path":    req.URL.Path,
		"status":  resp.StatusCode,
		"elapsed": time.Since(start),
	}).Debug("backend call")

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var errResp struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return &RejectionError{Reason: errResp.Error}
		}
		return &RejectionError{Reason: fmt.Sprintf("request rejected (status %d)", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode backend response")
	}
	return nil
}
