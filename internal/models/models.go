package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Stock status values reported by the catalog.
const (
	StockStatusInStock    = "in_stock"
	StockStatusOutOfStock = "out_of_stock"
)

// Category offer types. A flat-amount offer bypasses bulk pricing entirely.
const (
	OfferTypePercentage = "percentage"
	OfferTypeFlatAmount = "flat_amount"
)

// BulkTier is a quantity-threshold/unit-price pair. The highest tier whose
// threshold is met by the current quantity governs the unit price.
type BulkTier struct {
	QuantityThreshold int             `json:"quantity_threshold"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

// Category carries the category-level discount policy a product may opt into.
type Category struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	OfferType       string          `json:"offer_type,omitempty"`
	OfferPercentage decimal.Decimal `json:"offer_percentage"`
	OfferAmount     decimal.Decimal `json:"offer_amount"`
}

// Product is read-only from this service's perspective; it is sourced from the
// backend catalog and never written back.
type Product struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Image                 string          `json:"image,omitempty"`
	MRP                   decimal.Decimal `json:"mrp"`
	HasOwnDiscount        bool            `json:"has_own_discount"`
	OwnDiscountPercentage decimal.Decimal `json:"own_discount_percentage"`
	UseCategoryDiscount   bool            `json:"use_category_discount"`
	Category              *Category       `json:"category,omitempty"`
	BulkPrices            []BulkTier      `json:"bulk_prices,omitempty"`
	Status                string          `json:"status"`
	Author                string          `json:"author,omitempty"`
	Classes               []string        `json:"classes,omitempty"`
	SubCategories         []string        `json:"sub_categories,omitempty"`
	Edition               string          `json:"edition,omitempty"`
	Rating                decimal.Decimal `json:"rating"`
	CreatedAt             time.Time       `json:"created_at"`
}

// CartLineItem is a denormalized snapshot of a product in the cart. UnitPrice
// is the resolved price at last mutation, not a live reference to the product.
type CartLineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Author    string          `json:"author,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Coupon discount types.
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFlatAmount = "flat_amount"
)

// Coupon is referenced by the cart, never owned; validity is the backend's
// call at apply time.
type Coupon struct {
	Code               string          `json:"code"`
	DiscountType       string          `json:"discount_type"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	MinimumOrderAmount decimal.Decimal `json:"minimum_order_amount"`
	Description        string          `json:"description,omitempty"`
}

// CustomerInfo is the contact/billing draft accumulated during checkout.
type CustomerInfo struct {
	Email      string `json:"email" validate:"required,email"`
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Phone      string `json:"phone" validate:"required,min=7"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// ShippingInfo is the shipping draft: method, optional alternate delivery
// address and free-text notes.
type ShippingInfo struct {
	Method           string        `json:"method" validate:"required"`
	DeliverElsewhere bool          `json:"deliver_elsewhere"`
	AltAddress       *CustomerInfo `json:"alt_address,omitempty"`
	Notes            string        `json:"notes,omitempty"`
}

// OrderSummary is the totals block snapshotted into orders.
type OrderSummary struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
}

// PaymentCredentials are what the gateway hands back on completion, either via
// the in-page callback or as redirect query parameters.
type PaymentCredentials struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Signature string `json:"signature"`
}

// PendingOrder is the durable snapshot written before control passes to the
// payment gateway. Its existence is the sole signal that a payment is in
// flight across a reload or redirect.
type PendingOrder struct {
	GatewayOrderID string              `json:"gateway_order_id"`
	CustomerInfo   CustomerInfo        `json:"customer_info"`
	ShippingInfo   *ShippingInfo       `json:"shipping_info,omitempty"`
	Items          []CartLineItem      `json:"items"`
	Summary        OrderSummary        `json:"order_summary"`
	Notes          string              `json:"notes,omitempty"`
	Credentials    *PaymentCredentials `json:"credentials,omitempty"`
	CreatedAt      time.Time           `json:"timestamp"`
}

// Payment statuses recorded on created orders.
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusFailed = "failed"
)

// PaymentInfo records how an order was paid.
type PaymentInfo struct {
	Method        string `json:"method"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Confirmed     bool   `json:"confirmed"`
}

// Delivery statuses.
const (
	DeliveryStatusProcessing = "processing"
	DeliveryStatusShipped    = "shipped"
	DeliveryStatusDelivered  = "delivered"
)

// Order is the payload written to the backend on successful reconciliation.
// This service never mutates an order after creation.
type Order struct {
	OrderID        string         `json:"order_id"`
	UserInfo       CustomerInfo   `json:"user_info"`
	Items          []CartLineItem `json:"items"`
	Summary        OrderSummary   `json:"order_summary"`
	Payment        PaymentInfo    `json:"payment"`
	DeliveryStatus string         `json:"delivery_status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Review is a customer product review, stored remotely.
type Review struct {
	ID        string    `json:"id,omitempty"`
	ProductID string    `json:"product_id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the authenticated profile persisted under the "user" storage key.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOrderNumber generates a human-readable order id.
func NewOrderNumber() string {
	return fmt.Sprintf("BK-%d", time.Now().UnixNano())
}
