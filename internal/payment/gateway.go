// Package payment reconciles the external gateway's outcome with order
// creation. All three return paths (in-page callback, full-page redirect,
// reload-time recovery polling) feed the same verification logic, so the
// idempotency rules live in exactly one place.
package payment

import (
	"net/url"

	"github.com/safar/go-bookstore/internal/models"
	"github.com/shopspring/decimal"
)

// EventKind tags which return path delivered the payment credentials.
type EventKind int

const (
	KindCallback EventKind = iota
	KindRedirect
	KindRecoveryPoll
)

func (k EventKind) String() string {
	switch k {
	case KindCallback:
		return "callback"
	case KindRedirect:
		return "redirect"
	case KindRecoveryPoll:
		return "recovery_poll"
	}
	return "unknown"
}

// Event is the single tagged variant for one logical payment outcome,
// regardless of how it reached us.
type Event struct {
	Kind        EventKind
	Credentials models.PaymentCredentials
}

// RedirectEvent parses the query parameters the gateway appends when it
// returns the browser to the configured URL.
func RedirectEvent(query url.Values) Event {
	return Event{
		Kind: KindRedirect,
		Credentials: models.PaymentCredentials{
			PaymentID: query.Get("payment_id"),
			OrderID:   query.Get("order_id"),
			Signature: query.Get("signature"),
		},
	}
}

// Prefill is the contact info handed to the gateway's checkout UI.
type Prefill struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CheckoutParams is everything needed to open the external gateway. The
// amount is informational for display; the charge itself is bound to the
// server-issued order reference.
type CheckoutParams struct {
	KeyID       string          `json:"key_id"`
	OrderRef    string          `json:"order_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Prefill     Prefill         `json:"prefill"`
	RedirectURL string          `json:"redirect_url"`
}
