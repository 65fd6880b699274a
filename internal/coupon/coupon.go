// Package coupon validates discount codes. The backend is the source of truth
// for every business rule; this package only normalizes the code, asks the
// backend exactly once per request, and applies accepted coupons atomically.
package coupon

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/safar/go-bookstore/internal/baas"
	"github.com/safar/go-bookstore/internal/cart"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrSuperseded reports that a newer validation request was issued while this
// one was in flight; its response must not touch the cart.
var ErrSuperseded = errors.New("coupon validation superseded by a newer request")

// RemoteChecker is the backend surface this package needs.
type RemoteChecker interface {
	ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*models.Coupon, error)
}

// Result is the typed accept/reject outcome.
type Result struct {
	Valid   bool           `json:"valid"`
	Coupon  *models.Coupon `json:"coupon,omitempty"`
	Message string         `json:"message"`
}

type Validator struct {
	remote RemoteChecker
	cart   *cart.Store
	log    logrus.FieldLogger

	// generation discards stale responses: last request wins.
	generation atomic.Uint64
}

func NewValidator(remote RemoteChecker, c *cart.Store, log logrus.FieldLogger) *Validator {
	return &Validator{remote: remote, cart: c, log: log}
}

// Validate normalizes the code, performs one remote check against the current
// subtotal and, on acceptance, applies the coupon to the cart before
// returning. Rejection reasons are surfaced verbatim. Validity is never
// cached: a coupon valid a minute ago may not be valid now.
func (v *Validator) Validate(ctx context.Context, code string) (Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Result{Valid: false, Message: "coupon code is required"}, nil
	}

	gen := v.generation.Add(1)

	subtotal := v.cart.Subtotal()
	coupon, err := v.remote.ValidateCoupon(ctx, code, subtotal)

	if v.generation.Load() != gen {
		return Result{}, ErrSuperseded
	}

	if err != nil {
		var rejection *baas.RejectionError
		if errors.As(err, &rejection) {
			v.log.WithFields(logrus.Fields{"code": code, "reason": rejection.Reason}).Info("coupon rejected")
			return Result{Valid: false, Message: rejection.Reason}, nil
		}
		return Result{}, errors.Wrap(err, "validate coupon")
	}

	if err := v.cart.ApplyCoupon(ctx, *coupon); err != nil {
		return Result{}, errors.Wrap(err, "apply coupon")
	}

	v.log.WithField("code", coupon.Code).Info("coupon applied")
	return Result{Valid: true, Coupon: coupon, Message: "coupon applied"}, nil
}
