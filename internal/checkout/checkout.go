// Package checkout drives the three-stage order form: contact/billing, then
// shipping, then payment. Each stage must validate before forward movement;
// going back never loses entered data because the drafts live in the cart
// store, not in the stages.
package checkout

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/safar/go-bookstore/internal/cart"
	"github.com/safar/go-bookstore/internal/models"
)

type Stage int

const (
	StageContact Stage = iota
	StageShipping
	StagePayment
)

func (s Stage) String() string {
	switch s {
	case StageContact:
		return "contact"
	case StageShipping:
		return "shipping"
	case StagePayment:
		return "payment"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// FieldError is a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every failure of a stage submission; validation is
// not fail-fast.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type Pipeline struct {
	mu       sync.Mutex
	stage    Stage
	cart     *cart.Store
	validate *validator.Validate
}

func NewPipeline(c *cart.Store) *Pipeline {
	return &Pipeline{
		stage:    StageContact,
		cart:     c,
		validate: validator.New(),
	}
}

func (p *Pipeline) Current() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// SubmitContact validates the contact/billing fields and, when clean, stores
// the draft and advances to shipping.
func (p *Pipeline) SubmitContact(info models.CustomerInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage != StageContact {
		return fmt.Errorf("cannot submit contact details at stage %s", p.stage)
	}

	if fieldErrs := p.check(info, "billing"); len(fieldErrs) > 0 {
		return &ValidationError{Errors: fieldErrs}
	}

	p.cart.SetCustomerInfo(info)
	p.stage = StageShipping
	return nil
}

// SubmitShipping validates the shipping stage. When the deliver-elsewhere
// toggle is on, the alternate address is a fully parallel validation branch
// that must pass independently of the billing address; when off it is ignored
// entirely, not validated.
func (p *Pipeline) SubmitShipping(info models.ShippingInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage != StageShipping {
		return fmt.Errorf("cannot submit shipping details at stage %s", p.stage)
	}

	var fieldErrs []FieldError
	if strings.TrimSpace(info.Method) == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "shipping.method", Message: "is required"})
	}
	if info.DeliverElsewhere {
		if info.AltAddress == nil {
			fieldErrs = append(fieldErrs, FieldError{Field: "delivery", Message: "delivery address is required"})
		} else {
			fieldErrs = append(fieldErrs, p.check(*info.AltAddress, "delivery")...)
		}
	} else {
		info.AltAddress = nil
	}

	if len(fieldErrs) > 0 {
		return &ValidationError{Errors: fieldErrs}
	}

	p.cart.SetShippingInfo(info)
	p.stage = StagePayment
	return nil
}

// Back moves one stage backward. Always permitted; drafts stay intact.
func (p *Pipeline) Back() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage > StageContact {
		p.stage--
	}
	return p.stage
}

// ReadyForPayment reports whether the accumulated drafts are complete enough
// to hand off to the payment flow.
func (p *Pipeline) ReadyForPayment() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage == StagePayment &&
		p.cart.CustomerInfo() != nil &&
		p.cart.ShippingInfo() != nil &&
		p.cart.TotalItems() > 0
}

// check runs tag validation and maps every failure, not just the first.
func (p *Pipeline) check(info models.CustomerInfo, prefix string) []FieldError {
	err := p.validate.Struct(info)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: prefix, Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   prefix + "." + strings.ToLower(fe.Field()),
			Message: messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	}
	return "is invalid"
}
