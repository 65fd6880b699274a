package payment

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/safar/go-bookstore/internal/baas"
	"github.com/safar/go-bookstore/internal/cart"
	"github.com/safar/go-bookstore/internal/config"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// State of the reconciliation machine.
type State string

const (
	StateIdle               State = "idle"
	StateOrderCreated       State = "order_created_remotely"
	StateGatewayOpened      State = "gateway_opened"
	StateGatewaySucceeded   State = "gateway_succeeded"
	StateGatewayDismissed   State = "gateway_dismissed"
	StateGatewayFailed      State = "gateway_failed"
	StateVerifying          State = "verifying"
	StateOrderPersisted     State = "order_persisted"
	StateVerificationFailed State = "verification_failed"
	StateExhausted          State = "exhausted"
)

var (
	// ErrNoPendingOrder means credentials arrived with nothing to reconcile
	// against. Terminal: retrying blind risks duplicate-charge confusion.
	ErrNoPendingOrder = errors.New("no pending order to reconcile")

	// ErrStatusUnknown is the terminal outcome after recovery polling is
	// exhausted; the user is directed to their order history instead.
	ErrStatusUnknown = errors.New("payment status unknown, check your orders")

	// ErrCartEmpty rejects starting a payment with nothing to pay for.
	ErrCartEmpty = errors.New("cart is empty")

	// ErrDraftIncomplete rejects starting a payment before checkout finished.
	ErrDraftIncomplete = errors.New("checkout details are incomplete")
)

// Backend is the remote surface the flow needs: payment-intent creation,
// verification (the sole writer of orders) and the best-effort notification.
type Backend interface {
	CreateGatewayOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error)
	VerifyPayment(ctx context.Context, creds models.PaymentCredentials, pending models.PendingOrder) (*models.Order, error)
	SendOrderConfirmation(ctx context.Context, order models.Order) error
}

// Flow drives one session's payment from gateway open to a durable order, a
// terminal failure, or an explicit unknown.
type Flow struct {
	// mu serializes the session's payment operations; at most one
	// verification can be in flight per session.
	mu        sync.Mutex
	sessionID string
	cart      *cart.Store
	kv        storage.Store
	backend   Backend
	payCfg    config.PaymentConfig
	gwCfg     config.GatewayConfig
	log       logrus.FieldLogger

	state State
	now   func() time.Time
}

func NewFlow(sessionID string, c *cart.Store, kv storage.Store, backend Backend,
	payCfg config.PaymentConfig, gwCfg config.GatewayConfig, log logrus.FieldLogger) *Flow {
	return &Flow{
		sessionID: sessionID,
		cart:      c,
		kv:        kv,
		backend:   backend,
		payCfg:    payCfg,
		gwCfg:     gwCfg,
		log:       log.WithField("session", sessionID),
		state:     StateIdle,
		now:       time.Now,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Begin creates the remote payment intent and persists the PendingOrder
// snapshot, then reports the parameters for opening the gateway. Totals are
// recomputed from the cart here, not taken from anything captured earlier in
// the flow.
func (f *Flow) Begin(ctx context.Context) (*CheckoutParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.cart.Items()
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}
	customer := f.cart.CustomerInfo()
	if customer == nil {
		return nil, ErrDraftIncomplete
	}
	shipping := f.cart.ShippingInfo()
	summary := f.cart.Summary()

	receipt := uuid.NewString()
	gatewayOrderID, err := f.backend.CreateGatewayOrder(ctx, summary.GrandTotal, f.gwCfg.Currency, receipt)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	f.state = StateOrderCreated

	notes := ""
	if shipping != nil {
		notes = shipping.Notes
	}
	pending := models.PendingOrder{
		GatewayOrderID: gatewayOrderID,
		CustomerInfo:   *customer,
		ShippingInfo:   shipping,
		Items:          items,
		Summary:        summary,
		Notes:          notes,
		CreatedAt:      f.now(),
	}
	if err := f.putJSON(ctx, storage.KeyPendingOrder, pending); err != nil {
		return nil, errors.Wrap(err, "persist pending order")
	}
	if err := f.putJSON(ctx, storage.KeyPaymentStartTime, pending.CreatedAt); err != nil {
		return nil, errors.Wrap(err, "persist payment start time")
	}
	if err := f.putJSON(ctx, storage.KeyGatewayOrderID, gatewayOrderID); err != nil {
		return nil, errors.Wrap(err, "persist gateway order id")
	}

	f.state = StateGatewayOpened
	f.log.WithFields(logrus.Fields{
		"gateway_order": gatewayOrderID,
		"amount":        summary.GrandTotal,
	}).Info("gateway checkout opened")

	return &CheckoutParams{
		KeyID:       f.gwCfg.KeyID,
		OrderRef:    gatewayOrderID,
		Amount:      summary.GrandTotal,
		Currency:    f.gwCfg.Currency,
		Prefill: Prefill{
			Name:  customer.FirstName + " " + customer.LastName,
			Email: customer.Email,
			Phone: customer.Phone,
		},
		RedirectURL: f.gwCfg.RedirectURL,
	}, nil
}

// HandleEvent is the single reconciliation entry point for all return paths.
// It verifies remotely and, only on a confirmed success, finalizes: the
// verification endpoint is the sole writer of orders, so invoking this again
// for the same gateway order id cannot create a duplicate.
func (f *Flow) HandleEvent(ctx context.Context, ev Event) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pending, err := f.loadPending(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			f.log.WithField("kind", ev.Kind.String()).Warn("payment event with no pending order")
			return nil, ErrNoPendingOrder
		}
		return nil, err
	}

	if ev.Credentials.OrderID != "" && ev.Credentials.OrderID != pending.GatewayOrderID {
		f.log.WithFields(logrus.Fields{
			"event_order":   ev.Credentials.OrderID,
			"pending_order": pending.GatewayOrderID,
		}).Warn("payment event for a different gateway order")
		return nil, ErrNoPendingOrder
	}

	// Persist the credentials before verifying so a reload mid-verification
	// can recover with them.
	if ev.Credentials != (models.PaymentCredentials{}) {
		creds := ev.Credentials
		pending.Credentials = &creds
		if err := f.putJSON(ctx, storage.KeyPendingOrder, pending); err != nil {
			return nil, errors.Wrap(err, "persist payment credentials")
		}
	}

	f.state = StateGatewaySucceeded
	return f.verify(ctx, pending, ev)
}

// Dismiss records that the user closed the gateway without paying. The
// PendingOrder stays: a later redirect or manual retry must still reconcile.
func (f *Flow) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateIdle
	f.log.Info("gateway dismissed, pending order retained")
}

// Fail records a gateway-reported payment failure. The PendingOrder stays for
// the same reason as Dismiss.
func (f *Flow) Fail(description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateGatewayFailed
	f.log.WithField("reason", description).Warn("gateway reported payment failure")
}

// Recover drives the reload-time polling path: a PendingOrder exists but no
// resolved outcome. It retries verification a bounded number of times with a
// fixed delay, then gives up into the status-unknown terminal state.
func (f *Flow) Recover(ctx context.Context) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pending, err := f.loadPending(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, ErrNoPendingOrder
		}
		return nil, err
	}

	creds := models.PaymentCredentials{OrderID: pending.GatewayOrderID}
	if pending.Credentials != nil {
		creds = *pending.Credentials
	}
	ev := Event{Kind: KindRecoveryPoll, Credentials: creds}

	var lastErr error
	for attempt := 1; attempt <= f.payCfg.MaxVerifyAttempts; attempt++ {
		order, err := f.verify(ctx, pending, ev)
		if err == nil {
			return order, nil
		}

		var rejection *baas.RejectionError
		if errors.As(err, &rejection) {
			// A definitive decline is terminal, not retryable.
			return nil, err
		}
		lastErr = err

		f.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     f.payCfg.MaxVerifyAttempts,
			"error":   err.Error(),
		}).Warn("payment verification attempt failed")

		if attempt == f.payCfg.MaxVerifyAttempts {
			break
		}
		select {
		case <-time.After(f.payCfg.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.state = StateExhausted
	f.log.WithField("last_error", lastErr).Error("payment verification exhausted")
	return nil, ErrStatusUnknown
}

// HasPending reports whether a payment is in flight for this session.
func (f *Flow) HasPending(ctx context.Context) bool {
	_, err := f.loadPending(ctx)
	return err == nil
}

// WatchdogExpired reports whether the pending payment has been outstanding
// longer than the configured ceiling; callers route the user to the status
// screen instead of leaving a stale checkout form up.
func (f *Flow) WatchdogExpired(ctx context.Context) (bool, error) {
	raw, err := f.kv.Get(ctx, storage.SessionKey(storage.KeyPaymentStartTime, f.sessionID))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	var start time.Time
	if err := json.Unmarshal(raw, &start); err != nil {
		return false, errors.Wrap(err, "decode payment start time")
	}
	return f.now().Sub(start) > f.payCfg.PendingCeiling, nil
}

// verify performs exactly one remote verification and finalizes on success.
func (f *Flow) verify(ctx context.Context, pending models.PendingOrder, ev Event) (*models.Order, error) {
	f.state = StateVerifying

	order, err := f.backend.VerifyPayment(ctx, ev.Credentials, pending)
	if err != nil {
		var rejection *baas.RejectionError
		if errors.As(err, &rejection) {
			f.state = StateVerificationFailed
			f.log.WithFields(logrus.Fields{
				"kind":   ev.Kind.String(),
				"reason": rejection.Reason,
			}).Warn("payment verification declined")
			return nil, err
		}
		return nil, errors.Wrap(err, "verify payment")
	}

	if err := f.finalize(ctx, *order); err != nil {
		return nil, err
	}
	return order, nil
}

// finalize runs only after the backend confirmed the charge and created the
// order: delete the pending snapshot, clear the cart and drafts, and fire the
// confirmation notification without letting its outcome matter.
func (f *Flow) finalize(ctx context.Context, order models.Order) error {
	for _, prefix := range []string{storage.KeyPendingOrder, storage.KeyPaymentStartTime, storage.KeyGatewayOrderID} {
		if err := f.kv.Delete(ctx, storage.SessionKey(prefix, f.sessionID)); err != nil {
			return errors.Wrapf(err, "delete %s", prefix)
		}
	}
	if err := f.cart.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear cart after order")
	}

	f.state = StateOrderPersisted
	f.log.WithField("order", order.OrderID).Info("order persisted")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.backend.SendOrderConfirmation(ctx, order); err != nil {
			f.log.WithField("error", err).Warn("order confirmation notification failed")
		}
	}()

	return nil
}

func (f *Flow) loadPending(ctx context.Context) (models.PendingOrder, error) {
	var pending models.PendingOrder
	raw, err := f.kv.Get(ctx, storage.SessionKey(storage.KeyPendingOrder, f.sessionID))
	if err != nil {
		return pending, err
	}
	if err := json.Unmarshal(raw, &pending); err != nil {
		return pending, errors.Wrap(err, "decode pending order")
	}
	return pending, nil
}

func (f *Flow) putJSON(ctx context.Context, prefix string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.kv.Put(ctx, storage.SessionKey(prefix, f.sessionID), raw)
}
