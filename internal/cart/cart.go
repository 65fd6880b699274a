// Package cart owns the per-session line-item list, the single coupon slot
// and the checkout drafts, and derives all order totals. Every mutation
// re-resolves prices and persists the cart to durable storage.
package cart

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/safar/go-bookstore/internal/config"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/pricing"
	"github.com/safar/go-bookstore/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var hundred = decimal.NewFromInt(100)

// Policy holds the pricing decisions that are deployment configuration rather
// than fixed behavior.
type Policy struct {
	// RepriceOnMerge controls whether adding an already-present product
	// re-resolves the whole line's unit price at the merged quantity. When
	// false the line keeps the price it was first resolved at.
	RepriceOnMerge bool
	// ShippingTiers maps subtotal thresholds to charges. Empty means free
	// shipping.
	ShippingTiers []config.ShippingTier
}

// Snapshot is the read-only view handed to subscribers.
type Snapshot struct {
	Items      []models.CartLineItem
	Coupon     *models.Coupon
	TotalItems int
	Summary    models.OrderSummary
}

// Store is a per-session cart. It hydrates from durable storage before the
// first mutation and writes back after every mutation from then on; writes
// before hydration are refused so an empty initial state can never clobber a
// previously saved cart.
type Store struct {
	mu       sync.Mutex
	kv       storage.Store
	key      string
	log      logrus.FieldLogger
	policy   Policy
	hydrated bool

	items  map[string]*models.CartLineItem
	coupon *models.Coupon

	// Checkout drafts live in process memory only: unlike the cart itself
	// they do not survive a restart. That is a deliberately weaker guarantee.
	customer *models.CustomerInfo
	shipping *models.ShippingInfo

	subs []func(Snapshot)
}

func NewStore(kv storage.Store, sessionID string, policy Policy, log logrus.FieldLogger) *Store {
	return &Store{
		kv:     kv,
		key:    storage.SessionKey(storage.KeyCart, sessionID),
		log:    log,
		policy: policy,
		items:  make(map[string]*models.CartLineItem),
	}
}

// Hydrate loads the persisted cart. It must run before the first mutation; a
// missing key is an empty cart, not an error.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hydrated {
		return nil
	}

	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			s.hydrated = true
			return nil
		}
		return errors.Wrap(err, "hydrate cart")
	}

	var items []models.CartLineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return errors.Wrap(err, "decode persisted cart")
	}
	for i := range items {
		item := items[i]
		s.items[item.ProductID] = &item
	}
	s.hydrated = true
	return nil
}

// Subscribe registers fn to run after every committed mutation.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// AddToCart merges quantity into an existing line or appends a new one. On a
// merge the repricing policy decides whether the whole line is re-resolved at
// the new total quantity.
func (s *Store) AddToCart(ctx context.Context, p models.Product, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if line, ok := s.items[p.ID]; ok {
		line.Quantity += quantity
		if s.policy.RepriceOnMerge {
			line.UnitPrice = pricing.ResolveUnitPrice(p, line.Quantity)
		}
	} else {
		s.items[p.ID] = &models.CartLineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			Author:    p.Author,
			Quantity:  quantity,
			UnitPrice: pricing.ResolveUnitPrice(p, quantity),
		}
	}

	return s.commit(ctx)
}

// RemoveFromCart deletes the line item unconditionally.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, productID)
	return s.commit(ctx)
}

// IncrementQuantity adjusts the line by exactly one and re-resolves its price.
func (s *Store) IncrementQuantity(ctx context.Context, p models.Product) error {
	return s.setQuantity(ctx, p, func(current int) int { return current + 1 })
}

// DecrementQuantity adjusts the line by exactly one; reaching zero removes
// the line, a zero-quantity line is not representable.
func (s *Store) DecrementQuantity(ctx context.Context, p models.Product) error {
	return s.setQuantity(ctx, p, func(current int) int { return current - 1 })
}

// UpdateQuantity sets the absolute quantity; n <= 0 removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, p models.Product, n int) error {
	return s.setQuantity(ctx, p, func(int) int { return n })
}

func (s *Store) setQuantity(ctx context.Context, p models.Product, next func(int) int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.items[p.ID]
	if !ok {
		return nil
	}

	n := next(line.Quantity)
	if n <= 0 {
		delete(s.items, p.ID)
		return s.commit(ctx)
	}

	line.Quantity = n
	line.UnitPrice = pricing.ResolveUnitPrice(p, n)
	return s.commit(ctx)
}

// ApplyCoupon replaces the single coupon slot; there is no stacking.
func (s *Store) ApplyCoupon(ctx context.Context, c models.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coupon = &c
	return s.commit(ctx)
}

func (s *Store) RemoveCoupon(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coupon = nil
	return s.commit(ctx)
}

func (s *Store) SetCustomerInfo(info models.CustomerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customer = &info
}

func (s *Store) CustomerInfo() *models.CustomerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customer == nil {
		return nil
	}
	cp := *s.customer
	return &cp
}

func (s *Store) SetShippingInfo(info models.ShippingInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipping = &info
}

func (s *Store) ShippingInfo() *models.ShippingInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shipping == nil {
		return nil
	}
	cp := *s.shipping
	return &cp
}

// Clear empties the cart, the coupon slot and the drafts, and removes the
// persisted record. Called only on confirmed order success.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*models.CartLineItem)
	s.coupon = nil
	s.customer = nil
	s.shipping = nil

	if err := s.kv.Delete(ctx, s.key); err != nil {
		return errors.Wrap(err, "clear persisted cart")
	}
	s.notifyLocked()
	return nil
}

// Items returns the line items sorted by product id.
func (s *Store) Items() []models.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked()
}

func (s *Store) Coupon() *models.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coupon == nil {
		return nil
	}
	cp := *s.coupon
	return &cp
}

// TotalItems is the sum of line quantities.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, line := range s.items {
		total += line.Quantity
	}
	return total
}

func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subtotalLocked()
}

// CouponDiscount resolves the applied coupon's discount against the current
// subtotal. Validity was the backend's call at apply time; the only local rule
// is that a flat coupon yields nothing below its minimum order amount.
func (s *Store) CouponDiscount() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.couponDiscountLocked()
}

// ShippingCharge evaluates the tier table against the subtotal. The shipped
// default is an empty table, i.e. free shipping.
func (s *Store) ShippingCharge() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shippingChargeLocked()
}

func (s *Store) FinalTotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalTotalLocked()
}

// Summary recomputes the totals block from current state. Callers building an
// order draft must use this rather than a value captured earlier in the flow.
func (s *Store) Summary() models.OrderSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Store) itemsLocked() []models.CartLineItem {
	items := make([]models.CartLineItem, 0, len(s.items))
	for _, line := range s.items {
		items = append(items, *line)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items
}

func (s *Store) subtotalLocked() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range s.items {
		sum = sum.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return sum
}

func (s *Store) couponDiscountLocked() decimal.Decimal {
	if s.coupon == nil {
		return decimal.Zero
	}
	subtotal := s.subtotalLocked()
	switch s.coupon.DiscountType {
	case models.DiscountTypePercentage:
		return subtotal.Mul(s.coupon.DiscountValue).Div(hundred).Round(2)
	case models.DiscountTypeFlatAmount:
		if subtotal.LessThan(s.coupon.MinimumOrderAmount) {
			return decimal.Zero
		}
		return s.coupon.DiscountValue
	}
	return decimal.Zero
}

func (s *Store) shippingChargeLocked() decimal.Decimal {
	subtotal := s.subtotalLocked()
	charge := decimal.Zero
	best := decimal.NewFromInt(-1)
	for _, tier := range s.policy.ShippingTiers {
		if subtotal.GreaterThanOrEqual(tier.SubtotalAtLeast) && tier.SubtotalAtLeast.GreaterThan(best) {
			best = tier.SubtotalAtLeast
			charge = tier.Charge
		}
	}
	return charge
}

func (s *Store) finalTotalLocked() decimal.Decimal {
	total := s.subtotalLocked().
		Sub(s.couponDiscountLocked()).
		Add(s.shippingChargeLocked())
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func (s *Store) summaryLocked() models.OrderSummary {
	return models.OrderSummary{
		Subtotal:       s.subtotalLocked(),
		CouponDiscount: s.couponDiscountLocked(),
		DeliveryCharge: s.shippingChargeLocked(),
		GrandTotal:     s.finalTotalLocked(),
	}
}

// commit persists the cart and notifies subscribers. Persistence is skipped
// until hydration has completed.
func (s *Store) commit(ctx context.Context) error {
	if !s.hydrated {
		return errors.New("cart mutated before hydration")
	}

	raw, err := json.Marshal(s.itemsLocked())
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	if err := s.kv.Put(ctx, s.key, raw); err != nil {
		return errors.Wrap(err, "persist cart")
	}
	s.log.WithField("items", len(s.items)).Debug("cart persisted")

	s.notifyLocked()
	return nil
}

func (s *Store) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := Snapshot{
		Items:      s.itemsLocked(),
		TotalItems: 0,
		Summary:    s.summaryLocked(),
	}
	for _, line := range snap.Items {
		snap.TotalItems += line.Quantity
	}
	if s.coupon != nil {
		cp := *s.coupon
		snap.Coupon = &cp
	}
	for _, fn := range s.subs {
		fn(snap)
	}
}
