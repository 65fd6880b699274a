package cart

import (
	"context"
	"testing"

	"github.com/safar/go-bookstore/internal/config"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func testProduct() models.Product {
	return models.Product{
		ID:                    "p1",
		Name:                  "Algebra Workbook",
		Author:                "R. Sharma",
		MRP:                   dec(500),
		HasOwnDiscount:        true,
		OwnDiscountPercentage: dec(20),
	}
}

func bulkProduct() models.Product {
	return models.Product{
		ID:   "p2",
		Name: "Practice Papers",
		MRP:  dec(100),
		BulkPrices: []models.BulkTier{
			{QuantityThreshold: 5, UnitPrice: dec(90)},
			{QuantityThreshold: 10, UnitPrice: dec(80)},
		},
	}
}

func newTestStore(t *testing.T) (*Store, *storage.Memory) {
	t.Helper()
	kv := storage.NewMemory()
	s := NewStore(kv, "sess", Policy{RepriceOnMerge: true}, logrus.New())
	require.NoError(t, s.Hydrate(context.Background()))
	return s, kv
}

func TestAddToCartResolvesPrice(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, testProduct(), 3))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.True(t, items[0].UnitPrice.Equal(dec(400)))
	assert.True(t, s.Subtotal().Equal(dec(1200)))
}

func TestAddToCartMergeCrossesBulkThreshold(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, bulkProduct(), 3))
	require.NoError(t, s.AddToCart(ctx, bulkProduct(), 3))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 6, items[0].Quantity)
	// Crossing the 5-unit tier reprices the whole line.
	assert.True(t, items[0].UnitPrice.Equal(dec(90)), "got %s", items[0].UnitPrice)
}

func TestAddToCartMergeWithoutRepricing(t *testing.T) {
	kv := storage.NewMemory()
	s := NewStore(kv, "sess", Policy{RepriceOnMerge: false}, logrus.New())
	require.NoError(t, s.Hydrate(context.Background()))
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, bulkProduct(), 3))
	require.NoError(t, s.AddToCart(ctx, bulkProduct(), 3))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 6, items[0].Quantity)
	// The line keeps the price resolved when first added.
	assert.True(t, items[0].UnitPrice.Equal(dec(100)), "got %s", items[0].UnitPrice)
}

func TestDecrementToZeroRemovesLine(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, testProduct(), 1))
	require.NoError(t, s.DecrementQuantity(ctx, testProduct()))

	assert.Empty(t, s.Items())
	assert.Equal(t, 0, s.TotalItems())
}

func TestUpdateQuantityZeroRemovesLine(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, testProduct(), 4))
	require.NoError(t, s.UpdateQuantity(ctx, testProduct(), 0))

	assert.Empty(t, s.Items())
}

func TestHydrationRoundTrip(t *testing.T) {
	kv := storage.NewMemory()
	ctx := context.Background()

	s1 := NewStore(kv, "sess", Policy{RepriceOnMerge: true}, logrus.New())
	require.NoError(t, s1.Hydrate(ctx))
	require.NoError(t, s1.AddToCart(ctx, testProduct(), 2))
	require.NoError(t, s1.AddToCart(ctx, bulkProduct(), 7))

	s2 := NewStore(kv, "sess", Policy{RepriceOnMerge: true}, logrus.New())
	require.NoError(t, s2.Hydrate(ctx))

	assert.Equal(t, s1.Items(), s2.Items())
	assert.True(t, s1.Subtotal().Equal(s2.Subtotal()))
}

func TestMutationBeforeHydrationRefused(t *testing.T) {
	kv := storage.NewMemory()
	s := NewStore(kv, "sess", Policy{}, logrus.New())

	err := s.AddToCart(context.Background(), testProduct(), 1)
	assert.Error(t, err)

	// The persisted record must not have been clobbered.
	_, getErr := kv.Get(context.Background(), storage.SessionKey(storage.KeyCart, "sess"))
	assert.ErrorIs(t, getErr, storage.ErrKeyNotFound)
}

func TestCouponNonStacking(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, testProduct(), 3))

	a := models.Coupon{Code: "SAVE10", DiscountType: models.DiscountTypePercentage, DiscountValue: dec(10)}
	b := models.Coupon{Code: "FLAT50", DiscountType: models.DiscountTypeFlatAmount, DiscountValue: dec(50)}

	require.NoError(t, s.ApplyCoupon(ctx, a))
	require.NoError(t, s.ApplyCoupon(ctx, b))

	applied := s.Coupon()
	require.NotNil(t, applied)
	assert.Equal(t, "FLAT50", applied.Code)
	// Only B's discount is live; subtotal 1200 meets any zero minimum.
	assert.True(t, s.CouponDiscount().Equal(dec(50)), "got %s", s.CouponDiscount())
}

func TestFlatCouponBelowMinimumYieldsZero(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, testProduct(), 1)) // subtotal 400
	c := models.Coupon{
		Code:               "BIG100",
		DiscountType:       models.DiscountTypeFlatAmount,
		DiscountValue:      dec(100),
		MinimumOrderAmount: dec(1000),
	}
	require.NoError(t, s.ApplyCoupon(ctx, c))

	assert.True(t, s.CouponDiscount().IsZero())
	assert.True(t, s.FinalTotal().Equal(dec(400)))
}

func TestShippingTiers(t *testing.T) {
	kv := storage.NewMemory()
	s := NewStore(kv, "sess", Policy{
		RepriceOnMerge: true,
		ShippingTiers: []config.ShippingTier{
			{SubtotalAtLeast: dec(0), Charge: dec(50)},
			{SubtotalAtLeast: dec(1000), Charge: dec(0)},
		},
	}, logrus.New())
	require.NoError(t, s.Hydrate(context.Background()))
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, testProduct(), 1)) // subtotal 400
	assert.True(t, s.ShippingCharge().Equal(dec(50)))
	assert.True(t, s.FinalTotal().Equal(dec(450)))

	require.NoError(t, s.UpdateQuantity(ctx, testProduct(), 3)) // subtotal 1200
	assert.True(t, s.ShippingCharge().IsZero())
}

func TestFinalTotalClampedAtZero(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, testProduct(), 1)) // subtotal 400
	c := models.Coupon{Code: "MEGA", DiscountType: models.DiscountTypeFlatAmount, DiscountValue: dec(900)}
	require.NoError(t, s.ApplyCoupon(ctx, c))

	assert.True(t, s.FinalTotal().IsZero())
}

func TestSubscribeNotifiedOnMutation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var got []Snapshot
	s.Subscribe(func(snap Snapshot) { got = append(got, snap) })

	require.NoError(t, s.AddToCart(ctx, testProduct(), 2))
	require.NoError(t, s.RemoveFromCart(ctx, "p1"))

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].TotalItems)
	assert.Equal(t, 0, got[1].TotalItems)
}

func TestClearDeletesPersistedCart(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, testProduct(), 2))
	s.SetCustomerInfo(models.CustomerInfo{Email: "a@b.c"})
	require.NoError(t, s.Clear(ctx))

	assert.Empty(t, s.Items())
	assert.Nil(t, s.CustomerInfo())
	_, err := kv.Get(ctx, storage.SessionKey(storage.KeyCart, "sess"))
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}
