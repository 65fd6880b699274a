package pricing

import (
	"sort"

	"github.com/safar/go-bookstore/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ResolveUnitPrice computes the effective per-unit price for a product at a
// given quantity. Precedence:
//
//  1. the product's own percentage discount,
//  2. otherwise the category offer: a flat-amount offer short-circuits the
//     whole resolution (bulk tiers are ignored), a percentage offer discounts
//     the list price,
//  3. the result is rounded to the nearest whole currency unit,
//  4. a matching bulk tier overrides everything above: tier prices are
//     absolute, not further discounted.
//
// Quantities below the lowest tier threshold fall back to the discounted base
// price. Computed prices never go below zero.
func ResolveUnitPrice(p models.Product, quantity int) decimal.Decimal {
	price := p.MRP

	switch {
	case p.HasOwnDiscount && p.OwnDiscountPercentage.IsPositive():
		price = applyPercent(price, p.OwnDiscountPercentage)
	case p.UseCategoryDiscount && p.Category != nil:
		if p.Category.OfferType == models.OfferTypeFlatAmount {
			return clamp(p.MRP.Sub(p.Category.OfferAmount))
		}
		if p.Category.OfferType == models.OfferTypePercentage {
			price = applyPercent(price, p.Category.OfferPercentage)
		}
	}

	price = price.Round(0)

	if tier, ok := matchBulkTier(p.BulkPrices, quantity); ok {
		return clamp(tier.UnitPrice)
	}

	return clamp(price)
}

// DiscountPercent reports the effective discount percentage for display. A
// flat-amount category offer reports 0 regardless of its size.
func DiscountPercent(p models.Product) decimal.Decimal {
	switch {
	case p.HasOwnDiscount && p.OwnDiscountPercentage.IsPositive():
		return p.OwnDiscountPercentage
	case p.UseCategoryDiscount && p.Category != nil && p.Category.OfferType == models.OfferTypePercentage:
		return p.Category.OfferPercentage
	}
	return decimal.Zero
}

// matchBulkTier picks the highest tier whose threshold is met by quantity.
func matchBulkTier(tiers []models.BulkTier, quantity int) (models.BulkTier, bool) {
	if len(tiers) == 0 {
		return models.BulkTier{}, false
	}

	sorted := make([]models.BulkTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].QuantityThreshold < sorted[j].QuantityThreshold
	})

	var match models.BulkTier
	found := false
	for _, tier := range sorted {
		if tier.QuantityThreshold <= quantity {
			match = tier
			found = true
		}
	}
	return match, found
}

func applyPercent(price, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(hundred.Sub(pct)).Div(hundred)
}

func clamp(price decimal.Decimal) decimal.Decimal {
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}
