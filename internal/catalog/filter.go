// Package catalog filters, sorts and pages the live product collection. The
// collection itself is fetched from the backend; nothing here caches it.
package catalog

import (
	"sort"
	"strings"

	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/pricing"
	"github.com/shopspring/decimal"
)

// Sort orders.
const (
	SortPopularity = "popularity"
	SortPriceAsc   = "price_asc"
	SortPriceDesc  = "price_desc"
	SortNewest     = "created_desc"
	SortOldest     = "created_asc"
	SortNameAsc    = "name_asc"
	SortNameDesc   = "name_desc"
)

// FilterSpec selects a subset of the collection. Every facet is a no-op when
// its selection set is empty; the predicate is a conjunction across facets.
type FilterSpec struct {
	Categories    []string
	SubCategories []string
	Authors       []string
	Classes       []string
	Editions      []string
	Status        string
	PriceMin      *decimal.Decimal
	PriceMax      *decimal.Decimal
	Sort          string
}

// Apply returns the visible, ordered subset of products for the filter. The
// price range is evaluated against the resolved single-unit price, not the
// raw list price.
func Apply(products []models.Product, spec FilterSpec) []models.Product {
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if matches(p, spec) {
			out = append(out, p)
		}
	}
	sortProducts(out, spec.Sort)
	return out
}

func matches(p models.Product, spec FilterSpec) bool {
	if len(spec.Categories) > 0 {
		if p.Category == nil || !containsFold(spec.Categories, p.Category.Name) {
			return false
		}
	}
	if len(spec.SubCategories) > 0 && !anyOverlap(spec.SubCategories, p.SubCategories) {
		return false
	}
	if len(spec.Authors) > 0 && !containsFold(spec.Authors, p.Author) {
		return false
	}
	if len(spec.Classes) > 0 && !anyOverlap(spec.Classes, p.Classes) {
		return false
	}
	if len(spec.Editions) > 0 && !containsFold(spec.Editions, p.Edition) {
		return false
	}
	if spec.Status != "" && p.Status != spec.Status {
		return false
	}
	if spec.PriceMin != nil || spec.PriceMax != nil {
		price := pricing.ResolveUnitPrice(p, 1)
		if spec.PriceMin != nil && price.LessThan(*spec.PriceMin) {
			return false
		}
		if spec.PriceMax != nil && price.GreaterThan(*spec.PriceMax) {
			return false
		}
	}
	return true
}

// Search narrows products by naive case-insensitive substring match on name
// and author.
func Search(products []models.Product, query string) []models.Product {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return products
	}
	out := make([]models.Product, 0)
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(strings.ToLower(p.Author), query) {
			out = append(out, p)
		}
	}
	return out
}

func sortProducts(products []models.Product, order string) {
	switch order {
	case SortPriceAsc:
		sort.SliceStable(products, func(i, j int) bool {
			return pricing.ResolveUnitPrice(products[i], 1).LessThan(pricing.ResolveUnitPrice(products[j], 1))
		})
	case SortPriceDesc:
		sort.SliceStable(products, func(i, j int) bool {
			return pricing.ResolveUnitPrice(products[i], 1).GreaterThan(pricing.ResolveUnitPrice(products[j], 1))
		})
	case SortNewest:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		})
	case SortOldest:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].CreatedAt.Before(products[j].CreatedAt)
		})
	case SortNameAsc:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Name < products[j].Name
		})
	case SortNameDesc:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Name > products[j].Name
		})
	default:
		// Popularity: rating descending, missing rating treated as 0.
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Rating.GreaterThan(products[j].Rating)
		})
	}
}

func containsFold(set []string, value string) bool {
	for _, v := range set {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// anyOverlap is ANY-overlap semantics, not ALL.
func anyOverlap(selection, values []string) bool {
	for _, v := range values {
		if containsFold(selection, v) {
			return true
		}
	}
	return false
}
