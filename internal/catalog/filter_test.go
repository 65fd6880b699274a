package catalog

import (
	"testing"
	"time"

	"github.com/safar/go-bookstore/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func sampleProducts() []models.Product {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []models.Product{
		{
			ID: "a", Name: "Algebra Basics", Author: "Iyer",
			MRP: dec(300), Rating: dec(4),
			Category:      &models.Category{Name: "Mathematics"},
			SubCategories: []string{"algebra"},
			Classes:       []string{"9", "10"},
			Edition:       "2024",
			Status:        models.StockStatusInStock,
			CreatedAt:     base,
		},
		{
			ID: "b", Name: "Modern Physics", Author: "Verma",
			MRP: dec(450), HasOwnDiscount: true, OwnDiscountPercentage: dec(20),
			Rating:        dec(5),
			Category:      &models.Category{Name: "Science"},
			SubCategories: []string{"physics"},
			Classes:       []string{"11", "12"},
			Edition:       "2023",
			Status:        models.StockStatusInStock,
			CreatedAt:     base.AddDate(0, 1, 0),
		},
		{
			ID: "c", Name: "Geometry Papers", Author: "Iyer",
			MRP: dec(150), Rating: decimal.Zero,
			Category:      &models.Category{Name: "Mathematics"},
			SubCategories: []string{"geometry"},
			Classes:       []string{"10"},
			Edition:       "2024",
			Status:        models.StockStatusOutOfStock,
			CreatedAt:     base.AddDate(0, 2, 0),
		},
	}
}

func ids(products []models.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestApplyEmptySpecIsIdentityModuloOrder(t *testing.T) {
	products := sampleProducts()
	got := Apply(products, FilterSpec{})

	require.Len(t, got, len(products))
	// Default popularity order: rating descending, missing rating last.
	assert.Equal(t, []string{"b", "a", "c"}, ids(got))
}

func TestApplyFacetConjunction(t *testing.T) {
	got := Apply(sampleProducts(), FilterSpec{
		Categories: []string{"Mathematics"},
		Authors:    []string{"Iyer"},
		Classes:    []string{"10"},
	})
	assert.Equal(t, []string{"a", "c"}, ids(got))

	got = Apply(sampleProducts(), FilterSpec{
		Categories: []string{"Mathematics"},
		Status:     models.StockStatusInStock,
	})
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestApplySubCategoryAnyOverlap(t *testing.T) {
	got := Apply(sampleProducts(), FilterSpec{
		SubCategories: []string{"algebra", "physics"},
	})
	assert.ElementsMatch(t, []string{"a", "b"}, ids(got))
}

func TestApplyPriceRangeUsesResolvedPrice(t *testing.T) {
	// Product b lists at 450 but resolves to 360 after its 20% discount.
	max := dec(400)
	got := Apply(sampleProducts(), FilterSpec{PriceMax: &max})
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(got))

	min := dec(350)
	got = Apply(sampleProducts(), FilterSpec{PriceMin: &min})
	assert.Equal(t, []string{"b"}, ids(got))
}

func TestApplySortOrders(t *testing.T) {
	products := sampleProducts()

	assert.Equal(t, []string{"c", "a", "b"}, ids(Apply(products, FilterSpec{Sort: SortPriceAsc})))
	assert.Equal(t, []string{"b", "a", "c"}, ids(Apply(products, FilterSpec{Sort: SortPriceDesc})))
	assert.Equal(t, []string{"c", "b", "a"}, ids(Apply(products, FilterSpec{Sort: SortNewest})))
	assert.Equal(t, []string{"a", "b", "c"}, ids(Apply(products, FilterSpec{Sort: SortOldest})))
	assert.Equal(t, []string{"a", "c", "b"}, ids(Apply(products, FilterSpec{Sort: SortNameAsc})))
}

func TestSearchSubstring(t *testing.T) {
	got := Search(sampleProducts(), "phys")
	assert.Equal(t, []string{"b"}, ids(got))

	got = Search(sampleProducts(), "IYER")
	assert.ElementsMatch(t, []string{"a", "c"}, ids(got))

	got = Search(sampleProducts(), "  ")
	assert.Len(t, got, 3)
}

func TestProjectFacets(t *testing.T) {
	f := ProjectFacets(sampleProducts())

	assert.Equal(t, []string{"Mathematics", "Science"}, f.Categories)
	assert.Equal(t, []string{"Iyer", "Verma"}, f.Authors)
	assert.Equal(t, []string{"10", "11", "12", "9"}, f.Classes)
	assert.Equal(t, []string{"2023", "2024"}, f.Editions)
	assert.Equal(t, []string{"algebra", "geometry", "physics"}, f.SubCategories)
}

func TestPaginate(t *testing.T) {
	products := sampleProducts()

	page := Paginate(products, 1, 2)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)

	page = Paginate(products, 2, 2)
	assert.Len(t, page.Items, 1)

	page = Paginate(products, 9, 2)
	assert.Empty(t, page.Items)
}
