package catalog

import "github.com/safar/go-bookstore/internal/models"

// OffsetPage is a page of the filtered product list.
type OffsetPage struct {
	Items      []models.Product `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// Paginate slices products into page-sized windows. Pages are 1-based; an
// out-of-range page yields an empty item list, not an error.
func Paginate(products []models.Product, page, pageSize int) *OffsetPage {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	total := len(products)
	totalPages := total / pageSize
	if total%pageSize > 0 {
		totalPages++
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &OffsetPage{
		Items:      products[start:end],
		Total:      int64(total),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
