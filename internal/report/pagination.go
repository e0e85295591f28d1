package report

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Paginate slices rows to the requested page.
func Paginate(rows []Row, page, perPage int) ([]Row, Pagination) {
	p := NewPagination(page, perPage, len(rows))
	if p.Page > p.TotalPages {
		return []Row{}, p
	}
	start := (p.Page - 1) * p.PerPage
	if start < 0 || start >= len(rows) {
		return []Row{}, p
	}
	end := start + p.PerPage
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], p
}
