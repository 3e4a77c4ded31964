package models

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// Pagination selects one page of a list query. The zero value is the first
// page at the default size.
type Pagination struct {
	Page     int
	PageSize int
}

// DefaultPagination returns the first page at the default size.
func DefaultPagination() Pagination {
	return Pagination{Page: 1, PageSize: defaultPageSize}
}

// Offset is the number of rows skipped before this page.
func (p Pagination) Offset() int {
	return (max(p.Page, 1) - 1) * p.Limit()
}

// Limit is the page size clamped to [1, maxPageSize].
func (p Pagination) Limit() int {
	switch {
	case p.PageSize < 1:
		return defaultPageSize
	case p.PageSize > maxPageSize:
		return maxPageSize
	}
	return p.PageSize
}

// TotalPages is the number of pages needed for total rows, never less than one.
func (p Pagination) TotalPages(total int) int {
	size := p.Limit()
	return max((total+size-1)/size, 1)
}
