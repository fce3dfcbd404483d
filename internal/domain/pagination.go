package domain

// PaginationParams selects one page of an ordered list. Page is 1-based.
type PaginationParams struct {
	Page     int
	PageSize int
}

// Bounds returns the half-open index range [start, end) of the page within
// a list of total items. Pages past the end yield an empty range.
func (p PaginationParams) Bounds(total int) (start, end int) {
	if p.Page > 1 && p.PageSize > 0 {
		start = min((p.Page-1)*p.PageSize, total)
	}
	end = min(start+max(p.PageSize, 0), total)
	return start, end
}

// Pages returns how many pages of PageSize cover total items.
func (p PaginationParams) Pages(total int) int {
	if p.PageSize <= 0 {
		return 0
	}
	return (total + p.PageSize - 1) / p.PageSize
}
