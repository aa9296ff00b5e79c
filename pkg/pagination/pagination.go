package pagination

// DefaultPageSize is applied when a request does not specify a page size
const DefaultPageSize = 50

// MaxPageSize caps how many rows a single list call may return
const MaxPageSize = 500

// Params contains offset pagination parameters
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize clamps the parameters to sane bounds
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the row offset for the normalized page
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Limit returns the row limit for the normalized page
func (p Params) Limit() int {
	return p.Normalize().PageSize
}

// Page wraps a page of results with its positional metadata
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
}

// NewPage builds a result page from normalized parameters
func NewPage[T any](items []T, params Params, total int64) Page[T] {
	n := params.Normalize()
	return Page[T]{
		Items:      items,
		Page:       n.Page,
		PageSize:   n.PageSize,
		TotalCount: total,
	}
}
