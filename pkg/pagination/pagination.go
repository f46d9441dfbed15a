package pagination

const (
	// DefaultPageSize is the standard page size when one is not provided.
	DefaultPageSize = 20
	// MaxPageSize caps how many rows any list query can request.
	MaxPageSize = 100
)

// Params holds offset pagination inputs from controllers.
type Params struct {
	Page     int
	PageSize int
}

// Meta describes the page returned alongside list results.
type Meta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Normalize clamps page and page size to sane bounds.
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the row offset for the normalized params.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// NewMeta builds page metadata from normalized params and a total row count.
func NewMeta(p Params, total int64) Meta {
	totalPages := int(total) / p.PageSize
	if int(total)%p.PageSize != 0 {
		totalPages++
	}
	return Meta{
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}
