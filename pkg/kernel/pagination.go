package kernel

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Page is the pagination block of a list response.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
	Total  int `json:"total"`
	Pages  int `json:"pages"`
}

type Paginated[T any] struct {
	Items   []T  `json:"items"`
	Page    Page `json:"pagination"`
	HasMore bool `json:"has_more"`
}

func NewPaginated[T any](items []T, page, size, total int) Paginated[T] {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	if items == nil {
		items = []T{}
	}
	return Paginated[T]{
		Items:   items,
		Page:    Page{Number: page, Size: size, Total: total, Pages: pages},
		HasMore: page < pages,
	}
}

// MapPage converts the items of a page and keeps its metadata.
func MapPage[T, U any](p Paginated[T], fn func(T) U) Paginated[U] {
	out := make([]U, 0, len(p.Items))
	for _, item := range p.Items {
		out = append(out, fn(item))
	}
	return Paginated[U]{Items: out, Page: p.Page, HasMore: p.HasMore}
}

// PaginationOptions are 1-based. Call Normalize before using them in a query.
type PaginationOptions struct {
	Page     int
	PageSize int
}

// Normalize fills in defaults. An out-of-range page size falls back to the default.
func (o PaginationOptions) Normalize() PaginationOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 || o.PageSize > MaxPageSize {
		o.PageSize = DefaultPageSize
	}
	return o
}

func (o PaginationOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}
