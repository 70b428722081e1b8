// internal/pkg/pagination/pagination.go
package pagination

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Params 是规范化后的分页参数，Page 从 1 开始。
type Params struct {
	Page     int
	PageSize int
}

// NewParams 修正非法的页码与页大小。
func NewParams(page, pageSize int) Params {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Params{Page: page, PageSize: pageSize}
}

// Offset 获取数据库查询偏移量
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page 是列表接口统一的响应体，Next/Previous 为相邻页码，不存在时为 null。
type Page[T any] struct {
	Count    int64 `json:"count"`
	Next     *int  `json:"next"`
	Previous *int  `json:"previous"`
	Results  []T   `json:"results"`
}

func NewPage[T any](results []T, count int64, p Params) *Page[T] {
	if results == nil {
		results = []T{}
	}
	page := &Page[T]{Count: count, Results: results}
	if int64(p.Page*p.PageSize) < count {
		next := p.Page + 1
		page.Next = &next
	}
	if p.Page > 1 {
		prev := p.Page - 1
		page.Previous = &prev
	}
	return page
}
