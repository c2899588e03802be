package database

import "gorm.io/gorm"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pagination carries the requested window and, after Paginate, the totals.
type Pagination struct {
	Page  int
	Limit int
	Total int64
	Pages int
}

// NewPagination normalises page and limit: page defaults to 1, limit to
// DefaultPageSize and is capped at MaxPageSize.
func NewPagination(page, limit int) *Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return &Pagination{Page: page, Limit: limit}
}

func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

func (p *Pagination) HasNext() bool {
	return p.Page < p.Pages
}

func (p *Pagination) HasPrevious() bool {
	return p.Page > 1
}

// Paginate counts the rows matched by query, fills in the totals and returns a query
// narrowed to the requested page.
func Paginate(query *gorm.DB, model interface{}, p *Pagination) (*gorm.DB, error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Model(model).Count(&total).Error; err != nil {
		return nil, err
	}
	p.Total = total
	p.Pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))

	return query.Limit(p.Limit).Offset(p.Offset()), nil
}
