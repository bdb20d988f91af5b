package pagination

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params holds 1-based page pagination extracted from a request.
type Params struct {
	Page  int
	Limit int
}

// FromContext reads ?page and ?limit, falling back to defaults for missing or
// non-positive values and capping limit at MaxLimit.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return New(page, limit)
}

// New normalizes raw page/limit values. Page is capped so that Skip cannot
// overflow.
func New(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	// keep Skip within int so OFFSET never wraps negative
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}
	return Params{Page: page, Limit: limit}
}

// Skip is the number of records before the current page.
func (p Params) Skip() int {
	return (p.Page - 1) * p.Limit
}

// Take is the page size.
func (p Params) Take() int {
	return p.Limit
}

// TotalPages returns ceil(total/limit), 0 when there are no records.
func (p Params) TotalPages(total int) int {
	if total <= 0 || p.Limit <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Page < p.TotalPages(total)
}
