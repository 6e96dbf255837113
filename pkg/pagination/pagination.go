// Package pagination reads limit/offset query parameters and wraps list
// results with their totals.
package pagination

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit and ?offset. Missing values take the defaults,
// limits above MaxLimit are clamped and malformed values are rejected.
func FromContext(c echo.Context) (Params, error) {
	p := Params{Limit: DefaultLimit}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Params{}, echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		p.Limit = min(n, MaxLimit)
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Params{}, echo.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		p.Offset = n
	}
	return p, nil
}

// Page is one slice of a longer listing. Data is never null in JSON.
type Page[T any] struct {
	Data       []T  `json:"data"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

func NewPage[T any](items []T, total int, p Params) *Page[T] {
	if items == nil {
		items = []T{}
	}
	page := &Page[T]{
		Data:   items,
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if next := p.Offset + p.Limit; next < total {
		page.HasMore = true
		page.NextOffset = &next
	}
	return page
}
