// Package pagination implements page-number pagination for list endpoints.
package pagination

import (
	"errors"
	"net/url"
	"strconv"
)

const MaxPageSize = 100

var ErrInvalidPage = errors.New("invalid page")

// PageRequest is a 1-based page number and a page size.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps the request to sane values, using defaultSize when no size was asked for.
func (p PageRequest) Normalize(defaultSize int) PageRequest {
	if defaultSize <= 0 {
		defaultSize = 10
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = defaultSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func (p PageRequest) Limit() int {
	return p.PageSize
}

// PageResult is one page of results plus enough information to walk the rest.
type PageResult[T any] struct {
	Count    int64   `json:"count"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// NewPageResult builds a page. Asking for a page past the end is ErrInvalidPage,
// except for the first page of an empty result.
func NewPageResult[T any](req PageRequest, items []T, total int64) (*PageResult[T], error) {
	if req.Page > 1 && int64(req.Offset()) >= total {
		return nil, ErrInvalidPage
	}
	if items == nil {
		items = []T{}
	}
	return &PageResult[T]{
		Count:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Results:  items,
	}, nil
}

// Map converts the results while keeping the page metadata.
func Map[T, U any](page *PageResult[T], fn func(T) U) *PageResult[U] {
	out := make([]U, len(page.Results))
	for i, item := range page.Results {
		out[i] = fn(item)
	}
	return &PageResult[U]{
		Count:    page.Count,
		Page:     page.Page,
		PageSize: page.PageSize,
		Next:     page.Next,
		Previous: page.Previous,
		Results:  out,
	}
}

func (r *PageResult[T]) HasNext() bool {
	return int64(r.Page*r.PageSize) < r.Count
}

func (r *PageResult[T]) HasPrevious() bool {
	return r.Page > 1
}

// WithLinks fills Next and Previous with absolute links derived from base, preserving
// every other query parameter.
func (r *PageResult[T]) WithLinks(base *url.URL) *PageResult[T] {
	if base == nil {
		return r
	}
	if r.HasNext() {
		link := pageURL(base, r.Page+1)
		r.Next = &link
	}
	if r.HasPrevious() {
		link := pageURL(base, r.Page-1)
		r.Previous = &link
	}
	return r
}

func pageURL(base *url.URL, page int) string {
	u := *base
	q := u.Query()
	if page == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseInt reads a positive integer, returning 0 for anything else.
func ParseInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
