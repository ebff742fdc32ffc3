package app

import (
	"net/url"
	"strconv"
)

// Paging defaults for list endpoints.
const (
	DefaultPage  = 1
	DefaultLimit = 3
	MaxLimit     = 100
	MaxPage      = 1_000_000
)

// Page is a validated 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// ParsePage reads page and limit query values. Missing, non-numeric or
// non-positive values fall back to the defaults. Limit is capped at MaxLimit
// and page at MaxPage.
// defLimit <= 0 means DefaultLimit.
func ParsePage(page, limit string, defLimit int) Page {
	if defLimit <= 0 {
		defLimit = DefaultLimit
	}
	p := Page{Page: positiveOr(page, DefaultPage), Limit: positiveOr(limit, defLimit)}
	p.Page = min(p.Page, MaxPage)
	p.Limit = min(p.Limit, MaxLimit)
	return p
}

func positiveOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ListKey builds the cache key of one list page. Distinct (page, limit,
// version) triples always give distinct keys.
func ListKey(kind string, p Page, version string) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("v", version)
	return kind + "?" + q.Encode()
}
