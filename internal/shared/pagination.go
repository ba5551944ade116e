package shared

import (
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPerPage is the page size of list screens.
const DefaultPerPage = 20

// MaxPerPage bounds user supplied page sizes.
const MaxPerPage = 100

// MaxPage bounds user supplied page numbers so offsets stay in range.
const MaxPage = 10000

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	page = ClampPage(page)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// PrevPage returns the previous page number.
func (p Pagination) PrevPage() int { return p.Page - 1 }

// NextPage returns the next page number.
func (p Pagination) NextPage() int { return p.Page + 1 }

// ListParams are the query parameters shared by every list screen.
type ListParams struct {
	Page    int
	PerPage int
	Search  string
}

// ClampPage keeps page within 1..MaxPage.
func ClampPage(page int) int {
	if page < 1 {
		return 1
	}
	return min(page, MaxPage)
}

// Offset returns the SQL offset of the page.
func (p ListParams) Offset() int {
	return (ClampPage(p.Page) - 1) * p.Limit()
}

// Limit returns the effective page size.
func (p ListParams) Limit() int {
	if p.PerPage <= 0 {
		return DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		return MaxPerPage
	}
	return p.PerPage
}

// ParseListParams reads page, per_page and q from the request query string.
func ParseListParams(r *http.Request) ListParams {
	q := r.URL.Query()
	params := ListParams{Page: 1, PerPage: DefaultPerPage, Search: strings.TrimSpace(q.Get("q"))}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		params.Page = ClampPage(page)
	}
	if perPage, err := strconv.Atoi(q.Get("per_page")); err == nil && perPage > 0 {
		params.PerPage = perPage
	}
	params.PerPage = params.Limit()
	return params
}

// PageURL rebuilds the current query with a different page number.
func PageURL(u *url.URL, page int) string {
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	return u.Path + "?" + q.Encode()
}

// ParseID parses a positive int64 identifier.
func ParseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
