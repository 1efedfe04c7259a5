package model

import "math"

// Pagination bounds.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Page is a validated 1-based page request.
type Page struct {
	Number int
	Limit  int
}

// Offset is the number of rows skipped before this page. It saturates at
// math.MaxInt so a huge page number still lands past the last row.
func (p Page) Offset() int {
	if p.Number < 1 || p.Limit < 1 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Limit
}

// PageResult is one page of profiles plus the total page count.
type PageResult struct {
	Users []Profile `json:"users"`
	Pages int       `json:"pages"`
}

// PageCount is ceil(total/limit); zero rows means zero pages.
func PageCount(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
