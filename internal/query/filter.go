// Package query narrows and paginates a sequence of records. Filters always
// run in the same order: text match, then numeric range, then pagination, so
// page windows index the filtered set and never the raw collection.
package query

import (
	"iter"
	"strings"

	"github.com/phrazzld/resource-api/internal/domain"
)

// Paging defaults and limits.
const (
	DefaultPage = 1
	DefaultSize = 10
	MaxSize     = 100
)

// Criteria describes one search request.
type Criteria struct {
	// MatchField/Match select records whose field contains Match,
	// case-insensitively. An empty Match disables the filter.
	MatchField string
	Match      string

	// RangeField/Min/Max keep records whose numeric field lies in [Min, Max].
	// Nil bounds are open.
	RangeField string
	Min        *float64
	Max        *float64

	// Page is 1-based.
	Page int
	Size int
}

// PageRef points at a neighbouring page.
type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Pagination links to the previous and next pages when they exist.
type Pagination struct {
	Next *PageRef `json:"next,omitempty"`
	Prev *PageRef `json:"prev,omitempty"`
}

// Page is the result of applying a Criteria.
type Page struct {
	// Count is the size of the filtered set before pagination.
	Count      int
	Page       int
	Size       int
	Pagination Pagination
	// Items yields the records of the requested page. It is lazy and can be
	// ranged over any number of times.
	Items iter.Seq[domain.Record]
}

// Collect materializes the page items. The result is never nil.
func (p Page) Collect() []domain.Record {
	out := make([]domain.Record, 0, p.Size)
	if p.Items == nil {
		return out
	}
	for r := range p.Items {
		out = append(out, r)
	}
	return out
}

// Apply filters records by criteria and returns the requested page.
func Apply(records []domain.Record, criteria Criteria) Page {
	page, size := criteria.Page, criteria.Size
	if page < 1 {
		page = DefaultPage
	}
	if size < 1 {
		size = DefaultSize
	}

	filtered := Filter(records, criteria)

	count := 0
	for range filtered {
		count++
	}

	start := (page - 1) * size
	end := page * size

	var pagination Pagination
	if end < count {
		pagination.Next = &PageRef{Page: page + 1, Limit: size}
	}
	if start > 0 {
		pagination.Prev = &PageRef{Page: page - 1, Limit: size}
	}

	return Page{
		Count:      count,
		Page:       page,
		Size:       size,
		Pagination: pagination,
		Items:      Window(filtered, start, end),
	}
}

// Filter lazily yields the records that pass the text match and then the
// numeric range of criteria, preserving input order.
func Filter(records []domain.Record, criteria Criteria) iter.Seq[domain.Record] {
	needle := strings.ToLower(criteria.Match)
	rangeActive := criteria.RangeField != "" && (criteria.Min != nil || criteria.Max != nil)

	return func(yield func(domain.Record) bool) {
		for _, r := range records {
			if needle != "" && !matches(r[criteria.MatchField], needle) {
				continue
			}
			if rangeActive && !inRange(r[criteria.RangeField], criteria.Min, criteria.Max) {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// Window lazily yields the elements of seq at zero-based positions [start, end).
func Window[T any](seq iter.Seq[T], start, end int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if end <= start {
			return
		}
		i := 0
		for v := range seq {
			if i >= end {
				return
			}
			if i >= start && !yield(v) {
				return
			}
			i++
		}
	}
}

func matches(v any, needle string) bool {
	var hay string
	switch t := v.(type) {
	case string:
		hay = t
	case nil:
		return false
	default:
		if _, ok := domain.Number(t); !ok {
			return false
		}
		hay = domain.FormatID(t)
	}
	return strings.Contains(strings.ToLower(hay), needle)
}

func inRange(v any, lo, hi *float64) bool {
	n, ok := domain.Number(v)
	if !ok {
		return false
	}
	if lo != nil && n < *lo {
		return false
	}
	if hi != nil && n > *hi {
		return false
	}
	return true
}
