package registry

import (
	"strings"

	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"golang.org/x/text/cases"
)

// DefaultPageSize is the number of submissions per dashboard page.
const DefaultPageSize = 5

// LoadErrorMessage is shown when the initial fetch fails.
const LoadErrorMessage = "Failed to fetch submissions."

var folder = cases.Fold()

// Filter returns the submissions whose field contains query as typed, ignoring case. Whitespace in
// query is significant; only an empty query keeps every submission.
func Filter(items []submissions.Submission, field submissions.Field, query string) []submissions.Submission {
	needle := folder.String(query)
	filtered := make([]submissions.Submission, 0, len(items))
	for _, item := range items {
		if query == "" || strings.Contains(folder.String(item.Value(field)), needle) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// PageCount returns ceil(total / pageSize).
func PageCount(total, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// ClampPage bounds page to [1, max(1, pageCount)].
func ClampPage(page, pageCount int) int {
	if page > pageCount {
		page = pageCount
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Paginate returns entries [pageSize*(page-1), pageSize*page) of items.
func Paginate(items []submissions.Submission, page, pageSize int) []submissions.Submission {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return append([]submissions.Submission(nil), items[start:end]...)
}

// Page is one page of a filtered listing.
type Page struct {
	Items     []submissions.Submission
	Page      int
	PageCount int
	Total     int
}

// Select filters items and returns the clamped page.
func Select(items []submissions.Submission, field submissions.Field, query string, page, pageSize int) Page {
	filtered := Filter(items, field, query)
	pageCount := PageCount(len(filtered), pageSize)
	page = ClampPage(page, pageCount)
	return Page{
		Items:     Paginate(filtered, page, pageSize),
		Page:      page,
		PageCount: pageCount,
		Total:     len(filtered),
	}
}
