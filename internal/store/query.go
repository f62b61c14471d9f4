package store

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/libraryledger/ledger-server/internal/domain"
)

// SearchField selects which book attribute a catalog search matches.
type SearchField string

const (
	SearchTitle  SearchField = "title"
	SearchAuthor SearchField = "author"
	SearchISBN   SearchField = "isbn"
	SearchAll    SearchField = "all"
)

// Valid reports whether f is a known search field.
func (f SearchField) Valid() bool {
	switch f {
	case SearchTitle, SearchAuthor, SearchISBN, SearchAll:
		return true
	}
	return false
}

// BookQuery is a case-insensitive substring search over the catalog.
type BookQuery struct {
	Text   string
	Field  SearchField // Empty means SearchAll
	Limit  int         // 0 means no limit
	Offset int
}

// Matches applies the query to a single book. Backends without a native
// substring search use it directly.
func (q BookQuery) Matches(b *domain.Book) bool {
	needle := FoldKey(q.Text)
	if needle == "" {
		return true
	}
	contains := func(s string) bool { return strings.Contains(FoldKey(s), needle) }
	switch q.Field {
	case SearchTitle:
		return contains(b.Title)
	case SearchAuthor:
		return contains(b.Author)
	case SearchISBN:
		return contains(b.ISBN)
	default:
		return contains(b.Title) || contains(b.Author) || contains(b.ISBN)
	}
}

// LoanFilter narrows ListLoans. Zero values match everything.
type LoanFilter struct {
	StudentID       string
	BookID          string
	OutstandingOnly bool
}

// Matches reports whether loan satisfies the filter.
func (f LoanFilter) Matches(loan *domain.IssuedBook) bool {
	if f.StudentID != "" && loan.StudentID != f.StudentID {
		return false
	}
	if f.BookID != "" && loan.BookID != f.BookID {
		return false
	}
	if f.OutstandingOnly && !loan.IsOutstanding() {
		return false
	}
	return true
}

// RequestFilter narrows request listings. Results are ordered by
// request date ascending, oldest first.
type RequestFilter struct {
	Status    domain.RequestStatus // Empty matches any status
	StudentID string
}

// MatchesBookRequest reports whether req satisfies the filter.
func (f RequestFilter) MatchesBookRequest(req *domain.BookRequest) bool {
	return (f.Status == "" || req.Status == f.Status) && (f.StudentID == "" || req.StudentID == f.StudentID)
}

// MatchesReturnRequest reports whether req satisfies the filter.
func (f RequestFilter) MatchesReturnRequest(req *domain.ReturnRequest) bool {
	return (f.Status == "" || req.Status == f.Status) && (f.StudentID == "" || req.StudentID == f.StudentID)
}

var folder = cases.Fold()

// FoldKey normalizes s for case-insensitive comparison and unique keys.
// It trims, applies NFKC and Unicode case folding.
func FoldKey(s string) string {
	return folder.String(norm.NFKC.String(strings.TrimSpace(s)))
}

// Page applies offset and limit to an already ordered slice.
func Page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// SortBooks orders books by title, then id.
func SortBooks(books []*domain.Book) {
	sort.Slice(books, func(i, j int) bool {
		ti, tj := FoldKey(books[i].Title), FoldKey(books[j].Title)
		if ti != tj {
			return ti < tj
		}
		return books[i].ID < books[j].ID
	})
}

// SortLoans orders loans by issue date, newest first.
func SortLoans(loans []*domain.IssuedBook) {
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].IssueDate.Equal(loans[j].IssueDate) {
			return loans[i].IssueDate.After(loans[j].IssueDate)
		}
		return loans[i].ID < loans[j].ID
	})
}

// SortBookRequests orders requests oldest first.
func SortBookRequests(reqs []*domain.BookRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].RequestDate.Equal(reqs[j].RequestDate) {
			return reqs[i].RequestDate.Before(reqs[j].RequestDate)
		}
		return reqs[i].ID < reqs[j].ID
	})
}

// SortReturnRequests orders requests oldest first.
func SortReturnRequests(reqs []*domain.ReturnRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].RequestDate.Equal(reqs[j].RequestDate) {
			return reqs[i].RequestDate.Before(reqs[j].RequestDate)
		}
		return reqs[i].ID < reqs[j].ID
	})
}
