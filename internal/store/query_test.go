package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/libraryledger/ledger-server/internal/domain"
)

func TestFoldKey(t *testing.T) {
	assert.Equal(t, FoldKey("Alice Johnson"), FoldKey("  alice JOHNSON "))
	assert.Equal(t, FoldKey("STRASSE"), FoldKey("straße"))
	assert.NotEqual(t, FoldKey("alice"), FoldKey("alicia"))
}

func TestBookQuery_Matches(t *testing.T) {
	book := &domain.Book{Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", ISBN: "978-0743273565"}

	tests := []struct {
		name  string
		query BookQuery
		want  bool
	}{
		{"empty matches", BookQuery{}, true},
		{"title substring", BookQuery{Text: "great", Field: SearchTitle}, true},
		{"title does not match author", BookQuery{Text: "scott", Field: SearchTitle}, false},
		{"author substring", BookQuery{Text: "SCOTT", Field: SearchAuthor}, true},
		{"isbn substring", BookQuery{Text: "0743", Field: SearchISBN}, true},
		{"all fields", BookQuery{Text: "fitz"}, true},
		{"no match", BookQuery{Text: "orwell"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Matches(book))
		})
	}
}

func TestLoanFilter_Matches(t *testing.T) {
	loan := &domain.IssuedBook{StudentID: "s1", BookID: "b1"}
	assert.True(t, LoanFilter{}.Matches(loan))
	assert.True(t, LoanFilter{StudentID: "s1", OutstandingOnly: true}.Matches(loan))
	assert.False(t, LoanFilter{BookID: "b2"}.Matches(loan))

	now := time.Now()
	loan.ReturnDate = &now
	assert.False(t, LoanFilter{OutstandingOnly: true}.Matches(loan))
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, Page(items, 2, 2))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, Page(items, 0, 0))
	assert.Empty(t, Page(items, 10, 2))
}

func TestSortBookRequests_OldestFirst(t *testing.T) {
	now := time.Now()
	reqs := []*domain.BookRequest{
		{ID: "b", RequestDate: now},
		{ID: "a", RequestDate: now.Add(-time.Hour)},
	}
	SortBookRequests(reqs)
	assert.Equal(t, "a", reqs[0].ID)
}
