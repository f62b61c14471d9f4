package service

import (
	"context"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/suggest"
)

// Events is notified after ledger changes commit. The SSE manager implements it.
type Events interface {
	BookCreated(b *domain.Book)
	BookUpdated(b *domain.Book)
	BookDeleted(b *domain.Book)

	LoanIssued(l *domain.IssuedBook)
	LoanReturned(l *domain.IssuedBook)
	FineSettled(l *domain.IssuedBook)

	BookRequestCreated(r *domain.BookRequest)
	BookRequestDecided(r *domain.BookRequest)
	ReturnRequestCreated(r *domain.ReturnRequest)
	ReturnRequestDecided(r *domain.ReturnRequest)
}

// NoopEvents discards every notification.
type NoopEvents struct{}

func (NoopEvents) BookCreated(*domain.Book)                   {}
func (NoopEvents) BookUpdated(*domain.Book)                   {}
func (NoopEvents) BookDeleted(*domain.Book)                   {}
func (NoopEvents) LoanIssued(*domain.IssuedBook)              {}
func (NoopEvents) LoanReturned(*domain.IssuedBook)            {}
func (NoopEvents) FineSettled(*domain.IssuedBook)             {}
func (NoopEvents) BookRequestCreated(*domain.BookRequest)     {}
func (NoopEvents) BookRequestDecided(*domain.BookRequest)     {}
func (NoopEvents) ReturnRequestCreated(*domain.ReturnRequest) {}
func (NoopEvents) ReturnRequestDecided(*domain.ReturnRequest) {}

// BookIndex is the full-text index kept in step with the catalog.
// *search.Index implements it.
type BookIndex interface {
	IndexBook(b *domain.Book) error
	DeleteBook(id string) error
	IDs(ctx context.Context, text string, limit int) ([]string, error)
}

// Suggestions runs post-issue book suggestions. *suggest.Dispatcher implements it.
type Suggestions interface {
	Enabled() bool
	Dispatch(job suggest.Job)
	Result(loanID string) (suggest.Result, bool)
}

type noopSuggestions struct{}

func (noopSuggestions) Enabled() bool        { return false }
func (noopSuggestions) Dispatch(suggest.Job) {}
func (noopSuggestions) Result(loanID string) (suggest.Result, bool) {
	return suggest.Result{LoanID: loanID, Status: suggest.StatusDisabled}, false
}
