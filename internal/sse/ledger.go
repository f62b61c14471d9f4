package sse

import (
	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/suggest"
)

// The methods below let services and the suggestion dispatcher publish
// without knowing about the wire format.

func (m *Manager) BookCreated(b *domain.Book) { m.Emit(NewBookEvent(EventBookCreated, b)) }
func (m *Manager) BookUpdated(b *domain.Book) { m.Emit(NewBookEvent(EventBookUpdated, b)) }
func (m *Manager) BookDeleted(b *domain.Book) { m.Emit(NewBookEvent(EventBookDeleted, b)) }

func (m *Manager) LoanIssued(l *domain.IssuedBook)   { m.Emit(NewLoanEvent(EventLoanIssued, l)) }
func (m *Manager) LoanReturned(l *domain.IssuedBook) { m.Emit(NewLoanEvent(EventLoanReturned, l)) }
func (m *Manager) FineSettled(l *domain.IssuedBook)  { m.Emit(NewLoanEvent(EventFineSettled, l)) }

func (m *Manager) BookRequestCreated(r *domain.BookRequest) {
	m.Emit(NewBookRequestEvent(EventBookRequestCreated, r))
}

func (m *Manager) BookRequestDecided(r *domain.BookRequest) {
	m.Emit(NewBookRequestEvent(EventBookRequestDecided, r))
}

func (m *Manager) ReturnRequestCreated(r *domain.ReturnRequest) {
	m.Emit(NewReturnRequestEvent(EventReturnRequestCreated, r))
}

func (m *Manager) ReturnRequestDecided(r *domain.ReturnRequest) {
	m.Emit(NewReturnRequestEvent(EventReturnRequestDecided, r))
}

// SuggestionsReady implements suggest.Notifier.
func (m *Manager) SuggestionsReady(r suggest.Result) { m.Emit(NewSuggestionsEvent(r)) }

// SuggestionsFailed implements suggest.Notifier.
func (m *Manager) SuggestionsFailed(r suggest.Result) { m.Emit(NewSuggestionsEvent(r)) }

var _ suggest.Notifier = (*Manager)(nil)
