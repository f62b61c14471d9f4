package service

import (
	"sync"
	"time"
)

// FineQuote is a computed return fine awaiting confirmation. Quotes live in
// process memory only.
type FineQuote struct {
	IssuedBookID         string    `json:"issued_book_id"`
	BookTitle            string    `json:"book_title"`
	StudentName          string    `json:"student_name"`
	DueDate              time.Time `json:"due_date"`
	OverdueDays          int       `json:"overdue_days"`
	Fine                 int       `json:"fine"`
	QuotedAt             time.Time `json:"quoted_at"`
	ExpiresAt            time.Time `json:"expires_at"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
}

// quoteBook holds the latest unexpired quote per loan.
type quoteBook struct {
	mu     sync.Mutex
	ttl    time.Duration
	quotes map[string]FineQuote
}

func newQuoteBook(ttl time.Duration) *quoteBook {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &quoteBook{ttl: ttl, quotes: make(map[string]FineQuote)}
}

func (b *quoteBook) put(q FineQuote) FineQuote {
	b.mu.Lock()
	defer b.mu.Unlock()
	q.ExpiresAt = q.QuotedAt.Add(b.ttl)
	b.quotes[q.IssuedBookID] = q
	b.pruneLocked(q.QuotedAt)
	return q
}

// get returns the quote for loanID if it has not expired at now.
func (b *quoteBook) get(loanID string, now time.Time) (FineQuote, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[loanID]
	if !ok {
		return FineQuote{}, false
	}
	if !now.Before(q.ExpiresAt) {
		delete(b.quotes, loanID)
		return FineQuote{}, false
	}
	return q, true
}

func (b *quoteBook) drop(loanID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.quotes, loanID)
}

func (b *quoteBook) pruneLocked(now time.Time) {
	for k, q := range b.quotes {
		if !now.Before(q.ExpiresAt) {
			delete(b.quotes, k)
		}
	}
}
