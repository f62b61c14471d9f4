package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/id"
	"github.com/libraryledger/ledger-server/internal/store/memstore"
)

var day0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordedEvents captures notifications by name.
type recordedEvents struct {
	mu    sync.Mutex
	names []string
}

func (r *recordedEvents) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *recordedEvents) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func (r *recordedEvents) BookCreated(*domain.Book)                   { r.add("book.created") }
func (r *recordedEvents) BookUpdated(*domain.Book)                   { r.add("book.updated") }
func (r *recordedEvents) BookDeleted(*domain.Book)                   { r.add("book.deleted") }
func (r *recordedEvents) LoanIssued(*domain.IssuedBook)              { r.add("loan.issued") }
func (r *recordedEvents) LoanReturned(*domain.IssuedBook)            { r.add("loan.returned") }
func (r *recordedEvents) FineSettled(*domain.IssuedBook)             { r.add("fine.settled") }
func (r *recordedEvents) BookRequestCreated(*domain.BookRequest)     { r.add("book_request.created") }
func (r *recordedEvents) BookRequestDecided(*domain.BookRequest)     { r.add("book_request.decided") }
func (r *recordedEvents) ReturnRequestCreated(*domain.ReturnRequest) { r.add("return_request.created") }
func (r *recordedEvents) ReturnRequestDecided(*domain.ReturnRequest) { r.add("return_request.decided") }

// ledgerEnv wires the ledger services over an in-memory store.
type ledgerEnv struct {
	store     *memstore.Store
	clock     *testClock
	events    *recordedEvents
	ledger    *LedgerService
	returns   *ReturnService
	dashboard *DashboardService
	librarian *domain.Principal
}

func newLedgerEnv(t *testing.T, policy domain.DelinquencyPolicy) *ledgerEnv {
	t.Helper()
	st := memstore.New()
	t.Cleanup(func() { _ = st.Close() })

	clock := &testClock{now: day0}
	events := &recordedEvents{}

	ledger := NewLedgerService(st, policy, events, nil, nil)
	ledger.now = clock.Now
	returns := NewReturnService(st, 5*time.Minute, events, nil)
	returns.now = clock.Now
	dashboard := NewDashboardService(st, policy, nil)
	dashboard.now = clock.Now

	return &ledgerEnv{
		store:     st,
		clock:     clock,
		events:    events,
		ledger:    ledger,
		returns:   returns,
		dashboard: dashboard,
		librarian: &domain.Principal{ID: "staff-librarian", Role: domain.RoleLibrarian, DisplayName: "librarian"},
	}
}

func (e *ledgerEnv) addBook(t *testing.T, title string, copies int) *domain.Book {
	t.Helper()
	b := &domain.Book{
		ID:              id.MustGenerate(id.Book),
		Title:           title,
		Author:          "Author of " + title,
		ISBN:            "isbn-" + title,
		TotalCopies:     copies,
		AvailableCopies: copies,
		CreatedAt:       day0,
		UpdatedAt:       day0,
	}
	require.NoError(t, e.store.Books().CreateBook(context.Background(), b))
	return b
}

func (e *ledgerEnv) addStudent(t *testing.T, name string) (*domain.Student, *domain.Principal) {
	t.Helper()
	s := &domain.Student{
		ID:        id.MustGenerate(id.Student),
		Name:      name,
		StudentID: "S-" + name,
		CreatedAt: day0,
	}
	require.NoError(t, e.store.Students().CreateStudent(context.Background(), s))
	return s, domain.PrincipalForStudent(s)
}

func (e *ledgerEnv) book(t *testing.T, bookID string) *domain.Book {
	t.Helper()
	b, err := e.store.Books().GetBook(context.Background(), bookID)
	require.NoError(t, err)
	return b
}

func (e *ledgerEnv) loan(t *testing.T, loanID string) *domain.IssuedBook {
	t.Helper()
	l, err := e.store.Loans().GetLoan(context.Background(), loanID)
	require.NoError(t, err)
	return l
}

// issue lends bookID to student at the current clock time.
func (e *ledgerEnv) issue(t *testing.T, student *domain.Student, book *domain.Book) *domain.IssuedBook {
	t.Helper()
	loan, err := e.ledger.DirectIssue(context.Background(), e.librarian, IssueRequest{Student: student.ID, Book: book.ID})
	require.NoError(t, err)
	return loan
}
