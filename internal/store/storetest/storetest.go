// Package storetest is a conformance suite every store.Store backend runs.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

// Factory opens a fresh, empty store. It should register its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Books", func(t *testing.T) { testBooks(t, newStore(t)) })
	t.Run("BookCopies", func(t *testing.T) { testBookCopies(t, newStore(t)) })
	t.Run("BookSearch", func(t *testing.T) { testBookSearch(t, newStore(t)) })
	t.Run("SharedTitles", func(t *testing.T) { testSharedTitles(t, newStore(t)) })
	t.Run("Students", func(t *testing.T) { testStudents(t, newStore(t)) })
	t.Run("Staff", func(t *testing.T) { testStaff(t, newStore(t)) })
	t.Run("Loans", func(t *testing.T) { testLoans(t, newStore(t)) })
	t.Run("BookRequests", func(t *testing.T) { testBookRequests(t, newStore(t)) })
	t.Run("ReturnRequests", func(t *testing.T) { testReturnRequests(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("AtomicCommitAndRollback", func(t *testing.T) { testAtomic(t, newStore(t)) })
	t.Run("ConcurrentLastCopy", func(t *testing.T) { testConcurrentLastCopy(t, newStore(t)) })
}

// Now returns a timestamp every backend round-trips exactly.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewBook builds a book with the given copy count.
func NewBook(id, title, author, isbn string, copies int) *domain.Book {
	now := Now()
	return &domain.Book{
		ID:              id,
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		Description:     "A book about " + title,
		TotalCopies:     copies,
		AvailableCopies: copies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewStudent builds a student account.
func NewStudent(id, name, studentID string) *domain.Student {
	return &domain.Student{ID: id, Name: name, StudentID: studentID, PasswordHash: "hash", CreatedAt: Now()}
}

func seedBookAndStudent(t *testing.T, s store.Store) (*domain.Book, *domain.Student) {
	t.Helper()
	ctx := context.Background()
	book := NewBook("book-1984", "1984", "George Orwell", "978-0451524935", 5)
	student := NewStudent("student-alice", "Alice Johnson", "S001")
	require.NoError(t, s.Books().CreateBook(ctx, book))
	require.NoError(t, s.Students().CreateStudent(ctx, student))
	return book, student
}

func testBooks(t *testing.T, s store.Store) {
	ctx := context.Background()
	book := NewBook("book-gatsby", "The Great Gatsby", "F. Scott Fitzgerald", "978-0743273565", 3)
	book.CoverImageURL = "https://covers.example/gatsby.jpg"

	require.NoError(t, s.Books().CreateBook(ctx, book))
	assert.ErrorIs(t, s.Books().CreateBook(ctx, book), store.ErrAlreadyExists)

	got, err := s.Books().GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.Title, got.Title)
	assert.Equal(t, book.Author, got.Author)
	assert.Equal(t, book.ISBN, got.ISBN)
	assert.Equal(t, book.Description, got.Description)
	assert.Equal(t, book.CoverImageURL, got.CoverImageURL)
	assert.Equal(t, 3, got.TotalCopies)
	assert.Equal(t, 3, got.AvailableCopies)
	assert.True(t, book.CreatedAt.Equal(got.CreatedAt))

	byTitle, err := s.Books().GetBookByTitle(ctx, "the great GATSBY")
	require.NoError(t, err)
	assert.Equal(t, book.ID, byTitle.ID)

	byISBN, err := s.Books().GetBookByISBN(ctx, "978-0743273565")
	require.NoError(t, err)
	assert.Equal(t, book.ID, byISBN.ID)

	got.Description = "Revised"
	got.CoverBlurHash = "LEHV6nWB2yk8pyo0adR*.7kCMdnj"
	require.NoError(t, s.Books().UpdateBook(ctx, got))
	updated, err := s.Books().GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Revised", updated.Description)
	assert.Equal(t, got.CoverBlurHash, updated.CoverBlurHash)

	bad := *updated
	bad.AvailableCopies = bad.TotalCopies + 1
	assert.ErrorIs(t, s.Books().UpdateBook(ctx, &bad), store.ErrInvalidInput)

	missing := NewBook("book-missing", "Missing", "Nobody", "0000000000", 1)
	assert.ErrorIs(t, s.Books().UpdateBook(ctx, missing), store.ErrNotFound)

	require.NoError(t, s.Books().DeleteBook(ctx, book.ID))
	_, err = s.Books().GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Books().DeleteBook(ctx, book.ID), store.ErrNotFound)

	_, err = s.Books().GetBookByTitle(ctx, "The Great Gatsby")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// Titles are not unique; a title lookup picks the lowest id every time.
func testSharedTitles(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Books().CreateBook(ctx, NewBook("book-c", "Persuasion", "Jane Austen", "978-0141439686", 1)))
	require.NoError(t, s.Books().CreateBook(ctx, NewBook("book-a", "PERSUASION", "Jane Austen", "978-0486295558", 2)))
	require.NoError(t, s.Books().CreateBook(ctx, NewBook("book-b", "Persuasion", "Jane Austen", "978-1503290563", 1)))

	for range 5 {
		got, err := s.Books().GetBookByTitle(ctx, "persuasion")
		require.NoError(t, err)
		assert.Equal(t, "book-a", got.ID)
	}
}

func testBookCopies(t *testing.T, s store.Store) {
	ctx := context.Background()
	book := NewBook("book-hobbit", "The Hobbit", "J.R.R. Tolkien", "978-0547928227", 2)
	require.NoError(t, s.Books().CreateBook(ctx, book))

	b, err := s.Books().DecrementAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies)

	b, err = s.Books().DecrementAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, b.AvailableCopies)

	_, err = s.Books().DecrementAvailable(ctx, book.ID)
	assert.ErrorIs(t, err, store.ErrNoCopiesAvailable)

	got, err := s.Books().GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies, "failed decrement must not mutate")

	for i := 0; i < 4; i++ {
		b, err = s.Books().IncrementAvailable(ctx, book.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, b.AvailableCopies, "increment clamps at total copies")

	_, err = s.Books().DecrementAvailable(ctx, "book-nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Books().IncrementAvailable(ctx, "book-nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testBookSearch(t *testing.T, s store.Store) {
	ctx := context.Background()
	books := []*domain.Book{
		NewBook("book-1", "To Kill a Mockingbird", "Harper Lee", "978-0061120084", 4),
		NewBook("book-2", "1984", "George Orwell", "978-0451524935", 5),
		NewBook("book-3", "Animal Farm", "George Orwell", "978-0451526342", 2),
	}
	for _, b := range books {
		require.NoError(t, s.Books().CreateBook(ctx, b))
	}

	all, err := s.Books().ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "1984", all[0].Title, "books are ordered by title")

	byAuthor, err := s.Books().SearchBooks(ctx, store.BookQuery{Text: "orwell", Field: store.SearchAuthor})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	byTitle, err := s.Books().SearchBooks(ctx, store.BookQuery{Text: "MOCKING", Field: store.SearchTitle})
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, "book-1", byTitle[0].ID)

	byISBN, err := s.Books().SearchBooks(ctx, store.BookQuery{Text: "0451", Field: store.SearchISBN})
	require.NoError(t, err)
	assert.Len(t, byISBN, 2)

	anyField, err := s.Books().SearchBooks(ctx, store.BookQuery{Text: "farm"})
	require.NoError(t, err)
	assert.Len(t, anyField, 1)

	paged, err := s.Books().SearchBooks(ctx, store.BookQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "Animal Farm", paged[0].Title)
}

func testStudents(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := NewStudent("student-alice", "Alice Johnson", "S001")
	require.NoError(t, s.Students().CreateStudent(ctx, alice))

	sameName := NewStudent("student-2", "alice johnson", "S999")
	assert.ErrorIs(t, s.Students().CreateStudent(ctx, sameName), store.ErrAlreadyExists)

	sameID := NewStudent("student-3", "Someone Else", "s001")
	assert.ErrorIs(t, s.Students().CreateStudent(ctx, sameID), store.ErrAlreadyExists)

	got, err := s.Students().GetStudentByName(ctx, "ALICE JOHNSON")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = s.Students().GetStudentByStudentID(ctx, "s001")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = s.Students().GetStudent(ctx, "student-nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Students().CreateStudent(ctx, NewStudent("student-bob", "Bob Smith", "S002")))
	list, err := s.Students().ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice Johnson", list[0].Name)
}

func testStaff(t *testing.T, s store.Store) {
	ctx := context.Background()
	admin := &domain.StaffUser{ID: "staff-admin", Username: "admin", Role: domain.RoleAdmin, PasswordHash: "h", CreatedAt: Now()}
	require.NoError(t, s.Staff().CreateStaff(ctx, admin))

	dup := &domain.StaffUser{ID: "staff-2", Username: "ADMIN", Role: domain.RoleLibrarian, PasswordHash: "h", CreatedAt: Now()}
	assert.ErrorIs(t, s.Staff().CreateStaff(ctx, dup), store.ErrAlreadyExists)

	got, err := s.Staff().GetStaffByUsername(ctx, "Admin")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)

	got, err = s.Staff().GetStaff(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Username)

	_, err = s.Staff().GetStaffByUsername(ctx, "librarian")
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.Staff().ListStaff(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testLoans(t *testing.T, s store.Store) {
	ctx := context.Background()
	book, student := seedBookAndStudent(t, s)
	issued := Now().Add(-20 * 24 * time.Hour)

	loan := domain.NewIssuedBook("loan-1", book, student, issued)
	require.NoError(t, s.Loans().CreateLoan(ctx, loan))
	assert.ErrorIs(t, s.Loans().CreateLoan(ctx, loan), store.ErrAlreadyExists)

	got, err := s.Loans().GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "1984", got.BookTitle)
	assert.Equal(t, "Alice Johnson", got.StudentName)
	assert.True(t, issued.Equal(got.IssueDate))
	assert.True(t, domain.DueDate(issued).Equal(got.DueDate))
	assert.Nil(t, got.ReturnDate)

	returned := Now()
	got.MarkReturned(returned, 6, true)
	require.NoError(t, s.Loans().UpdateLoan(ctx, got))

	got, err = s.Loans().GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReturnDate)
	assert.True(t, returned.Equal(*got.ReturnDate))
	assert.Equal(t, 6, got.FineAmount)
	assert.True(t, got.FinePaid)

	second := domain.NewIssuedBook("loan-2", book, student, Now())
	require.NoError(t, s.Loans().CreateLoan(ctx, second))

	all, err := s.Loans().ListLoans(ctx, store.LoanFilter{StudentID: student.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "loan-2", all[0].ID, "loans are ordered newest first")

	outstanding, err := s.Loans().ListLoans(ctx, store.LoanFilter{OutstandingOnly: true})
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	assert.Equal(t, "loan-2", outstanding[0].ID)

	none, err := s.Loans().ListLoans(ctx, store.LoanFilter{StudentID: "student-nobody"})
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.ErrorIs(t, s.Loans().UpdateLoan(ctx, domain.NewIssuedBook("loan-x", book, student, Now())), store.ErrNotFound)
}

func testBookRequests(t *testing.T, s store.Store) {
	ctx := context.Background()
	book, student := seedBookAndStudent(t, s)
	now := Now()

	first := domain.NewBookRequest("breq-1", book, student, now.Add(-time.Hour))
	require.NoError(t, s.BookRequests().CreateBookRequest(ctx, first))

	dup := domain.NewBookRequest("breq-2", book, student, now)
	assert.ErrorIs(t, s.BookRequests().CreateBookRequest(ctx, dup), store.ErrAlreadyExists)

	require.NoError(t, first.Reject("staff-1", domain.RejectedByStaff, now))
	require.NoError(t, s.BookRequests().UpdateBookRequest(ctx, first))

	require.NoError(t, s.BookRequests().CreateBookRequest(ctx, dup), "a decided request frees the slot")

	got, err := s.BookRequests().GetBookRequest(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, got.Status)
	assert.Equal(t, domain.RejectedByStaff, got.RejectionReason)
	assert.Equal(t, "staff-1", got.DecidedBy)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, now.Equal(*got.DecidedAt))

	pending, err := s.BookRequests().ListBookRequests(ctx, store.RequestFilter{Status: domain.RequestPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "breq-2", pending[0].ID)

	all, err := s.BookRequests().ListBookRequests(ctx, store.RequestFilter{StudentID: student.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "breq-1", all[0].ID, "requests are ordered oldest first")

	_, err = s.BookRequests().GetBookRequest(ctx, "breq-nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testReturnRequests(t *testing.T, s store.Store) {
	ctx := context.Background()
	book, student := seedBookAndStudent(t, s)
	loan := domain.NewIssuedBook("loan-1", book, student, Now())
	require.NoError(t, s.Loans().CreateLoan(ctx, loan))

	req := domain.NewReturnRequest("rreq-1", loan, Now())
	require.NoError(t, s.ReturnRequests().CreateReturnRequest(ctx, req))

	dup := domain.NewReturnRequest("rreq-2", loan, Now())
	assert.ErrorIs(t, s.ReturnRequests().CreateReturnRequest(ctx, dup), store.ErrAlreadyExists)

	pending, err := s.ReturnRequests().GetPendingReturnRequest(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, pending.ID)
	assert.Equal(t, "1984", pending.BookTitle)

	require.NoError(t, req.Approve("staff-1", 3, Now()))
	require.NoError(t, s.ReturnRequests().UpdateReturnRequest(ctx, req))

	_, err = s.ReturnRequests().GetPendingReturnRequest(ctx, loan.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.ReturnRequests().GetReturnRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, got.Status)
	assert.Equal(t, 3, got.FineAmount)

	approved, err := s.ReturnRequests().ListReturnRequests(ctx, store.RequestFilter{Status: domain.RequestApproved})
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func testSessions(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := Now()
	live := &domain.Session{
		ID: "session-live", PrincipalID: "student-alice", Role: domain.RoleStudent,
		RefreshTokenHash: "abc", CreatedAt: now, LastSeenAt: now, ExpiresAt: now.Add(time.Hour),
		IPAddress: "10.0.0.5", UserAgent: "ledger-test",
	}
	expired := &domain.Session{
		ID: "session-old", PrincipalID: "staff-admin", Role: domain.RoleAdmin,
		RefreshTokenHash: "def", CreatedAt: now, LastSeenAt: now, ExpiresAt: now.Add(-time.Hour),
	}
	require.NoError(t, s.Sessions().CreateSession(ctx, live))
	require.NoError(t, s.Sessions().CreateSession(ctx, expired))

	got, err := s.Sessions().GetSession(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStudent, got.Role)
	assert.Equal(t, "10.0.0.5", got.IPAddress)

	got.RefreshTokenHash = "rotated"
	require.NoError(t, s.Sessions().UpdateSession(ctx, got))
	got, err = s.Sessions().GetSession(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.RefreshTokenHash)

	n, err := s.Sessions().DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Sessions().DeleteSession(ctx, live.ID))
	require.NoError(t, s.Sessions().DeleteSession(ctx, live.ID), "delete is idempotent")
	_, err = s.Sessions().GetSession(ctx, live.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()
	book, student := seedBookAndStudent(t, s)
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Books().DecrementAvailable(ctx, book.ID); err != nil {
			return err
		}
		if err := tx.Loans().CreateLoan(ctx, domain.NewIssuedBook("loan-rollback", book, student, Now())); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Books().GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.AvailableCopies, "rolled back decrement")
	_, err = s.Loans().GetLoan(ctx, "loan-rollback")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Books().DecrementAvailable(ctx, book.ID); err != nil {
			return err
		}
		inTx, err := tx.Books().GetBook(ctx, book.ID)
		if err != nil {
			return err
		}
		if inTx.AvailableCopies != 4 {
			return fmt.Errorf("transaction should see its own write, got %d", inTx.AvailableCopies)
		}
		return tx.Loans().CreateLoan(ctx, domain.NewIssuedBook("loan-commit", book, student, Now()))
	})
	require.NoError(t, err)

	got, err = s.Books().GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.AvailableCopies)
	_, err = s.Loans().GetLoan(ctx, "loan-commit")
	assert.NoError(t, err)

	require.NoError(t, s.Ping(ctx))
}

func testConcurrentLastCopy(t *testing.T, s store.Store) {
	ctx := context.Background()
	book := NewBook("book-last", "The Last Copy", "Anon", "978-0000000002", 1)
	require.NoError(t, s.Books().CreateBook(ctx, book))

	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
				_, err := tx.Books().DecrementAvailable(ctx, book.ID)
				return err
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, store.ErrNoCopiesAvailable):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())

	got, err := s.Books().GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)
}
