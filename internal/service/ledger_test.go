package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/store"
	"github.com/libraryledger/ledger-server/internal/suggest"
)

func TestDirectIssue(t *testing.T) {
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Dune", 2)
	student, _ := env.addStudent(t, "Alice")

	loan := env.issue(t, student, book)

	assert.Equal(t, book.ID, loan.BookID)
	assert.Equal(t, "Dune", loan.BookTitle)
	assert.Equal(t, "Alice", loan.StudentName)
	assert.Equal(t, day0, loan.IssueDate)
	assert.Equal(t, day0.Add(14*24*time.Hour), loan.DueDate)
	assert.True(t, loan.IsOutstanding())
	assert.Equal(t, 1, env.book(t, book.ID).AvailableCopies)
	assert.Equal(t, []string{"loan.issued", "book.updated"}, env.events.Names())
}

func TestDirectIssue_ResolvesNamesAndTitles(t *testing.T) {
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "The Hobbit", 1)
	student, _ := env.addStudent(t, "Bob")

	loan, err := env.ledger.DirectIssue(context.Background(), env.librarian, IssueRequest{
		Student: "bob",
		Book:    "the hobbit",
	})
	require.NoError(t, err)
	assert.Equal(t, student.ID, loan.StudentID)
	assert.Equal(t, book.ID, loan.BookID)
}

func TestDirectIssue_Rejections(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Emma", 1)
	student, studentPrincipal := env.addStudent(t, "Cara")

	t.Run("students cannot issue", func(t *testing.T) {
		_, err := env.ledger.DirectIssue(ctx, studentPrincipal, IssueRequest{Student: student.ID, Book: book.ID})
		assert.ErrorIs(t, err, domainerrors.ErrForbidden)
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := env.ledger.DirectIssue(ctx, env.librarian, IssueRequest{Student: "nobody", Book: book.ID})
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})

	t.Run("unknown book", func(t *testing.T) {
		_, err := env.ledger.DirectIssue(ctx, env.librarian, IssueRequest{Student: student.ID, Book: "missing"})
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})

	t.Run("blank fields", func(t *testing.T) {
		_, err := env.ledger.DirectIssue(ctx, env.librarian, IssueRequest{Student: " ", Book: ""})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
	})

	t.Run("no copies left", func(t *testing.T) {
		env.issue(t, student, book)
		_, err := env.ledger.DirectIssue(ctx, env.librarian, IssueRequest{Student: student.ID, Book: book.ID})
		assert.ErrorIs(t, err, domainerrors.ErrConflict)
		assert.Equal(t, 0, env.book(t, book.ID).AvailableCopies)
	})
}

func TestDirectIssue_LastCopyConcurrently(t *testing.T) {
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Last Copy", 1)

	const workers = 16
	students := make([]*domain.Student, workers)
	for i := range students {
		students[i], _ = env.addStudent(t, "student-"+string(rune('a'+i)))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, s := range students {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.DirectIssue(context.Background(), env.librarian, IssueRequest{Student: s.ID, Book: book.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case domainerrors.CodeOf(err) == domainerrors.CodeConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 0, env.book(t, book.ID).AvailableCopies)

	loans, err := env.store.Loans().ListLoans(context.Background(), store.LoanFilter{BookID: book.ID})
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

func TestDelinquentStudentIsBlocked(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	first := env.addBook(t, "First", 1)
	second := env.addBook(t, "Second", 1)
	student, principal := env.addStudent(t, "Dan")

	env.issue(t, student, first)
	env.clock.Advance(15 * 24 * time.Hour)

	status, err := env.ledger.GetDelinquencyStatus(ctx, student.StudentID)
	require.NoError(t, err)
	assert.True(t, status.IsDelinquent)
	assert.Equal(t, 1, status.OverdueBooksCount)

	_, err = env.ledger.DirectIssue(ctx, env.librarian, IssueRequest{Student: student.ID, Book: second.ID})
	assert.ErrorIs(t, err, domainerrors.ErrPolicyViolation)
	assert.Equal(t, 1, env.book(t, second.ID).AvailableCopies)

	_, err = env.ledger.CreateBookRequest(ctx, principal, second.ID)
	assert.ErrorIs(t, err, domainerrors.ErrPolicyViolation)
}

func TestCreateBookRequest(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Persuasion", 1)
	student, principal := env.addStudent(t, "Eve")

	req, err := env.ledger.CreateBookRequest(ctx, principal, "Persuasion")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, book.ID, req.BookID)
	assert.Equal(t, student.ID, req.StudentID)
	assert.Equal(t, 1, env.book(t, book.ID).AvailableCopies, "requests do not reserve copies")

	_, err = env.ledger.CreateBookRequest(ctx, principal, book.ID)
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	_, err = env.ledger.CreateBookRequest(ctx, env.librarian, book.ID)
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
}

func TestApproveBookRequest(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Ivanhoe", 1)
	_, principal := env.addStudent(t, "Fay")

	req, err := env.ledger.CreateBookRequest(ctx, principal, book.ID)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	approved, loan, err := env.ledger.ApproveBookRequest(ctx, env.librarian, req.ID)
	require.NoError(t, err)
	require.NotNil(t, loan)

	assert.Equal(t, domain.RequestApproved, approved.Status)
	assert.Equal(t, loan.ID, approved.IssuedBookID)
	assert.Equal(t, env.librarian.ID, approved.DecidedBy)
	assert.Equal(t, day0.Add(time.Hour), loan.IssueDate)
	assert.Equal(t, domain.DueDate(loan.IssueDate), loan.DueDate)
	assert.Equal(t, loan.IssueDate.Add(domain.LoanPeriod), loan.DueDate)
	assert.Equal(t, 0, env.book(t, book.ID).AvailableCopies)

	_, _, err = env.ledger.ApproveBookRequest(ctx, env.librarian, req.ID)
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	_, err = env.ledger.RejectBookRequest(ctx, env.librarian, req.ID, "")
	assert.ErrorIs(t, err, domainerrors.ErrConflict)
}

func TestApproveBookRequest_AutoRejects(t *testing.T) {
	ctx := context.Background()

	t.Run("book unavailable", func(t *testing.T) {
		env := newLedgerEnv(t, domain.DelinquencyPolicy{})
		book := env.addBook(t, "Scarce", 1)
		holder, _ := env.addStudent(t, "Holder")
		_, principal := env.addStudent(t, "Waiter")

		req, err := env.ledger.CreateBookRequest(ctx, principal, book.ID)
		require.NoError(t, err)
		env.issue(t, holder, book)

		rejected, loan, err := env.ledger.ApproveBookRequest(ctx, env.librarian, req.ID)
		assert.ErrorIs(t, err, domainerrors.ErrConflict)
		assert.Nil(t, loan)
		require.NotNil(t, rejected)
		assert.Equal(t, domain.RequestRejected, rejected.Status)
		assert.Equal(t, domain.RejectedBookUnavailable, rejected.RejectionReason)

		stored, err := env.store.BookRequests().GetBookRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RequestRejected, stored.Status)
		assert.Equal(t, 0, env.book(t, book.ID).AvailableCopies)
	})

	t.Run("student became delinquent", func(t *testing.T) {
		env := newLedgerEnv(t, domain.DelinquencyPolicy{})
		overdue := env.addBook(t, "Overdue", 1)
		wanted := env.addBook(t, "Wanted", 1)
		student, principal := env.addStudent(t, "Late")

		req, err := env.ledger.CreateBookRequest(ctx, principal, wanted.ID)
		require.NoError(t, err)
		env.issue(t, student, overdue)
		env.clock.Advance(20 * 24 * time.Hour)

		rejected, _, err := env.ledger.ApproveBookRequest(ctx, env.librarian, req.ID)
		assert.ErrorIs(t, err, domainerrors.ErrPolicyViolation)
		require.NotNil(t, rejected)
		assert.Equal(t, domain.RejectedStudentDelinquent, rejected.RejectionReason)
		assert.Equal(t, 1, env.book(t, wanted.ID).AvailableCopies)
	})

	t.Run("book deleted", func(t *testing.T) {
		env := newLedgerEnv(t, domain.DelinquencyPolicy{})
		book := env.addBook(t, "Gone", 1)
		_, principal := env.addStudent(t, "Reader")

		req, err := env.ledger.CreateBookRequest(ctx, principal, book.ID)
		require.NoError(t, err)
		require.NoError(t, env.store.Books().DeleteBook(ctx, book.ID))

		rejected, _, err := env.ledger.ApproveBookRequest(ctx, env.librarian, req.ID)
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
		require.NotNil(t, rejected)
		assert.Equal(t, domain.RejectedBookMissing, rejected.RejectionReason)
	})
}

func TestRejectBookRequest(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Middlemarch", 1)
	_, principal := env.addStudent(t, "Gus")

	req, err := env.ledger.CreateBookRequest(ctx, principal, book.ID)
	require.NoError(t, err)

	rejected, err := env.ledger.RejectBookRequest(ctx, env.librarian, req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, rejected.Status)
	assert.Equal(t, domain.RejectedByStaff, rejected.RejectionReason)
	assert.Equal(t, 1, env.book(t, book.ID).AvailableCopies)

	// A decided request no longer blocks a new one.
	_, err = env.ledger.CreateBookRequest(ctx, principal, book.ID)
	assert.NoError(t, err)
}

func TestListBookRequests_StudentsSeeOwn(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Shared", 3)
	_, alice := env.addStudent(t, "Alice")
	_, bob := env.addStudent(t, "Bob")

	_, err := env.ledger.CreateBookRequest(ctx, alice, book.ID)
	require.NoError(t, err)
	_, err = env.ledger.CreateBookRequest(ctx, bob, book.ID)
	require.NoError(t, err)

	mine, err := env.ledger.ListBookRequests(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, alice.ID, mine[0].StudentID)

	all, err := env.ledger.ListBookRequests(ctx, env.librarian, domain.RequestPending)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = env.ledger.ListBookRequests(ctx, env.librarian, "archived")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestLoanVisibility(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Private", 2)
	owner, ownerP := env.addStudent(t, "Owner")
	_, otherP := env.addStudent(t, "Other")

	loan := env.issue(t, owner, book)

	got, err := env.ledger.GetLoan(ctx, ownerP, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, got.ID)

	_, err = env.ledger.GetLoan(ctx, otherP, loan.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	loans, err := env.ledger.ListLoans(ctx, otherP, LoanQuery{Student: owner.ID})
	require.NoError(t, err)
	assert.Empty(t, loans)

	loans, err = env.ledger.ListLoans(ctx, env.librarian, LoanQuery{Student: owner.Name, OutstandingOnly: true})
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

// fakeSuggestions records dispatched jobs.
type fakeSuggestions struct {
	mu   sync.Mutex
	jobs []suggest.Job
}

func (f *fakeSuggestions) Enabled() bool { return true }

func (f *fakeSuggestions) Dispatch(job suggest.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
}

func (f *fakeSuggestions) Result(loanID string) (suggest.Result, bool) {
	return suggest.Result{LoanID: loanID, Status: suggest.StatusReady, Suggestions: []string{"Sequel"}}, true
}

func TestIssueDispatchesSuggestions(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	fake := &fakeSuggestions{}
	env.ledger.suggestions = fake

	book := env.addBook(t, "Foundation", 1)
	student, principal := env.addStudent(t, "Hal")
	loan := env.issue(t, student, book)

	require.Len(t, fake.jobs, 1)
	assert.Equal(t, suggest.Job{
		LoanID:      loan.ID,
		StudentID:   student.ID,
		BookTitle:   "Foundation",
		StudentName: "Hal",
	}, fake.jobs[0])

	res, err := env.ledger.Suggestions(ctx, principal, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, suggest.StatusReady, res.Status)
	assert.Equal(t, []string{"Sequel"}, res.Suggestions)
}

func TestSuggestionsDisabled(t *testing.T) {
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Quiet", 1)
	student, principal := env.addStudent(t, "Ivy")
	loan := env.issue(t, student, book)

	res, err := env.ledger.Suggestions(context.Background(), principal, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, suggest.StatusDisabled, res.Status)
}

// loanWriteFailure makes CreateLoan fail inside transactions after the copy
// has already been taken.
type loanWriteFailure struct {
	store.Store
	err error
}

func (f *loanWriteFailure) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) error {
	return f.Store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		return fn(ctx, failingLoanRepos{Repositories: tx, err: f.err})
	})
}

type failingLoanRepos struct {
	store.Repositories
	err error
}

func (r failingLoanRepos) Loans() store.LoanRepository {
	return failingLoans{LoanRepository: r.Repositories.Loans(), err: r.err}
}

type failingLoans struct {
	store.LoanRepository
	err error
}

func (l failingLoans) CreateLoan(context.Context, *domain.IssuedBook) error { return l.err }

func TestApproveBookRequest_LoanWriteFailureKeepsCopy(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Fragile", 1)
	_, principal := env.addStudent(t, "Ivy")

	req, err := env.ledger.CreateBookRequest(ctx, principal, book.ID)
	require.NoError(t, err)

	broken := NewLedgerService(&loanWriteFailure{Store: env.store, err: store.ErrAlreadyExists}, domain.DelinquencyPolicy{}, nil, nil, nil)
	broken.now = env.clock.Now

	got, loan, err := broken.ApproveBookRequest(ctx, env.librarian, req.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainerrors.ErrConflict)
	assert.Equal(t, domainerrors.CodeInternal, domainerrors.CodeOf(err))
	assert.Nil(t, got)
	assert.Nil(t, loan)

	stored, err := env.store.BookRequests().GetBookRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, stored.Status, "request is not auto-rejected")
	assert.Equal(t, 1, env.book(t, book.ID).AvailableCopies, "copy is not leaked")

	_, err = broken.DirectIssue(ctx, env.librarian, IssueRequest{Student: principal.ID, Book: book.ID})
	assert.Equal(t, domainerrors.CodeInternal, domainerrors.CodeOf(err))
	assert.Equal(t, 1, env.book(t, book.ID).AvailableCopies)
}

func TestDirectIssue_SharedTitleIsAmbiguous(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	first := env.addBook(t, "Persuasion", 1)
	second := env.addBook(t, "PERSUASION", 1)
	student, _ := env.addStudent(t, "Jo")

	_, err := env.ledger.DirectIssue(ctx, env.librarian, IssueRequest{Student: student.Name, Book: "persuasion"})
	assert.ErrorIs(t, err, domainerrors.ErrConflict)
	assert.Equal(t, 1, env.book(t, first.ID).AvailableCopies)
	assert.Equal(t, 1, env.book(t, second.ID).AvailableCopies)

	loan, err := env.ledger.DirectIssue(ctx, env.librarian, IssueRequest{Student: student.Name, Book: second.ID})
	require.NoError(t, err)
	assert.Equal(t, second.ID, loan.BookID)
}
