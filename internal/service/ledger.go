package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/id"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
	"github.com/libraryledger/ledger-server/internal/suggest"
)

// LedgerService issues books, directly or through borrow requests.
type LedgerService struct {
	store       store.Store
	policy      domain.DelinquencyPolicy
	events      Events
	suggestions Suggestions
	logger      *slog.Logger
	now         func() time.Time
}

// NewLedgerService creates the issuance service. events and suggestions may be nil.
func NewLedgerService(
	st store.Store,
	policy domain.DelinquencyPolicy,
	events Events,
	suggestions Suggestions,
	log *slog.Logger,
) *LedgerService {
	if events == nil {
		events = NoopEvents{}
	}
	if suggestions == nil {
		suggestions = noopSuggestions{}
	}
	return &LedgerService{
		store:       st,
		policy:      policy,
		events:      events,
		suggestions: suggestions,
		logger:      logger.OrDiscard(log),
		now:         systemNow,
	}
}

// IssueRequest names a student and a book for direct issuance. Either may
// be given as an id or, as on the desk form, by name or title.
type IssueRequest struct {
	Student string `json:"student" validate:"required,notblank"`
	Book    string `json:"book" validate:"required,notblank"`
}

// GetDelinquencyStatus reports whether the referenced student may borrow.
func (s *LedgerService) GetDelinquencyStatus(ctx context.Context, studentRef string) (*domain.DelinquencyStatus, error) {
	student, err := findStudent(ctx, s.store, studentRef)
	if err != nil {
		return nil, err
	}
	status, err := delinquency(ctx, s.store, student.ID, s.now(), s.policy)
	if err != nil {
		return nil, fmt.Errorf("evaluate delinquency: %w", err)
	}
	return &status, nil
}

// DirectIssue lends one copy of a book to a student at the desk.
func (s *LedgerService) DirectIssue(ctx context.Context, actor *domain.Principal, req IssueRequest) (*domain.IssuedBook, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	var (
		loan *domain.IssuedBook
		book *domain.Book
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		student, err := findStudent(ctx, tx, req.Student)
		if err != nil {
			return err
		}
		book, err = findBook(ctx, tx, req.Book)
		if err != nil {
			return err
		}
		loan, book, err = s.issue(ctx, tx, student, book)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterIssue(loan, book)
	s.logger.Info("book issued",
		"loan_id", loan.ID,
		"book_id", loan.BookID,
		"student_id", loan.StudentID,
		"by", actor.ID)
	return loan, nil
}

// issue runs the checks and mutation shared by both issuance paths.
// It must be called inside Atomic.
func (s *LedgerService) issue(ctx context.Context, tx store.Repositories, student *domain.Student, book *domain.Book) (*domain.IssuedBook, *domain.Book, error) {
	now := s.now()
	status, err := delinquency(ctx, tx, student.ID, now, s.policy)
	if err != nil {
		return nil, nil, err
	}
	if status.IsDelinquent {
		return nil, nil, delinquentError(status)
	}

	updated, err := tx.Books().DecrementAvailable(ctx, book.ID)
	switch {
	case errors.Is(err, store.ErrNoCopiesAvailable):
		return nil, nil, domainerrors.Conflict("no copies of %q are available", book.Title).WithCause(err)
	case err != nil:
		return nil, nil, mapNotFound(err, "book %q not found", book.ID)
	}

	loanID, err := id.Generate(id.Loan)
	if err != nil {
		return nil, nil, err
	}
	loan := domain.NewIssuedBook(loanID, updated, student, now)
	if err := tx.Loans().CreateLoan(ctx, loan); err != nil {
		return nil, nil, domainerrors.Wrapf(err, domainerrors.CodeInternal, "record loan of %q", book.Title)
	}
	return loan, updated, nil
}

// afterIssue publishes the loan and starts the suggestion lookup. Neither
// can affect the committed loan.
func (s *LedgerService) afterIssue(loan *domain.IssuedBook, book *domain.Book) {
	s.events.LoanIssued(loan)
	s.events.BookUpdated(book)
	s.suggestions.Dispatch(suggest.Job{
		LoanID:      loan.ID,
		StudentID:   loan.StudentID,
		BookTitle:   loan.BookTitle,
		StudentName: loan.StudentName,
	})
}

// CreateBookRequest files a borrow request for the calling student.
func (s *LedgerService) CreateBookRequest(ctx context.Context, actor *domain.Principal, bookRef string) (*domain.BookRequest, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}

	var req *domain.BookRequest
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		student, err := tx.Students().GetStudent(ctx, actor.ID)
		if err != nil {
			return mapNotFound(err, "student not found")
		}
		now := s.now()
		status, err := delinquency(ctx, tx, student.ID, now, s.policy)
		if err != nil {
			return err
		}
		if status.IsDelinquent {
			return delinquentError(status)
		}
		book, err := findBook(ctx, tx, bookRef)
		if err != nil {
			return err
		}

		reqID, err := id.Generate(id.BookRequest)
		if err != nil {
			return err
		}
		req = domain.NewBookRequest(reqID, book, student, now)
		if err := tx.BookRequests().CreateBookRequest(ctx, req); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return domainerrors.Conflict("a request for %q is already pending", book.Title).WithCause(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.BookRequestCreated(req)
	return req, nil
}

// ApproveBookRequest re-checks the student and the book, then issues.
// When a re-check fails the request is rejected with the reason recorded
// and the matching error is returned together with the rejected request.
func (s *LedgerService) ApproveBookRequest(ctx context.Context, actor *domain.Principal, requestID string) (*domain.BookRequest, *domain.IssuedBook, error) {
	if err := requireStaff(actor); err != nil {
		return nil, nil, err
	}

	var (
		req       *domain.BookRequest
		loan      *domain.IssuedBook
		book      *domain.Book
		rejectErr error
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		rejectErr = nil // Atomic may retry fn
		var err error
		req, err = tx.BookRequests().GetBookRequest(ctx, requestID)
		if err != nil {
			return mapNotFound(err, "book request %q not found", requestID)
		}
		if !req.IsPending() {
			return domainerrors.Conflict("book request is already %s", req.Status)
		}

		reject := func(reason domain.RejectionReason, cause error) error {
			if err := req.Reject(actor.ID, reason, s.now()); err != nil {
				return decided(err)
			}
			rejectErr = cause
			return tx.BookRequests().UpdateBookRequest(ctx, req)
		}

		student, err := tx.Students().GetStudent(ctx, req.StudentID)
		if errors.Is(err, store.ErrNotFound) {
			return reject(domain.RejectedStudentMissing, domainerrors.NotFound("student no longer exists"))
		} else if err != nil {
			return err
		}
		book, err = tx.Books().GetBook(ctx, req.BookID)
		if errors.Is(err, store.ErrNotFound) {
			return reject(domain.RejectedBookMissing, domainerrors.NotFound("book no longer exists"))
		} else if err != nil {
			return err
		}

		loan, book, err = s.issue(ctx, tx, student, book)
		switch {
		case domainerrors.CodeOf(err) == domainerrors.CodePolicyViolation:
			return reject(domain.RejectedStudentDelinquent, err)
		case errors.Is(err, store.ErrNoCopiesAvailable):
			return reject(domain.RejectedBookUnavailable, err)
		case err != nil:
			return err
		}

		if err := req.Approve(actor.ID, loan.ID, s.now()); err != nil {
			return decided(err)
		}
		return tx.BookRequests().UpdateBookRequest(ctx, req)
	})
	if err != nil {
		return nil, nil, err
	}

	s.events.BookRequestDecided(req)
	if rejectErr != nil {
		s.logger.Info("book request auto-rejected",
			"request_id", req.ID,
			"reason", string(req.RejectionReason))
		return req, nil, rejectErr
	}

	s.afterIssue(loan, book)
	s.logger.Info("book request approved", "request_id", req.ID, "loan_id", loan.ID, "by", actor.ID)
	return req, loan, nil
}

// RejectBookRequest declines a pending request. An empty reason records a
// manual rejection.
func (s *LedgerService) RejectBookRequest(ctx context.Context, actor *domain.Principal, requestID string, reason domain.RejectionReason) (*domain.BookRequest, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = domain.RejectedByStaff
	}

	var req *domain.BookRequest
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		req, err = tx.BookRequests().GetBookRequest(ctx, requestID)
		if err != nil {
			return mapNotFound(err, "book request %q not found", requestID)
		}
		if err := req.Reject(actor.ID, reason, s.now()); err != nil {
			return decided(err)
		}
		return tx.BookRequests().UpdateBookRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.events.BookRequestDecided(req)
	return req, nil
}

// ListBookRequests lists requests by status. Students only see their own.
func (s *LedgerService) ListBookRequests(ctx context.Context, actor *domain.Principal, status domain.RequestStatus) ([]*domain.BookRequest, error) {
	f, err := requestFilter(actor, status)
	if err != nil {
		return nil, err
	}
	return s.store.BookRequests().ListBookRequests(ctx, f)
}

func requestFilter(actor *domain.Principal, status domain.RequestStatus) (store.RequestFilter, error) {
	if actor == nil {
		return store.RequestFilter{}, domainerrors.Unauthorized("authentication required")
	}
	if status != "" && !status.Valid() {
		return store.RequestFilter{}, domainerrors.Validation("unknown status %q", status)
	}
	f := store.RequestFilter{Status: status}
	if !actor.IsStaff() {
		f.StudentID = actor.ID
	}
	return f, nil
}

// LoanQuery narrows ListLoans.
type LoanQuery struct {
	Student         string // id, student number or name
	OutstandingOnly bool
}

// ListLoans lists loans. Students only see their own.
func (s *LedgerService) ListLoans(ctx context.Context, actor *domain.Principal, q LoanQuery) ([]*domain.IssuedBook, error) {
	if actor == nil {
		return nil, domainerrors.Unauthorized("authentication required")
	}
	f := store.LoanFilter{OutstandingOnly: q.OutstandingOnly}
	switch {
	case !actor.IsStaff():
		f.StudentID = actor.ID
	case q.Student != "":
		student, err := findStudent(ctx, s.store, q.Student)
		if err != nil {
			return nil, err
		}
		f.StudentID = student.ID
	}
	return s.store.Loans().ListLoans(ctx, f)
}

// GetLoan returns a loan visible to actor.
func (s *LedgerService) GetLoan(ctx context.Context, actor *domain.Principal, loanID string) (*domain.IssuedBook, error) {
	return getOwnedLoan(ctx, s.store, actor, loanID)
}

// getOwnedLoan hides other students' loans behind NOT_FOUND.
func getOwnedLoan(ctx context.Context, repos store.Repositories, actor *domain.Principal, loanID string) (*domain.IssuedBook, error) {
	if actor == nil {
		return nil, domainerrors.Unauthorized("authentication required")
	}
	loan, err := repos.Loans().GetLoan(ctx, loanID)
	if err != nil {
		return nil, mapNotFound(err, "loan %q not found", loanID)
	}
	if !actor.IsStaff() && loan.StudentID != actor.ID {
		return nil, domainerrors.NotFound("loan %q not found", loanID)
	}
	return loan, nil
}

// Suggestions returns the suggestion lookup state for a loan.
func (s *LedgerService) Suggestions(ctx context.Context, actor *domain.Principal, loanID string) (suggest.Result, error) {
	if _, err := s.GetLoan(ctx, actor, loanID); err != nil {
		return suggest.Result{}, err
	}
	if !s.suggestions.Enabled() {
		return suggest.Result{LoanID: loanID, Status: suggest.StatusDisabled}, nil
	}
	res, _ := s.suggestions.Result(loanID)
	return res, nil
}
