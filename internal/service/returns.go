package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/id"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
)

// ReturnService runs the two-phase return: quote the fine, then confirm.
type ReturnService struct {
	store  store.Store
	quotes *quoteBook
	events Events
	logger *slog.Logger
	now    func() time.Time
}

// NewReturnService creates the return workflow. quoteTTL bounds how long a
// computed fine is honoured; events may be nil.
func NewReturnService(st store.Store, quoteTTL time.Duration, events Events, log *slog.Logger) *ReturnService {
	if events == nil {
		events = NoopEvents{}
	}
	return &ReturnService{
		store:  st,
		quotes: newQuoteBook(quoteTTL),
		events: events,
		logger: logger.OrDiscard(log),
		now:    systemNow,
	}
}

// ReturnResult is the outcome of a confirmed return.
type ReturnResult struct {
	Loan          *domain.IssuedBook    `json:"loan"`
	Book          *domain.Book          `json:"book"`
	ReturnRequest *domain.ReturnRequest `json:"return_request,omitempty"`
}

// CreateReturnRequest asks staff to take back one of the caller's loans.
func (s *ReturnService) CreateReturnRequest(ctx context.Context, actor *domain.Principal, issuedBookID string) (*domain.ReturnRequest, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}

	var req *domain.ReturnRequest
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		loan, err := getOwnedLoan(ctx, tx, actor, issuedBookID)
		if err != nil {
			return err
		}
		if !loan.IsOutstanding() {
			return domainerrors.Validation("loan %q has already been returned", loan.ID)
		}

		reqID, err := id.Generate(id.ReturnRequest)
		if err != nil {
			return err
		}
		req = domain.NewReturnRequest(reqID, loan, s.now())
		if err := tx.ReturnRequests().CreateReturnRequest(ctx, req); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return domainerrors.Conflict("a return for %q is already pending", loan.BookTitle).WithCause(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.ReturnRequestCreated(req)
	return req, nil
}

// ComputeReturnFine quotes the fine for returning a loan now.
func (s *ReturnService) ComputeReturnFine(ctx context.Context, actor *domain.Principal, issuedBookID string) (*FineQuote, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	loan, err := s.store.Loans().GetLoan(ctx, issuedBookID)
	if err != nil {
		return nil, mapNotFound(err, "loan %q not found", issuedBookID)
	}
	if !loan.IsOutstanding() {
		return nil, domainerrors.Conflict("loan %q has already been returned", loan.ID)
	}

	now := s.now()
	fine := loan.FineAt(now)
	q := s.quotes.put(FineQuote{
		IssuedBookID:         loan.ID,
		BookTitle:            loan.BookTitle,
		StudentName:          loan.StudentName,
		DueDate:              loan.DueDate,
		OverdueDays:          domain.OverdueDays(loan.DueDate, now),
		Fine:                 fine,
		QuotedAt:             now,
		RequiresConfirmation: fine > 0,
	})
	return &q, nil
}

// FineHandling is what staff did about a positive fine at the desk.
type FineHandling struct {
	// Collected means the fine was paid on return.
	Collected bool `json:"fine_collected,omitempty"`
	// Deferred records the fine as owed; SettleFine clears it later.
	Deferred bool `json:"fine_deferred,omitempty"`
}

func (h FineHandling) check(fine int) error {
	if h.Collected && h.Deferred {
		return domainerrors.Validation("a fine cannot be both collected and deferred")
	}
	if fine > 0 && !h.Collected && !h.Deferred {
		return domainerrors.Validation("a fine of %d must be collected or deferred before the return is confirmed", fine).
			WithDetails(map[string]int{"fine": fine})
	}
	return nil
}

// ConfirmReturn finalizes a return at now. A positive fine must be either
// collected or deferred; a quote that no longer matches the fine must be
// re-taken.
func (s *ReturnService) ConfirmReturn(ctx context.Context, actor *domain.Principal, issuedBookID string, handling FineHandling) (*ReturnResult, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	var result *ReturnResult
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		loan, err := tx.Loans().GetLoan(ctx, issuedBookID)
		if err != nil {
			return mapNotFound(err, "loan %q not found", issuedBookID)
		}
		if !loan.IsOutstanding() {
			return domainerrors.Conflict("loan %q has already been returned", loan.ID)
		}

		now := s.now()
		fine := loan.FineAt(now)
		if err := handling.check(fine); err != nil {
			return err
		}
		if q, ok := s.quotes.get(loan.ID, now); ok && q.Fine != fine {
			return domainerrors.Conflict("fine changed from %d to %d since it was quoted", q.Fine, fine).
				WithDetails(map[string]int{"quoted_fine": q.Fine, "fine": fine})
		}

		book, err := tx.Books().IncrementAvailable(ctx, loan.BookID)
		if err != nil {
			return mapNotFound(err, "book %q not found", loan.BookID)
		}
		loan.MarkReturned(now, fine, handling.Collected)
		if err := tx.Loans().UpdateLoan(ctx, loan); err != nil {
			return err
		}

		result = &ReturnResult{Loan: loan, Book: book}
		req, err := tx.ReturnRequests().GetPendingReturnRequest(ctx, loan.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		if err := req.Approve(actor.ID, fine, now); err != nil {
			return decided(err)
		}
		result.ReturnRequest = req
		return tx.ReturnRequests().UpdateReturnRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.quotes.drop(issuedBookID)
	s.events.LoanReturned(result.Loan)
	s.events.BookUpdated(result.Book)
	if result.ReturnRequest != nil {
		s.events.ReturnRequestDecided(result.ReturnRequest)
	}
	s.logger.Info("book returned",
		"loan_id", result.Loan.ID,
		"fine", result.Loan.FineAmount,
		"fine_paid", result.Loan.FinePaid,
		"by", actor.ID)
	return result, nil
}

// ApproveReturnRequest confirms the return behind a pending request.
func (s *ReturnService) ApproveReturnRequest(ctx context.Context, actor *domain.Principal, requestID string, handling FineHandling) (*ReturnResult, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	req, err := s.store.ReturnRequests().GetReturnRequest(ctx, requestID)
	if err != nil {
		return nil, mapNotFound(err, "return request %q not found", requestID)
	}
	if !req.IsPending() {
		return nil, domainerrors.Conflict("return request is already %s", req.Status)
	}
	return s.ConfirmReturn(ctx, actor, req.IssuedBookID, handling)
}

// RejectReturnRequest declines a pending return request. The loan is untouched.
func (s *ReturnService) RejectReturnRequest(ctx context.Context, actor *domain.Principal, requestID string) (*domain.ReturnRequest, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	var req *domain.ReturnRequest
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		req, err = tx.ReturnRequests().GetReturnRequest(ctx, requestID)
		if err != nil {
			return mapNotFound(err, "return request %q not found", requestID)
		}
		if err := req.Reject(actor.ID, s.now()); err != nil {
			return decided(err)
		}
		return tx.ReturnRequests().UpdateReturnRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.events.ReturnRequestDecided(req)
	return req, nil
}

// ListReturnRequests lists return requests by status. Students only see their own.
func (s *ReturnService) ListReturnRequests(ctx context.Context, actor *domain.Principal, status domain.RequestStatus) ([]*domain.ReturnRequest, error) {
	f, err := requestFilter(actor, status)
	if err != nil {
		return nil, err
	}
	return s.store.ReturnRequests().ListReturnRequests(ctx, f)
}

// SettleFine records payment of a fine that was deferred at return.
func (s *ReturnService) SettleFine(ctx context.Context, actor *domain.Principal, issuedBookID string) (*domain.IssuedBook, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	var loan *domain.IssuedBook
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		loan, err = tx.Loans().GetLoan(ctx, issuedBookID)
		if err != nil {
			return mapNotFound(err, "loan %q not found", issuedBookID)
		}
		if !loan.HasRecordedFine() {
			return domainerrors.Validation("loan %q has no recorded fine", loan.ID)
		}
		if loan.FinePaid {
			return domainerrors.Conflict("fine for loan %q is already paid", loan.ID)
		}
		loan.FinePaid = true
		return tx.Loans().UpdateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	s.events.FineSettled(loan)
	s.logger.Info("fine settled", "loan_id", loan.ID, "amount", loan.FineAmount, "by", actor.ID)
	return loan, nil
}

// FineCalcRequest describes a hypothetical loan for the fine calculator.
type FineCalcRequest struct {
	BookTitle  string    `json:"book_title" validate:"max=500"`
	IssueDate  time.Time `json:"issue_date" validate:"required"`
	ReturnDate time.Time `json:"return_date" validate:"required,gtefield=IssueDate"`
}

// CalculateFine applies the fine rule without touching the ledger.
func CalculateFine(req FineCalcRequest) (*domain.FineCalculation, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	calc := domain.CalculateFine(req.BookTitle, req.IssueDate, req.ReturnDate)
	return &calc, nil
}
