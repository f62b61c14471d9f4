package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
)

// recentIssueCount is how many of the latest issuances the dashboard shows.
const recentIssueCount = 3

// DashboardService builds read-only summaries of the ledger.
type DashboardService struct {
	store  store.Store
	policy domain.DelinquencyPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewDashboardService creates the summary service.
func NewDashboardService(st store.Store, policy domain.DelinquencyPolicy, log *slog.Logger) *DashboardService {
	return &DashboardService{
		store:  st,
		policy: policy,
		logger: logger.OrDiscard(log),
		now:    systemNow,
	}
}

// PendingBookRequest is a pending borrow request with the requester's standing.
type PendingBookRequest struct {
	domain.BookRequest
	Delinquency domain.DelinquencyStatus `json:"delinquency"`
}

// PendingReturnRequest is a pending return request with the current fine
// and the requester's standing.
type PendingReturnRequest struct {
	domain.ReturnRequest
	CurrentFine int                      `json:"current_fine"`
	Delinquency domain.DelinquencyStatus `json:"delinquency"`
}

// Dashboard is the staff overview.
type Dashboard struct {
	TotalBooks            int                    `json:"total_books"`
	AvailableBooks        int                    `json:"available_books"`
	IssuedBooksCount      int                    `json:"issued_books_count"`
	OverdueLoans          []*domain.IssuedBook   `json:"overdue_loans"`
	RecentIssues          []*domain.IssuedBook   `json:"recent_issues"`
	PendingBookRequests   []PendingBookRequest   `json:"pending_book_requests"`
	PendingReturnRequests []PendingReturnRequest `json:"pending_return_requests"`
	GeneratedAt           time.Time              `json:"generated_at"`
}

// Dashboard computes the staff overview from one consistent snapshot.
func (s *DashboardService) Dashboard(ctx context.Context, actor *domain.Principal) (*Dashboard, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	now := s.now()
	d := &Dashboard{
		OverdueLoans:          []*domain.IssuedBook{},
		RecentIssues:          []*domain.IssuedBook{},
		PendingBookRequests:   []PendingBookRequest{},
		PendingReturnRequests: []PendingReturnRequest{},
		GeneratedAt:           now,
	}

	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		books, err := tx.Books().ListBooks(ctx)
		if err != nil {
			return fmt.Errorf("list books: %w", err)
		}
		for _, b := range books {
			d.TotalBooks += b.TotalCopies
			d.AvailableBooks += b.AvailableCopies
		}

		loans, err := tx.Loans().ListLoans(ctx, store.LoanFilter{})
		if err != nil {
			return fmt.Errorf("list loans: %w", err)
		}
		standing := standingIndex(loans, now, s.policy)

		for _, l := range loans {
			if !l.IsOutstanding() {
				continue
			}
			d.IssuedBooksCount++
			if l.IsOverdue(now) {
				d.OverdueLoans = append(d.OverdueLoans, l)
			}
		}
		slices.SortFunc(d.OverdueLoans, func(a, b *domain.IssuedBook) int { return a.DueDate.Compare(b.DueDate) })

		recent := slices.Clone(loans)
		slices.SortStableFunc(recent, func(a, b *domain.IssuedBook) int { return b.IssueDate.Compare(a.IssueDate) })
		d.RecentIssues = append(d.RecentIssues, recent[:min(recentIssueCount, len(recent))]...)

		pending := store.RequestFilter{Status: domain.RequestPending}
		bookReqs, err := tx.BookRequests().ListBookRequests(ctx, pending)
		if err != nil {
			return fmt.Errorf("list book requests: %w", err)
		}
		for _, r := range bookReqs {
			d.PendingBookRequests = append(d.PendingBookRequests, PendingBookRequest{
				BookRequest: *r,
				Delinquency: standing(r.StudentID),
			})
		}
		slices.SortStableFunc(d.PendingBookRequests, func(a, b PendingBookRequest) int {
			return a.RequestDate.Compare(b.RequestDate)
		})

		returnReqs, err := tx.ReturnRequests().ListReturnRequests(ctx, pending)
		if err != nil {
			return fmt.Errorf("list return requests: %w", err)
		}
		byID := make(map[string]*domain.IssuedBook, len(loans))
		for _, l := range loans {
			byID[l.ID] = l
		}
		for _, r := range returnReqs {
			p := PendingReturnRequest{ReturnRequest: *r, Delinquency: standing(r.StudentID)}
			if l, ok := byID[r.IssuedBookID]; ok {
				p.CurrentFine = l.FineAt(now)
			}
			d.PendingReturnRequests = append(d.PendingReturnRequests, p)
		}
		slices.SortStableFunc(d.PendingReturnRequests, func(a, b PendingReturnRequest) int {
			return a.RequestDate.Compare(b.RequestDate)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// standingIndex groups loans per student once and evaluates lazily.
func standingIndex(loans []*domain.IssuedBook, now time.Time, policy domain.DelinquencyPolicy) func(studentID string) domain.DelinquencyStatus {
	perStudent := make(map[string][]*domain.IssuedBook)
	for _, l := range loans {
		perStudent[l.StudentID] = append(perStudent[l.StudentID], l)
	}
	cache := make(map[string]domain.DelinquencyStatus)
	return func(studentID string) domain.DelinquencyStatus {
		if st, ok := cache[studentID]; ok {
			return st
		}
		st := domain.EvaluateDelinquency(studentID, perStudent[studentID], now, policy)
		cache[studentID] = st
		return st
	}
}

// MyBook is one of a student's outstanding loans.
type MyBook struct {
	domain.IssuedBook
	IsOverdue            bool   `json:"is_overdue"`
	CurrentFine          int    `json:"current_fine"`
	HasPendingReturn     bool   `json:"has_pending_return"`
	PendingReturnRequest string `json:"pending_return_request_id,omitempty"`
}

// MyBooks lists the calling student's outstanding loans, oldest due first.
func (s *DashboardService) MyBooks(ctx context.Context, actor *domain.Principal) ([]MyBook, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	now := s.now()

	loans, err := s.store.Loans().ListLoans(ctx, store.LoanFilter{StudentID: actor.ID, OutstandingOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	reqs, err := s.store.ReturnRequests().ListReturnRequests(ctx, store.RequestFilter{
		Status:    domain.RequestPending,
		StudentID: actor.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("list return requests: %w", err)
	}
	pending := make(map[string]string, len(reqs))
	for _, r := range reqs {
		pending[r.IssuedBookID] = r.ID
	}

	out := make([]MyBook, 0, len(loans))
	for _, l := range loans {
		reqID, ok := pending[l.ID]
		out = append(out, MyBook{
			IssuedBook:           *l,
			IsOverdue:            l.IsOverdue(now),
			CurrentFine:          l.FineAt(now),
			HasPendingReturn:     ok,
			PendingReturnRequest: reqID,
		})
	}
	slices.SortStableFunc(out, func(a, b MyBook) int { return a.DueDate.Compare(b.DueDate) })
	return out, nil
}
