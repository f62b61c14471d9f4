package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/service"
	"github.com/libraryledger/ledger-server/internal/suggest"
)

func (s *Server) registerLoanRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "issueBook",
		Method:        http.MethodPost,
		Path:          "/api/v1/loans",
		Summary:       "Issue book",
		Description:   "Lends one copy to a student at the desk. Book and student may be given by id, title or name (staff only).",
		Tags:          []string{"Loans"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleIssueBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "listLoans",
		Method:      http.MethodGet,
		Path:        "/api/v1/loans",
		Summary:     "List loans",
		Description: "Lists loans, newest first. Students only see their own.",
		Tags:        []string{"Loans"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListLoans)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLoan",
		Method:      http.MethodGet,
		Path:        "/api/v1/loans/{id}",
		Summary:     "Get loan",
		Tags:        []string{"Loans"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetLoan)

	huma.Register(s.api, huma.Operation{
		OperationID: "listMyLoans",
		Method:      http.MethodGet,
		Path:        "/api/v1/me/loans",
		Summary:     "My books",
		Description: "The calling student's outstanding loans with current fines and pending return flags",
		Tags:        []string{"Loans"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListMyLoans)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLoanSuggestions",
		Method:      http.MethodGet,
		Path:        "/api/v1/loans/{id}/suggestions",
		Summary:     "Reading suggestions",
		Description: "Returns the state of the suggestion lookup started when the loan was issued",
		Tags:        []string{"Loans"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSuggestions)

	huma.Register(s.api, huma.Operation{
		OperationID: "quoteFine",
		Method:      http.MethodPost,
		Path:        "/api/v1/loans/{id}/fine-quote",
		Summary:     "Quote return fine",
		Description: "Computes the fine owed if the loan is returned now. The quote is honoured until it expires or the fine changes (staff only).",
		Tags:        []string{"Fines"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleQuoteFine)

	huma.Register(s.api, huma.Operation{
		OperationID: "returnBook",
		Method:      http.MethodPost,
		Path:        "/api/v1/loans/{id}/return",
		Summary:     "Confirm return",
		Description: "Completes a return. A positive fine must be marked collected (staff only).",
		Tags:        []string{"Fines"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleReturnBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "settleFine",
		Method:      http.MethodPost,
		Path:        "/api/v1/loans/{id}/settle-fine",
		Summary:     "Settle fine",
		Description: "Records payment of an unpaid fine on a returned loan (staff only)",
		Tags:        []string{"Fines"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSettleFine)

	huma.Register(s.api, huma.Operation{
		OperationID: "calculateFine",
		Method:      http.MethodPost,
		Path:        "/api/v1/fines/calculate",
		Summary:     "Fine calculator",
		Description: "Applies the fine rule to hypothetical issue and return dates",
		Tags:        []string{"Fines"},
	}, s.handleCalculateFine)
}

// === DTOs ===

// IssueBookRequest is the request body for a direct issue.
type IssueBookRequest struct {
	Student string `json:"student" minLength:"1" maxLength:"200" doc:"Student id, student number or name"`
	Book    string `json:"book" minLength:"1" maxLength:"500" doc:"Book id or exact title"`
}

// IssueBookInput wraps the issue request for Huma.
type IssueBookInput struct {
	Body IssueBookRequest
}

// LoanOutput wraps a loan for Huma.
type LoanOutput struct {
	Body *domain.IssuedBook
}

// LoansOutput wraps a loan list for Huma.
type LoansOutput struct {
	Body []*domain.IssuedBook
}

// ListLoansInput contains loan filters.
type ListLoansInput struct {
	Student     string `query:"student" doc:"Student id, student number or name (staff only)"`
	Outstanding bool   `query:"outstanding" doc:"Only loans not yet returned"`
}

// LoanIDInput identifies a loan.
type LoanIDInput struct {
	ID string `path:"id" doc:"Loan ID"`
}

// MyLoansOutput wraps the student's loans for Huma.
type MyLoansOutput struct {
	Body []service.MyBook
}

// SuggestionsOutput wraps a suggestion lookup for Huma.
type SuggestionsOutput struct {
	Body suggest.Result
}

// FineQuoteOutput wraps a fine quote for Huma.
type FineQuoteOutput struct {
	Body *service.FineQuote
}

// ReturnBookRequest is the request body for confirming a return.
type ReturnBookRequest struct {
	FineCollected bool `json:"fine_collected,omitempty" doc:"The quoted fine was collected at the desk"`
	FineDeferred  bool `json:"fine_deferred,omitempty" doc:"Record the fine as owed, to be settled later"`
}

func (r ReturnBookRequest) handling() service.FineHandling {
	return service.FineHandling{Collected: r.FineCollected, Deferred: r.FineDeferred}
}

// ReturnBookInput wraps the return request for Huma.
type ReturnBookInput struct {
	ID   string            `path:"id" doc:"Loan ID"`
	Body ReturnBookRequest `required:"false"`
}

// ReturnOutput wraps a return result for Huma.
type ReturnOutput struct {
	Body *service.ReturnResult
}

// CalculateFineRequest is the request body for the fine calculator.
type CalculateFineRequest struct {
	BookTitle  string    `json:"book_title,omitempty" maxLength:"500" doc:"Optional title echoed in the result"`
	IssueDate  time.Time `json:"issue_date" doc:"Issue date"`
	ReturnDate time.Time `json:"return_date" doc:"Return date, not before the issue date"`
}

// CalculateFineInput wraps the calculator request for Huma.
type CalculateFineInput struct {
	Body CalculateFineRequest
}

// FineCalculationOutput wraps a calculation for Huma.
type FineCalculationOutput struct {
	Body *domain.FineCalculation
}

// === Handlers ===

func (s *Server) handleIssueBook(ctx context.Context, input *IssueBookInput) (*LoanOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	loan, err := s.services.Ledger.DirectIssue(ctx, p, service.IssueRequest{
		Student: input.Body.Student,
		Book:    input.Body.Book,
	})
	if err != nil {
		return nil, err
	}
	return &LoanOutput{Body: loan}, nil
}

func (s *Server) handleListLoans(ctx context.Context, input *ListLoansInput) (*LoansOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	loans, err := s.services.Ledger.ListLoans(ctx, p, service.LoanQuery{
		Student:         input.Student,
		OutstandingOnly: input.Outstanding,
	})
	if err != nil {
		return nil, err
	}
	return &LoansOutput{Body: loans}, nil
}

func (s *Server) handleGetLoan(ctx context.Context, input *LoanIDInput) (*LoanOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	loan, err := s.services.Ledger.GetLoan(ctx, p, input.ID)
	if err != nil {
		return nil, err
	}
	return &LoanOutput{Body: loan}, nil
}

func (s *Server) handleListMyLoans(ctx context.Context, _ *struct{}) (*MyLoansOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	books, err := s.services.Dashboard.MyBooks(ctx, p)
	if err != nil {
		return nil, err
	}
	return &MyLoansOutput{Body: books}, nil
}

func (s *Server) handleGetSuggestions(ctx context.Context, input *LoanIDInput) (*SuggestionsOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.services.Ledger.Suggestions(ctx, p, input.ID)
	if err != nil {
		return nil, err
	}
	return &SuggestionsOutput{Body: res}, nil
}

func (s *Server) handleQuoteFine(ctx context.Context, input *LoanIDInput) (*FineQuoteOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	q, err := s.services.Returns.ComputeReturnFine(ctx, p, input.ID)
	if err != nil {
		return nil, err
	}
	return &FineQuoteOutput{Body: q}, nil
}

func (s *Server) handleReturnBook(ctx context.Context, input *ReturnBookInput) (*ReturnOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.services.Returns.ConfirmReturn(ctx, p, input.ID, input.Body.handling())
	if err != nil {
		return nil, err
	}
	return &ReturnOutput{Body: res}, nil
}

func (s *Server) handleSettleFine(ctx context.Context, input *LoanIDInput) (*LoanOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	loan, err := s.services.Returns.SettleFine(ctx, p, input.ID)
	if err != nil {
		return nil, err
	}
	return &LoanOutput{Body: loan}, nil
}

func (s *Server) handleCalculateFine(_ context.Context, input *CalculateFineInput) (*FineCalculationOutput, error) {
	calc, err := service.CalculateFine(service.FineCalcRequest{
		BookTitle:  input.Body.BookTitle,
		IssueDate:  input.Body.IssueDate,
		ReturnDate: input.Body.ReturnDate,
	})
	if err != nil {
		return nil, err
	}
	return &FineCalculationOutput{Body: calc}, nil
}
