package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
)

func (s *Server) registerRequestRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createBookRequest",
		Method:        http.MethodPost,
		Path:          "/api/v1/book-requests",
		Summary:       "Request a book",
		Description:   "Files a borrow request for the calling student. Delinquent students are refused.",
		Tags:          []string{"Requests"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateBookRequest)

	huma.Register(s.api, huma.Operation{
		OperationID: "listBookRequests",
		Method:      http.MethodGet,
		Path:        "/api/v1/book-requests",
		Summary:     "List book requests",
		Description: "Lists book requests by status, oldest first. Students only see their own.",
		Tags:        []string{"Requests"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBookRequests)

	huma.Register(s.api, huma.Operation{
		OperationID: "approveBookRequest",
		Method:      http.MethodPost,
		Path:        "/api/v1/book-requests/{id}/approve",
		Summary:     "Approve book request",
		Description: "Re-checks the student and the book, then issues. A failed re-check rejects the request and reports why (staff only).",
		Tags:        []string{"Requests"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleApproveBookRequest)

	huma.Register(s.api, huma.Operation{
		OperationID: "rejectBookRequest",
		Method:      http.MethodPost,
		Path:        "/api/v1/book-requests/{id}/reject",
		Summary:     "Reject book request",
		Tags:        []string{"Requests"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRejectBookRequest)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createReturnRequest",
		Method:        http.MethodPost,
		Path:          "/api/v1/return-requests",
		Summary:       "Request a return",
		Description:   "Asks staff to take back one of the calling student's loans",
		Tags:          []string{"Requests"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateReturnRequest)

	huma.Register(s.api, huma.Operation{
		OperationID: "listReturnRequests",
		Method:      http.MethodGet,
		Path:        "/api/v1/return-requests",
		Summary:     "List return requests",
		Description: "Lists return requests by status, oldest first. Students only see their own.",
		Tags:        []string{"Requests"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListReturnRequests)

	huma.Register(s.api, huma.Operation{
		OperationID: "approveReturnRequest",
		Method:      http.MethodPost,
		Path:        "/api/v1/return-requests/{id}/approve",
		Summary:     "Approve return request",
		Description: "Confirms the return behind the request. A positive fine must be marked collected (staff only).",
		Tags:        []string{"Requests"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleApproveReturnRequest)

	huma.Register(s.api, huma.Operation{
		OperationID: "rejectReturnRequest",
		Method:      http.MethodPost,
		Path:        "/api/v1/return-requests/{id}/reject",
		Summary:     "Reject return request",
		Tags:        []string{"Requests"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRejectReturnRequest)
}

// === DTOs ===

// CreateBookRequestBody names the book a student wants.
type CreateBookRequestBody struct {
	Book string `json:"book" minLength:"1" maxLength:"500" doc:"Book id or exact title"`
}

// CreateBookRequestInput wraps the book request for Huma.
type CreateBookRequestInput struct {
	Body CreateBookRequestBody
}

// ListRequestsInput filters requests by status.
type ListRequestsInput struct {
	Status string `query:"status" enum:"pending,approved,rejected,all" default:"pending" doc:"Request status"`
}

func (in *ListRequestsInput) status() domain.RequestStatus {
	if in.Status == "all" {
		return ""
	}
	return domain.RequestStatus(in.Status)
}

// RequestIDInput identifies a request.
type RequestIDInput struct {
	ID string `path:"id" doc:"Request ID"`
}

// BookRequestOutput wraps a book request for Huma.
type BookRequestOutput struct {
	Body *domain.BookRequest
}

// BookRequestsOutput wraps a book request list for Huma.
type BookRequestsOutput struct {
	Body []*domain.BookRequest
}

// ApprovedBookRequest is an approved request with the loan it produced.
type ApprovedBookRequest struct {
	Request *domain.BookRequest `json:"request"`
	Loan    *domain.IssuedBook  `json:"loan"`
}

// ApproveBookRequestOutput wraps an approval for Huma.
type ApproveBookRequestOutput struct {
	Body ApprovedBookRequest
}

// CreateReturnRequestBody names the loan to return.
type CreateReturnRequestBody struct {
	IssuedBookID string `json:"issued_book_id" minLength:"1" doc:"Loan ID"`
}

// CreateReturnRequestInput wraps the return request for Huma.
type CreateReturnRequestInput struct {
	Body CreateReturnRequestBody
}

// ReturnRequestOutput wraps a return request for Huma.
type ReturnRequestOutput struct {
	Body *domain.ReturnRequest
}

// ReturnRequestsOutput wraps a return request list for Huma.
type ReturnRequestsOutput struct {
	Body []*domain.ReturnRequest
}

// ApproveReturnRequestInput carries how the fine was handled.
type ApproveReturnRequestInput struct {
	ID   string            `path:"id" doc:"Return request ID"`
	Body ReturnBookRequest `required:"false"`
}

// === Handlers ===

func (s *Server) handleCreateBookRequest(ctx context.Context, input *CreateBookRequestInput) (*BookRequestOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.services.Ledger.CreateBookRequest(ctx, p, input.Body.Book)
	if err != nil {
		return nil, err
	}
	return &BookRequestOutput{Body: req}, nil
}

func (s *Server) handleListBookRequests(ctx context.Context, input *ListRequestsInput) (*BookRequestsOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	reqs, err := s.services.Ledger.ListBookRequests(ctx, p, input.status())
	if err != nil {
		return nil, err
	}
	return &BookRequestsOutput{Body: reqs}, nil
}

func (s *Server) handleApproveBookRequest(ctx context.Context, input *RequestIDInput) (*ApproveBookRequestOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	req, loan, err := s.services.Ledger.ApproveBookRequest(ctx, p, input.ID)
	if err != nil {
		return nil, withRejection(err, req)
	}
	return &ApproveBookRequestOutput{Body: ApprovedBookRequest{Request: req, Loan: loan}}, nil
}

// withRejection adds the recorded rejection to the error of an approval
// that auto-rejected the request.
func withRejection(err error, req *domain.BookRequest) error {
	var de *domainerrors.Error
	if req == nil || req.Status != domain.RequestRejected || !errors.As(err, &de) {
		return err
	}
	return de.WithDetails(map[string]string{
		"request_id":       req.ID,
		"request_status":   string(req.Status),
		"rejection_reason": string(req.RejectionReason),
	})
}

func (s *Server) handleRejectBookRequest(ctx context.Context, input *RequestIDInput) (*BookRequestOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.services.Ledger.RejectBookRequest(ctx, p, input.ID, domain.RejectedByStaff)
	if err != nil {
		return nil, err
	}
	return &BookRequestOutput{Body: req}, nil
}

func (s *Server) handleCreateReturnRequest(ctx context.Context, input *CreateReturnRequestInput) (*ReturnRequestOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.services.Returns.CreateReturnRequest(ctx, p, input.Body.IssuedBookID)
	if err != nil {
		return nil, err
	}
	return &ReturnRequestOutput{Body: req}, nil
}

func (s *Server) handleListReturnRequests(ctx context.Context, input *ListRequestsInput) (*ReturnRequestsOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	reqs, err := s.services.Returns.ListReturnRequests(ctx, p, input.status())
	if err != nil {
		return nil, err
	}
	return &ReturnRequestsOutput{Body: reqs}, nil
}

func (s *Server) handleApproveReturnRequest(ctx context.Context, input *ApproveReturnRequestInput) (*ReturnOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.services.Returns.ApproveReturnRequest(ctx, p, input.ID, input.Body.handling())
	if err != nil {
		return nil, err
	}
	return &ReturnOutput{Body: res}, nil
}

func (s *Server) handleRejectReturnRequest(ctx context.Context, input *RequestIDInput) (*ReturnRequestOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.services.Returns.RejectReturnRequest(ctx, p, input.ID)
	if err != nil {
		return nil, err
	}
	return &ReturnRequestOutput{Body: req}, nil
}
