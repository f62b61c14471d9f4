package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/service"
)

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "addUser",
		Method:        http.MethodPost,
		Path:          "/api/v1/users",
		Summary:       "Add account",
		Description:   "Registers a student, librarian or admin. Librarians may only register students.",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleAddUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "listStudents",
		Method:      http.MethodGet,
		Path:        "/api/v1/students",
		Summary:     "List students",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListStudents)

	huma.Register(s.api, huma.Operation{
		OperationID: "listStaff",
		Method:      http.MethodGet,
		Path:        "/api/v1/staff",
		Summary:     "List staff",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListStaff)

	huma.Register(s.api, huma.Operation{
		OperationID: "getDelinquency",
		Method:      http.MethodGet,
		Path:        "/api/v1/students/{id}/delinquency",
		Summary:     "Delinquency status",
		Description: "Reports overdue books and unpaid fines and whether the student may borrow. Accepts an id, student number or name.",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetDelinquency)
}

// === DTOs ===

// AddUserRequest is the request body for registering an account.
type AddUserRequest struct {
	Role            string `json:"role" enum:"student,librarian,admin" doc:"Account role"`
	Name            string `json:"name,omitempty" doc:"Student name (students)"`
	StudentID       string `json:"student_id,omitempty" doc:"Student number (students)"`
	Username        string `json:"username,omitempty" doc:"Login name (staff)"`
	Password        string `json:"password" minLength:"1" maxLength:"1024" doc:"Password, at least 6 characters"`
	ConfirmPassword string `json:"confirm_password" minLength:"1" maxLength:"1024" doc:"Password again"`
}

// AddUserInput wraps the add-user request for Huma.
type AddUserInput struct {
	Body AddUserRequest
}

// UsersOutput wraps an account list for Huma.
type UsersOutput struct {
	Body []*service.UserView
}

// StudentRefInput identifies a student by id, number or name.
type StudentRefInput struct {
	ID string `path:"id" doc:"Student id, student number or name"`
}

// DelinquencyOutput wraps a delinquency status for Huma.
type DelinquencyOutput struct {
	Body *domain.DelinquencyStatus
}

// === Handlers ===

func (s *Server) handleAddUser(ctx context.Context, input *AddUserInput) (*UserOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	in := input.Body
	user, err := s.services.Directory.AddUser(ctx, p, service.AddUserRequest{
		Role:            domain.Role(in.Role),
		Name:            in.Name,
		StudentID:       in.StudentID,
		Username:        in.Username,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
	})
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: user}, nil
}

func (s *Server) handleListStudents(ctx context.Context, _ *struct{}) (*UsersOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.services.Directory.ListStudents(ctx, p)
	if err != nil {
		return nil, err
	}
	return &UsersOutput{Body: users}, nil
}

func (s *Server) handleListStaff(ctx context.Context, _ *struct{}) (*UsersOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.services.Directory.ListStaff(ctx, p)
	if err != nil {
		return nil, err
	}
	return &UsersOutput{Body: users}, nil
}

func (s *Server) handleGetDelinquency(ctx context.Context, input *StudentRefInput) (*DelinquencyOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	ref := input.ID
	if !p.IsStaff() {
		if ref != p.ID {
			return nil, domainerrors.Forbidden("students may only view their own status")
		}
	}
	status, err := s.services.Ledger.GetDelinquencyStatus(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &DelinquencyOutput{Body: status}, nil
}
