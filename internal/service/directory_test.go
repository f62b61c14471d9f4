package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/store/memstore"
)

var admin = &domain.Principal{ID: "staff-admin", Role: domain.RoleAdmin, DisplayName: "admin"}

func studentReq(name, studentID string) AddUserRequest {
	return AddUserRequest{
		Role:            domain.RoleStudent,
		Name:            name,
		StudentID:       studentID,
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
}

func staffReq(role domain.Role, username string) AddUserRequest {
	return AddUserRequest{
		Role:            role,
		Username:        username,
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
}

func TestAddUser_RoleMatrix(t *testing.T) {
	tests := []struct {
		actor   *domain.Principal
		req     AddUserRequest
		allowed bool
	}{
		{librarian, studentReq("Alice", "S-1"), true},
		{librarian, staffReq(domain.RoleLibrarian, "newlib"), false},
		{librarian, staffReq(domain.RoleAdmin, "newadmin"), false},
		{admin, studentReq("Alice", "S-1"), true},
		{admin, staffReq(domain.RoleLibrarian, "newlib"), true},
		{admin, staffReq(domain.RoleAdmin, "newadmin"), true},
		{&domain.Principal{ID: "student-1", Role: domain.RoleStudent}, studentReq("Alice", "S-1"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.actor.Role)+" creates "+string(tt.req.Role), func(t *testing.T) {
			svc := NewDirectoryService(memstore.New(), nil)
			user, err := svc.AddUser(context.Background(), tt.actor, tt.req)
			if !tt.allowed {
				assert.ErrorIs(t, err, domainerrors.ErrForbidden)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.req.Role, user.Role)
		})
	}
}

func TestAddUser_Validation(t *testing.T) {
	svc := NewDirectoryService(memstore.New(), nil)

	tests := []struct {
		name  string
		req   AddUserRequest
		field string
	}{
		{"short password", AddUserRequest{Role: domain.RoleStudent, Name: "Al", StudentID: "1", Password: "12345", ConfirmPassword: "12345"}, "password"},
		{"mismatched confirmation", AddUserRequest{Role: domain.RoleStudent, Name: "Al", StudentID: "1", Password: "123456", ConfirmPassword: "654321"}, "confirm_password"},
		{"short name", studentReq("A", "S-1"), "name"},
		{"student without id", studentReq("Alice", ""), "student_id"},
		{"staff without username", staffReq(domain.RoleLibrarian, ""), "username"},
		{"short username", staffReq(domain.RoleLibrarian, "ab"), "username"},
		{"unknown role", AddUserRequest{Role: "janitor", Username: "bob", Password: "123456", ConfirmPassword: "123456"}, "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddUser(context.Background(), admin, tt.req)
			var de *domainerrors.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, domainerrors.CodeValidation, de.Code)
			assert.Contains(t, de.Details, tt.field)
		})
	}
}

func TestAddUser_Uniqueness(t *testing.T) {
	ctx := context.Background()
	svc := NewDirectoryService(memstore.New(), nil)

	_, err := svc.AddUser(ctx, admin, studentReq("Alice", "S-1"))
	require.NoError(t, err)
	_, err = svc.AddUser(ctx, admin, staffReq(domain.RoleLibrarian, "marian"))
	require.NoError(t, err)

	tests := []struct {
		name string
		req  AddUserRequest
	}{
		{"student name, other case", studentReq("ALICE", "S-2")},
		{"student id, other case", studentReq("Bob", "s-1")},
		{"username, other case", staffReq(domain.RoleAdmin, "Marian")},
		{"student named like staff", studentReq("marian", "S-3")},
		{"staff named like student", staffReq(domain.RoleLibrarian, "alice")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddUser(ctx, admin, tt.req)
			assert.ErrorIs(t, err, domainerrors.ErrConflict)
		})
	}

	students, err := svc.ListStudents(ctx, librarian)
	require.NoError(t, err)
	assert.Len(t, students, 1)

	staff, err := svc.ListStaff(ctx, librarian)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, "marian", staff[0].Username)
}
