package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/libraryledger/ledger-server/internal/auth"
	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/id"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
)

// DirectoryService registers and lists accounts.
type DirectoryService struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewDirectoryService creates the account directory.
func NewDirectoryService(st store.Store, log *slog.Logger) *DirectoryService {
	return &DirectoryService{store: st, logger: logger.OrDiscard(log), now: systemNow}
}

// AddUserRequest registers a student or a staff member.
type AddUserRequest struct {
	Role            domain.Role `json:"role" validate:"required,oneof=student librarian admin"`
	Name            string      `json:"name" validate:"omitempty,min=2,max=200"`
	StudentID       string      `json:"student_id" validate:"omitempty,max=64"`
	Username        string      `json:"username" validate:"omitempty,min=3,max=64"`
	Password        string      `json:"password" validate:"required,min=6,max=1024"`
	ConfirmPassword string      `json:"confirm_password" validate:"required,eqfield=Password"`
}

// checkRoleFields enforces the fields each role needs.
func (r AddUserRequest) checkRoleFields() error {
	missing := map[string]string{}
	if r.Role == domain.RoleStudent {
		if r.Name == "" {
			missing["name"] = "is required for this role"
		}
		if r.StudentID == "" {
			missing["student_id"] = "is required for this role"
		}
	} else if r.Username == "" {
		missing["username"] = "is required for this role"
	}
	if len(missing) > 0 {
		return domainerrors.ValidationWithDetails("validation failed", missing)
	}
	return nil
}

// UserView is an account without its credentials.
type UserView struct {
	ID        string      `json:"id"`
	Role      domain.Role `json:"role"`
	Name      string      `json:"name,omitempty"`
	StudentID string      `json:"student_id,omitempty"`
	Username  string      `json:"username,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func studentView(s *domain.Student) *UserView {
	return &UserView{ID: s.ID, Role: domain.RoleStudent, Name: s.Name, StudentID: s.StudentID, CreatedAt: s.CreatedAt}
}

func staffView(u *domain.StaffUser) *UserView {
	return &UserView{ID: u.ID, Role: u.Role, Username: u.Username, CreatedAt: u.CreatedAt}
}

// AddUser creates an account. Librarians may only register students.
func (s *DirectoryService) AddUser(ctx context.Context, actor *domain.Principal, req AddUserRequest) (*UserView, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	if err := req.checkRoleFields(); err != nil {
		return nil, err
	}
	if !actor.Role.CanCreate(req.Role) {
		return nil, domainerrors.Forbidden("%s accounts cannot create %s accounts", actor.Role, req.Role)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, domainerrors.Validation("%s", err.Error())
	}
	now := s.now()

	if req.Role == domain.RoleStudent {
		return s.addStudent(ctx, req, hash, now)
	}
	return s.addStaff(ctx, actor, req, hash, now)
}

func (s *DirectoryService) addStudent(ctx context.Context, req AddUserRequest, hash string, now time.Time) (*UserView, error) {
	studentID, err := id.Generate(id.Student)
	if err != nil {
		return nil, err
	}
	student := &domain.Student{
		ID:           studentID,
		Name:         req.Name,
		StudentID:    req.StudentID,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	err = s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		// Student names double as login names, so they must not shadow staff usernames.
		if _, err := tx.Staff().GetStaffByUsername(ctx, req.Name); err == nil {
			return domainerrors.Conflict("name %q is already taken", req.Name)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.Students().CreateStudent(ctx, student); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return domainerrors.Conflict("a student with this name or student id already exists").WithCause(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("student registered", "id", student.ID, "student_id", student.StudentID)
	return studentView(student), nil
}

func (s *DirectoryService) addStaff(ctx context.Context, actor *domain.Principal, req AddUserRequest, hash string, now time.Time) (*UserView, error) {
	staffID, err := id.Generate(id.Staff)
	if err != nil {
		return nil, err
	}
	user := &domain.StaffUser{
		ID:           staffID,
		Username:     req.Username,
		Role:         req.Role,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	err = s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Students().GetStudentByName(ctx, req.Username); err == nil {
			return domainerrors.Conflict("username %q is already taken", req.Username)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.Staff().CreateStaff(ctx, user); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return domainerrors.Conflict("username %q is already taken", req.Username).WithCause(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("staff account created", "id", user.ID, "role", string(user.Role), "by", actor.ID)
	return staffView(user), nil
}

// ListStudents returns every student account.
func (s *DirectoryService) ListStudents(ctx context.Context, actor *domain.Principal) ([]*UserView, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	students, err := s.store.Students().ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*UserView, len(students))
	for i, st := range students {
		out[i] = studentView(st)
	}
	return out, nil
}

// ListStaff returns every librarian and admin account.
func (s *DirectoryService) ListStaff(ctx context.Context, actor *domain.Principal) ([]*UserView, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	staff, err := s.store.Staff().ListStaff(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*UserView, len(staff))
	for i, u := range staff {
		out[i] = staffView(u)
	}
	return out, nil
}

// GetUser returns the account behind a principal.
func (s *DirectoryService) GetUser(ctx context.Context, p *domain.Principal) (*UserView, error) {
	if p == nil {
		return nil, domainerrors.Unauthorized("authentication required")
	}
	if p.Role == domain.RoleStudent {
		st, err := s.store.Students().GetStudent(ctx, p.ID)
		if err != nil {
			return nil, mapNotFound(err, "account not found")
		}
		return studentView(st), nil
	}
	u, err := s.store.Staff().GetStaff(ctx, p.ID)
	if err != nil {
		return nil, mapNotFound(err, "account not found")
	}
	return staffView(u), nil
}
