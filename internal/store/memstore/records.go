package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

// Students

func (v *view) CreateStudent(ctx context.Context, student *domain.Student) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.students[student.ID]; ok {
			return store.ErrAlreadyExists.WithMessage("student %s already exists", student.ID)
		}
		name, sid := store.FoldKey(student.Name), store.FoldKey(student.StudentID)
		for _, s := range st.students {
			if store.FoldKey(s.Name) == name || store.FoldKey(s.StudentID) == sid {
				return store.ErrAlreadyExists.WithMessage("student name or id already registered")
			}
		}
		st.students[student.ID] = copyOf(student)
		return nil
	})
}

func (v *view) GetStudent(ctx context.Context, id string) (*domain.Student, error) {
	var out *domain.Student
	err := v.with(ctx, func(st *state) error {
		s, ok := st.students[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyOf(s)
		return nil
	})
	return out, err
}

func (v *view) findStudent(ctx context.Context, match func(*domain.Student) bool) (*domain.Student, error) {
	var out *domain.Student
	err := v.with(ctx, func(st *state) error {
		for _, s := range st.students {
			if match(s) {
				out = copyOf(s)
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (v *view) GetStudentByName(ctx context.Context, name string) (*domain.Student, error) {
	key := store.FoldKey(name)
	return v.findStudent(ctx, func(s *domain.Student) bool { return store.FoldKey(s.Name) == key })
}

func (v *view) GetStudentByStudentID(ctx context.Context, studentID string) (*domain.Student, error) {
	key := store.FoldKey(studentID)
	return v.findStudent(ctx, func(s *domain.Student) bool { return store.FoldKey(s.StudentID) == key })
}

func (v *view) ListStudents(ctx context.Context) ([]*domain.Student, error) {
	var out []*domain.Student
	err := v.with(ctx, func(st *state) error {
		for _, s := range st.students {
			out = append(out, copyOf(s))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return store.FoldKey(out[i].Name) < store.FoldKey(out[j].Name) })
	return out, err
}

// Staff

func (v *view) CreateStaff(ctx context.Context, user *domain.StaffUser) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.staff[user.ID]; ok {
			return store.ErrAlreadyExists.WithMessage("staff %s already exists", user.ID)
		}
		key := store.FoldKey(user.Username)
		for _, u := range st.staff {
			if store.FoldKey(u.Username) == key {
				return store.ErrAlreadyExists.WithMessage("username already registered")
			}
		}
		st.staff[user.ID] = copyOf(user)
		return nil
	})
}

func (v *view) GetStaff(ctx context.Context, id string) (*domain.StaffUser, error) {
	var out *domain.StaffUser
	err := v.with(ctx, func(st *state) error {
		u, ok := st.staff[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyOf(u)
		return nil
	})
	return out, err
}

func (v *view) GetStaffByUsername(ctx context.Context, username string) (*domain.StaffUser, error) {
	key := store.FoldKey(username)
	var out *domain.StaffUser
	err := v.with(ctx, func(st *state) error {
		for _, u := range st.staff {
			if store.FoldKey(u.Username) == key {
				out = copyOf(u)
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (v *view) ListStaff(ctx context.Context) ([]*domain.StaffUser, error) {
	var out []*domain.StaffUser
	err := v.with(ctx, func(st *state) error {
		for _, u := range st.staff {
			out = append(out, copyOf(u))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return store.FoldKey(out[i].Username) < store.FoldKey(out[j].Username) })
	return out, err
}

// Loans

func (v *view) CreateLoan(ctx context.Context, loan *domain.IssuedBook) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.loans[loan.ID]; ok {
			return store.ErrAlreadyExists.WithMessage("loan %s already exists", loan.ID)
		}
		st.loans[loan.ID] = copyLoan(loan)
		return nil
	})
}

func (v *view) GetLoan(ctx context.Context, id string) (*domain.IssuedBook, error) {
	var out *domain.IssuedBook
	err := v.with(ctx, func(st *state) error {
		l, ok := st.loans[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyLoan(l)
		return nil
	})
	return out, err
}

func (v *view) UpdateLoan(ctx context.Context, loan *domain.IssuedBook) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.loans[loan.ID]; !ok {
			return store.ErrNotFound
		}
		st.loans[loan.ID] = copyLoan(loan)
		return nil
	})
}

func (v *view) ListLoans(ctx context.Context, f store.LoanFilter) ([]*domain.IssuedBook, error) {
	var out []*domain.IssuedBook
	err := v.with(ctx, func(st *state) error {
		for _, l := range st.loans {
			if f.Matches(l) {
				out = append(out, copyLoan(l))
			}
		}
		return nil
	})
	store.SortLoans(out)
	return out, err
}

// Book requests

func (v *view) CreateBookRequest(ctx context.Context, req *domain.BookRequest) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.bookRequests[req.ID]; ok {
			return store.ErrAlreadyExists.WithMessage("book request %s already exists", req.ID)
		}
		if req.IsPending() {
			for _, r := range st.bookRequests {
				if r.IsPending() && r.StudentID == req.StudentID && r.BookID == req.BookID {
					return store.ErrAlreadyExists.WithMessage("pending request for this book already exists")
				}
			}
		}
		st.bookRequests[req.ID] = copyBookRequest(req)
		return nil
	})
}

func (v *view) GetBookRequest(ctx context.Context, id string) (*domain.BookRequest, error) {
	var out *domain.BookRequest
	err := v.with(ctx, func(st *state) error {
		r, ok := st.bookRequests[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyBookRequest(r)
		return nil
	})
	return out, err
}

func (v *view) UpdateBookRequest(ctx context.Context, req *domain.BookRequest) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.bookRequests[req.ID]; !ok {
			return store.ErrNotFound
		}
		st.bookRequests[req.ID] = copyBookRequest(req)
		return nil
	})
}

func (v *view) ListBookRequests(ctx context.Context, f store.RequestFilter) ([]*domain.BookRequest, error) {
	var out []*domain.BookRequest
	err := v.with(ctx, func(st *state) error {
		for _, r := range st.bookRequests {
			if f.MatchesBookRequest(r) {
				out = append(out, copyBookRequest(r))
			}
		}
		return nil
	})
	store.SortBookRequests(out)
	return out, err
}

// Return requests

func (v *view) CreateReturnRequest(ctx context.Context, req *domain.ReturnRequest) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.returnRequests[req.ID]; ok {
			return store.ErrAlreadyExists.WithMessage("return request %s already exists", req.ID)
		}
		if req.IsPending() {
			for _, r := range st.returnRequests {
				if r.IsPending() && r.IssuedBookID == req.IssuedBookID {
					return store.ErrAlreadyExists.WithMessage("pending return request for this loan already exists")
				}
			}
		}
		st.returnRequests[req.ID] = copyReturnRequest(req)
		return nil
	})
}

func (v *view) GetReturnRequest(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	var out *domain.ReturnRequest
	err := v.with(ctx, func(st *state) error {
		r, ok := st.returnRequests[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyReturnRequest(r)
		return nil
	})
	return out, err
}

func (v *view) GetPendingReturnRequest(ctx context.Context, issuedBookID string) (*domain.ReturnRequest, error) {
	var out *domain.ReturnRequest
	err := v.with(ctx, func(st *state) error {
		for _, r := range st.returnRequests {
			if r.IsPending() && r.IssuedBookID == issuedBookID {
				out = copyReturnRequest(r)
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (v *view) UpdateReturnRequest(ctx context.Context, req *domain.ReturnRequest) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.returnRequests[req.ID]; !ok {
			return store.ErrNotFound
		}
		st.returnRequests[req.ID] = copyReturnRequest(req)
		return nil
	})
}

func (v *view) ListReturnRequests(ctx context.Context, f store.RequestFilter) ([]*domain.ReturnRequest, error) {
	var out []*domain.ReturnRequest
	err := v.with(ctx, func(st *state) error {
		for _, r := range st.returnRequests {
			if f.MatchesReturnRequest(r) {
				out = append(out, copyReturnRequest(r))
			}
		}
		return nil
	})
	store.SortReturnRequests(out)
	return out, err
}

// Sessions

func (v *view) CreateSession(ctx context.Context, session *domain.Session) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.sessions[session.ID]; ok {
			return store.ErrAlreadyExists
		}
		st.sessions[session.ID] = copyOf(session)
		return nil
	})
}

func (v *view) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var out *domain.Session
	err := v.with(ctx, func(st *state) error {
		s, ok := st.sessions[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyOf(s)
		return nil
	})
	return out, err
}

func (v *view) UpdateSession(ctx context.Context, session *domain.Session) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.sessions[session.ID]; !ok {
			return store.ErrNotFound
		}
		st.sessions[session.ID] = copyOf(session)
		return nil
	})
}

func (v *view) DeleteSession(ctx context.Context, id string) error {
	return v.with(ctx, func(st *state) error {
		delete(st.sessions, id)
		return nil
	})
}

func (v *view) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	deleted := 0
	err := v.with(ctx, func(st *state) error {
		for id, s := range st.sessions {
			if now.After(s.ExpiresAt) {
				delete(st.sessions, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}
