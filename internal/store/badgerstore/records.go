package badgerstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

// getOne loads a single record through fn inside a read transaction.
func getOne[T any](ctx context.Context, r *repos, fn func(txn *badger.Txn) (*T, error)) (*T, error) {
	var out *T
	err := r.view(ctx, func(txn *badger.Txn) (err error) {
		out, err = fn(txn)
		return err
	})
	return out, err
}

// listAll loads every record of e and keeps those match accepts.
func listAll[T any](ctx context.Context, r *repos, e *entity[T], match func(*T) bool) ([]*T, error) {
	var out []*T
	err := r.view(ctx, func(txn *badger.Txn) error {
		all, err := e.all(txn)
		if err != nil {
			return err
		}
		for _, v := range all {
			if match == nil || match(v) {
				out = append(out, v)
			}
		}
		return nil
	})
	return out, err
}

// Students

func (r *repos) CreateStudent(ctx context.Context, student *domain.Student) error {
	return r.write(ctx, func(txn *badger.Txn) error { return r.s.students.create(txn, student) })
}

func (r *repos) GetStudent(ctx context.Context, id string) (*domain.Student, error) {
	return getOne(ctx, r, func(txn *badger.Txn) (*domain.Student, error) { return r.s.students.get(txn, id) })
}

func (r *repos) GetStudentByName(ctx context.Context, name string) (*domain.Student, error) {
	return getOne(ctx, r, func(txn *badger.Txn) (*domain.Student, error) {
		return r.s.students.getByIndex(txn, "name", store.FoldKey(name))
	})
}

func (r *repos) GetStudentByStudentID(ctx context.Context, studentID string) (*domain.Student, error) {
	return getOne(ctx, r, func(txn *badger.Txn) (*domain.Student, error) {
		return r.s.students.getByIndex(txn, "student_id", store.FoldKey(studentID))
	})
}

func (r *repos) ListStudents(ctx context.Context) ([]*domain.Student, error) {
	out, err := listAll(ctx, r, r.s.students, nil)
	sort.Slice(out, func(i, j int) bool { return store.FoldKey(out[i].Name) < store.FoldKey(out[j].Name) })
	return out, err
}

// Staff

func (r *repos) CreateStaff(ctx context.Context, user *domain.StaffUser) error {
	return r.write(ctx, func(txn *badger.Txn) error { return r.s.staff.create(txn, user) })
}

func (r *repos) GetStaff(ctx context.Context, id string) (*domain.StaffUser, error) {
	return getOne(ctx, r, func(txn *badger.Txn) (*domain.StaffUser, error) { return r.s.staff.get(txn, id) })
}

func (r *repos) GetStaffByUsername(ctx context.Context, username string) (*domain.StaffUser, error) {
	return getOne(ctx, r, func(txn *badger.Txn) (*domain.StaffUser, error) {
		return r.s.staff.getByIndex(txn, "username", store.FoldKey(username))
	})
}

func (r *repos) ListStaff(ctx context.Context) ([]*domain.StaffUser, error) {
	out, err := listAll(ctx, r, r.s.staff, nil)
	sort.Slice(out, func(i, j int) bool { return store.FoldKey(out[i].Username) < store.FoldKey(out[j].Username) })
	return out, err
}

// Loans

func (r *repos) CreateLoan(ctx context.Context, loan *domain.IssuedBook) error {
	return r.write(ctx, func(txn *badger.Txn) error { return r.s.loans.create(txn, loan) })
}

func (r *repos) GetLoan(ctx context.Context, id string) (*domain.IssuedBook, error) {
	return getOne(ctx, r, func(txn *badger.Txn) (*domain.IssuedBook, error) { return r.s.loans.get(txn, id) })
}

func (r *repos) UpdateLoan(ctx context.Context, loan *domain.IssuedBook) error {
	return r.write(ctx, func(txn *badger.Txn) error { return r.s.loans.update(txn, loan) })
}

// ListLoans uses the student index when the filter names a student.
func (r *repos) ListLoans(ctx context.Context, f store.LoanFilter) ([]*domain.IssuedBook, error) {
	var out []*domain.IssuedBook
	err := r.view(ctx, func(txn *badger.Txn) error {
		if f.StudentID == "" {
			all, err := r.s.loans.all(txn)
			if err != nil {
				return err
			}
			for _, l := range all {
				if f.Matches(l) {
					out = append(out, l)
				}
			}
			return nil
		}
		for _, id := range r.s.loans.idsByIndex(txn, "student", f.StudentID) {
			l, err := r.s.loans.get(txn, id)
			if err != nil {
				return err
			}
			if f.Matches(l) {
				out = append(out, l)
			}
		}
		return nil
	})
	store.SortLoans(out)
	return out, err
}

// Book requests

func (r *repos) CreateBookRequest(ctx context.Context, req *domain.BookRequest) error {
	return r.write(ctx, func(txn *badger.Txn) error { return r.s.bookRequests.create(txn, req) })
}

func (r *repos) GetBookRequest(ctx context.Context, id string) (*domain.BookRequest, error) {
	return getOne(ctx, r, func(txn *badger.Txn) (*domain.BookRequest, error) { return r.s.bookRequests.get(txn, id) })
}

func (r *repos) UpdateBookRequest(ctx context.Context, req *domain.BookRequest) error {
	return r.write(ctx, func(txn *badger.Txn) error { return r.s.bookRequests.update(txn, req) })
}

func (r *repos) ListBookRequests(ctx context.Context, f store.RequestFilter) ([]*domain.BookRequest, error) {
	out, err := listAll(ctx, r, r.s.bookRequests, f.MatchesBookRequest)
	store.SortBookRequests(out)
	return out, err
}

// Return requests

func (r *repos) CreateReturnRequest(ctx context.Context, req *domain.ReturnRequest) error {
	return r.write(ctx, func(txn *badger.Txn) error { return r.s.returnRequests.create(txn, req) })
}

func (r *repos) GetReturnRequest(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	return getOne(ctx, r, func(txn *badger.Txn) (*domain.ReturnRequest, error) { return r.s.returnRequests.get(txn, id) })
}

func (r *repos) GetPendingReturnRequest(ctx context.Context, issuedBookID string) (*domain.ReturnRequest, error) {
	return getOne(ctx, r, func(txn *badger.Txn) (*domain.ReturnRequest, error) {
		return r.s.returnRequests.getByIndex(txn, "pending", issuedBookID)
	})
}

func (r *repos) UpdateReturnRequest(ctx context.Context, req *domain.ReturnRequest) error {
	return r.write(ctx, func(txn *badger.Txn) error { return r.s.returnRequests.update(txn, req) })
}

func (r *repos) ListReturnRequests(ctx context.Context, f store.RequestFilter) ([]*domain.ReturnRequest, error) {
	out, err := listAll(ctx, r, r.s.returnRequests, f.MatchesReturnRequest)
	store.SortReturnRequests(out)
	return out, err
}

// Sessions

func (r *repos) CreateSession(ctx context.Context, session *domain.Session) error {
	return r.write(ctx, func(txn *badger.Txn) error { return r.s.sessions.create(txn, session) })
}

func (r *repos) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return getOne(ctx, r, func(txn *badger.Txn) (*domain.Session, error) { return r.s.sessions.get(txn, id) })
}

func (r *repos) UpdateSession(ctx context.Context, session *domain.Session) error {
	return r.write(ctx, func(txn *badger.Txn) error { return r.s.sessions.update(txn, session) })
}

// DeleteSession is idempotent.
func (r *repos) DeleteSession(ctx context.Context, id string) error {
	return r.write(ctx, func(txn *badger.Txn) error {
		err := r.s.sessions.delete(txn, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (r *repos) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	deleted := 0
	err := r.write(ctx, func(txn *badger.Txn) error {
		deleted = 0
		all, err := r.s.sessions.all(txn)
		if err != nil {
			return err
		}
		for _, se := range all {
			if now.After(se.ExpiresAt) {
				if err := r.s.sessions.delete(txn, se.ID); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}
