// Package store defines the ledger's persistence contracts.
//
// Each entity has its own repository interface. Backends (memstore, sqlite,
// badger, sqlstore) implement all of them and expose them through Store.
// Multi-record mutations run inside Store.Atomic, which hands the callback
// a transactional view of the same repositories.
package store

import (
	"context"
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
)

// BookRepository persists catalog entries.
type BookRepository interface {
	CreateBook(ctx context.Context, book *domain.Book) error
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	// GetBookByTitle matches the title case-insensitively.
	GetBookByTitle(ctx context.Context, title string) (*domain.Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (*domain.Book, error)
	UpdateBook(ctx context.Context, book *domain.Book) error
	DeleteBook(ctx context.Context, id string) error
	ListBooks(ctx context.Context) ([]*domain.Book, error)
	SearchBooks(ctx context.Context, q BookQuery) ([]*domain.Book, error)

	// DecrementAvailable takes one copy if any is left and returns the
	// updated book. It fails with ErrNoCopiesAvailable otherwise and leaves
	// the book untouched.
	DecrementAvailable(ctx context.Context, id string) (*domain.Book, error)
	// IncrementAvailable puts one copy back, never exceeding TotalCopies.
	IncrementAvailable(ctx context.Context, id string) (*domain.Book, error)
}

// StudentRepository persists student accounts.
type StudentRepository interface {
	CreateStudent(ctx context.Context, student *domain.Student) error
	GetStudent(ctx context.Context, id string) (*domain.Student, error)
	GetStudentByName(ctx context.Context, name string) (*domain.Student, error)
	GetStudentByStudentID(ctx context.Context, studentID string) (*domain.Student, error)
	ListStudents(ctx context.Context) ([]*domain.Student, error)
}

// StaffRepository persists librarian and admin accounts.
type StaffRepository interface {
	CreateStaff(ctx context.Context, user *domain.StaffUser) error
	GetStaff(ctx context.Context, id string) (*domain.StaffUser, error)
	GetStaffByUsername(ctx context.Context, username string) (*domain.StaffUser, error)
	ListStaff(ctx context.Context) ([]*domain.StaffUser, error)
}

// LoanRepository persists issued-book records. Loans are never deleted.
type LoanRepository interface {
	CreateLoan(ctx context.Context, loan *domain.IssuedBook) error
	GetLoan(ctx context.Context, id string) (*domain.IssuedBook, error)
	UpdateLoan(ctx context.Context, loan *domain.IssuedBook) error
	ListLoans(ctx context.Context, f LoanFilter) ([]*domain.IssuedBook, error)
}

// BookRequestRepository persists borrow requests.
// CreateBookRequest fails with ErrAlreadyExists when the student already has
// a pending request for the same book.
type BookRequestRepository interface {
	CreateBookRequest(ctx context.Context, req *domain.BookRequest) error
	GetBookRequest(ctx context.Context, id string) (*domain.BookRequest, error)
	UpdateBookRequest(ctx context.Context, req *domain.BookRequest) error
	ListBookRequests(ctx context.Context, f RequestFilter) ([]*domain.BookRequest, error)
}

// ReturnRequestRepository persists return requests.
// CreateReturnRequest fails with ErrAlreadyExists when the loan already has a
// pending return request.
type ReturnRequestRepository interface {
	CreateReturnRequest(ctx context.Context, req *domain.ReturnRequest) error
	GetReturnRequest(ctx context.Context, id string) (*domain.ReturnRequest, error)
	GetPendingReturnRequest(ctx context.Context, issuedBookID string) (*domain.ReturnRequest, error)
	UpdateReturnRequest(ctx context.Context, req *domain.ReturnRequest) error
	ListReturnRequests(ctx context.Context, f RequestFilter) ([]*domain.ReturnRequest, error)
}

// SessionRepository persists refresh-token sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	UpdateSession(ctx context.Context, session *domain.Session) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// Repositories gives access to every entity repository.
type Repositories interface {
	Books() BookRepository
	Students() StudentRepository
	Staff() StaffRepository
	Loans() LoanRepository
	BookRequests() BookRequestRepository
	ReturnRequests() ReturnRequestRepository
	Sessions() SessionRepository
}

// Store is a complete persistence backend.
type Store interface {
	Repositories

	// Atomic runs fn against a transactional view of the repositories.
	// Writes made through tx commit together when fn returns nil and are
	// discarded otherwise.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
