// Package memstore is an in-memory store.Store. It backs unit tests and the
// "memory" driver; nothing survives a restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

type state struct {
	books          map[string]*domain.Book
	students       map[string]*domain.Student
	staff          map[string]*domain.StaffUser
	loans          map[string]*domain.IssuedBook
	bookRequests   map[string]*domain.BookRequest
	returnRequests map[string]*domain.ReturnRequest
	sessions       map[string]*domain.Session
}

func newState() *state {
	return &state{
		books:          make(map[string]*domain.Book),
		students:       make(map[string]*domain.Student),
		staff:          make(map[string]*domain.StaffUser),
		loans:          make(map[string]*domain.IssuedBook),
		bookRequests:   make(map[string]*domain.BookRequest),
		returnRequests: make(map[string]*domain.ReturnRequest),
		sessions:       make(map[string]*domain.Session),
	}
}

func cloneMap[T any](src map[string]*T, clone func(*T) *T) map[string]*T {
	dst := make(map[string]*T, len(src))
	for k, v := range src {
		dst[k] = clone(v)
	}
	return dst
}

func (s *state) clone() *state {
	return &state{
		books:          cloneMap(s.books, copyBook),
		students:       cloneMap(s.students, copyOf[domain.Student]),
		staff:          cloneMap(s.staff, copyOf[domain.StaffUser]),
		loans:          cloneMap(s.loans, copyLoan),
		bookRequests:   cloneMap(s.bookRequests, copyBookRequest),
		returnRequests: cloneMap(s.returnRequests, copyReturnRequest),
		sessions:       cloneMap(s.sessions, copyOf[domain.Session]),
	}
}

// Store is a mutex-guarded in-memory store.
type Store struct {
	mu     sync.Mutex
	st     *state
	closed bool
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// Atomic runs fn against a private copy of the data and swaps it in on success.
// The store lock is held for the whole callback, so transactions are serialized.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &view{tx: s.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.st = tx.tx
	return nil
}

// Ping always succeeds while the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrInvalidInput.WithMessage("store closed")
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) root() *view { return &view{store: s} }

func (s *Store) Books() store.BookRepository                   { return s.root() }
func (s *Store) Students() store.StudentRepository             { return s.root() }
func (s *Store) Staff() store.StaffRepository                  { return s.root() }
func (s *Store) Loans() store.LoanRepository                   { return s.root() }
func (s *Store) BookRequests() store.BookRequestRepository     { return s.root() }
func (s *Store) ReturnRequests() store.ReturnRequestRepository { return s.root() }
func (s *Store) Sessions() store.SessionRepository             { return s.root() }

// view implements every repository. Outside a transaction it locks the
// store per call; inside Atomic it works on the transaction's copy.
type view struct {
	store *Store
	tx    *state
}

func (v *view) Books() store.BookRepository                   { return v }
func (v *view) Students() store.StudentRepository             { return v }
func (v *view) Staff() store.StaffRepository                  { return v }
func (v *view) Loans() store.LoanRepository                   { return v }
func (v *view) BookRequests() store.BookRequestRepository     { return v }
func (v *view) ReturnRequests() store.ReturnRequestRepository { return v }
func (v *view) Sessions() store.SessionRepository             { return v }

func (v *view) with(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

func copyOf[T any](v *T) *T {
	c := *v
	return &c
}

func copyBook(b *domain.Book) *domain.Book { return copyOf(b) }

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyLoan(l *domain.IssuedBook) *domain.IssuedBook {
	c := *l
	c.ReturnDate = copyTime(l.ReturnDate)
	return &c
}

func copyBookRequest(r *domain.BookRequest) *domain.BookRequest {
	c := *r
	c.DecidedAt = copyTime(r.DecidedAt)
	return &c
}

func copyReturnRequest(r *domain.ReturnRequest) *domain.ReturnRequest {
	c := *r
	c.DecidedAt = copyTime(r.DecidedAt)
	return &c
}
