// Package badgerstore implements store.Store on an embedded Badger key-value database.
//
// Records are JSON values under a per-entity key prefix. Secondary indexes
// live under prefix+"idx:"+name and are maintained in the same transaction as
// the record they point at. Badger transactions are optimistic, so every write
// path retries on ErrConflict.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
)

// maxConflictRetries bounds how often a transaction is replayed after losing
// an optimistic conflict.
const maxConflictRetries = 5

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	books          *entity[domain.Book]
	students       *entity[domain.Student]
	staff          *entity[domain.StaffUser]
	loans          *entity[domain.IssuedBook]
	bookRequests   *entity[domain.BookRequest]
	returnRequests *entity[domain.ReturnRequest]
	sessions       *entity[domain.Session]

	root *repos
}

var _ store.Store = (*Store)(nil)

// Open opens or creates a Badger database in dir.
func Open(dir string, log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	return open(opts, log)
}

// OpenInMemory opens a Badger database that never touches disk.
func OpenInMemory(log *slog.Logger) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), log)
}

func open(opts badger.Options, log *slog.Logger) (*Store, error) {
	log = logger.OrDiscard(log)
	opts.Logger = &badgerLogger{logger: log.With("component", "badger")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &Store{db: db, logger: log}
	s.initEntities()
	s.root = &repos{s: s}

	log.Info("Badger database opened", "path", opts.Dir, "in_memory", opts.InMemory)
	return s, nil
}

func (s *Store) initEntities() {
	s.books = newEntity("book:", func(b *domain.Book) string { return b.ID }).
		withIndex("title", func(b *domain.Book) []string { return []string{store.FoldKey(b.Title)} }).
		withIndex("isbn", func(b *domain.Book) []string {
			if b.ISBN == "" {
				return nil
			}
			return []string{store.FoldKey(b.ISBN)}
		})

	s.students = newEntity("student:", func(st *domain.Student) string { return st.ID }).
		withUnique("name", func(st *domain.Student) []string { return []string{store.FoldKey(st.Name)} }).
		withUnique("student_id", func(st *domain.Student) []string { return []string{store.FoldKey(st.StudentID)} })

	s.staff = newEntity("staff:", func(u *domain.StaffUser) string { return u.ID }).
		withUnique("username", func(u *domain.StaffUser) []string { return []string{store.FoldKey(u.Username)} })

	s.loans = newEntity("loan:", func(l *domain.IssuedBook) string { return l.ID }).
		withIndex("student", func(l *domain.IssuedBook) []string { return []string{l.StudentID} })

	// Pending-only unique keys enforce one open request per (student, book)
	// and per loan; deciding a request drops its key.
	s.bookRequests = newEntity("breq:", func(r *domain.BookRequest) string { return r.ID }).
		withUnique("pending", func(r *domain.BookRequest) []string {
			if !r.IsPending() {
				return nil
			}
			return []string{r.StudentID + "/" + r.BookID}
		})

	s.returnRequests = newEntity("rreq:", func(r *domain.ReturnRequest) string { return r.ID }).
		withUnique("pending", func(r *domain.ReturnRequest) []string {
			if !r.IsPending() {
				return nil
			}
			return []string{r.IssuedBookID}
		})

	s.sessions = newEntity("session:", func(se *domain.Session) string { return se.ID })
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	s.logger.Info("Closing database connection")
	return s.db.Close()
}

// Ping reports whether the database is open.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// Atomic runs fn inside one read-write transaction, replaying it when Badger
// reports a conflict with a concurrently committed transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return fn(ctx, &repos{s: s, txn: txn})
	})
}

func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			return err
		}
		s.logger.Debug("retrying badger transaction after conflict", "attempt", attempt+1)
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}
}

func (s *Store) Books() store.BookRepository                   { return s.root }
func (s *Store) Students() store.StudentRepository             { return s.root }
func (s *Store) Staff() store.StaffRepository                  { return s.root }
func (s *Store) Loans() store.LoanRepository                   { return s.root }
func (s *Store) BookRequests() store.BookRequestRepository     { return s.root }
func (s *Store) ReturnRequests() store.ReturnRequestRepository { return s.root }
func (s *Store) Sessions() store.SessionRepository             { return s.root }

// repos implements every repository. With a nil txn each call runs in its
// own transaction; inside Atomic all calls share txn.
type repos struct {
	s   *Store
	txn *badger.Txn
}

func (r *repos) Books() store.BookRepository                   { return r }
func (r *repos) Students() store.StudentRepository             { return r }
func (r *repos) Staff() store.StaffRepository                  { return r }
func (r *repos) Loans() store.LoanRepository                   { return r }
func (r *repos) BookRequests() store.BookRequestRepository     { return r }
func (r *repos) ReturnRequests() store.ReturnRequestRepository { return r }
func (r *repos) Sessions() store.SessionRepository             { return r }

func (r *repos) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.txn != nil {
		return fn(r.txn)
	}
	return r.s.db.View(fn)
}

func (r *repos) write(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if r.txn != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(r.txn)
	}
	return r.s.update(ctx, fn)
}

// badgerLogger routes Badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(logLine(format, args))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(logLine(format, args))
}

// Infof is demoted to debug; Badger is chatty at info.
func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(logLine(format, args))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(logLine(format, args))
}

func logLine(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
