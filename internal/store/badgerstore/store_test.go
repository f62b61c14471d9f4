package badgerstore

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
	"github.com/libraryledger/ledger-server/internal/store/storetest"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return setupTestStore(t) })
}

func TestConformance_InMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := OpenInMemory(nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPendingIndexReleasedOnDecision(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	book := storetest.NewBook("book-1", "Dune", "Frank Herbert", "978-0441172719", 1)
	student := storetest.NewStudent("student-1", "Alice", "S001")
	require.NoError(t, s.Books().CreateBook(ctx, book))
	require.NoError(t, s.Students().CreateStudent(ctx, student))

	req := domain.NewBookRequest("breq-1", book, student, storetest.Now())
	require.NoError(t, s.BookRequests().CreateBookRequest(ctx, req))

	key := []byte("breq:idx:pending:student-1/book-1")
	assertKey(t, s, key, true)

	require.NoError(t, req.Approve("staff-1", "loan-1", storetest.Now()))
	require.NoError(t, s.BookRequests().UpdateBookRequest(ctx, req))
	assertKey(t, s, key, false)
}

func TestDeleteBookRemovesIndexes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	book := storetest.NewBook("book-1", "Dune", "Frank Herbert", "978-0441172719", 1)
	require.NoError(t, s.Books().CreateBook(ctx, book))
	require.NoError(t, s.Books().DeleteBook(ctx, book.ID))

	_, err := s.Books().GetBookByISBN(ctx, book.ISBN)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A new book may reuse the title once the old index marker is gone.
	again := storetest.NewBook("book-2", "Dune", "Frank Herbert", "978-0441172719", 1)
	require.NoError(t, s.Books().CreateBook(ctx, again))
	got, err := s.Books().GetBookByTitle(ctx, "dune")
	require.NoError(t, err)
	assert.Equal(t, "book-2", got.ID)
}

func TestPingAfterClose(t *testing.T) {
	s, err := OpenInMemory(nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

func assertKey(t *testing.T, s *Store, key []byte, want bool) {
	t.Helper()
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if want {
		assert.NoError(t, err)
	} else {
		assert.ErrorIs(t, err, badger.ErrKeyNotFound)
	}
}
