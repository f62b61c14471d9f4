package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
	"github.com/libraryledger/ledger-server/internal/store/storetest"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return setupTestStore(t) })
}

func TestOpen_AppliesPragmasAndSchema(t *testing.T) {
	s := setupTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var tables int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('books', 'loans', 'sessions')`,
	).Scan(&tables))
	assert.Equal(t, 3, tables)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Books().CreateBook(ctx, storetest.NewBook("book-1", "Dune", "Frank Herbert", "978-0441172719", 1)))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Books().GetBook(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
}

func TestSearchBooks_EscapesWildcards(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Books().CreateBook(ctx, storetest.NewBook("book-1", "100% Go", "Gopher", "1", 1)))
	require.NoError(t, s.Books().CreateBook(ctx, storetest.NewBook("book-2", "1000 Recipes", "Chef", "2", 1)))

	got, err := s.Books().SearchBooks(ctx, store.BookQuery{Text: "100%", Field: store.SearchTitle})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "book-1", got[0].ID)
}

func TestFormatTime_SortsLexically(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	later := base.Add(500 * time.Millisecond)

	assert.Less(t, formatTime(base), formatTime(later))

	parsed, err := parseTime(formatTime(later))
	require.NoError(t, err)
	assert.True(t, later.Equal(parsed))
}
