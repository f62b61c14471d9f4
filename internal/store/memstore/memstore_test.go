package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/store"
	"github.com/libraryledger/ledger-server/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := New()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Books().CreateBook(ctx, storetest.NewBook("book-1", "Dune", "Frank Herbert", "978-0441172719", 2)))

	got, err := s.Books().GetBook(ctx, "book-1")
	require.NoError(t, err)
	got.AvailableCopies = 0

	again, err := s.Books().GetBook(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, 2, again.AvailableCopies)
}

func TestPingAfterClose(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
