package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/config"
	"github.com/libraryledger/ledger-server/internal/store/storetest"
)

func TestOpen_EmbeddedDrivers(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.StoreConfig
	}{
		{"memory", config.StoreConfig{Driver: config.DriverMemory}},
		{"sqlite", config.StoreConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "ledger.db")}},
		{"badger", config.StoreConfig{Driver: config.DriverBadger, Path: filepath.Join(dir, "badger")}},
		{"badger in memory", config.StoreConfig{Driver: config.DriverBadger}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, err := Open(ctx, tt.cfg, nil)
			require.NoError(t, err)
			defer s.Close()

			require.NoError(t, s.Ping(ctx))
			book := storetest.NewBook("book-1", "Dune", "Frank Herbert", "9780441013593", 1)
			require.NoError(t, s.Books().CreateBook(ctx, book))

			got, err := s.Books().GetBookByTitle(ctx, "dune")
			require.NoError(t, err)
			assert.Equal(t, "book-1", got.ID)
		})
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "oracle"}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), config.StoreConfig{Driver: config.DriverSQLite}, nil)
	assert.Error(t, err)
}
