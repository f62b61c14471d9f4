//go:build integration

package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
	"github.com/libraryledger/ledger-server/internal/store/storetest"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ledger"),
		postgres.WithUsername("ledger"),
		postgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func startMySQL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx,
		"mysql:8.4",
		tcmysql.WithDatabase("ledger"),
		tcmysql.WithUsername("ledger"),
		tcmysql.WithPassword("ledger"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate mysql: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return dsn
}

// freshStore opens a store and empties every table so each conformance
// subtest starts clean on a shared container.
func freshStore(t *testing.T, cfg Config) store.Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, table := range []string{
		tableReturnRequests, tableBookRequests, tableLoans, tableSessions,
		tableStaff, tableStudents, tableBooks,
	} {
		_, err := s.db.Exec(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
	return s
}

func TestPostgresPGX(t *testing.T) {
	cfg := Config{Dialect: DialectPostgres, DSN: startPostgres(t), UsePGX: true, MaxConns: 8}
	storetest.Run(t, func(t *testing.T) store.Store { return freshStore(t, cfg) })
}

func TestPostgresLibPQ(t *testing.T) {
	cfg := Config{Dialect: DialectPostgres, DSN: startPostgres(t), MaxConns: 8}
	storetest.Run(t, func(t *testing.T) store.Store { return freshStore(t, cfg) })
}

func TestMySQL(t *testing.T) {
	cfg := Config{Dialect: DialectMySQL, DSN: startMySQL(t), MaxConns: 8}
	storetest.Run(t, func(t *testing.T) store.Store { return freshStore(t, cfg) })
}
