// Package backend opens the store.Store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/libraryledger/ledger-server/internal/config"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
	"github.com/libraryledger/ledger-server/internal/store/badgerstore"
	"github.com/libraryledger/ledger-server/internal/store/memstore"
	"github.com/libraryledger/ledger-server/internal/store/sqlite"
	"github.com/libraryledger/ledger-server/internal/store/sqlstore"
)

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (store.Store, error) {
	log = logger.OrDiscard(log)

	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("Using in-memory store; data is lost on restart")
		return memstore.New(), nil
	case config.DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite store requires a path")
		}
		return sqlite.Open(cfg.Path, log)
	case config.DriverBadger:
		if cfg.Path == "" {
			return badgerstore.OpenInMemory(log)
		}
		return badgerstore.Open(cfg.Path, log)
	case config.DriverPostgres, config.DriverMySQL:
		return sqlstore.Open(ctx, sqlstore.Config{
			Dialect:  cfg.Driver,
			DSN:      cfg.DSN,
			UsePGX:   cfg.UsePGX,
			MaxConns: int32(cfg.MaxConns),
			MinConns: int32(cfg.MinConns),
		}, log)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
