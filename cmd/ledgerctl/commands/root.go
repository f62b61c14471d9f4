// Package commands implements the ledgerctl command tree.
package commands

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/libraryledger/ledger-server/internal/config"
	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/search"
	"github.com/libraryledger/ledger-server/internal/service"
	"github.com/libraryledger/ledger-server/internal/store"
	"github.com/libraryledger/ledger-server/internal/store/backend"
)

var (
	jsonOutput bool
	verbose    bool

	configFlags *config.Flags
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Library Ledger operator tool",
	Long: `ledgerctl runs and administers a Library Ledger server.

Commands that touch the store open it directly, so embedded stores
(sqlite, badger) and the search index should not be in use by a
running server at the same time.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	goFlags := flag.NewFlagSet("ledgerctl", flag.ContinueOnError)
	configFlags = config.BindFlags(goFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(goFlags)

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at info level")

	rootCmd.AddCommand(serveCmd, seedCmd, fineCmd, delinquencyCmd, userCmd, booksCmd)
}

// env is what a store-backed command needs.
type env struct {
	cfg   *config.Config
	log   *logger.Logger
	store store.Store
	index *search.Index
}

func (e *env) Close() {
	if e.index != nil {
		if err := e.index.Close(); err != nil {
			e.log.Warn("close search index", "error", err)
		}
	}
	if err := e.store.Close(); err != nil {
		e.log.Warn("close store", "error", err)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFlags)
}

func cliLogger(cfg *config.Config) *logger.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return logger.New(logger.Config{
		Writer:      os.Stderr,
		Level:       level,
		Environment: cfg.App.Environment,
	})
}

// openEnv opens the configured store. withIndex also opens the search
// index so catalog writes stay searchable.
func openEnv(ctx context.Context, withIndex bool) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := cliLogger(cfg)

	st, err := backend.Open(ctx, cfg.Store, log.Logger)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: log, store: st}

	if withIndex && cfg.Search.Enabled {
		idx, _, err := search.Open(search.Options{DataPath: cfg.Search.Path, Logger: log.Logger})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("open search index: %w", err)
		}
		e.index = idx
	}
	return e, nil
}

func (e *env) policy() domain.DelinquencyPolicy {
	return domain.DelinquencyPolicy{ClearPaidFines: e.cfg.Ledger.ClearPaidFines}
}

func (e *env) catalogService() *service.CatalogService {
	var index service.BookIndex
	if e.index != nil {
		index = e.index
	}
	return service.NewCatalogService(e.store, index, nil, nil, e.log.Logger)
}
