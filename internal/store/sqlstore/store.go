// Package sqlstore implements store.Store on a PostgreSQL or MySQL server.
//
// Queries are built with goqu for the configured dialect. PostgreSQL runs
// on pgxpool by default or on lib/pq through sqlx; MySQL always runs on the
// go-sql-driver through sqlx.
package sqlstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// Config selects the server and connection library.
type Config struct {
	Dialect  string
	DSN      string
	UsePGX   bool // PostgreSQL only; false selects lib/pq
	MaxConns int32
	MinConns int32
}

// Store is a server-backed persistence layer.
type Store struct {
	db      dbAdapter
	dialect goqu.DialectWrapper
	name    string
	logger  *slog.Logger
	root    *repos
}

var _ store.Store = (*Store)(nil)

// Open connects, applies the schema and returns a ready store.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	log = logger.OrDiscard(log)

	db, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:      db,
		dialect: goqu.Dialect(cfg.Dialect),
		name:    cfg.Dialect,
		logger:  log,
	}
	s.root = &repos{s: s, q: db}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("SQL store opened", "dialect", cfg.Dialect, "pgx", cfg.UsePGX && cfg.Dialect == DialectPostgres)
	return s, nil
}

func connect(ctx context.Context, cfg Config) (dbAdapter, error) {
	switch cfg.Dialect {
	case DialectPostgres:
		if cfg.UsePGX {
			poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
			if err != nil {
				return nil, fmt.Errorf("parse postgres dsn: %w", err)
			}
			if cfg.MaxConns > 0 {
				poolCfg.MaxConns = cfg.MaxConns
			}
			if cfg.MinConns > 0 {
				poolCfg.MinConns = cfg.MinConns
			}
			poolCfg.MaxConnLifetime = time.Hour
			poolCfg.MaxConnIdleTime = 5 * time.Minute
			poolCfg.HealthCheckPeriod = time.Minute
			poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

			pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
			if err != nil {
				return nil, fmt.Errorf("connect postgres: %w", err)
			}
			return newPGXAdapter(pool), nil
		}
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		applyPoolLimits(db, cfg)
		return newSQLXAdapter(db), nil

	case DialectMySQL:
		dsn, err := mysqlDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		db, err := sqlx.ConnectContext(ctx, "mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		applyPoolLimits(db, cfg)
		return newSQLXAdapter(db), nil
	}
	return nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
}

// mysqlDSN forces the options the repositories rely on: time.Time scanning,
// UTC timestamps and matched-row counts for UPDATE.
func mysqlDSN(raw string) (string, error) {
	mc, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.ClientFoundRows = true
	return mc.FormatDSN(), nil
}

func applyPoolLimits(db *sqlx.DB, cfg Config) {
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(int(cfg.MinConns))
	}
	db.SetConnMaxLifetime(time.Hour)
}

// migrate runs the dialect's schema one statement at a time.
func (s *Store) migrate(ctx context.Context) error {
	data, err := schemaFS.ReadFile("schema/" + s.name + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range splitStatements(string(data)) {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";\n") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), "--") {
				lines = append(lines, line)
			}
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			out = append(out, strings.TrimSuffix(stmt, ";"))
		}
	}
	return out
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Atomic runs fn inside one READ COMMITTED transaction. Guarded updates
// re-check their predicate against the latest committed row, which is what
// keeps concurrent decrements from overselling.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &repos{s: s, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) Books() store.BookRepository                   { return s.root }
func (s *Store) Students() store.StudentRepository             { return s.root }
func (s *Store) Staff() store.StaffRepository                  { return s.root }
func (s *Store) Loans() store.LoanRepository                   { return s.root }
func (s *Store) BookRequests() store.BookRequestRepository     { return s.root }
func (s *Store) ReturnRequests() store.ReturnRequestRepository { return s.root }
func (s *Store) Sessions() store.SessionRepository             { return s.root }

// repos implements every repository against a pool or a transaction.
type repos struct {
	s *Store
	q querier
}

func (r *repos) Books() store.BookRepository                   { return r }
func (r *repos) Students() store.StudentRepository             { return r }
func (r *repos) Staff() store.StaffRepository                  { return r }
func (r *repos) Loans() store.LoanRepository                   { return r }
func (r *repos) BookRequests() store.BookRequestRepository     { return r }
func (r *repos) ReturnRequests() store.ReturnRequestRepository { return r }
func (r *repos) Sessions() store.SessionRepository             { return r }

// sqlBuilder is any goqu dataset that can render prepared SQL.
type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func (r *repos) exec(ctx context.Context, b sqlBuilder) (dbResult, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	r.s.logger.Debug("sql exec", "query", query)
	res, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return res, nil
}

// execOne runs b and maps zero affected rows to ErrNotFound.
func (r *repos) execOne(ctx context.Context, b sqlBuilder) error {
	res, err := r.exec(ctx, b)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// query runs b and hands each row to scan.
func (r *repos) query(ctx context.Context, b sqlBuilder, scan func(dbRows) error) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	r.s.logger.Debug("sql query", "query", query)
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
	}
	return rows.Err()
}

// queryOne is query for a single row; no row is ErrNotFound.
func (r *repos) queryOne(ctx context.Context, b sqlBuilder, scan func(dbRows) error) error {
	found := false
	err := r.query(ctx, b, func(rows dbRows) error {
		if found {
			return nil
		}
		found = true
		return scan(rows)
	})
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}

// Constraint error codes by driver.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"

	mysqlDuplicateEntry      = 1062
	mysqlForeignKeyViolation = 1452
	mysqlCheckViolation      = 3819
)

// mapError converts driver constraint errors into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPostgresCode(pgErr.Code, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return mapPostgresCode(string(pqErr.Code), err)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return store.ErrAlreadyExists.WithCause(err)
		case mysqlForeignKeyViolation, mysqlCheckViolation:
			return store.ErrInvalidInput.WithCause(err)
		}
	}
	return err
}

func mapPostgresCode(code string, err error) error {
	switch code {
	case pgUniqueViolation:
		return store.ErrAlreadyExists.WithCause(err)
	case pgForeignKeyViolation, pgCheckViolation:
		return store.ErrInvalidInput.WithCause(err)
	}
	return err
}
