package sqlstore

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

// dbRows is the subset of a result set the repositories read.
type dbRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// dbResult reports how many rows a statement touched.
type dbResult interface {
	RowsAffected() (int64, error)
}

// querier runs statements on a pool or inside a transaction.
type querier interface {
	Query(ctx context.Context, query string, args ...any) (dbRows, error)
	Exec(ctx context.Context, query string, args ...any) (dbResult, error)
}

// txAdapter is a querier bound to an open transaction.
type txAdapter interface {
	querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// dbAdapter is a connection pool that can open transactions.
type dbAdapter interface {
	querier
	Begin(ctx context.Context) (txAdapter, error)
	Ping(ctx context.Context) error
	Close() error
}

// pgxAdapter implements dbAdapter for pgxpool.Pool.
type pgxAdapter struct {
	pool *pgxpool.Pool
}

func newPGXAdapter(pool *pgxpool.Pool) *pgxAdapter {
	return &pgxAdapter{pool: pool}
}

func (p *pgxAdapter) Query(ctx context.Context, query string, args ...any) (dbRows, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (p *pgxAdapter) Exec(ctx context.Context, query string, args ...any) (dbResult, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgxResult{tag: tag}, nil
}

func (p *pgxAdapter) Begin(ctx context.Context) (txAdapter, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

func (p *pgxAdapter) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *pgxAdapter) Close() error {
	p.pool.Close()
	return nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Query(ctx context.Context, query string, args ...any) (dbRows, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (t *pgxTx) Exec(ctx context.Context, query string, args ...any) (dbResult, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgxResult{tag: tag}, nil
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// pgxRows wraps pgx.Rows to implement dbRows.
type pgxRows struct {
	rows pgx.Rows
}

func (p *pgxRows) Next() bool             { return p.rows.Next() }
func (p *pgxRows) Scan(dest ...any) error { return p.rows.Scan(dest...) }
func (p *pgxRows) Err() error             { return p.rows.Err() }

func (p *pgxRows) Close() error {
	p.rows.Close()
	return nil
}

// pgxResult wraps pgconn.CommandTag to implement dbResult.
type pgxResult struct {
	tag pgconn.CommandTag
}

func (p pgxResult) RowsAffected() (int64, error) {
	return p.tag.RowsAffected(), nil
}

// sqlxAdapter implements dbAdapter for sqlx.DB. It serves lib/pq and the
// MySQL driver alike.
type sqlxAdapter struct {
	db *sqlx.DB
}

func newSQLXAdapter(db *sqlx.DB) *sqlxAdapter {
	return &sqlxAdapter{db: db}
}

func (s *sqlxAdapter) Query(ctx context.Context, query string, args ...any) (dbRows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlxAdapter) Exec(ctx context.Context, query string, args ...any) (dbResult, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlxAdapter) Begin(ctx context.Context) (txAdapter, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	return &sqlxTx{tx: tx}, nil
}

func (s *sqlxAdapter) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqlxAdapter) Close() error                   { return s.db.Close() }

type sqlxTx struct {
	tx *sqlx.Tx
}

func (t *sqlxTx) Query(ctx context.Context, query string, args ...any) (dbRows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *sqlxTx) Exec(ctx context.Context, query string, args ...any) (dbResult, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *sqlxTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqlxTx) Rollback(context.Context) error { return t.tx.Rollback() }
