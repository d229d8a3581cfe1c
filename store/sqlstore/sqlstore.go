/*
Package sqlstore provides the database/sql implementation of leave.TxStore
and leave.Directory for SQLite and PostgreSQL.

PURPOSE:
  One implementation, two dialects. Queries are written with "?" placeholders
  and rebound to "$n" for PostgreSQL. Day counts are stored as decimal text,
  dates as YYYY-MM-DD text so range comparisons work lexically on both
  engines, booleans as 0/1 integers.

KEY TABLES:
  leave_requests:    one row per request, status denormalized from approvals
  request_approvals: one row per required level, unique per (request, level)
  leave_balances:    ledger rows, PK (user_id, leave_type_id, year), version CAS
  reservations:      one row per request, unique on request_id
  audit_log:         append-only lifecycle entries
  users, teams, team_blocked_periods, company_settings, leave_types, holidays:
                     reference data served through the Directory

CONCURRENCY:
  SaveBalance is a check-and-set on the version column:
  - version 0 inserts; a primary key violation means someone else inserted
  - version n updates WHERE version = n; zero rows affected means a lost race
  Both surface as leave.ErrConcurrentModification. SQLite allows one writer,
  so transactions on a SQLite store are also serialized in-process.

MIGRATION:
  Open migrates the schema. New wraps an existing *sql.DB without touching
  the schema; call Migrate explicitly.

SEE ALSO:
  - leave/store.go: the contracts implemented here
  - leave/store: the in-memory implementation used by service tests
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/leave"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns int
}

// Store implements leave.TxStore and leave.Directory.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex // serializes SQLite writers
}

var (
	_ leave.TxStore   = (*Store)(nil)
	_ leave.Directory = (*Store)(nil)
)

// Open connects and migrates. dsn is a file path (or ":memory:") for SQLite
// and a connection string for PostgreSQL.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite3", sqliteDSN(dsn))
		if err == nil && dsn == ":memory:" {
			// Every connection would get its own empty database.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
		if err == nil && opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := New(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on"
	}
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// New wraps db for the given driver without migrating.
func New(db *sql.DB, driver string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Store{queries: queries{q: db, d: d}, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// WithTx executes fn within a database transaction. The transaction is
// rolled back when fn fails or ctx is done before commit.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	if s.d.name == DriverSQLite {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx, d: s.d}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// QUERIES - Shared by the pooled store and its transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries runs statements on a pool or a transaction.
type queries struct {
	q querier
	d dialect
}

func (x *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return x.q.ExecContext(ctx, x.d.rebind(query), args...)
}

func (x *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return x.q.QueryContext(ctx, x.d.rebind(query), args...)
}

func (x *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return x.q.QueryRowContext(ctx, x.d.rebind(query), args...)
}
