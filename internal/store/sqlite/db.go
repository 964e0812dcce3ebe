// Package sqlite provides the persistent store for the tracking core. One
// SQLite file holds users, sessions, credentials, employer records,
// compliance rules and holidays; it is the single source of truth across
// restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no CGO
)

// Config defines operational parameters for the SQLite pool.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the recommended pool configuration.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so store methods can run
// standalone or inside a unit of work.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides SQLite persistence for the tracking domain. The zero
// value is not usable; construct via Open or New.
type Store struct {
	db *sql.DB // nil when the store is bound to a transaction
	q  dbtx
}

// Open initialises a SQLite connection pool with mandatory PRAGMAs, runs
// migrations and returns a ready store. The PRAGMAs are part of the DSN so
// they apply to every connection in the pool.
func Open(dbPath string, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	store := New(db)
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate failed: %w", err)
	}
	return store, nil
}

// New wraps an existing database handle without running migrations.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Close closes the underlying pool. No-op for tx-bound stores.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// timeFormat is the canonical column encoding for UTC instants. The
// fractional part is zero-padded to a fixed width so that lexical order
// of the TEXT columns matches chronological order; RFC3339Nano would trim
// trailing zeros and break range and ORDER BY comparisons in SQL.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	// RFC3339Nano accepts any fraction width, including the padded
	// canonical form.
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func fmtNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}
