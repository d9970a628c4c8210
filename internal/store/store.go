// Package store is the durable record-store substrate described in spec.md
// §4.1: a single SQLite file configured for concurrent readers and a
// serialized writer, opened by every worker process independently.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tinkeshwar/videopipeline/internal/pipeline"
)

// Store wraps a sqlx.DB configured per spec.md §4.1 and exposes the generic
// operations the Job Repository builds on: open/close, begin/commit/rollback,
// execute, fetch-one, fetch-all. Schema/migration are applied at Open.
type Store struct {
	DB   *sqlx.DB
	path string
}

// Options configures how a Store is opened.
type Options struct {
	Path       string
	TimeoutSec int // busy_timeout, seconds
}

// Open creates the database file's directory if needed, opens it with WAL
// journaling and the given busy timeout, enables foreign keys and NORMAL
// synchronous durability, and brings the schema up to date inside a single
// EXCLUSIVE transaction (the cross-worker advisory lock spec.md §4.1 calls
// for — SQLite grants only one writer an EXCLUSIVE lock at a time, so two
// processes racing to initialize a fresh file serialize on it).
func Open(opts Options) (*Store, error) {
	if opts.TimeoutSec <= 0 {
		opts.TimeoutSec = 30
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		opts.Path, opts.TimeoutSec*1000)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoids pool-level lock thrash

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{DB: db, path: opts.Path}, nil
}

// Path returns the store's backing file path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying connection.
func (s *Store) Close() error { return s.DB.Close() }

// isBusy reports whether err is a SQLite "database is locked"/"busy" error.
// modernc.org/sqlite surfaces these as plain errors carrying that text in
// their message rather than a typed sentinel, so string matching (as the
// original implementation's db.py also does against sqlite3.OperationalError)
// is the only available signal.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// WithRetry runs fn, retrying up to maxRetries times with delay between
// attempts whenever fn fails with a busy error, matching the retry contract
// described in spec.md §4.2. Non-busy errors abort immediately.
func WithRetry(ctx context.Context, maxRetries int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return pipeline.StoreBusy("exhausted retries", lastErr)
}

// errNoRows aliases sql.ErrNoRows for IsNoRows, which lets callers in other
// packages check for it without importing database/sql.
var errNoRows = sql.ErrNoRows

// IsNoRows reports whether err is (or wraps) sql.ErrNoRows.
func IsNoRows(err error) bool { return errors.Is(err, errNoRows) }
