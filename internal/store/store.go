// Package store owns the on-disk relational layout, connection handling,
// and transaction helpers for the revision index (spec.md §4.1). It is
// the sole owner of all persisted rows; every other package reaches the
// database through a *Store (or a Queryer scoped to one transaction)
// instead of opening its own connection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jugmac00/revindex/internal/types"
)

// Queryer is the subset of *sql.DB / *sql.Tx / *sql.Conn that the rest of
// the indexer needs. Passing this instead of a concrete type lets every
// read/write helper run equally well inside or outside a transaction.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the SQLite connection backing one revision index.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if necessary) the database at dbPath and ensures
// its schema is current. If a database already exists at dbPath with a
// different schema_version, Open creates a fresh file instead and leaves
// the old one alone (spec.md §6); Path() reports whichever file ended up
// in use.
func Open(ctx context.Context, dbPath string, maxCacheSizeBytes int64) (*Store, error) {
	path := dbPath
	for attempt := 0; attempt < 8; attempt++ {
		db, err := sql.Open("sqlite3", dsn(path))
		if err != nil {
			return nil, fmt.Errorf("revindex: open %s: %w", path, err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("revindex: ping %s: %w", path, err)
		}

		s := &Store{db: db, dbPath: path}
		switch err := s.ensureSchema(ctx, maxCacheSizeBytes); {
		case err == nil:
			return s, nil
		case isSchemaMismatch(err):
			db.Close()
			path = nextSchemaPath(dbPath, attempt+1)
			continue
		default:
			db.Close()
			return nil, err
		}
	}
	return nil, fmt.Errorf("revindex: could not find a usable schema file derived from %s", dbPath)
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s", path)
}

// nextSchemaPath derives a fresh sibling path to retry schema creation
// in, e.g. "/a/b.db" -> "/a/b.schema2.db".
func nextSchemaPath(base string, n int) string {
	ext := filepath.Ext(base)
	trimmed := strings.TrimSuffix(base, ext)
	return trimmed + ".schema" + strconv.Itoa(n) + ext
}

type schemaMismatchError struct{ err error }

func (e *schemaMismatchError) Error() string { return e.err.Error() }
func (e *schemaMismatchError) Unwrap() error { return e.err }

func isSchemaMismatch(err error) bool {
	_, ok := err.(*schemaMismatchError)
	return ok
}

// ensureSchema creates the schema on a brand-new database, or validates
// schema_version on an existing one.
func (s *Store) ensureSchema(ctx context.Context, maxCacheSizeBytes int64) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		return s.initSchema(ctx, maxCacheSizeBytes)
	case err != nil:
		// meta table itself may not exist yet on a pristine file.
		if isNoSuchTable(err) {
			return s.initSchema(ctx, maxCacheSizeBytes)
		}
		return fmt.Errorf("revindex: reading schema_version: %w", err)
	}

	version, convErr := strconv.Atoi(raw)
	if convErr != nil || version != CurrentSchemaVersion {
		return &schemaMismatchError{err: fmt.Errorf("%w: persisted version %q, code version %d",
			types.ErrSchemaMismatch, raw, CurrentSchemaVersion)}
	}
	return s.setCacheSize(ctx, maxCacheSizeBytes)
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func (s *Store) initSchema(ctx context.Context, maxCacheSizeBytes int64) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("revindex: creating schema: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(CurrentSchemaVersion))
	if err != nil {
		return fmt.Errorf("revindex: writing schema_version: %w", err)
	}
	return s.setCacheSize(ctx, maxCacheSizeBytes)
}

// setCacheSize applies max_cache_size_bytes as a hint to SQLite's page
// cache, mirroring loggerhead's Importer.set_max_cache_size.
func (s *Store) setCacheSize(ctx context.Context, maxCacheSizeBytes int64) error {
	if maxCacheSizeBytes <= 0 {
		return nil
	}
	var pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return fmt.Errorf("revindex: reading page_size: %w", err)
	}
	if pageSize <= 0 {
		return nil
	}
	pages := maxCacheSizeBytes / pageSize
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA cache_size = %d", pages))
	if err != nil {
		return fmt.Errorf("revindex: setting cache_size: %w", err)
	}
	return nil
}

// DB returns the underlying *sql.DB for read-only callers (the Querier).
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file actually in use (may differ from the
// path passed to Open if a schema mismatch forced a fresh file).
func (s *Store) Path() string { return s.dbPath }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// RemoveFile deletes the backing database file (the one Path reports).
// It does nothing for an in-memory database.
func (s *Store) RemoveFile() error {
	if s.dbPath == ":memory:" || strings.HasPrefix(s.dbPath, "file::memory:") {
		return nil
	}
	return os.Remove(s.dbPath)
}

// WithWriteTx runs fn inside a BEGIN IMMEDIATE transaction: the write
// lock is acquired up front rather than on first write, which avoids
// upgrade deadlocks between competing writers the way
// untoldecay-BeadsLog's storage.Transaction documents for its own
// BEGIN IMMEDIATE usage. fn's error triggers a rollback; fn's success
// commits. Nothing is ever partially committed (spec.md §5).
func (s *Store) WithWriteTx(ctx context.Context, fn func(ctx context.Context, q Queryer) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("revindex: acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("revindex: BEGIN IMMEDIATE: %w", err)
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
			return
		}
		if _, cerr := conn.ExecContext(ctx, "COMMIT"); cerr != nil {
			err = fmt.Errorf("revindex: COMMIT: %w", cerr)
		}
	}()

	err = fn(ctx, conn)
	return err
}

// IsImportedTip reports whether tip already has a self-referencing
// dotted_revno row (tip = merged), meaning it has been fully imported.
// Equivalent to loggerhead's Importer._is_imported.
func (s *Store) IsImportedTip(ctx context.Context, q Queryer, tip types.DBID) (bool, error) {
	var x int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM dotted_revno WHERE tip = ? AND merged = ? LIMIT 1`, tip, tip).Scan(&x)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("revindex: checking imported tip: %w", err)
	default:
		return true, nil
	}
}
