// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code: no C compiler needed.
//
// CONNECTION SETTINGS:
// database/sql keeps a pool of connections, and SQLite PRAGMAs are
// per-connection. Running `PRAGMA foreign_keys=ON` once with conn.Exec only
// configures whichever pooled connection happened to run it. Instead we put
// the pragmas in the DSN (`_pragma=...`) so the driver applies them to every
// connection it opens:
//
//	foreign_keys(1)   : enforce REFERENCES / ON DELETE CASCADE
//	busy_timeout(5000): wait up to 5s for a competing writer instead of failing at once
//	journal_mode(WAL) : readers never block on the writer (feed reads stay lock-free)
//
// WRITE SERIALISATION:
// `_txlock=immediate` makes BeginTx issue BEGIN IMMEDIATE, which takes the
// database write lock when the transaction starts. Two vote casts on the
// same (user, post) therefore run one after the other, and each reads the
// vote record only after the previous one has committed. A writer that
// cannot get the lock within busy_timeout gets SQLITE_BUSY, which we report
// as apperror.ErrConflict.
//
// MIGRATIONS:
// The schema lives in migrations/*.sql, embedded into the binary and applied
// with goose on every New (already-applied versions are skipped).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/pressly/goose/v3"

	// BLANK IMPORT:
	// The sqlite package's init() registers itself with database/sql as a
	// driver named "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn       *sql.DB
	migrations *goose.Provider
	now        func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock replaces time.Now as the source of created/updated timestamps.
// Tests use it to create posts at exact, known times.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// New opens (or creates) the SQLite database at dbPath and brings its schema
// up to date.
//
// dbPath examples:
//   - "data/postboard.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (great for tests, lost on close)
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	// One connection keeps the whole pool on the same data.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// dsn appends the connection settings described in the package comment.
func dsn(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return dbPath + "?" + q.Encode()
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// SchemaVersion returns the latest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int64, error) {
	v, err := db.migrations.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading schema version: %w", err)
	}
	return v, nil
}

func (db *DB) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	db.migrations = provider

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Timestamps are stored as INTEGER unix nanoseconds (UTC). Integer
// comparison gives the feed's keyset predicate an exact total order, which
// text timestamps with variable fractional digits do not.
func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
