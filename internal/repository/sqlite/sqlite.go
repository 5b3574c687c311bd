// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. A microblog on a
// single server fits comfortably, and tests get a fresh ":memory:" database each.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code: no C compiler needed, works everywhere Go works.
//
// TRANSACTIONS:
// Every repository type (UserDB, PostDB, ...) runs its SQL through a queryer,
// which is satisfied by both *sql.DB and *sql.Tx. DB.Repos() binds them to the
// pool; DB.InTx binds all of them to one transaction so a group of writes
// commits or rolls back as a unit.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"

	// The driver's init() registers itself with database/sql as "sqlite".
	// It's imported by name (not blank) because we also need its Error type
	// to recognise constraint violations.
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/chirp/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

//go:embed migrations/*.sql
var migrations embed.FS

// queryer is the subset of *sql.DB and *sql.Tx the repositories need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB connection pool and hands out repositories.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and applies any pending migrations.
//
// dbPath examples:
//   - "data/chirp.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (great for tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	provider, err := NewMigrator(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := provider.Up(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Open creates the connection pool without touching the schema.
// cmd/migrate uses it directly; everything else goes through New.
//
// PER-CONNECTION SETTINGS:
// PRAGMAs only apply to the connection that runs them, and sql.DB opens
// connections lazily. modernc reads `_pragma` query parameters and applies
// them to every new connection, so foreign keys and the busy timeout hold
// for the whole pool. `_txlock=immediate` makes BEGIN take the write lock up
// front, so a transaction that reads before writing can't lose a race to
// another writer halfway through.
func Open(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so every query sees the same tables.
	if strings.HasPrefix(dbPath, ":memory:") {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode lets readers continue while a write transaction is open.
	// It's a property of the database file, so running it once is enough.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	return conn, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

// NewMigrator returns a goose provider over the embedded migrations.
func NewMigrator(conn *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, fsys)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating migrator: %w", err)
	}
	return provider, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserDB         { return &UserDB{q: db.conn} }
func (db *DB) Posts() *PostDB         { return &PostDB{q: db.conn} }
func (db *DB) Retweets() *RetweetDB   { return &RetweetDB{q: db.conn} }
func (db *DB) Timeline() *TimelineDB  { return &TimelineDB{q: db.conn} }
func (db *DB) Bookmarks() *BookmarkDB { return &BookmarkDB{q: db.conn} }

// Repos returns repositories bound to the connection pool.
func (db *DB) Repos() repository.Repos {
	return reposOn(db.conn)
}

func reposOn(q queryer) repository.Repos {
	return repository.Repos{
		Users:     &UserDB{q: q},
		Posts:     &PostDB{q: q},
		Retweets:  &RetweetDB{q: q},
		Timeline:  &TimelineDB{q: q},
		Bookmarks: &BookmarkDB{q: q},
	}
}

// InTx runs fn with repositories bound to a single transaction.
//
// The deferred Rollback is a no-op after a successful Commit, and it also
// covers a panic inside fn: the transaction is released before the panic
// continues up the stack.
func (db *DB) InTx(ctx context.Context, fn func(repository.Repos) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(reposOn(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint and,
// if so, which "table.column" tripped it (best effort, from the message).
func isUniqueViolation(err error) (column string, ok bool) {
	var sqErr *msqlite.Error
	if !errors.As(err, &sqErr) {
		return "", false
	}
	if sqErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	// Message looks like: "UNIQUE constraint failed: users.username"
	msg := sqErr.Error()
	if i := strings.LastIndex(msg, "failed: "); i >= 0 {
		column = strings.TrimSpace(msg[i+len("failed: "):])
		if j := strings.IndexAny(column, " ,)"); j >= 0 {
			column = column[:j]
		}
	}
	return column, true
}
