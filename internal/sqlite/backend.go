// Package sqlite implements the SQLite storage backend. A single database
// file under DataDir holds projects, columns and tasks. Write transactions
// begin IMMEDIATE so the engine's column lock is the database write lock.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/boards/internal/sqlstore"
	"github.com/mesh-intelligence/boards/pkg/types"
)

// DBFile is the database file name inside DataDir.
const DBFile = "boards.db"

// busyTimeoutMS bounds how long a writer waits for the database lock before
// the driver reports SQLITE_BUSY.
const busyTimeoutMS = 5000

// Compile-time contract assertion.
var _ types.Backend = (*Backend)(nil)

// Dialect is the sqlstore dialect for SQLite.
var Dialect = sqlstore.Dialect{
	Name:        types.BackendSQLite,
	IsTransient: IsTransient,
}

// Backend implements types.Backend on SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	store    *sqlstore.Store
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach opens (creating if needed) DataDir/boards.db and applies the
// schema. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(filepath.Join(dataDir, DBFile)))
	if err != nil {
		return fmt.Errorf("opening sqlite: %w", err)
	}
	// One connection serializes writers inside the process; busy_timeout
	// covers other processes sharing the file.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.store = sqlstore.New(db, Dialect)
	b.attached = true
	return nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Detach closes the database. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	b.store = nil
	if b.db != nil {
		err := b.db.Close()
		b.db = nil
		if err != nil {
			return fmt.Errorf("closing sqlite: %w", err)
		}
	}
	return nil
}

// RunInTx runs fn in one IMMEDIATE transaction.
func (b *Backend) RunInTx(ctx context.Context, fn func(tx types.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ErrDetached
	}
	return b.store.RunInTx(ctx, fn)
}

// IsTransient reports SQLITE_BUSY and SQLITE_LOCKED, including their
// extended codes.
func IsTransient(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
