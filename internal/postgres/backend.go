// Package postgres implements the PostgreSQL storage backend on the pgx
// database/sql driver. Transactions run at READ COMMITTED and take row locks
// with SELECT ... FOR UPDATE on the column rows they renumber.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/mesh-intelligence/boards/internal/sqlstore"
	"github.com/mesh-intelligence/boards/pkg/types"
)

const driverName = "pgx"

// SQLSTATE codes after which the whole operation may be retried.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

var sqlOpen = sql.Open

// Compile-time contract assertion.
var _ types.Backend = (*Backend)(nil)

// Dialect is the sqlstore dialect for PostgreSQL.
var Dialect = sqlstore.Dialect{
	Name:        types.BackendPostgres,
	Numbered:    true,
	ForUpdate:   " FOR UPDATE",
	TxOptions:   &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	EncodeTime:  func(t time.Time) any { return t.UTC() },
	IsTransient: IsTransient,
}

// Backend implements types.Backend on PostgreSQL.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	db       *sql.DB
	store    *sqlstore.Store
}

// NewBackend returns a detached backend.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach connects to config.PostgresDSN and applies the schema.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.PostgresDSN == "" {
		return types.ErrDSNEmpty
	}

	db, err := sqlOpen(driverName, config.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.store = sqlstore.New(db, Dialect)
	b.attached = true
	return nil
}

// Detach closes the connection pool. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	b.store = nil
	err := b.db.Close()
	b.db = nil
	if err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	return nil
}

// RunInTx runs fn in one READ COMMITTED transaction.
func (b *Backend) RunInTx(ctx context.Context, fn func(tx types.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ErrDetached
	}
	return b.store.RunInTx(ctx, fn)
}

// DB exposes the underlying pool for test cleanup.
func (b *Backend) DB() *sql.DB {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.db
}

// IsTransient reports serialization failures, deadlocks and lock timeouts.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}
