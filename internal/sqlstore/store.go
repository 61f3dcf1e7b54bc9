package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/boards/pkg/types"
)

// Compile-time contract assertion.
var _ types.Store = (*Store)(nil)

// Store coordinates transactions over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps db. The caller owns db and closes it.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle for schema setup and tests.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the dialect the store was built with.
func (s *Store) Dialect() Dialect { return s.dialect }

// RunInTx begins a transaction, hands fn a repository bound to it, and
// commits when fn returns nil. Any error from fn is returned unchanged after
// rollback. A panic in fn rolls back and keeps propagating.
func (s *Store) RunInTx(ctx context.Context, fn func(tx types.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return s.fail("beginning transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.fail("committing transaction", err)
	}
	committed = true
	return nil
}

func (s *Store) fail(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if s.dialect.transient(err) {
		return types.MarkTransient(wrapped)
	}
	return wrapped
}
