package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/boards/internal/ranking"
	"github.com/mesh-intelligence/boards/internal/storetest"
	"github.com/mesh-intelligence/boards/pkg/types"
)

const dsnEnv = "BOARDS_TEST_POSTGRES_DSN"

func attach(t *testing.T) *Backend {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set; skipping postgres tests", dsnEnv)
	}
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendPostgres, PostgresDSN: dsn}))
	_, err := b.DB().Exec(`TRUNCATE tasks, columns, projects`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Detach() })
	return b
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) types.Store { return attach(t) })
}

func TestBackend_DeferredOrdinalUniqueness(t *testing.T) {
	b := attach(t)
	ctx := context.Background()
	board := storetest.NewBoard(t, b, 1)
	col := board.ColumnIDs[0]

	err := b.RunInTx(ctx, func(tx types.Tx) error {
		one := &types.Task{ColumnID: col, Ordinal: 1, Title: "a"}
		two := &types.Task{ColumnID: col, Ordinal: 1, Title: "b"}
		return tx.SaveTasks(ctx, []*types.Task{one, two})
	})
	require.Error(t, err, "duplicate ordinal rejected at commit")
	assert.Empty(t, storetest.List(t, b, col))
}

// lockedElsewhere reports whether the tasks of col are row-locked by some
// other transaction.
func lockedElsewhere(t *testing.T, b *Backend, col string) bool {
	t.Helper()
	tx, err := b.DB().Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	_, err = tx.Exec(`SELECT task_id FROM tasks WHERE column_id = $1 FOR UPDATE NOWAIT`, col)
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr), "unexpected error: %v", err)
	require.Equal(t, "55P03", pgErr.Code)
	return true
}

func TestBackend_OnlyLockingReadsHoldRowLocks(t *testing.T) {
	b := attach(t)
	ctx := context.Background()
	board := storetest.NewBoard(t, b, 1)
	col := board.ColumnIDs[0]
	storetest.Fill(t, ranking.NewEngine(b), col, "a", "b")

	require.NoError(t, b.RunInTx(ctx, func(tx types.Tx) error {
		tasks, err := tx.ListTasks(ctx, col)
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
		assert.False(t, lockedElsewhere(t, b, col))
		return nil
	}))

	require.NoError(t, b.RunInTx(ctx, func(tx types.Tx) error {
		tasks, err := tx.ListTasksForUpdate(ctx, col)
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
		assert.True(t, lockedElsewhere(t, b, col))
		return nil
	}))
}

func TestAttach_RequiresDSN(t *testing.T) {
	b := NewBackend()
	assert.ErrorIs(t, b.Attach(types.Config{Backend: types.BackendPostgres}), types.ErrDSNEmpty)
}

func TestAttach_OpenFailure(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("dial refused") }

	b := NewBackend()
	err := b.Attach(types.Config{Backend: types.BackendPostgres, PostgresDSN: "postgres://nowhere"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres")
	assert.ErrorIs(t, b.RunInTx(context.Background(), func(types.Tx) error { return nil }), types.ErrDetached)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{codeSerializationFailure, true},
		{codeDeadlockDetected, true},
		{codeLockNotAvailable, true},
		{"23505", false},
		{"42P01", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("exec: %w", &pgconn.PgError{Code: tt.code})
			assert.Equal(t, tt.want, IsTransient(err))
		})
	}
	assert.False(t, IsTransient(errors.New("plain")))
}
