package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/boards/internal/ranking"
	"github.com/mesh-intelligence/boards/internal/storetest"
	"github.com/mesh-intelligence/boards/pkg/types"
)

func attach(t *testing.T, dir string) *Backend {
	t.Helper()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	t.Cleanup(func() { _ = b.Detach() })
	return b
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) types.Store {
		return attach(t, t.TempDir())
	})
}

func TestBackend_Attach(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	b := attach(t, dir)

	_, err := os.Stat(filepath.Join(dir, DBFile))
	require.NoError(t, err, "database file created")

	err = b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir})
	assert.ErrorIs(t, err, types.ErrAlreadyAttached)
}

func TestBackend_AttachInvalidConfig(t *testing.T) {
	b := NewBackend()
	assert.ErrorIs(t, b.Attach(types.Config{}), types.ErrBackendEmpty)
	assert.ErrorIs(t, b.Attach(types.Config{Backend: "oracle"}), types.ErrBackendUnknown)
}

func TestBackend_Detach(t *testing.T) {
	b := attach(t, t.TempDir())

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "detach is idempotent")

	err := b.RunInTx(context.Background(), func(types.Tx) error { return nil })
	assert.ErrorIs(t, err, types.ErrDetached)
}

func TestBackend_DataSurvivesReattach(t *testing.T) {
	dir := t.TempDir()
	b := attach(t, dir)
	board := storetest.NewBoard(t, b, 1)
	engine := ranking.NewEngine(b)
	storetest.Fill(t, engine, board.ColumnIDs[0], "a", "b")
	require.NoError(t, b.Detach())

	again := attach(t, dir)
	assert.Equal(t, []string{"a", "b"}, storetest.Titles(t, again, board.ColumnIDs[0]))
}

func TestBackend_ForeignKeysEnforced(t *testing.T) {
	b := attach(t, t.TempDir())
	ctx := context.Background()
	err := b.RunInTx(ctx, func(tx types.Tx) error {
		return tx.SaveTask(ctx, &types.Task{ColumnID: "missing", Ordinal: 1, Title: "x"})
	})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(os.ErrNotExist))
	assert.False(t, IsTransient(types.ErrNotFound))
}

func TestDSN(t *testing.T) {
	got := dsn("/tmp/x/boards.db")
	assert.Contains(t, got, "file:/tmp/x/boards.db?")
	assert.Contains(t, got, "_txlock=immediate")
	assert.Contains(t, got, "busy_timeout%285000%29")
	assert.Contains(t, got, "foreign_keys%281%29")
}
