package ranking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/boards/internal/memory"
	"github.com/mesh-intelligence/boards/internal/ranking"
	"github.com/mesh-intelligence/boards/internal/storetest"
	"github.com/mesh-intelligence/boards/pkg/types"
)

// flakyStore fails the first failures transactions with a transient error.
type flakyStore struct {
	types.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) RunInTx(ctx context.Context, fn func(types.Tx) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return types.MarkTransient(errors.New("database is locked"))
	}
	return s.Store.RunInTx(ctx, fn)
}

type observation struct {
	op, outcome string
	shifted     int
}

type fakeRecorder struct {
	mu      sync.Mutex
	ops     []observation
	retries map[string]int
}

func (r *fakeRecorder) ObserveOperation(op, outcome string, shifted int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, observation{op, outcome, shifted})
}

func (r *fakeRecorder) ObserveRetry(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retries == nil {
		r.retries = map[string]int{}
	}
	r.retries[op]++
}

func noBackoff(attempts int) ranking.Option {
	return ranking.WithRetryPolicy(types.RetryPolicy{MaxAttempts: attempts})
}

func TestEngine_RetriesTransientFailures(t *testing.T) {
	mem := memory.NewStore()
	b := storetest.NewBoard(t, mem, 1)
	store := &flakyStore{Store: mem, failures: 2}
	rec := &fakeRecorder{}
	engine := ranking.NewEngine(store, noBackoff(3), ranking.WithRecorder(rec))

	task, err := engine.Append(context.Background(), b.ColumnIDs[0], types.TaskData{Title: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, task.Ordinal)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 2, rec.retries[ranking.OpAppend])
	require.Len(t, rec.ops, 1)
	assert.Equal(t, observation{ranking.OpAppend, "ok", 0}, rec.ops[0])
}

func TestEngine_GivesUpAfterMaxAttempts(t *testing.T) {
	mem := memory.NewStore()
	b := storetest.NewBoard(t, mem, 1)
	store := &flakyStore{Store: mem, failures: 10}
	rec := &fakeRecorder{}
	engine := ranking.NewEngine(store, noBackoff(4), ranking.WithRecorder(rec))

	_, err := engine.Append(context.Background(), b.ColumnIDs[0], types.TaskData{Title: "a"})
	assert.ErrorIs(t, err, types.ErrTransient)
	assert.Equal(t, 4, store.calls)
	assert.Equal(t, 3, rec.retries[ranking.OpAppend])
	assert.Equal(t, "transient", rec.ops[0].outcome)
	assert.Empty(t, storetest.List(t, mem, b.ColumnIDs[0]))
}

func TestEngine_DoesNotRetryUserErrors(t *testing.T) {
	mem := memory.NewStore()
	b := storetest.NewBoard(t, mem, 1)
	rec := &fakeRecorder{}
	engine := ranking.NewEngine(mem, ranking.WithRecorder(rec))
	ids := storetest.Fill(t, engine, b.ColumnIDs[0], "a")

	err := engine.Transfer(context.Background(), ids[0], b.ColumnIDs[0], 1)
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.Empty(t, rec.retries)
	assert.Equal(t, "conflict", rec.ops[len(rec.ops)-1].outcome)
}

func TestEngine_CanceledContextStopsRetrying(t *testing.T) {
	mem := memory.NewStore()
	b := storetest.NewBoard(t, mem, 1)
	store := &flakyStore{Store: mem, failures: 10}
	engine := ranking.NewEngine(store, ranking.WithRetryPolicy(types.RetryPolicy{MaxAttempts: 10, Backoff: time.Hour}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := engine.Append(ctx, b.ColumnIDs[0], types.TaskData{Title: "a"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, store.calls)
}

// movingStore moves the task to another column from inside the first
// transaction, between the engine's first read and its lock.
type movingStore struct {
	types.Store
	taskID, elsewhere string
	once              sync.Once
}

func (s *movingStore) RunInTx(ctx context.Context, fn func(types.Tx) error) error {
	return s.Store.RunInTx(ctx, func(tx types.Tx) error {
		return fn(&movingTx{Tx: tx, s: s})
	})
}

type movingTx struct {
	types.Tx
	s *movingStore
}

func (tx *movingTx) LockColumns(ctx context.Context, ids ...string) error {
	var err error
	tx.s.once.Do(func() {
		var task *types.Task
		task, err = tx.GetTask(ctx, tx.s.taskID)
		if err != nil {
			return
		}
		task.ColumnID = tx.s.elsewhere
		err = tx.SaveTask(ctx, task)
	})
	if err != nil {
		return err
	}
	return tx.Tx.LockColumns(ctx, ids...)
}

func TestEngine_TaskMovedDuringLockIsRetried(t *testing.T) {
	mem := memory.NewStore()
	b := storetest.NewBoard(t, mem, 2)
	ids := storetest.Fill(t, ranking.NewEngine(mem), b.ColumnIDs[0], "a", "b", "c")

	store := &movingStore{Store: mem, taskID: ids[2], elsewhere: b.ColumnIDs[1]}
	rec := &fakeRecorder{}
	engine := ranking.NewEngine(store, noBackoff(3), ranking.WithRecorder(rec))

	require.NoError(t, engine.Reposition(context.Background(), ids[2], 1))
	assert.Equal(t, 1, rec.retries[ranking.OpReposition])
	assert.Equal(t, []string{"c", "a", "b"}, storetest.Titles(t, mem, b.ColumnIDs[0]))
	assert.Empty(t, storetest.List(t, mem, b.ColumnIDs[1]))
}

func TestEngine_RecordsShiftCounts(t *testing.T) {
	mem := memory.NewStore()
	b := storetest.NewBoard(t, mem, 2)
	rec := &fakeRecorder{}
	engine := ranking.NewEngine(mem, ranking.WithRecorder(rec))
	ids := storetest.Fill(t, engine, b.ColumnIDs[0], "1", "2", "3", "4", "5")
	ctx := context.Background()

	require.NoError(t, engine.Reposition(ctx, ids[2], 1))
	require.NoError(t, engine.Remove(ctx, ids[0]))
	require.NoError(t, engine.Transfer(ctx, ids[1], b.ColumnIDs[1], 1))

	got := rec.ops[len(rec.ops)-3:]
	assert.Equal(t, []observation{
		{ranking.OpReposition, "ok", 2},
		{ranking.OpRemove, "ok", 3},
		{ranking.OpTransfer, "ok", 2},
	}, got)
}

func TestEngine_RejectsBadInput(t *testing.T) {
	engine := ranking.NewEngine(memory.NewStore())
	ctx := context.Background()

	_, err := engine.Append(ctx, "", types.TaskData{Title: "x"})
	assert.ErrorIs(t, err, types.ErrInvalidID)
	_, err = engine.Append(ctx, "col", types.TaskData{})
	assert.ErrorIs(t, err, types.ErrInvalidTitle)
	assert.ErrorIs(t, engine.Remove(ctx, ""), types.ErrInvalidID)
	assert.ErrorIs(t, engine.Reposition(ctx, "", 1), types.ErrInvalidID)
	assert.ErrorIs(t, engine.Transfer(ctx, "t", "", 1), types.ErrInvalidID)
	assert.ErrorIs(t, engine.Remove(ctx, "missing"), types.ErrNotFound)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("x: %w", types.ErrNotFound), "not_found"},
		{types.ErrConflict, "conflict"},
		{types.MarkTransient(errors.New("busy")), "transient"},
		{context.Canceled, "canceled"},
		{context.DeadlineExceeded, "canceled"},
		{errors.New("disk full"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ranking.Outcome(tt.err), "%v", tt.err)
	}
}
