// Package storetest is a conformance suite shared by every types.Store
// implementation. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/boards/internal/ranking"
	"github.com/mesh-intelligence/boards/pkg/types"
)

// Factory returns a fresh, empty store. Implementations register their own
// cleanup with t.Cleanup.
type Factory func(t *testing.T) types.Store

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Repository", func(t *testing.T) { runRepository(t, newStore) })
	t.Run("Coordinator", func(t *testing.T) { runCoordinator(t, newStore) })
	t.Run("Engine", func(t *testing.T) { runEngine(t, newStore) })
	t.Run("Concurrency", func(t *testing.T) { runConcurrency(t, newStore) })
}

// Board holds the IDs created by NewBoard.
type Board struct {
	ProjectID string
	ColumnIDs []string
}

// NewBoard creates one project with the given number of empty columns.
func NewBoard(t *testing.T, store types.Store, columns int) Board {
	t.Helper()
	ctx := context.Background()
	var b Board
	err := store.RunInTx(ctx, func(tx types.Tx) error {
		p := &types.Project{Title: "board"}
		if err := tx.SaveProject(ctx, p); err != nil {
			return err
		}
		b.ProjectID = p.ProjectID
		for i := range columns {
			c := &types.Column{ProjectID: p.ProjectID, Title: fmt.Sprintf("col-%d", i+1)}
			if err := tx.SaveColumn(ctx, c); err != nil {
				return err
			}
			b.ColumnIDs = append(b.ColumnIDs, c.ColumnID)
		}
		return nil
	})
	require.NoError(t, err)
	return b
}

// Fill appends tasks titled by titles to columnID and returns their IDs in
// order.
func Fill(t *testing.T, engine *ranking.Engine, columnID string, titles ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		task, err := engine.Append(context.Background(), columnID, types.TaskData{Title: title})
		require.NoError(t, err)
		ids = append(ids, task.TaskID)
	}
	return ids
}

// Titles returns the task titles of a column in ordinal order.
func Titles(t *testing.T, store types.Store, columnID string) []string {
	t.Helper()
	tasks := List(t, store, columnID)
	titles := make([]string, len(tasks))
	for i, task := range tasks {
		titles[i] = task.Title
	}
	return titles
}

// List reads the tasks of a column in their own transaction.
func List(t *testing.T, store types.Store, columnID string) []*types.Task {
	t.Helper()
	ctx := context.Background()
	var tasks []*types.Task
	err := store.RunInTx(ctx, func(tx types.Tx) error {
		var err error
		tasks, err = tx.ListTasks(ctx, columnID)
		return err
	})
	require.NoError(t, err)
	return tasks
}

// RequireDense fails the test unless the column's ordinals are exactly 1..N.
func RequireDense(t *testing.T, store types.Store, columnID string) {
	t.Helper()
	tasks := List(t, store, columnID)
	ordinals := make([]int, len(tasks))
	for i, task := range tasks {
		ordinals[i] = task.Ordinal
	}
	require.NoError(t, ranking.CheckDense(ordinals), "column %s ordinals %v", columnID, ordinals)
}

// CountingStore wraps a store and counts repository writes and locking
// reads.
type CountingStore struct {
	types.Store
	writes atomic.Int64
	locks  atomic.Int64
}

// Writes returns the number of write calls seen so far.
func (s *CountingStore) Writes() int64 { return s.writes.Load() }

// LockedReads returns the number of ListTasksForUpdate calls seen so far.
func (s *CountingStore) LockedReads() int64 { return s.locks.Load() }

func (s *CountingStore) RunInTx(ctx context.Context, fn func(tx types.Tx) error) error {
	return s.Store.RunInTx(ctx, func(tx types.Tx) error {
		return fn(&countingTx{Tx: tx, writes: &s.writes, locks: &s.locks})
	})
}

type countingTx struct {
	types.Tx
	writes *atomic.Int64
	locks  *atomic.Int64
}

func (tx *countingTx) ListTasksForUpdate(ctx context.Context, columnID string) ([]*types.Task, error) {
	tx.locks.Add(1)
	return tx.Tx.ListTasksForUpdate(ctx, columnID)
}

func (tx *countingTx) SaveTask(ctx context.Context, t *types.Task) error {
	tx.writes.Add(1)
	return tx.Tx.SaveTask(ctx, t)
}

func (tx *countingTx) SaveTasks(ctx context.Context, batch []*types.Task) error {
	tx.writes.Add(int64(len(batch)))
	return tx.Tx.SaveTasks(ctx, batch)
}

func (tx *countingTx) DeleteTask(ctx context.Context, id string) error {
	tx.writes.Add(1)
	return tx.Tx.DeleteTask(ctx, id)
}

func runRepository(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("SaveAssignsIDsAndRoundTrips", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		created := time.Now().UTC().Truncate(time.Millisecond)

		task := &types.Task{ColumnID: b.ColumnIDs[0], Ordinal: 1, Title: "write docs", Description: "all of them",
			CreatedAt: created, UpdatedAt: created}
		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error { return tx.SaveTask(ctx, task) }))
		require.NotEmpty(t, task.TaskID)

		var got *types.Task
		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			var err error
			got, err = tx.GetTask(ctx, task.TaskID)
			return err
		}))
		assert.Equal(t, task.Title, got.Title)
		assert.Equal(t, task.Description, got.Description)
		assert.Equal(t, b.ColumnIDs[0], got.ColumnID)
		assert.Equal(t, 1, got.Ordinal)
		assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)
	})

	t.Run("MissingEntities", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		missing := "0190c0de-0000-7000-8000-000000000000"
		err := store.RunInTx(ctx, func(tx types.Tx) error {
			_, err := tx.GetTask(ctx, missing)
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = tx.GetColumn(ctx, missing)
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = tx.GetProject(ctx, missing)
			assert.ErrorIs(t, err, types.ErrNotFound)
			assert.ErrorIs(t, tx.DeleteTask(ctx, missing), types.ErrNotFound)
			assert.ErrorIs(t, tx.DeleteColumn(ctx, missing), types.ErrNotFound)
			assert.ErrorIs(t, tx.DeleteProject(ctx, missing), types.ErrNotFound)
			assert.ErrorIs(t, tx.LockColumns(ctx, b.ColumnIDs[0], missing), types.ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("ListTasksOrderedAndCounted", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 2)
		col := b.ColumnIDs[0]
		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			for _, ord := range []int{3, 1, 2} {
				if err := tx.SaveTask(ctx, &types.Task{ColumnID: col, Ordinal: ord, Title: fmt.Sprintf("t%d", ord)}); err != nil {
					return err
				}
			}
			return nil
		}))
		assert.Equal(t, []string{"t1", "t2", "t3"}, Titles(t, store, col))
		assert.Empty(t, List(t, store, b.ColumnIDs[1]))

		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			n, err := tx.CountTasks(ctx, col)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			n, err = tx.CountTasks(ctx, b.ColumnIDs[1])
			require.NoError(t, err)
			assert.Zero(t, n)

			plain, err := tx.ListTasks(ctx, col)
			require.NoError(t, err)
			locked, err := tx.ListTasksForUpdate(ctx, col)
			require.NoError(t, err)
			assert.Equal(t, plain, locked)
			return nil
		}))
	})

	t.Run("ListColumnsByProject", func(t *testing.T) {
		store := newStore(t)
		one := NewBoard(t, store, 2)
		two := NewBoard(t, store, 1)
		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			cols, err := tx.ListColumns(ctx, one.ProjectID)
			require.NoError(t, err)
			assert.Len(t, cols, 2)
			cols, err = tx.ListColumns(ctx, two.ProjectID)
			require.NoError(t, err)
			assert.Len(t, cols, 1)
			cols, err = tx.ListColumns(ctx, "")
			require.NoError(t, err)
			assert.Len(t, cols, 3)
			projects, err := tx.ListProjects(ctx)
			require.NoError(t, err)
			assert.Len(t, projects, 2)
			return nil
		}))
	})

	t.Run("ListingsFollowCreationTime", func(t *testing.T) {
		store := newStore(t)
		base := time.Date(2026, 5, 4, 9, 0, 5, 0, time.UTC)
		stamps := map[string]time.Time{
			"first":  base,
			"second": base.Add(120 * time.Millisecond),
			"third":  base.Add(123 * time.Millisecond),
		}
		// Saved newest first so that generated IDs run against creation time.
		saveOrder := []string{"third", "second", "first"}
		want := []string{"first", "second", "third"}

		var projectID string
		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			for _, title := range saveOrder {
				p := &types.Project{Title: title, CreatedAt: stamps[title]}
				if err := tx.SaveProject(ctx, p); err != nil {
					return err
				}
				projectID = p.ProjectID
			}
			for _, title := range saveOrder {
				c := &types.Column{ProjectID: projectID, Title: title, CreatedAt: stamps[title]}
				if err := tx.SaveColumn(ctx, c); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			projects, err := tx.ListProjects(ctx)
			require.NoError(t, err)
			var got []string
			for _, p := range projects {
				got = append(got, p.Title)
			}
			assert.Equal(t, want, got)

			columns, err := tx.ListColumns(ctx, projectID)
			require.NoError(t, err)
			got = nil
			for _, c := range columns {
				got = append(got, c.Title)
				assert.True(t, stamps[c.Title].Equal(c.CreatedAt), "created_at round-trips for %s", c.Title)
			}
			assert.Equal(t, want, got)
			return nil
		}))
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 2)
		engine := ranking.NewEngine(store)
		first := Fill(t, engine, b.ColumnIDs[0], "a", "b")
		second := Fill(t, engine, b.ColumnIDs[1], "c")

		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error { return tx.DeleteColumn(ctx, b.ColumnIDs[0]) }))
		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			for _, id := range first {
				_, err := tx.GetTask(ctx, id)
				assert.ErrorIs(t, err, types.ErrNotFound)
			}
			_, err := tx.GetTask(ctx, second[0])
			return err
		}))

		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error { return tx.DeleteProject(ctx, b.ProjectID) }))
		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			_, err := tx.GetTask(ctx, second[0])
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = tx.GetColumn(ctx, b.ColumnIDs[1])
			assert.ErrorIs(t, err, types.ErrNotFound)
			return nil
		}))
	})

	t.Run("SaveColumnRenames", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			c, err := tx.GetColumn(ctx, b.ColumnIDs[0])
			if err != nil {
				return err
			}
			c.Title = "done"
			return tx.SaveColumn(ctx, c)
		}))
		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			c, err := tx.GetColumn(ctx, b.ColumnIDs[0])
			require.NoError(t, err)
			assert.Equal(t, "done", c.Title)
			assert.Equal(t, b.ProjectID, c.ProjectID)
			return nil
		}))
	})
}

var errBoom = errors.New("boom")

func runCoordinator(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("CommitIsVisible", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		require.NoError(t, store.RunInTx(ctx, func(tx types.Tx) error {
			return tx.SaveTask(ctx, &types.Task{ColumnID: b.ColumnIDs[0], Ordinal: 1, Title: "kept"})
		}))
		assert.Equal(t, []string{"kept"}, Titles(t, store, b.ColumnIDs[0]))
	})

	t.Run("ErrorRollsBackAndPassesThrough", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		err := store.RunInTx(ctx, func(tx types.Tx) error {
			if err := tx.SaveTask(ctx, &types.Task{ColumnID: b.ColumnIDs[0], Ordinal: 1, Title: "lost"}); err != nil {
				return err
			}
			return errBoom
		})
		assert.Same(t, errBoom, err)
		assert.Empty(t, List(t, store, b.ColumnIDs[0]))
	})

	t.Run("PanicRollsBack", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		assert.Panics(t, func() {
			_ = store.RunInTx(ctx, func(tx types.Tx) error {
				if err := tx.SaveTask(ctx, &types.Task{ColumnID: b.ColumnIDs[0], Ordinal: 1, Title: "lost"}); err != nil {
					return err
				}
				panic("boom")
			})
		})
		assert.Empty(t, List(t, store, b.ColumnIDs[0]))
	})

	t.Run("CanceledContext", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := store.RunInTx(cctx, func(tx types.Tx) error {
			return tx.SaveTask(cctx, &types.Task{ColumnID: b.ColumnIDs[0], Ordinal: 1, Title: "lost"})
		})
		require.Error(t, err)
		assert.Empty(t, List(t, store, b.ColumnIDs[0]))
	})
}

func runEngine(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("AppendNumbersFromOne", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		engine := ranking.NewEngine(store)
		Fill(t, engine, b.ColumnIDs[0], "a", "b", "c")
		tasks := List(t, store, b.ColumnIDs[0])
		require.Len(t, tasks, 3)
		for i, task := range tasks {
			assert.Equal(t, i+1, task.Ordinal)
		}
	})

	t.Run("AppendToMissingColumn", func(t *testing.T) {
		store := newStore(t)
		engine := ranking.NewEngine(store)
		_, err := engine.Append(ctx, "0190c0de-0000-7000-8000-000000000000", types.TaskData{Title: "x"})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("RepositionToFront", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		engine := ranking.NewEngine(store)
		ids := Fill(t, engine, b.ColumnIDs[0], "1", "2", "3", "4", "5")
		require.NoError(t, engine.Reposition(ctx, ids[2], 1))
		assert.Equal(t, []string{"3", "1", "2", "4", "5"}, Titles(t, store, b.ColumnIDs[0]))
		RequireDense(t, store, b.ColumnIDs[0])
	})

	t.Run("RepositionClamps", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		engine := ranking.NewEngine(store)
		ids := Fill(t, engine, b.ColumnIDs[0], "a", "b", "c")
		require.NoError(t, engine.Reposition(ctx, ids[0], 99))
		assert.Equal(t, []string{"b", "c", "a"}, Titles(t, store, b.ColumnIDs[0]))
		require.NoError(t, engine.Reposition(ctx, ids[0], -4))
		assert.Equal(t, []string{"a", "b", "c"}, Titles(t, store, b.ColumnIDs[0]))
		RequireDense(t, store, b.ColumnIDs[0])
	})

	t.Run("RepositionInPlaceWritesNothing", func(t *testing.T) {
		inner := newStore(t)
		b := NewBoard(t, inner, 1)
		store := &CountingStore{Store: inner}
		engine := ranking.NewEngine(store)
		ids := Fill(t, engine, b.ColumnIDs[0], "a", "b")
		before := store.Writes()
		require.NoError(t, engine.Reposition(ctx, ids[1], 2))
		assert.Equal(t, before, store.Writes())
	})

	t.Run("RemoveClosesGap", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		engine := ranking.NewEngine(store)
		ids := Fill(t, engine, b.ColumnIDs[0], "1", "2", "3")
		require.NoError(t, engine.Remove(ctx, ids[1]))
		tasks := List(t, store, b.ColumnIDs[0])
		require.Len(t, tasks, 2)
		assert.Equal(t, ids[0], tasks[0].TaskID)
		assert.Equal(t, ids[2], tasks[1].TaskID)
		assert.Equal(t, 2, tasks[1].Ordinal)
		assert.ErrorIs(t, engine.Remove(ctx, ids[1]), types.ErrNotFound)
	})

	t.Run("TransferBetweenColumns", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 2)
		engine := ranking.NewEngine(store)
		src := Fill(t, engine, b.ColumnIDs[0], "s1", "s2", "s3")
		Fill(t, engine, b.ColumnIDs[1], "d1", "d2")
		require.NoError(t, engine.Transfer(ctx, src[1], b.ColumnIDs[1], 2))
		assert.Equal(t, []string{"s1", "s3"}, Titles(t, store, b.ColumnIDs[0]))
		assert.Equal(t, []string{"d1", "s2", "d2"}, Titles(t, store, b.ColumnIDs[1]))
		RequireDense(t, store, b.ColumnIDs[0])
		RequireDense(t, store, b.ColumnIDs[1])
	})

	t.Run("TransferIntoEmptyColumnClamps", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 2)
		engine := ranking.NewEngine(store)
		ids := Fill(t, engine, b.ColumnIDs[0], "a")
		require.NoError(t, engine.Transfer(ctx, ids[0], b.ColumnIDs[1], 99))
		tasks := List(t, store, b.ColumnIDs[1])
		require.Len(t, tasks, 1)
		assert.Equal(t, 1, tasks[0].Ordinal)
		assert.Empty(t, List(t, store, b.ColumnIDs[0]))
	})

	t.Run("TransferToSameColumnConflicts", func(t *testing.T) {
		inner := newStore(t)
		b := NewBoard(t, inner, 1)
		store := &CountingStore{Store: inner}
		engine := ranking.NewEngine(store)
		ids := Fill(t, engine, b.ColumnIDs[0], "a", "b")
		before := store.Writes()
		err := engine.Transfer(ctx, ids[0], b.ColumnIDs[0], 2)
		assert.ErrorIs(t, err, types.ErrConflict)
		assert.Equal(t, before, store.Writes())
		assert.Equal(t, []string{"a", "b"}, Titles(t, inner, b.ColumnIDs[0]))
	})

	t.Run("TransferToMissingColumn", func(t *testing.T) {
		store := newStore(t)
		b := NewBoard(t, store, 1)
		engine := ranking.NewEngine(store)
		ids := Fill(t, engine, b.ColumnIDs[0], "a")
		err := engine.Transfer(ctx, ids[0], "0190c0de-0000-7000-8000-000000000000", 1)
		assert.ErrorIs(t, err, types.ErrNotFound)
		assert.Equal(t, []string{"a"}, Titles(t, store, b.ColumnIDs[0]))
	})
}

// runConcurrency fires mixed operations at two columns from many goroutines
// and checks that both columns stay dense and no task is lost.
func runConcurrency(t *testing.T, newStore Factory) {
	if testing.Short() {
		t.Skip("skipping concurrency stress in short mode")
	}
	store := newStore(t)
	b := NewBoard(t, store, 2)
	engine := ranking.NewEngine(store, ranking.WithRetryPolicy(types.RetryPolicy{MaxAttempts: 50, Backoff: time.Millisecond}))
	left := Fill(t, engine, b.ColumnIDs[0], "a", "b", "c", "d", "e", "f")
	right := Fill(t, engine, b.ColumnIDs[1], "g", "h", "i", "j")
	ids := append(append([]string(nil), left...), right...)

	var (
		mu      sync.Mutex
		removed = map[string]bool{}
	)
	g, ctx := errgroup.WithContext(context.Background())
	for w := range 8 {
		g.Go(func() error {
			for i := range 12 {
				id := ids[(w*5+i)%len(ids)]
				var err error
				switch (w + i) % 4 {
				case 0:
					err = engine.Reposition(ctx, id, i%5+1)
				case 1:
					err = engine.Transfer(ctx, id, b.ColumnIDs[(w+i)%2], i%4+1)
				case 2:
					_, err = engine.Append(ctx, b.ColumnIDs[w%2], types.TaskData{Title: fmt.Sprintf("w%d-%d", w, i)})
				case 3:
					if i%6 == 3 {
						err = engine.Remove(ctx, id)
						if err == nil {
							mu.Lock()
							removed[id] = true
							mu.Unlock()
						}
					} else {
						err = engine.Reposition(ctx, id, 1)
					}
				}
				if err != nil && !errors.Is(err, types.ErrNotFound) && !errors.Is(err, types.ErrConflict) {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	RequireDense(t, store, b.ColumnIDs[0])
	RequireDense(t, store, b.ColumnIDs[1])
	total := len(List(t, store, b.ColumnIDs[0])) + len(List(t, store, b.ColumnIDs[1]))
	assert.Equal(t, len(ids)+appendsIssued()-len(removed), total)
}

func appendsIssued() int {
	n := 0
	for w := range 8 {
		for i := range 12 {
			if (w+i)%4 == 2 {
				n++
			}
		}
	}
	return n
}
