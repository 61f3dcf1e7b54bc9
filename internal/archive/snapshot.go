package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mesh-intelligence/boards/internal/ranking"
	"github.com/mesh-intelligence/boards/pkg/types"
)

// ErrInvalidSnapshot is returned when a snapshot fails validation.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Export reads every project, column and task in one transaction.
func Export(ctx context.Context, store types.Store) (*Snapshot, error) {
	snap := &Snapshot{}
	err := store.RunInTx(ctx, func(tx types.Tx) error {
		projects, err := tx.ListProjects(ctx)
		if err != nil {
			return err
		}
		columns, err := tx.ListColumns(ctx, "")
		if err != nil {
			return err
		}
		var tasks []*types.Task
		for _, c := range columns {
			ts, err := tx.ListTasks(ctx, c.ColumnID)
			if err != nil {
				return err
			}
			tasks = append(tasks, ts...)
		}
		snap.Projects, snap.Columns, snap.Tasks = projects, columns, tasks
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exporting: %w", err)
	}
	return snap, nil
}

// Validate checks referential integrity and that every column's ordinals
// are dense.
func Validate(snap *Snapshot) error {
	projects := make(map[string]bool, len(snap.Projects))
	for _, p := range snap.Projects {
		if p.ProjectID == "" || projects[p.ProjectID] {
			return fmt.Errorf("%w: missing or duplicate project id %q", ErrInvalidSnapshot, p.ProjectID)
		}
		projects[p.ProjectID] = true
	}
	ordinals := make(map[string][]int, len(snap.Columns))
	for _, c := range snap.Columns {
		if c.ColumnID == "" {
			return fmt.Errorf("%w: column without id", ErrInvalidSnapshot)
		}
		if _, dup := ordinals[c.ColumnID]; dup {
			return fmt.Errorf("%w: duplicate column %s", ErrInvalidSnapshot, c.ColumnID)
		}
		if !projects[c.ProjectID] {
			return fmt.Errorf("%w: column %s references unknown project %s", ErrInvalidSnapshot, c.ColumnID, c.ProjectID)
		}
		ordinals[c.ColumnID] = []int{}
	}
	seen := make(map[string]bool, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if t.TaskID == "" || seen[t.TaskID] {
			return fmt.Errorf("%w: missing or duplicate task id %q", ErrInvalidSnapshot, t.TaskID)
		}
		seen[t.TaskID] = true
		if err := (types.TaskData{Title: t.Title}).Validate(); err != nil {
			return fmt.Errorf("%w: task %s: %w", ErrInvalidSnapshot, t.TaskID, err)
		}
		ords, ok := ordinals[t.ColumnID]
		if !ok {
			return fmt.Errorf("%w: task %s references unknown column %s", ErrInvalidSnapshot, t.TaskID, t.ColumnID)
		}
		ordinals[t.ColumnID] = append(ords, t.Ordinal)
	}
	ids := make([]string, 0, len(ordinals))
	for id := range ordinals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := ranking.CheckDense(ordinals[id]); err != nil {
			return fmt.Errorf("%w: column %s: %w", ErrInvalidSnapshot, id, err)
		}
	}
	return nil
}

// Import validates snap and loads it in one transaction. Projects already
// present are replaced together with their columns and tasks. A column or
// task ID that exists outside the replaced projects fails the import with
// types.ErrConflict and nothing is written.
func Import(ctx context.Context, store types.Store, snap *Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}
	err := store.RunInTx(ctx, func(tx types.Tx) error {
		for _, p := range snap.Projects {
			err := tx.DeleteProject(ctx, p.ProjectID)
			if err != nil && !errors.Is(err, types.ErrNotFound) {
				return err
			}
		}
		for _, c := range snap.Columns {
			if _, err := tx.GetColumn(ctx, c.ColumnID); err == nil {
				return fmt.Errorf("column %s exists in another project: %w", c.ColumnID, types.ErrConflict)
			} else if !errors.Is(err, types.ErrNotFound) {
				return err
			}
		}
		for _, t := range snap.Tasks {
			if _, err := tx.GetTask(ctx, t.TaskID); err == nil {
				return fmt.Errorf("task %s exists in another column: %w", t.TaskID, types.ErrConflict)
			} else if !errors.Is(err, types.ErrNotFound) {
				return err
			}
		}

		for _, p := range snap.Projects {
			if err := tx.SaveProject(ctx, p); err != nil {
				return err
			}
		}
		for _, c := range snap.Columns {
			if err := tx.SaveColumn(ctx, c); err != nil {
				return err
			}
		}
		return tx.SaveTasks(ctx, snap.Tasks)
	})
	if err != nil {
		return fmt.Errorf("importing: %w", err)
	}
	return nil
}
