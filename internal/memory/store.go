// Package memory provides an in-memory types.Backend used for tests and
// ephemeral runs. Tasks are stored in an arena keyed by task ID with column
// membership kept as a secondary index. Transactions work on a copy of the
// state and swap it in on commit; a mutex serializes them, which gives every
// transaction exclusive access to the columns it touches.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/boards/pkg/types"
)

// Compile-time contract assertion.
var _ types.Backend = (*Store)(nil)

type state struct {
	projects map[string]types.Project
	columns  map[string]types.Column
	tasks    map[string]types.Task
	members  map[string]map[string]struct{} // column ID -> task IDs
}

func newState() state {
	return state{
		projects: make(map[string]types.Project),
		columns:  make(map[string]types.Column),
		tasks:    make(map[string]types.Task),
		members:  make(map[string]map[string]struct{}),
	}
}

func (s state) clone() state {
	c := state{
		projects: make(map[string]types.Project, len(s.projects)),
		columns:  make(map[string]types.Column, len(s.columns)),
		tasks:    make(map[string]types.Task, len(s.tasks)),
		members:  make(map[string]map[string]struct{}, len(s.members)),
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.columns {
		c.columns[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for col, ids := range s.members {
		m := make(map[string]struct{}, len(ids))
		for id := range ids {
			m[id] = struct{}{}
		}
		c.members[col] = m
	}
	return c
}

// Store is the in-memory backend.
type Store struct {
	mu       sync.Mutex
	attached bool
	state    state
}

// NewStore returns an attached, empty store.
func NewStore() *Store {
	return &Store{attached: true, state: newState()}
}

// Attach resets the store to an empty state. Config is ignored apart from
// validation.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	s.state = newState()
	s.attached = true
	return nil
}

// Detach drops all state. Idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.state = newState()
	return nil
}

// RunInTx runs fn against a private copy of the state and publishes the copy
// only when fn returns nil. A panic inside fn leaves the state untouched.
func (s *Store) RunInTx(ctx context.Context, fn func(tx types.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrDetached
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

type memTx struct {
	state state
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating UUID v7: %w", err)
	}
	return id.String(), nil
}

// Tasks.

func (tx *memTx) GetTask(_ context.Context, id string) (*types.Task, error) {
	t, ok := tx.state.tasks[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &t, nil
}

func (tx *memTx) ListTasks(_ context.Context, columnID string) ([]*types.Task, error) {
	ids := tx.state.members[columnID]
	out := make([]*types.Task, 0, len(ids))
	for id := range ids {
		t := tx.state.tasks[id]
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out, nil
}

// ListTasksForUpdate is ListTasks; transactions are already serialized.
func (tx *memTx) ListTasksForUpdate(ctx context.Context, columnID string) ([]*types.Task, error) {
	return tx.ListTasks(ctx, columnID)
}

func (tx *memTx) CountTasks(_ context.Context, columnID string) (int, error) {
	return len(tx.state.members[columnID]), nil
}

func (tx *memTx) SaveTask(_ context.Context, t *types.Task) error {
	if t == nil {
		return types.ErrInvalidData
	}
	if _, ok := tx.state.columns[t.ColumnID]; !ok {
		return fmt.Errorf("column %s: %w", t.ColumnID, types.ErrNotFound)
	}
	if t.TaskID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		t.TaskID = id
	}
	if prev, ok := tx.state.tasks[t.TaskID]; ok && prev.ColumnID != t.ColumnID {
		delete(tx.state.members[prev.ColumnID], t.TaskID)
	}
	tx.state.tasks[t.TaskID] = *t
	ids, ok := tx.state.members[t.ColumnID]
	if !ok {
		ids = make(map[string]struct{})
		tx.state.members[t.ColumnID] = ids
	}
	ids[t.TaskID] = struct{}{}
	return nil
}

func (tx *memTx) SaveTasks(ctx context.Context, batch []*types.Task) error {
	for _, t := range batch {
		if err := tx.SaveTask(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memTx) DeleteTask(_ context.Context, id string) error {
	t, ok := tx.state.tasks[id]
	if !ok {
		return types.ErrNotFound
	}
	delete(tx.state.tasks, id)
	delete(tx.state.members[t.ColumnID], id)
	return nil
}

// Columns.

func (tx *memTx) GetColumn(_ context.Context, id string) (*types.Column, error) {
	c, ok := tx.state.columns[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &c, nil
}

// LockColumns only checks existence: the store mutex already gives the
// transaction exclusive access.
func (tx *memTx) LockColumns(_ context.Context, ids ...string) error {
	for _, id := range ids {
		if _, ok := tx.state.columns[id]; !ok {
			return fmt.Errorf("column %s: %w", id, types.ErrNotFound)
		}
	}
	return nil
}

func (tx *memTx) ListColumns(_ context.Context, projectID string) ([]*types.Column, error) {
	var out []*types.Column
	for _, c := range tx.state.columns {
		if projectID != "" && c.ProjectID != projectID {
			continue
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ColumnID < out[j].ColumnID
	})
	if out == nil {
		out = []*types.Column{}
	}
	return out, nil
}

func (tx *memTx) SaveColumn(_ context.Context, c *types.Column) error {
	if c == nil {
		return types.ErrInvalidData
	}
	if _, ok := tx.state.projects[c.ProjectID]; !ok {
		return fmt.Errorf("project %s: %w", c.ProjectID, types.ErrNotFound)
	}
	if c.ColumnID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		c.ColumnID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	tx.state.columns[c.ColumnID] = *c
	return nil
}

func (tx *memTx) DeleteColumn(_ context.Context, id string) error {
	if _, ok := tx.state.columns[id]; !ok {
		return types.ErrNotFound
	}
	for taskID := range tx.state.members[id] {
		delete(tx.state.tasks, taskID)
	}
	delete(tx.state.members, id)
	delete(tx.state.columns, id)
	return nil
}

// Projects.

func (tx *memTx) GetProject(_ context.Context, id string) (*types.Project, error) {
	p, ok := tx.state.projects[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &p, nil
}

func (tx *memTx) ListProjects(_ context.Context) ([]*types.Project, error) {
	out := make([]*types.Project, 0, len(tx.state.projects))
	for _, p := range tx.state.projects {
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ProjectID < out[j].ProjectID
	})
	return out, nil
}

func (tx *memTx) SaveProject(_ context.Context, p *types.Project) error {
	if p == nil {
		return types.ErrInvalidData
	}
	if p.ProjectID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		p.ProjectID = id
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	tx.state.projects[p.ProjectID] = *p
	return nil
}

func (tx *memTx) DeleteProject(ctx context.Context, id string) error {
	if _, ok := tx.state.projects[id]; !ok {
		return types.ErrNotFound
	}
	for colID, c := range tx.state.columns {
		if c.ProjectID == id {
			if err := tx.DeleteColumn(ctx, colID); err != nil {
				return err
			}
		}
	}
	delete(tx.state.projects, id)
	return nil
}
