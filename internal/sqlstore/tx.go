package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/boards/pkg/types"
)

var _ types.Tx = (*sqlTx)(nil)

// sqlTx implements types.Tx inside one *sql.Tx.
type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

const (
	taskColumns    = "task_id, column_id, ordinal, title, description, created_at, updated_at"
	columnColumns  = "column_id, project_id, title, created_at"
	projectColumns = "project_id, title, description, created_at"
)

func (t *sqlTx) fail(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if t.dialect.transient(err) {
		return types.MarkTransient(wrapped)
	}
	return wrapped
}

func (t *sqlTx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)
}

func (t *sqlTx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.rebind(query), args...)
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
}

func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating UUID v7: %w", err)
	}
	return id.String(), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*types.Task, error) {
	var task types.Task
	err := row.Scan(&task.TaskID, &task.ColumnID, &task.Ordinal, &task.Title, &task.Description,
		timeValue{&task.CreatedAt}, timeValue{&task.UpdatedAt})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func scanColumn(row scanner) (*types.Column, error) {
	var c types.Column
	if err := row.Scan(&c.ColumnID, &c.ProjectID, &c.Title, timeValue{&c.CreatedAt}); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanProject(row scanner) (*types.Project, error) {
	var p types.Project
	if err := row.Scan(&p.ProjectID, &p.Title, &p.Description, timeValue{&p.CreatedAt}); err != nil {
		return nil, err
	}
	return &p, nil
}

// Tasks.

func (t *sqlTx) GetTask(ctx context.Context, id string) (*types.Task, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	task, err := scanTask(t.queryRow(ctx, "SELECT "+taskColumns+" FROM tasks WHERE task_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, t.fail("getting task "+id, err)
	}
	return task, nil
}

func (t *sqlTx) ListTasks(ctx context.Context, columnID string) ([]*types.Task, error) {
	return t.listTasks(ctx, columnID, "")
}

// ListTasksForUpdate locks the returned rows on dialects that support row
// locks. Only callers about to renumber a column should use it.
func (t *sqlTx) ListTasksForUpdate(ctx context.Context, columnID string) ([]*types.Task, error) {
	return t.listTasks(ctx, columnID, t.dialect.ForUpdate)
}

func (t *sqlTx) listTasks(ctx context.Context, columnID, suffix string) ([]*types.Task, error) {
	rows, err := t.query(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE column_id = ? ORDER BY ordinal ASC, task_id ASC"+suffix,
		columnID)
	if err != nil {
		return nil, t.fail("listing tasks", err)
	}
	defer rows.Close()

	tasks := []*types.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, t.fail("scanning task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, t.fail("iterating tasks", err)
	}
	return tasks, nil
}

func (t *sqlTx) CountTasks(ctx context.Context, columnID string) (int, error) {
	var n int
	if err := t.queryRow(ctx, "SELECT COUNT(*) FROM tasks WHERE column_id = ?", columnID).Scan(&n); err != nil {
		return 0, t.fail("counting tasks", err)
	}
	return n, nil
}

const upsertTask = `INSERT INTO tasks (` + taskColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (task_id) DO UPDATE SET
	column_id = excluded.column_id,
	ordinal = excluded.ordinal,
	title = excluded.title,
	description = excluded.description,
	updated_at = excluded.updated_at`

func (t *sqlTx) taskArgs(task *types.Task) ([]any, error) {
	if task == nil {
		return nil, types.ErrInvalidData
	}
	if task.TaskID == "" {
		id, err := newUUID()
		if err != nil {
			return nil, err
		}
		task.TaskID = id
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}
	return []any{
		task.TaskID, task.ColumnID, task.Ordinal, task.Title, task.Description,
		t.dialect.encodeTime(task.CreatedAt), t.dialect.encodeTime(task.UpdatedAt),
	}, nil
}

func (t *sqlTx) SaveTask(ctx context.Context, task *types.Task) error {
	args, err := t.taskArgs(task)
	if err != nil {
		return err
	}
	if _, err := t.exec(ctx, upsertTask, args...); err != nil {
		return t.fail("saving task "+task.TaskID, err)
	}
	return nil
}

// SaveTasks upserts the batch through one prepared statement.
func (t *sqlTx) SaveTasks(ctx context.Context, batch []*types.Task) error {
	if len(batch) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, t.dialect.rebind(upsertTask))
	if err != nil {
		return t.fail("preparing task upsert", err)
	}
	defer stmt.Close()

	for _, task := range batch {
		args, err := t.taskArgs(task)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return t.fail("saving task "+task.TaskID, err)
		}
	}
	return nil
}

func (t *sqlTx) DeleteTask(ctx context.Context, id string) error {
	res, err := t.exec(ctx, "DELETE FROM tasks WHERE task_id = ?", id)
	if err != nil {
		return t.fail("deleting task "+id, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// Columns.

func (t *sqlTx) GetColumn(ctx context.Context, id string) (*types.Column, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	c, err := scanColumn(t.queryRow(ctx, "SELECT "+columnColumns+" FROM columns WHERE column_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, t.fail("getting column "+id, err)
	}
	return c, nil
}

// LockColumns takes the column row locks in ascending ID order so that two
// transfers between the same pair of columns cannot deadlock.
func (t *sqlTx) LockColumns(ctx context.Context, ids ...string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	var prev string
	for i, id := range sorted {
		if i > 0 && id == prev {
			continue
		}
		prev = id
		var got string
		err := t.queryRow(ctx, "SELECT column_id FROM columns WHERE column_id = ?"+t.dialect.ForUpdate, id).Scan(&got)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("column %s: %w", id, types.ErrNotFound)
		}
		if err != nil {
			return t.fail("locking column "+id, err)
		}
	}
	return nil
}

func (t *sqlTx) ListColumns(ctx context.Context, projectID string) ([]*types.Column, error) {
	query := "SELECT " + columnColumns + " FROM columns"
	var args []any
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY created_at ASC, column_id ASC"

	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, t.fail("listing columns", err)
	}
	defer rows.Close()

	columns := []*types.Column{}
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, t.fail("scanning column", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, t.fail("iterating columns", err)
	}
	return columns, nil
}

func (t *sqlTx) SaveColumn(ctx context.Context, c *types.Column) error {
	if c == nil {
		return types.ErrInvalidData
	}
	if c.ColumnID == "" {
		id, err := newUUID()
		if err != nil {
			return err
		}
		c.ColumnID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := t.exec(ctx, `INSERT INTO columns (`+columnColumns+`) VALUES (?, ?, ?, ?)
ON CONFLICT (column_id) DO UPDATE SET project_id = excluded.project_id, title = excluded.title`,
		c.ColumnID, c.ProjectID, c.Title, t.dialect.encodeTime(c.CreatedAt))
	if err != nil {
		return t.fail("saving column "+c.ColumnID, err)
	}
	return nil
}

func (t *sqlTx) DeleteColumn(ctx context.Context, id string) error {
	if _, err := t.exec(ctx, "DELETE FROM tasks WHERE column_id = ?", id); err != nil {
		return t.fail("deleting column tasks", err)
	}
	res, err := t.exec(ctx, "DELETE FROM columns WHERE column_id = ?", id)
	if err != nil {
		return t.fail("deleting column "+id, err)
	}
	return requireAffected(res)
}

// Projects.

func (t *sqlTx) GetProject(ctx context.Context, id string) (*types.Project, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	p, err := scanProject(t.queryRow(ctx, "SELECT "+projectColumns+" FROM projects WHERE project_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, t.fail("getting project "+id, err)
	}
	return p, nil
}

func (t *sqlTx) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := t.query(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY created_at ASC, project_id ASC")
	if err != nil {
		return nil, t.fail("listing projects", err)
	}
	defer rows.Close()

	projects := []*types.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, t.fail("scanning project", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, t.fail("iterating projects", err)
	}
	return projects, nil
}

func (t *sqlTx) SaveProject(ctx context.Context, p *types.Project) error {
	if p == nil {
		return types.ErrInvalidData
	}
	if p.ProjectID == "" {
		id, err := newUUID()
		if err != nil {
			return err
		}
		p.ProjectID = id
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := t.exec(ctx, `INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?)
ON CONFLICT (project_id) DO UPDATE SET title = excluded.title, description = excluded.description`,
		p.ProjectID, p.Title, p.Description, t.dialect.encodeTime(p.CreatedAt))
	if err != nil {
		return t.fail("saving project "+p.ProjectID, err)
	}
	return nil
}

func (t *sqlTx) DeleteProject(ctx context.Context, id string) error {
	// Cascade: tasks, then columns, then the project itself.
	if _, err := t.exec(ctx,
		"DELETE FROM tasks WHERE column_id IN (SELECT column_id FROM columns WHERE project_id = ?)", id); err != nil {
		return t.fail("deleting project tasks", err)
	}
	if _, err := t.exec(ctx, "DELETE FROM columns WHERE project_id = ?", id); err != nil {
		return t.fail("deleting project columns", err)
	}
	res, err := t.exec(ctx, "DELETE FROM projects WHERE project_id = ?", id)
	if err != nil {
		return t.fail("deleting project "+id, err)
	}
	return requireAffected(res)
}
