package types

import "context"

// TaskRepository is the task half of the repository contract. Every method
// runs inside the transaction of the Tx that carries it.
type TaskRepository interface {
	// GetTask returns ErrNotFound when no task has the given ID.
	GetTask(ctx context.Context, id string) (*Task, error)

	// ListTasks returns the tasks of a column ordered by ascending ordinal.
	ListTasks(ctx context.Context, columnID string) ([]*Task, error)

	// ListTasksForUpdate is ListTasks plus row locks held until the
	// transaction ends, on backends that lock rows.
	ListTasksForUpdate(ctx context.Context, columnID string) ([]*Task, error)

	// CountTasks returns the number of tasks in a column.
	CountTasks(ctx context.Context, columnID string) (int, error)

	// SaveTask inserts or updates a task. An empty TaskID is replaced by a
	// freshly generated UUID v7 before insertion.
	SaveTask(ctx context.Context, t *Task) error

	// SaveTasks upserts a batch of tasks.
	SaveTasks(ctx context.Context, batch []*Task) error

	// DeleteTask removes a task. Returns ErrNotFound when it does not exist.
	DeleteTask(ctx context.Context, id string) error
}

// ColumnRepository is the column half of the repository contract.
type ColumnRepository interface {
	GetColumn(ctx context.Context, id string) (*Column, error)

	// LockColumns acquires write locks on the given columns for the rest of
	// the transaction. Backends lock in ascending ID order. Returns
	// ErrNotFound if any column does not exist.
	LockColumns(ctx context.Context, ids ...string) error

	// ListColumns returns the columns of a project, or every column when
	// projectID is empty, ordered by creation time.
	ListColumns(ctx context.Context, projectID string) ([]*Column, error)

	SaveColumn(ctx context.Context, c *Column) error

	// DeleteColumn removes a column together with its tasks.
	DeleteColumn(ctx context.Context, id string) error
}

// ProjectRepository is the project half of the repository contract.
type ProjectRepository interface {
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	SaveProject(ctx context.Context, p *Project) error

	// DeleteProject removes a project together with its columns and tasks.
	DeleteProject(ctx context.Context, id string) error
}

// Tx is the repository handle valid for the lifetime of one transaction.
type Tx interface {
	TaskRepository
	ColumnRepository
	ProjectRepository
}

// Store coordinates transactions.
type Store interface {
	// RunInTx runs fn inside a single transaction. The transaction commits
	// when fn returns nil and rolls back otherwise, including when fn
	// panics. The error returned by fn is passed through unchanged; a
	// failed commit that the backend classifies as retryable matches
	// ErrTransient.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Backend is a Store with an attach/detach lifecycle.
type Backend interface {
	Store

	// Attach connects the backend described by config. Returns
	// ErrAlreadyAttached when called twice without Detach.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent. After Detach, RunInTx
	// returns ErrDetached.
	Detach() error
}
