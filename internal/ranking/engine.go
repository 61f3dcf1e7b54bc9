package ranking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/boards/pkg/types"
)

// Operation names used for logging and metrics.
const (
	OpAppend     = "append"
	OpRemove     = "remove"
	OpReposition = "reposition"
	OpTransfer   = "transfer"
)

// Recorder receives one observation per finished operation and one per retry.
// internal/metrics provides the Prometheus implementation.
type Recorder interface {
	ObserveOperation(op, outcome string, shifted int, elapsed time.Duration)
	ObserveRetry(op string)
}

// errTaskMoved signals that a task left the column we locked before we could
// re-read it under the lock.
var errTaskMoved = errors.New("task changed column while acquiring locks")

// Engine implements the four ordinal-preserving operations on top of a
// types.Store. It keeps no state between calls.
type Engine struct {
	store    types.Store
	logger   *slog.Logger
	retry    types.RetryPolicy
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRetryPolicy sets how transient failures are retried.
func WithRetryPolicy(p types.RetryPolicy) Option {
	return func(e *Engine) {
		if p.Validate() == nil {
			e.retry = p
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine returns an Engine operating on store.
func NewEngine(store types.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		retry:  types.DefaultRetryPolicy,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Append adds a task at the end of columnID and returns it with its
// repository-assigned ID and ordinal N+1.
func (e *Engine) Append(ctx context.Context, columnID string, data types.TaskData) (*types.Task, error) {
	if columnID == "" {
		return nil, types.ErrInvalidID
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	var created *types.Task
	err := e.run(ctx, OpAppend, func(tx types.Tx) (int, error) {
		if err := tx.LockColumns(ctx, columnID); err != nil {
			return 0, fmt.Errorf("column %s: %w", columnID, err)
		}
		n, err := tx.CountTasks(ctx, columnID)
		if err != nil {
			return 0, err
		}
		now := time.Now().UTC()
		task := &types.Task{
			ColumnID:    columnID,
			Ordinal:     PlanAppend(n),
			Title:       data.Title,
			Description: data.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.SaveTask(ctx, task); err != nil {
			return 0, err
		}
		created = task
		e.logger.DebugContext(ctx, "task appended",
			"task", task.TaskID, "column", columnID, "ordinal", task.Ordinal)
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Remove deletes a task and closes the gap it leaves in its column.
func (e *Engine) Remove(ctx context.Context, taskID string) error {
	if taskID == "" {
		return types.ErrInvalidID
	}
	return e.run(ctx, OpRemove, func(tx types.Tx) (int, error) {
		task, err := lockTask(ctx, tx, taskID)
		if err != nil {
			return 0, err
		}
		siblings, err := tx.ListTasksForUpdate(ctx, task.ColumnID)
		if err != nil {
			return 0, err
		}
		plan, err := PlanRemove(SlotsOf(siblings), taskID)
		if err != nil {
			return 0, err
		}
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return 0, err
		}
		if err := saveShifts(ctx, tx, plan.Shifts, siblings); err != nil {
			return 0, err
		}
		e.logger.DebugContext(ctx, "task removed",
			"task", taskID, "column", task.ColumnID, "ordinal", task.Ordinal, "shifted", len(plan.Shifts))
		return len(plan.Shifts), nil
	})
}

// Reposition moves a task to ordinal within its column. Out-of-range values
// are clamped into [1, N]; moving a task onto its current ordinal succeeds
// without writing anything.
func (e *Engine) Reposition(ctx context.Context, taskID string, ordinal int) error {
	if taskID == "" {
		return types.ErrInvalidID
	}
	return e.run(ctx, OpReposition, func(tx types.Tx) (int, error) {
		task, err := lockTask(ctx, tx, taskID)
		if err != nil {
			return 0, err
		}
		siblings, err := tx.ListTasksForUpdate(ctx, task.ColumnID)
		if err != nil {
			return 0, err
		}
		plan, err := PlanReposition(SlotsOf(siblings), taskID, ordinal)
		if err != nil {
			return 0, err
		}
		if plan.Target == task.Ordinal {
			return 0, nil
		}
		moved := task.Clone()
		moved.Ordinal = plan.Target
		if err := saveShifts(ctx, tx, plan.Shifts, siblings, moved); err != nil {
			return 0, err
		}
		e.logger.DebugContext(ctx, "task repositioned",
			"task", taskID, "column", task.ColumnID, "from", task.Ordinal, "to", plan.Target, "shifted", len(plan.Shifts))
		return len(plan.Shifts), nil
	})
}

// Transfer moves a task into another column at ordinal, clamped into
// [1, M+1] for a destination holding M tasks. Returns types.ErrConflict
// without writing when destColumnID is the task's current column.
func (e *Engine) Transfer(ctx context.Context, taskID, destColumnID string, ordinal int) error {
	if taskID == "" || destColumnID == "" {
		return types.ErrInvalidID
	}
	return e.run(ctx, OpTransfer, func(tx types.Tx) (int, error) {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return 0, fmt.Errorf("task %s: %w", taskID, err)
		}
		if task.ColumnID == destColumnID {
			return 0, fmt.Errorf("task %s already in column %s: %w", taskID, destColumnID, types.ErrConflict)
		}
		task, err = lockTask(ctx, tx, taskID, destColumnID)
		if err != nil {
			return 0, err
		}
		source, err := tx.ListTasksForUpdate(ctx, task.ColumnID)
		if err != nil {
			return 0, err
		}
		dest, err := tx.ListTasksForUpdate(ctx, destColumnID)
		if err != nil {
			return 0, err
		}
		plan, err := PlanTransfer(SlotsOf(source), SlotsOf(dest), taskID, ordinal)
		if err != nil {
			return 0, err
		}
		moved := task.Clone()
		moved.ColumnID = destColumnID
		moved.Ordinal = plan.Target
		if err := saveShifts(ctx, tx, plan.Shifts, append(source, dest...), moved); err != nil {
			return 0, err
		}
		e.logger.DebugContext(ctx, "task transferred",
			"task", taskID, "from_column", task.ColumnID, "to_column", destColumnID,
			"from", task.Ordinal, "to", plan.Target, "shifted", len(plan.Shifts))
		return len(plan.Shifts), nil
	})
}

// lockTask reads a task, locks its column together with any extra columns,
// and re-reads it under the lock. If the task moved in between, the attempt
// fails with a transient error so the whole operation runs again.
func lockTask(ctx context.Context, tx types.Tx, taskID string, extra ...string) (*types.Task, error) {
	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	columns := append([]string{task.ColumnID}, extra...)
	if err := tx.LockColumns(ctx, columns...); err != nil {
		return nil, fmt.Errorf("locking columns: %w", err)
	}
	locked, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	if locked.ColumnID != task.ColumnID {
		return nil, types.MarkTransient(fmt.Errorf("task %s: %w", taskID, errTaskMoved))
	}
	return locked, nil
}

// saveShifts writes the shifted siblings plus any extra rows as one batch.
func saveShifts(ctx context.Context, tx types.Tx, shifts []Assignment, siblings []*types.Task, extra ...*types.Task) error {
	if len(shifts) == 0 && len(extra) == 0 {
		return nil
	}
	byID := make(map[string]*types.Task, len(siblings))
	for _, s := range siblings {
		byID[s.TaskID] = s
	}
	batch := make([]*types.Task, 0, len(shifts)+len(extra))
	for _, a := range shifts {
		s, ok := byID[a.ID]
		if !ok {
			return fmt.Errorf("shifted task %s not among siblings: %w", a.ID, types.ErrInvalidData)
		}
		c := s.Clone()
		c.Ordinal = a.To
		batch = append(batch, c)
	}
	batch = append(batch, extra...)
	return tx.SaveTasks(ctx, batch)
}

// run executes one operation in a transaction, retrying the whole attempt
// from a fresh read while the failure is transient.
func (e *Engine) run(ctx context.Context, op string, fn func(tx types.Tx) (int, error)) error {
	start := time.Now()
	var (
		err     error
		shifted int
	)
	for attempt := 1; ; attempt++ {
		err = e.store.RunInTx(ctx, func(tx types.Tx) error {
			n, ferr := fn(tx)
			shifted = n
			return ferr
		})
		if err == nil || !errors.Is(err, types.ErrTransient) || attempt >= e.retry.MaxAttempts {
			break
		}
		e.logger.WarnContext(ctx, "retrying after transient storage failure",
			"op", op, "attempt", attempt, "error", err)
		if e.recorder != nil {
			e.recorder.ObserveRetry(op)
		}
		if serr := e.sleep(ctx, e.retry.Backoff*time.Duration(attempt)); serr != nil {
			err = serr
			break
		}
	}
	if e.recorder != nil {
		e.recorder.ObserveOperation(op, Outcome(err), shifted, time.Since(start))
	}
	return err
}

// Outcome classifies an operation result for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrConflict):
		return "conflict"
	case errors.Is(err, types.ErrTransient):
		return "transient"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
