// Package board is the application layer behind the CLI: project and column
// management, task payload edits, and the ranking operations delegated to
// ranking.Engine.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/boards/internal/ranking"
	"github.com/mesh-intelligence/boards/pkg/types"
)

// verifyConcurrency bounds how many columns Verify checks at once.
const verifyConcurrency = 4

// Service groups board operations over one store.
type Service struct {
	store  types.Store
	engine *ranking.Engine
	logger *slog.Logger
}

// New returns a Service. The engine must operate on the same store.
func New(store types.Store, engine *ranking.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, logger: logger}
}

// Engine returns the ranking engine.
func (s *Service) Engine() *ranking.Engine { return s.engine }

func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", types.ErrInvalidTitle
	}
	return title, nil
}

// Projects.

func (s *Service) CreateProject(ctx context.Context, title, description string) (*types.Project, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return nil, err
	}
	p := &types.Project{Title: title, Description: description, CreatedAt: time.Now().UTC()}
	if err := s.store.RunInTx(ctx, func(tx types.Tx) error { return tx.SaveProject(ctx, p) }); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	s.logger.InfoContext(ctx, "project created", "project", p.ProjectID)
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, id string) (*types.Project, error) {
	var p *types.Project
	err := s.store.RunInTx(ctx, func(tx types.Tx) error {
		var err error
		p, err = tx.GetProject(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", id, err)
	}
	return p, nil
}

func (s *Service) ListProjects(ctx context.Context) ([]*types.Project, error) {
	var out []*types.Project
	err := s.store.RunInTx(ctx, func(tx types.Tx) error {
		var err error
		out, err = tx.ListProjects(ctx)
		return err
	})
	return out, err
}

// DeleteProject removes a project with all of its columns and tasks.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.store.RunInTx(ctx, func(tx types.Tx) error { return tx.DeleteProject(ctx, id) }); err != nil {
		return fmt.Errorf("project %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "project deleted", "project", id)
	return nil
}

// Columns.

func (s *Service) CreateColumn(ctx context.Context, projectID, title string) (*types.Column, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return nil, err
	}
	c := &types.Column{ProjectID: projectID, Title: title, CreatedAt: time.Now().UTC()}
	err = s.store.RunInTx(ctx, func(tx types.Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return fmt.Errorf("project %s: %w", projectID, err)
		}
		return tx.SaveColumn(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("creating column: %w", err)
	}
	s.logger.InfoContext(ctx, "column created", "column", c.ColumnID, "project", projectID)
	return c, nil
}

func (s *Service) GetColumn(ctx context.Context, id string) (*types.Column, error) {
	var c *types.Column
	err := s.store.RunInTx(ctx, func(tx types.Tx) error {
		var err error
		c, err = tx.GetColumn(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", id, err)
	}
	return c, nil
}

// ListColumns lists the columns of projectID, or every column when empty.
func (s *Service) ListColumns(ctx context.Context, projectID string) ([]*types.Column, error) {
	var out []*types.Column
	err := s.store.RunInTx(ctx, func(tx types.Tx) error {
		if projectID != "" {
			if _, err := tx.GetProject(ctx, projectID); err != nil {
				return fmt.Errorf("project %s: %w", projectID, err)
			}
		}
		var err error
		out, err = tx.ListColumns(ctx, projectID)
		return err
	})
	return out, err
}

func (s *Service) RenameColumn(ctx context.Context, id, title string) (*types.Column, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return nil, err
	}
	var c *types.Column
	err = s.store.RunInTx(ctx, func(tx types.Tx) error {
		var err error
		if c, err = tx.GetColumn(ctx, id); err != nil {
			return fmt.Errorf("column %s: %w", id, err)
		}
		c.Title = title
		return tx.SaveColumn(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteColumn removes a column and its tasks.
func (s *Service) DeleteColumn(ctx context.Context, id string) error {
	if err := s.store.RunInTx(ctx, func(tx types.Tx) error { return tx.DeleteColumn(ctx, id) }); err != nil {
		return fmt.Errorf("column %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "column deleted", "column", id)
	return nil
}

// Tasks.

func (s *Service) AddTask(ctx context.Context, columnID string, data types.TaskData) (*types.Task, error) {
	data.Title = strings.TrimSpace(data.Title)
	return s.engine.Append(ctx, columnID, data)
}

func (s *Service) MoveTask(ctx context.Context, taskID string, ordinal int) error {
	return s.engine.Reposition(ctx, taskID, ordinal)
}

func (s *Service) TransferTask(ctx context.Context, taskID, columnID string, ordinal int) error {
	return s.engine.Transfer(ctx, taskID, columnID, ordinal)
}

func (s *Service) RemoveTask(ctx context.Context, taskID string) error {
	return s.engine.Remove(ctx, taskID)
}

func (s *Service) GetTask(ctx context.Context, id string) (*types.Task, error) {
	var t *types.Task
	err := s.store.RunInTx(ctx, func(tx types.Tx) error {
		var err error
		t, err = tx.GetTask(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns the tasks of a column in ordinal order.
func (s *Service) ListTasks(ctx context.Context, columnID string) ([]*types.Task, error) {
	var out []*types.Task
	err := s.store.RunInTx(ctx, func(tx types.Tx) error {
		if _, err := tx.GetColumn(ctx, columnID); err != nil {
			return fmt.Errorf("column %s: %w", columnID, err)
		}
		var err error
		out, err = tx.ListTasks(ctx, columnID)
		return err
	})
	return out, err
}

// UpdateTask edits title and description. Column and ordinal never change
// here; use MoveTask and TransferTask for that.
func (s *Service) UpdateTask(ctx context.Context, id string, patch types.TaskPatch) (*types.Task, error) {
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		patch.Title = &trimmed
	}
	var t *types.Task
	err := s.store.RunInTx(ctx, func(tx types.Tx) error {
		var err error
		if t, err = tx.GetTask(ctx, id); err != nil {
			return fmt.Errorf("task %s: %w", id, err)
		}
		if err := t.Apply(patch); err != nil {
			return err
		}
		return tx.SaveTask(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Violation describes a column whose ordinals are not 1..N.
type Violation struct {
	ColumnID string `json:"column_id"`
	Ordinals []int  `json:"ordinals"`
	Err      string `json:"error"`
}

// Verify checks every column for dense ordinals. Columns are read
// concurrently, each in its own transaction; a column deleted after the
// listing is skipped.
func (s *Service) Verify(ctx context.Context) ([]Violation, error) {
	columns, err := s.ListColumns(ctx, "")
	if err != nil {
		return nil, err
	}

	results := make([]*Violation, len(columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i, c := range columns {
		g.Go(func() error {
			tasks, err := s.ListTasks(gctx, c.ColumnID)
			if errors.Is(err, types.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			ordinals := make([]int, len(tasks))
			for j, t := range tasks {
				ordinals[j] = t.Ordinal
			}
			if err := ranking.CheckDense(ordinals); err != nil {
				results[i] = &Violation{ColumnID: c.ColumnID, Ordinals: ordinals, Err: err.Error()}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verifying columns: %w", err)
	}

	violations := []Violation{}
	for _, v := range results {
		if v != nil {
			violations = append(violations, *v)
		}
	}
	if len(violations) > 0 {
		s.logger.WarnContext(ctx, "density violations found", "columns", len(violations))
	}
	return violations, nil
}
