package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boards/internal/board"
	"github.com/mesh-intelligence/boards/internal/memory"
	"github.com/mesh-intelligence/boards/internal/metrics"
	"github.com/mesh-intelligence/boards/internal/postgres"
	"github.com/mesh-intelligence/boards/internal/ranking"
	"github.com/mesh-intelligence/boards/internal/sqlite"
	"github.com/mesh-intelligence/boards/pkg/types"
)

// session is an attached backend plus the services built on it.
type session struct {
	backend  types.Backend
	service  *board.Service
	recorder *metrics.Recorder
	logger   *slog.Logger
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newBackend returns a detached backend for name. The memory backend is
// returned attached.
func newBackend(name string) (types.Backend, bool) {
	switch name {
	case types.BackendSQLite:
		return sqlite.NewBackend(), false
	case types.BackendPostgres:
		return postgres.NewBackend(), false
	case types.BackendMemory:
		return memory.NewStore(), true
	}
	return nil, false
}

// open attaches the configured backend. The caller must call close.
func (a *app) open(cmd *cobra.Command) (*session, error) {
	logger := newLogger(cmd.ErrOrStderr(), a.settings.LogLevel)
	cfg := a.settings.Backend

	backend, attached := newBackend(cfg.Backend)
	if backend == nil {
		return nil, fmt.Errorf("backend %q: %w", cfg.Backend, types.ErrBackendUnknown)
	}
	if !attached {
		if err := backend.Attach(cfg); err != nil {
			return nil, fmt.Errorf("attach %s backend: %w", cfg.Backend, err)
		}
	}
	logger.DebugContext(cmd.Context(), "backend attached", "backend", cfg.Backend, "data_dir", cfg.DataDir)

	recorder := metrics.New()
	engine := ranking.NewEngine(backend,
		ranking.WithLogger(logger),
		ranking.WithRetryPolicy(a.settings.Retry),
		ranking.WithRecorder(recorder),
	)
	return &session{
		backend:  backend,
		service:  board.New(backend, engine, logger),
		recorder: recorder,
		logger:   logger,
	}, nil
}

// close writes the metrics textfile when configured and detaches.
func (a *app) close(s *session) error {
	var errs []error
	if a.settings.MetricsFile != "" {
		if err := s.recorder.WriteTextfile(a.settings.MetricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.backend.Detach(); err != nil {
		errs = append(errs, fmt.Errorf("detach: %w", err))
	}
	return errors.Join(errs...)
}

// withSession runs fn against an attached session and always closes it.
func (a *app) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) (err error) {
	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(s); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), s)
}
