package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boards/internal/board"
	"github.com/mesh-intelligence/boards/pkg/types"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that every column is numbered 1..N",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				violations, err := s.service.Verify(ctx)
				if err != nil {
					return err
				}
				if err := a.emit(cmd.OutOrStdout(), violations, func(w io.Writer) { printViolations(w, violations) }); err != nil {
					return err
				}
				if len(violations) > 0 {
					return fmt.Errorf("%d column(s) failed: %w", len(violations), types.ErrDensity)
				}
				return nil
			})
		},
	}
}

func printViolations(w io.Writer, violations []board.Violation) {
	if len(violations) == 0 {
		fmt.Fprintln(w, "All columns are dense")
		return
	}
	for _, v := range violations {
		fmt.Fprintf(w, "column %s: %s (ordinals %v)\n", v.ColumnID, v.Err, v.Ordinals)
	}
}
