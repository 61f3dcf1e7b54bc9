package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boards/internal/archive"
)

func newExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSONL snapshot to a file or S3 object",
		Example: `  board export --out backup.jsonl
  board export --out s3://backups/boards/2026-10-18.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				blob, err := archive.Open(ctx, out, a.settings.S3)
				if err != nil {
					return fmt.Errorf("%w: %w", errUsage, err)
				}
				snap, err := archive.Export(ctx, s.backend)
				if err != nil {
					return err
				}
				if err := archive.Save(ctx, blob, snap); err != nil {
					return err
				}
				s.logger.InfoContext(ctx, "snapshot exported", "location", blob.String(), "tasks", len(snap.Tasks))
				return a.emit(cmd.OutOrStdout(), summary(blob, snap), func(w io.Writer) {
					fmt.Fprintf(w, "Exported %d projects, %d columns, %d tasks to %s\n",
						len(snap.Projects), len(snap.Columns), len(snap.Tasks), blob)
				})
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination path or s3://bucket/key (required)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a JSONL snapshot, replacing the projects it contains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				blob, err := archive.Open(ctx, in, a.settings.S3)
				if err != nil {
					return fmt.Errorf("%w: %w", errUsage, err)
				}
				snap, err := archive.Load(ctx, blob)
				if err != nil {
					return err
				}
				if err := archive.Import(ctx, s.backend, snap); err != nil {
					return err
				}
				s.logger.InfoContext(ctx, "snapshot imported", "location", blob.String(), "tasks", len(snap.Tasks))
				return a.emit(cmd.OutOrStdout(), summary(blob, snap), func(w io.Writer) {
					fmt.Fprintf(w, "Imported %d projects, %d columns, %d tasks from %s\n",
						len(snap.Projects), len(snap.Columns), len(snap.Tasks), blob)
				})
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "source path or s3://bucket/key (required)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func summary(blob archive.Blob, snap *archive.Snapshot) map[string]any {
	return map[string]any{
		"location": blob.String(),
		"projects": len(snap.Projects),
		"columns":  len(snap.Columns),
		"tasks":    len(snap.Tasks),
	}
}
