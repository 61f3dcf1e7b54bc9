package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newColumnCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "column",
		Short: "Manage the columns of a project",
	}

	var projectID, title string
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create a column in a project",
		Example: `  board column create --project 0190... --title "In progress"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := s.service.CreateColumn(ctx, projectID, title)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), c, func(w io.Writer) {
					fmt.Fprintf(w, "Created column: %s\n", c.ColumnID)
				})
			})
		},
	}
	create.Flags().StringVar(&projectID, "project", "", "owning project ID (required)")
	create.Flags().StringVar(&title, "title", "", "column title (required)")
	_ = create.MarkFlagRequired("project")
	_ = create.MarkFlagRequired("title")

	var listProject string
	list := &cobra.Command{
		Use:   "list",
		Short: "List columns, optionally of one project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				columns, err := s.service.ListColumns(ctx, listProject)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), columns, func(w io.Writer) {
					printColumns(w, columns)
				})
			})
		},
	}
	list.Flags().StringVar(&listProject, "project", "", "only columns of this project")

	var newTitle string
	rename := &cobra.Command{
		Use:   "rename <column-id>",
		Short: "Rename a column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := s.service.RenameColumn(ctx, args[0], newTitle)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), c, func(w io.Writer) {
					fmt.Fprintf(w, "Renamed column %s to %q\n", c.ColumnID, c.Title)
				})
			})
		},
	}
	rename.Flags().StringVar(&newTitle, "title", "", "new title (required)")
	_ = rename.MarkFlagRequired("title")

	del := &cobra.Command{
		Use:   "delete <column-id>",
		Short: "Delete a column and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.service.DeleteColumn(ctx, args[0]); err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted column: %s\n", args[0])
				})
			})
		},
	}

	cmd.AddCommand(create, list, rename, del)
	return cmd
}
