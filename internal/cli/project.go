package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boards/pkg/types"
)

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var title, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		Example: `  board project create --title "Q3 launch"
  board project create --title "Ops" --description "on-call work" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				p, err := s.service.CreateProject(ctx, title, description)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), p, func(w io.Writer) {
					fmt.Fprintf(w, "Created project: %s\n", p.ProjectID)
				})
			})
		},
	}
	create.Flags().StringVar(&title, "title", "", "project title (required)")
	create.Flags().StringVar(&description, "description", "", "project description")
	_ = create.MarkFlagRequired("title")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				projects, err := s.service.ListProjects(ctx)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), projects, func(w io.Writer) {
					printProjects(w, projects)
				})
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project and its columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				p, err := s.service.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				columns, err := s.service.ListColumns(ctx, p.ProjectID)
				if err != nil {
					return err
				}
				view := struct {
					*types.Project
					Columns []*types.Column `json:"columns"`
				}{p, columns}
				return a.emit(cmd.OutOrStdout(), view, func(w io.Writer) {
					fmt.Fprintf(w, "ID:    %s\nTitle: %s\n", p.ProjectID, p.Title)
					if p.Description != "" {
						fmt.Fprintf(w, "Description: %s\n", p.Description)
					}
					fmt.Fprintln(w)
					printColumns(w, columns)
				})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project with its columns and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.service.DeleteProject(ctx, args[0]); err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted project: %s\n", args[0])
				})
			})
		},
	}

	cmd.AddCommand(create, list, show, del)
	return cmd
}

func printProjects(w io.Writer, projects []*types.Project) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\n", p.ProjectID, p.Title)
	}
	tw.Flush()
}

func printColumns(w io.Writer, columns []*types.Column) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE")
	for _, c := range columns {
		fmt.Fprintf(tw, "%s\t%s\n", c.ColumnID, c.Title)
	}
	tw.Flush()
}
