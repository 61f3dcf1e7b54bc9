package cli

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boards/pkg/types"
)

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Add, order and move tasks",
		Long: "Tasks in a column are numbered 1..N. Ordinals outside the valid range are\n" +
			"clamped: move clamps into [1, N], transfer into [1, M+1] for a destination\n" +
			"holding M tasks.",
	}
	cmd.AddCommand(
		newTaskAddCmd(a),
		newTaskListCmd(a),
		newTaskShowCmd(a),
		newTaskUpdateCmd(a),
		newTaskMoveCmd(a),
		newTaskTransferCmd(a),
		newTaskRemoveCmd(a),
	)
	return cmd
}

func newTaskAddCmd(a *app) *cobra.Command {
	var columnID string
	var data types.TaskData
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a task to the end of a column",
		Example: `  board task add --column 0190... --title "Write release notes"
  board task add --column 0190... --title "Fix login" --description "see incident" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				t, err := s.service.AddTask(ctx, columnID, data)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), t, func(w io.Writer) {
					fmt.Fprintf(w, "Created task: %s (ordinal %d)\n", t.TaskID, t.Ordinal)
				})
			})
		},
	}
	cmd.Flags().StringVar(&columnID, "column", "", "column ID (required)")
	cmd.Flags().StringVar(&data.Title, "title", "", "task title (required)")
	cmd.Flags().StringVar(&data.Description, "description", "", "task description")
	_ = cmd.MarkFlagRequired("column")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskListCmd(a *app) *cobra.Command {
	var columnID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tasks of a column in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				tasks, err := s.service.ListTasks(ctx, columnID)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), tasks, func(w io.Writer) {
					printTasks(w, tasks)
				})
			})
		},
	}
	cmd.Flags().StringVar(&columnID, "column", "", "column ID (required)")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func newTaskShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				t, err := s.service.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), t, func(w io.Writer) { printTask(w, t) })
			})
		},
	}
}

func newTaskUpdateCmd(a *app) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change a task's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch types.TaskPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				t, err := s.service.UpdateTask(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), t, func(w io.Writer) {
					fmt.Fprintf(w, "Updated task: %s\n", t.TaskID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func newTaskMoveCmd(a *app) *cobra.Command {
	var ordinal int
	cmd := &cobra.Command{
		Use:     "move <task-id>",
		Short:   "Move a task to another position in its column",
		Example: `  board task move 0190... --ordinal 1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.service.MoveTask(ctx, args[0], ordinal); err != nil {
					return err
				}
				return showMoved(ctx, a, cmd.OutOrStdout(), s, args[0])
			})
		},
	}
	cmd.Flags().IntVar(&ordinal, "ordinal", 0, "target position, clamped into [1, N] (required)")
	_ = cmd.MarkFlagRequired("ordinal")
	return cmd
}

func newTaskTransferCmd(a *app) *cobra.Command {
	var columnID string
	var ordinal int
	cmd := &cobra.Command{
		Use:   "transfer <task-id>",
		Short: "Move a task into another column",
		Example: `  board task transfer 0190... --column 0190... --ordinal 2
  board task transfer 0190... --column 0190...   # append at the end`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ordinal
			if !cmd.Flags().Changed("ordinal") {
				target = math.MaxInt32
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.service.TransferTask(ctx, args[0], columnID, target); err != nil {
					return err
				}
				return showMoved(ctx, a, cmd.OutOrStdout(), s, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&columnID, "column", "", "destination column ID (required)")
	cmd.Flags().IntVar(&ordinal, "ordinal", 0, "target position in the destination (default: end)")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func showMoved(ctx context.Context, a *app, w io.Writer, s *session, taskID string) error {
	t, err := s.service.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	return a.emit(w, t, func(w io.Writer) {
		fmt.Fprintf(w, "Task %s is now at ordinal %d in column %s\n", t.TaskID, t.Ordinal, t.ColumnID)
	})
}

func newTaskRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <task-id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a task and close the gap it leaves",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.service.RemoveTask(ctx, args[0]); err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed task: %s\n", args[0])
				})
			})
		},
	}
}
