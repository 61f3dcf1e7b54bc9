package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mesh-intelligence/boards/pkg/types"
)

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// emit prints v as JSON in --json mode and calls text otherwise.
func (a *app) emit(w io.Writer, v any, text func(io.Writer)) error {
	if a.flags.jsonMode {
		return printJSON(w, v)
	}
	text(w)
	return nil
}

func printTasks(w io.Writer, tasks []*types.Task) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORD\tID\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", t.Ordinal, t.TaskID, t.Title)
	}
	tw.Flush()
}

func printTask(w io.Writer, t *types.Task) {
	fmt.Fprintf(w, "ID:          %s\n", t.TaskID)
	fmt.Fprintf(w, "Column:      %s\n", t.ColumnID)
	fmt.Fprintf(w, "Ordinal:     %d\n", t.Ordinal)
	fmt.Fprintf(w, "Title:       %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", t.Description)
	}
	fmt.Fprintf(w, "Updated:     %s\n", t.UpdatedAt.Format("2006-01-02 15:04:05"))
}
