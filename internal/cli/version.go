package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the board release.
const Version = "0.1.0"

const modulePath = "github.com/mesh-intelligence/boards"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the board version",
		// No configuration is needed to print the version.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "board v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
