// Package cli implements the board command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boards/internal/archive"
	"github.com/mesh-intelligence/boards/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir   string
	dataDir     string
	backend     string
	jsonMode    bool
	verbose     bool
	metricsFile string
}

// app carries the state shared by one invocation of the root command.
type app struct {
	flags    rootFlags
	settings settings
}

// NewRootCmd creates the top-level "board" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "board",
		Short: "Ordered task lists with dense ordinals",
		Long: "Board manages projects, their columns, and the tasks inside each column.\n" +
			"Tasks in a column are always numbered 1..N; moves, removals and transfers\n" +
			"renumber the siblings in the same transaction.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir, or $BOARDS_CONFIG_DIR)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: config data_dir, $BOARDS_DATA_DIR, or platform data dir)")
	pf.StringVar(&a.flags.backend, "backend", "", "storage backend: sqlite, postgres or memory (overrides config)")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output as JSON")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log debug output to stderr")
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the command")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newProjectCmd(a),
		newColumnCmd(a),
		newTaskCmd(a),
		newCheckCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return exitCode(err)
	}
	return exitSuccess
}

// userErrors are failures caused by the invocation rather than the system.
var userErrors = []error{
	archive.ErrInvalidSnapshot,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
	types.ErrDSNEmpty,
	types.ErrRetryInvalid,
	errUsage,
}

// errUsage marks bad flag or argument values.
var errUsage = errors.New("invalid usage")

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	if types.IsUserError(err) {
		return exitUserError
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}
