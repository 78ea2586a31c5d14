package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd is the base command invoked when surge is called without a
// subcommand.
var RootCmd = &cobra.Command{
	Use:     "surge",
	Short:   "A load testing engine for scripted HTTP scenarios",
	Version: version,
	Long: `Surge runs JavaScript-free, Go-native load test modules: a module
exports one or more named scenarios, each driven by a per-vu-iterations,
shared-iterations, or constant-vus executor, and an optional threshold
that turns the final metrics report into a pass/fail verdict.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command, returning any error instead of exiting
// the process. Exposed separately from ExecuteWithExit so tests can
// inspect the error.
func Execute() error {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

// ExecuteWithExit runs the root command and exits the process on error.
// cmd/surge's main does not use it: Main calls Execute and maps its
// error to the exit code itself.
func ExecuteWithExit() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(runCmd)
}
