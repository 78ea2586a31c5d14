package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/surgeload/surge/internal/config"
	"github.com/surgeload/surge/internal/logging"
	"github.com/surgeload/surge/internal/runner"
	"github.com/surgeload/surge/internal/script"
)

var runCmd = &cobra.Command{
	Use:   "run <module>",
	Short: "Run a load test module and print its final report",
	Long: `Run loads a module (a file path or a file:// URL resolving to a Go
plugin exporting the SurgeModule symbol), executes every scenario it
declares, and prints the merged metrics report.

  surge run ./scenarios/checkout.so
  surge run --config supervisor.yaml ./scenarios/checkout.so

Exit code is 0 when the run passes (no executor failures and, if the
module exports one, a satisfied threshold) and 1 otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runRunCmd,
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "supervisor settings file (worker pool sizing, RPC slack, progress interval)")
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	settings, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "surge: %v\n", err)
		os.Exit(1)
	}

	log := logging.New()

	r := &runner.Runner{
		ModuleRef: args[0],
		Loader:    script.PluginLoader{},
		Settings:  settings,
		Log:       log,
		Out:       os.Stdout,
	}

	passed, err := r.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "surge: %v\n", err)
		os.Exit(1)
	}
	if !passed {
		os.Exit(1)
	}
	return nil
}
