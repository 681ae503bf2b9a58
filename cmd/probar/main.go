// Package main is the probar CLI entry point: a thin cobra shell over
// the core components it drives (the playbook parser and validator, the
// WASM Runtime Driver with the Simulation Engine, the Project Scorer).
//
// File index:
//   - main.go          - entry point, rootCmd, global flags
//   - cmd_serve.go     - serveCmd, serve tree, serve score
//   - cmd_playbook.go  - playbookCmd
//   - cmd_record.go    - recordCmd, replayCmd
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paiml/probar/internal/logging"
)

var (
	verbose    bool
	debug      bool
	cfgPath    string
	probarRoot string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "probar",
	Short: "probar - WASM and browser test-framework core",
	Long: `probar drives deterministic WASM simulations and real browsers
through the same declarative playbook format, verifies them with a
mutation-testing falsification gate, and scores project test maturity.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New("cli", logging.Options{Verbose: verbose || debug, JSON: !debug})
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging and console output")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "probar.yaml", "path to the probar config file")
	rootCmd.PersistentFlags().StringVar(&probarRoot, "root", ".", "project root directory")

	rootCmd.AddCommand(
		newServeCmd(),
		newPlaybookCmd(),
		newRecordCmd(),
		newReplayCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
