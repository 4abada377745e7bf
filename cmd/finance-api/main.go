package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/finance-assistant/internal/config"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "finance-api",
	Short: "Conversational personal-finance assistant API",
	Long: `finance-api serves the chat assistant that records expenses, budgets and
reports through a function-calling model, plus the monthly net worth job.

Configuration comes from FINASSIST_* environment variables, an optional .env
file and an optional YAML file named by FINASSIST_CONFIG.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := observability.Init(cfg.LogLevel); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		observability.Sync()
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, netWorthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
