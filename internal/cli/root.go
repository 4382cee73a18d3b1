// Package cli holds the finanzapp command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagEnvFile  string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "finanzapp",
	Short:         "Personal expense ledger with ratings and monthly resolutions",
	Long:          "Track expenses, rate what they were worth, and check monthly spending resolutions.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		loadEnvFile(flagEnvFile)
	},
}

// Execute is the entry point called from main.
// Commands run under a context cancelled by SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signalContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "TOML config file (default $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}
