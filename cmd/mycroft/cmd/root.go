package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mycroft",
	Short: "systematic concurrency testing for Go programs",
	Long: `mycroft takes over the scheduling of instrumented Go programs so that
every context switch becomes an explicit, controlled choice. Repeated
exploration of scheduling choices surfaces races, deadlocks, and violated
invariants that a single run would miss; any failing schedule replays
exactly.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
