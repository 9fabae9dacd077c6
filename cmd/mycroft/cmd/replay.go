package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay [flags] -- <binary> [args...]",
	Short: "replay a recorded schedule against an instrumented binary",
	Long: `replay re-executes an instrumented binary under the exact schedule
recorded in a trace file, reproducing a discovered failure for debugging.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

var replayTrace string

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayTrace, "trace", "t", "",
		"trace file to replay (required)")
	replayCmd.MarkFlagRequired("trace")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(replayTrace); err != nil {
		return fmt.Errorf("trace file: %w", err)
	}

	c := exec.Command(args[0], args[1:]...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Stdin = os.Stdin
	c.Env = append(os.Environ(),
		"MYCROFT_MODE=replay",
		"MYCROFT_TRACE="+replayTrace,
	)
	if err := c.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return err
	}
	return nil
}
