package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/amirkhaki/mycroft/pkg/results"
	"github.com/amirkhaki/mycroft/pkg/runtime"
)

// exploreCmd represents the explore command
var exploreCmd = &cobra.Command{
	Use:   "explore [flags] -- <binary> [args...]",
	Short: "explore schedules of an instrumented binary",
	Long: `explore repeatedly executes an instrumented binary, varying the
scheduling decisions between iterations. Failing schedules keep their trace
for exact replay; every iteration is recorded in the results database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplore,
}

var (
	exploreIterations int
	exploreStrategy   string
	exploreSeed       int64
	exploreMaxSteps   int
	exploreTraceDir   string
	exploreResults    string
	exploreStopFirst  bool
)

func init() {
	rootCmd.AddCommand(exploreCmd)

	exploreCmd.Flags().IntVarP(&exploreIterations, "iterations", "n", 100,
		"number of schedules to explore")
	exploreCmd.Flags().StringVarP(&exploreStrategy, "strategy", "s", "random",
		"exploration strategy (random or pct)")
	exploreCmd.Flags().Int64Var(&exploreSeed, "seed", 0,
		"base random seed; iteration i runs with seed+i")
	exploreCmd.Flags().IntVar(&exploreMaxSteps, "max-steps", 0,
		"scheduling-step bound per iteration (0 = unbounded)")
	exploreCmd.Flags().StringVar(&exploreTraceDir, "trace-dir", "mycroft-traces",
		"directory receiving failing traces")
	exploreCmd.Flags().StringVar(&exploreResults, "results", "",
		"sqlite database recording every iteration")
	exploreCmd.Flags().BoolVar(&exploreStopFirst, "stop-on-failure", false,
		"stop at the first failing schedule")
}

func runExplore(cmd *cobra.Command, args []string) error {
	if exploreStrategy != "random" && exploreStrategy != "pct" {
		return fmt.Errorf("strategy %q cannot drive separate processes; use random or pct", exploreStrategy)
	}
	if err := os.MkdirAll(exploreTraceDir, 0o755); err != nil {
		return fmt.Errorf("failed to create trace directory: %w", err)
	}

	var store *results.Store
	if exploreResults != "" {
		var err error
		store, err = results.Open(exploreResults)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	runID := xid.New().String()
	failures := 0

	for i := 0; i < exploreIterations; i++ {
		tracePath := filepath.Join(exploreTraceDir, fmt.Sprintf("%s_%06d.trace", runID, i))
		reportPath := tracePath + ".report"
		seed := exploreSeed + int64(i)

		failed := runIteration(args, map[string]string{
			"MYCROFT_MODE":      exploreStrategy,
			"MYCROFT_SEED":      fmt.Sprintf("%d", seed),
			"MYCROFT_TRACE":     tracePath,
			"MYCROFT_REPORT":    reportPath,
			"MYCROFT_MAX_STEPS": fmt.Sprintf("%d", exploreMaxSteps),
		})

		outcome, steps, errText := readIterationReport(reportPath, failed)

		if store != nil {
			if err := store.RecordIteration(results.Iteration{
				RunID:     runID,
				Iteration: i,
				Strategy:  exploreStrategy,
				Seed:      seed,
				Outcome:   outcome,
				Steps:     steps,
				Error:     errText,
				TracePath: tracePath,
			}); err != nil {
				return err
			}
		}

		if !failed {
			// Only failing schedules are worth keeping.
			os.Remove(tracePath)
			os.Remove(reportPath)
			continue
		}

		failures++
		fmt.Fprintf(os.Stderr, "mycroft: iteration %d: %s (trace: %s)\n", i, outcome, tracePath)
		if exploreStopFirst {
			break
		}
	}

	fmt.Printf("run %s: %d failing schedule(s)\n", runID, failures)
	if failures > 0 {
		os.Exit(1)
	}
	return nil
}

func runIteration(args []string, env map[string]string) bool {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return cmd.Run() != nil
}

func readIterationReport(reportPath string, failed bool) (outcome string, steps int, errText string) {
	rep, err := runtime.LoadReport(reportPath)
	if err != nil {
		// The binary may have crashed before writing a report.
		if failed {
			return string(runtime.OutcomeInternal), 0, "no report written"
		}
		return string(runtime.OutcomeCompleted), 0, ""
	}
	return string(rep.Outcome), rep.Steps, rep.Error
}
