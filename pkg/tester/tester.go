// Package tester drives systematic exploration: it executes a test body many
// times under a controlled scheduler, varying the scheduling decisions
// between iterations, and captures every failing schedule as a replayable
// trace.
package tester

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/amirkhaki/mycroft/pkg/results"
	"github.com/amirkhaki/mycroft/pkg/runtime"
)

// Config controls one exploration run.
type Config struct {
	// Iterations bounds the number of schedules to try. Defaults to 100.
	// Strategies that exhaust their search space may stop earlier.
	Iterations int
	// Strategy selects the exploration strategy: "random" (default), "pct"
	// or "dfs".
	Strategy string
	// Seed feeds the randomized strategies.
	Seed int64
	// Depth is the number of priority change points for "pct".
	Depth int
	// MaxSteps bounds scheduling decisions per iteration; zero is unbounded.
	MaxSteps int
	// TraceDir, when set, receives the trace of every failing iteration.
	TraceDir string
	// ResultsPath, when set, is the sqlite database recording all iterations.
	ResultsPath string
	// StopOnFailure stops the exploration at the first failing iteration.
	StopOnFailure bool
}

// Summary aggregates one exploration run.
type Summary struct {
	RunID             string
	Iterations        int
	Failures          int
	FirstFailure      *runtime.Report
	FirstFailureTrace string
}

// Engine runs exploration iterations and records their outcomes.
type Engine struct {
	cfg      Config
	strategy runtime.Strategy
	store    *results.Store
	runID    string
	log      zerolog.Logger
}

// New creates an exploration engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 100
	}
	strategy, err := BuildStrategy(cfg)
	if err != nil {
		return nil, err
	}

	var store *results.Store
	if cfg.ResultsPath != "" {
		store, err = results.Open(cfg.ResultsPath)
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		cfg:      cfg,
		strategy: strategy,
		store:    store,
		runID:    xid.New().String(),
		log: zerolog.New(os.Stderr).
			Level(zerolog.InfoLevel).
			With().Timestamp().Str("component", "tester").Logger(),
	}, nil
}

// BuildStrategy constructs the exploration strategy named by cfg.
func BuildStrategy(cfg Config) (runtime.Strategy, error) {
	switch cfg.Strategy {
	case "", "random":
		return runtime.NewRandomStrategy(cfg.Seed), nil
	case "pct":
		depth := cfg.Depth
		if depth == 0 {
			depth = 3
		}
		return runtime.NewPCTStrategy(cfg.Seed, depth), nil
	case "dfs":
		return runtime.NewDFSStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
}

// RunID identifies this exploration run in the results database.
func (e *Engine) RunID() string { return e.runID }

// Run explores schedules of the test body until the iteration budget or the
// strategy's search space is exhausted, or until the first failure when
// StopOnFailure is set. Failing traces are persisted for replay.
func (e *Engine) Run(test func()) (*Summary, error) {
	sum := &Summary{RunID: e.runID}

	for i := 0; i < e.cfg.Iterations; i++ {
		if !e.strategy.InitializeNextIteration(uint64(i)) {
			e.log.Info().Int("iterations", sum.Iterations).Msg("search space exhausted")
			break
		}

		rep := runtime.Execute(e.strategy, e.cfg.MaxSteps, test)
		sum.Iterations++

		tracePath := ""
		if rep.Err != nil {
			sum.Failures++
			tracePath = e.saveFailingTrace(i, rep)
			if sum.FirstFailure == nil {
				sum.FirstFailure = rep
				sum.FirstFailureTrace = tracePath
			}
			e.log.Info().
				Int("iteration", i).
				Str("outcome", string(rep.Outcome)).
				Str("trace", tracePath).
				Msg("failing schedule found")
		}

		if err := e.record(i, rep, tracePath); err != nil {
			return sum, err
		}

		if rep.Err != nil && e.cfg.StopOnFailure {
			break
		}
	}

	return sum, nil
}

// Replay re-executes the test body against a recorded trace and returns the
// resulting report. With an unmodified test body the reproduced schedule is
// identical to the recorded one.
func (e *Engine) Replay(traceFile string, test func()) (*runtime.Report, error) {
	strategy, err := runtime.NewReplayStrategyFromFile(traceFile)
	if err != nil {
		return nil, err
	}
	strategy.InitializeNextIteration(0)
	return runtime.Execute(strategy, e.cfg.MaxSteps, test), nil
}

// Close releases the results store, if any.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

func (e *Engine) saveFailingTrace(iteration int, rep *runtime.Report) string {
	if e.cfg.TraceDir == "" {
		return ""
	}
	if err := os.MkdirAll(e.cfg.TraceDir, 0o755); err != nil {
		e.log.Error().Err(err).Msg("failed to create trace directory")
		return ""
	}
	path := filepath.Join(e.cfg.TraceDir, fmt.Sprintf("%s_%06d.trace", e.runID, iteration))
	if err := runtime.SaveTrace(path, rep.Trace); err != nil {
		e.log.Error().Err(err).Msg("failed to save failing trace")
		return ""
	}
	return path
}

func (e *Engine) record(iteration int, rep *runtime.Report, tracePath string) error {
	if e.store == nil {
		return nil
	}
	return e.store.RecordIteration(results.Iteration{
		RunID:     e.runID,
		Iteration: iteration,
		Strategy:  e.strategy.Name(),
		Seed:      e.cfg.Seed,
		Outcome:   string(rep.Outcome),
		Steps:     rep.Steps,
		Error:     rep.Error,
		TracePath: tracePath,
	})
}
