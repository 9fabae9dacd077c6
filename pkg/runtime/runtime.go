// Package runtime provides controlled scheduling of concurrent operations
// for systematic concurrency testing. Every point where an instrumented
// program could legally context-switch becomes an explicit scheduler
// decision; re-executing the program while varying those decisions explores
// interleavings, and any recorded schedule can be replayed exactly.
package runtime

import (
	"errors"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Global scheduler instance for instrumented binaries.
var (
	sched   *Scheduler
	rootOp  *TaskOperation
	schedMu sync.Mutex

	traceFilePath  string
	reportFilePath string
)

// SetStrategy sets the scheduling strategy. Must be called before Initialize.
func SetStrategy(s Strategy) {
	schedMu.Lock()
	sched = NewScheduler(s)
	schedMu.Unlock()
}

// GetStrategy returns the current strategy.
func GetStrategy() Strategy {
	schedMu.Lock()
	defer schedMu.Unlock()
	if sched == nil {
		return nil
	}
	return sched.Strategy()
}

// Initialize sets up the runtime and adopts the calling goroutine as the
// root operation. Must be called at the start of main.
// Environment variables:
//   - MYCROFT_MODE: "random" (default), "replay", "pct", or "dfs"
//   - MYCROFT_TRACE: path of the trace file (default: "mycroft.trace");
//     written on termination, read in replay mode
//   - MYCROFT_REPORT: path of the JSON report file (optional)
//   - MYCROFT_SEED: random seed (default: 0)
//   - MYCROFT_MAX_STEPS: scheduling-step bound (default: unbounded)
//   - MYCROFT_DEBUG: enable debug diagnostics
//
// A .env file in the working directory is honored.
func Initialize() {
	_ = godotenv.Load()
	log := newLogger()

	traceFile := os.Getenv("MYCROFT_TRACE")
	if traceFile == "" {
		traceFile = "mycroft.trace"
	}

	schedMu.Lock()
	if sched == nil {
		var strategy Strategy
		switch mode := os.Getenv("MYCROFT_MODE"); mode {
		case "replay":
			s, err := NewReplayStrategyFromFile(traceFile)
			if err != nil {
				schedMu.Unlock()
				log.Fatal().Err(err).Msg("failed to load trace")
			}
			strategy = s
		case "pct":
			depth := int(envInt64(log, "MYCROFT_DEPTH"))
			if depth == 0 {
				depth = 3
			}
			strategy = NewPCTStrategy(envInt64(log, "MYCROFT_SEED"), depth)
		case "dfs":
			strategy = NewDFSStrategy()
		default:
			strategy = NewRandomStrategy(envInt64(log, "MYCROFT_SEED"))
		}
		sched = NewScheduler(strategy)
	}
	if n := envInt64(log, "MYCROFT_MAX_STEPS"); n > 0 {
		sched.SetMaxSteps(int(n))
	}
	s := sched
	schedMu.Unlock()

	root, err := s.AdoptRoot("main")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to adopt root operation")
	}

	schedMu.Lock()
	rootOp = root
	traceFilePath = traceFile
	reportFilePath = os.Getenv("MYCROFT_REPORT")
	schedMu.Unlock()
}

// Finalize completes the root operation, waits for every other operation to
// be scheduled to termination, persists the trace and report, and exits
// non-zero on deadlock or failure. Instrumented main functions run it
// deferred so that it also observes a canceled or failing root.
func Finalize() {
	schedMu.Lock()
	s, root := sched, rootOp
	trace, report := traceFilePath, reportFilePath
	schedMu.Unlock()

	if s == nil || root == nil {
		return
	}

	if r := recover(); r != nil {
		if e, ok := r.(error); ok && errors.Is(e, ErrExecutionCanceled) {
			// Terminal error already recorded by the scheduler.
		} else {
			s.OperationCompleted(root, &UserFailureError{
				OperationID:  root.ID(),
				Continuation: root.CurrentContinuation(),
				Value:        r,
			})
		}
	} else {
		s.OperationCompleted(root, nil)
	}

	err := s.Wait()
	rep := s.Report()

	log := newLogger()
	if trace != "" && os.Getenv("MYCROFT_MODE") != "replay" {
		if serr := SaveTrace(trace, rep.Trace); serr != nil {
			log.Error().Err(serr).Msg("failed to save trace")
		}
	}
	if report != "" {
		if werr := WriteReport(report, rep); werr != nil {
			log.Error().Err(werr).Msg("failed to write report")
		}
	}

	if err != nil {
		log.Error().Err(err).Str("outcome", string(rep.Outcome)).Msg("execution failed")
		os.Exit(1)
	}
}

// Execute runs test as the root operation of a fresh scheduler driven by
// strategy and returns the terminal report. maxSteps of zero means
// unbounded. Used by the exploration engine and by tests; instrumented
// binaries go through Initialize/Finalize instead.
func Execute(strategy Strategy, maxSteps int, test func()) *Report {
	s := NewScheduler(strategy)
	s.SetMaxSteps(maxSteps)

	schedMu.Lock()
	prev, prevRoot := sched, rootOp
	sched, rootOp = s, nil
	schedMu.Unlock()

	defer func() {
		schedMu.Lock()
		sched, rootOp = prev, prevRoot
		schedMu.Unlock()
	}()

	root, err := s.NewTaskOperation("main")
	if err != nil {
		s.mu.Lock()
		s.failLocked(err)
		s.mu.Unlock()
		return s.Report()
	}
	if err := root.SetRootContinuation("main"); err != nil {
		s.mu.Lock()
		s.failLocked(err)
		s.mu.Unlock()
		return s.Report()
	}
	s.SpawnOperation(root, test)
	_ = s.Run()
	return s.Report()
}

// --- Instrumentation hooks ---
//
// The hooks resolve the calling operation through the scheduler's notion of
// the current turn holder: exactly one operation is logically running at any
// instant, so no goroutine-identity tricks are needed. On a terminal
// scheduler error the hooks unwind the caller with an ErrExecutionCanceled
// panic, which the operation wrapper absorbs.

// SpawnTask creates a controlled operation for the continuation f, tagged
// with the explicit continuation identifier name, registers it, and yields at
// a creation scheduling point. It returns the task handle other operations
// may join on.
func SpawnTask(name string, f func()) *Task {
	s, _ := currentScheduler()
	op, err := s.NewTaskOperation(name)
	if err != nil {
		// Scheduler bookkeeping failure, fatal to the whole run.
		s.mu.Lock()
		s.failLocked(err)
		s.mu.Unlock()
		panic(ErrExecutionCanceled)
	}
	if err := op.SetRootContinuation(name); err != nil {
		s.mu.Lock()
		s.failLocked(err)
		s.mu.Unlock()
		panic(ErrExecutionCanceled)
	}
	t := s.SpawnOperation(op, f)
	if err := s.ScheduleNext(PointCreate); err != nil {
		panic(ErrExecutionCanceled)
	}
	return t
}

// WaitTask blocks the calling operation until t completes. Already completed
// tasks never block.
func WaitTask(t *Task) {
	if t.Completed() {
		return
	}
	_, op := currentScheduler()
	if err := op.OnWaitTask(t); err != nil {
		panic(ErrExecutionCanceled)
	}
}

// WaitTasks blocks the calling operation until all (waitAll) or at least one
// (otherwise) of the tasks complete. Dependencies that already completed are
// skipped; if none remain the operation does not block.
func WaitTasks(tasks []*Task, waitAll bool) {
	_, op := currentScheduler()
	if err := op.OnWaitTasks(tasks, waitAll); err != nil {
		panic(ErrExecutionCanceled)
	}
}

// SchedulingPoint marks an instrumented await boundary: the calling
// operation hands control to the scheduler and resumes only when granted the
// turn again.
func SchedulingPoint() {
	s, op := currentScheduler()
	op.OnGetAwaiter()
	if err := s.ScheduleNext(PointYield); err != nil {
		panic(ErrExecutionCanceled)
	}
	op.SetAwaiterControlled(false)
}

// EnterContinuation records that control transferred into the named
// continuation under the calling operation.
func EnterContinuation(name string) {
	_, op := currentScheduler()
	op.SetCurrentContinuation(name)
}

// NondetBoolean returns a controlled nondeterministic boolean, recorded in
// the trace for exact replay.
func NondetBoolean() bool {
	s, _ := currentScheduler()
	v, err := s.NextBoolean()
	if err != nil {
		panic(ErrExecutionCanceled)
	}
	return v
}

// NondetInteger returns a controlled nondeterministic integer in [0, max),
// recorded in the trace for exact replay.
func NondetInteger(max int64) int64 {
	s, _ := currentScheduler()
	v, err := s.NextInteger(max)
	if err != nil {
		panic(ErrExecutionCanceled)
	}
	return v
}

func currentScheduler() (*Scheduler, *TaskOperation) {
	schedMu.Lock()
	s := sched
	schedMu.Unlock()
	if s == nil {
		panic("mycroft: runtime not initialized")
	}
	op := s.CurrentTaskOperation()
	if op == nil {
		// A hook ran on a goroutine the scheduler does not control. The
		// exploration would be unsound if this were tolerated.
		s.mu.Lock()
		s.failLocked(errors.New("hook called outside any controlled operation"))
		s.mu.Unlock()
		panic(ErrExecutionCanceled)
	}
	return s, op
}

func envInt64(log zerolog.Logger, key string) int64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatal().Err(err).Str("var", key).Msg("invalid integer in environment")
	}
	return n
}
