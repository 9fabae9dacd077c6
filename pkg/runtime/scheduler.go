package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Scheduler is the arbiter of a single controlled execution. It holds every
// registered operation, asks the strategy which enabled operation runs next,
// detects deadlock, and records each decision into the trace.
//
// Even though operations run on real goroutines, at most one of them is
// logically running at any instant: every other registered operation is
// parked on its signal channel until the scheduler grants it the turn. The
// registry and the trace are mutated only under mu by the turn holder, so no
// finer-grained locking is needed.
type Scheduler struct {
	mu          sync.Mutex
	strategy    Strategy
	operations  map[uint64]Operation
	signals     map[uint64]chan struct{}
	chanWaiters map[uintptr][]*chanWaiter
	trace       *Trace
	current     uint64
	nextID      uint64
	maxSteps    int

	done     chan struct{}
	finished bool
	err      error

	log zerolog.Logger
}

// NewScheduler creates a scheduler driven by the given strategy.
func NewScheduler(strategy Strategy) *Scheduler {
	return &Scheduler{
		strategy:    strategy,
		operations:  make(map[uint64]Operation),
		signals:     make(map[uint64]chan struct{}),
		chanWaiters: make(map[uintptr][]*chanWaiter),
		trace:       NewTrace(),
		done:        make(chan struct{}),
		log:         newLogger(),
	}
}

// SetMaxSteps bounds the number of scheduling decisions in one execution.
// Zero means unbounded. Must be set before the execution starts.
func (s *Scheduler) SetMaxSteps(n int) { s.maxSteps = n }

// Strategy returns the strategy driving this scheduler.
func (s *Scheduler) Strategy() Strategy { return s.strategy }

// Trace returns the trace recorded so far. The scheduler keeps appending to
// it until the execution terminates.
func (s *Scheduler) Trace() *Trace { return s.trace }

// RegisterOperation adds a new operation to the registry. Registering an id
// twice is an internal consistency error.
func (s *Scheduler) RegisterOperation(op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operations[op.ID()]; ok {
		return fmt.Errorf("%w: id %d", ErrDuplicateOperation, op.ID())
	}
	s.operations[op.ID()] = op
	// One permit per operation; buffered so a grant never depends on the
	// grantee being parked yet.
	s.signals[op.ID()] = make(chan struct{}, 1)
	s.log.Debug().Uint64("op", op.ID()).Str("name", op.Name()).Msg("operation registered")
	return nil
}

// NewTaskOperation creates and registers a task operation with a fresh id.
func (s *Scheduler) NewTaskOperation(name string) (*TaskOperation, error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	op := newTaskOperation(id, name, s)
	if err := s.RegisterOperation(op); err != nil {
		return nil, err
	}
	return op, nil
}

// SpawnOperation starts the goroutine carrying op's continuation and returns
// the task handle other operations may join on. The goroutine stays parked
// until the scheduler grants op its first turn.
func (s *Scheduler) SpawnOperation(op *TaskOperation, f func()) *Task {
	t := newTask(op.ID())
	go s.runOperation(op, t, f)
	return t
}

func (s *Scheduler) runOperation(op *TaskOperation, t *Task, f func()) {
	if err := s.waitForTurn(op.ID()); err != nil {
		return
	}
	op.SetCurrentContinuation(op.RootContinuation())
	err := runContinuation(op, f)
	if errors.Is(err, ErrExecutionCanceled) {
		return
	}
	t.complete(err)
	s.OperationCompleted(op, err)
}

func runContinuation(op *TaskOperation, f func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok && errors.Is(e, ErrExecutionCanceled) {
			err = ErrExecutionCanceled
			return
		}
		err = &UserFailureError{
			OperationID:  op.ID(),
			Continuation: op.CurrentContinuation(),
			Value:        r,
		}
	}()
	f()
	return nil
}

// OperationCompleted marks op as terminally completed and passes the turn on.
// A non-nil failure ends the execution with the trace preserved for replay.
func (s *Scheduler) OperationCompleted(op Operation, failure error) {
	s.mu.Lock()
	op.SetStatus(StatusCompleted)
	s.log.Debug().Uint64("op", op.ID()).Err(failure).Msg("operation completed")
	if failure != nil {
		s.failLocked(failure)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// The completing operation still holds the turn; hand it over. Any error
	// has already been recorded as the terminal error.
	_ = s.ScheduleNext(PointComplete)
}

// ScheduleNext is the central decision point. It re-evaluates every blocked
// operation, and then either reports deadlock, terminates the execution
// normally, or asks the strategy for the next operation, records the choice,
// grants that operation the turn, and parks the caller until its own turn
// comes back.
//
// It must be called by the goroutine currently holding the turn.
func (s *Scheduler) ScheduleNext(point SchedulePoint) error {
	s.mu.Lock()

	if s.finished {
		s.mu.Unlock()
		if s.err != nil {
			return ErrExecutionCanceled
		}
		return ErrSchedulerStopped
	}

	if s.maxSteps > 0 && s.trace.Len() >= s.maxSteps {
		s.failLocked(fmt.Errorf("%w: %d", ErrMaxStepsReached, s.maxSteps))
		s.mu.Unlock()
		return ErrExecutionCanceled
	}

	caller := s.operations[s.current]

	enabled := s.enabledLocked()
	if len(enabled) == 0 {
		if s.allCompletedLocked() {
			s.finishLocked()
			s.mu.Unlock()
			return nil
		}
		err := s.deadlockLocked()
		s.mu.Unlock()
		return err
	}

	chosen, err := s.strategy.NextOperation(enabled, s.trace)
	if err == nil && !member(enabled, chosen) {
		err = fmt.Errorf("strategy %s returned operation outside the enabled set", s.strategy.Name())
	}
	if err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		return ErrExecutionCanceled
	}

	s.trace.appendOperation(point, chosen.ID())
	s.current = chosen.ID()
	signal := s.signals[chosen.ID()]
	s.log.Debug().
		Uint64("op", chosen.ID()).
		Str("point", point.String()).
		Int("enabled", len(enabled)).
		Msg("scheduling decision")
	s.mu.Unlock()

	if caller != nil && chosen.ID() == caller.ID() {
		// The caller keeps the turn; nothing to hand over.
		return nil
	}

	signal <- struct{}{}

	if caller == nil || caller.Status() == StatusCompleted {
		return nil
	}
	return s.waitForTurn(caller.ID())
}

// NextBoolean supplies a controlled nondeterministic boolean and records it.
func (s *Scheduler) NextBoolean() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.strategy.NextBoolean()
	if err != nil {
		s.failLocked(err)
		return false, ErrExecutionCanceled
	}
	s.trace.appendBoolean(v)
	return v, nil
}

// NextInteger supplies a controlled nondeterministic integer in [0, max) and
// records it.
func (s *Scheduler) NextInteger(max int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.strategy.NextInteger(max)
	if err != nil {
		s.failLocked(err)
		return 0, ErrExecutionCanceled
	}
	s.trace.appendInteger(v)
	return v, nil
}

// Run grants the first turn and blocks until the execution terminates,
// returning its terminal error, if any.
func (s *Scheduler) Run() error {
	s.mu.Lock()
	if s.finished {
		err := s.err
		s.mu.Unlock()
		return err
	}
	enabled := s.enabledLocked()
	if len(enabled) == 0 {
		if s.allCompletedLocked() {
			s.finishLocked()
			s.mu.Unlock()
			return nil
		}
		err := s.deadlockLocked()
		s.mu.Unlock()
		return err
	}
	chosen, err := s.strategy.NextOperation(enabled, s.trace)
	if err == nil && !member(enabled, chosen) {
		err = fmt.Errorf("strategy %s returned operation outside the enabled set", s.strategy.Name())
	}
	if err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		return err
	}
	s.trace.appendOperation(PointDefault, chosen.ID())
	s.current = chosen.ID()
	signal := s.signals[chosen.ID()]
	s.mu.Unlock()

	signal <- struct{}{}
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// AdoptRoot registers a task operation for the goroutine calling it and
// hands it the turn directly. Used when the program's own main goroutine is
// the root operation rather than a spawned one.
func (s *Scheduler) AdoptRoot(name string) (*TaskOperation, error) {
	op, err := s.NewTaskOperation(name)
	if err != nil {
		return nil, err
	}
	if err := op.SetRootContinuation(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = op.ID()
	s.mu.Unlock()
	return op, nil
}

// Wait blocks until the execution terminates and returns its terminal error.
func (s *Scheduler) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Err returns the terminal error of the execution, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CurrentTaskOperation returns the task operation holding the turn, or nil
// if the turn holder is not a task operation.
func (s *Scheduler) CurrentTaskOperation() *TaskOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, _ := s.operations[s.current].(*TaskOperation)
	return op
}

func (s *Scheduler) waitForTurn(id uint64) error {
	s.mu.Lock()
	signal := s.signals[id]
	s.mu.Unlock()

	select {
	case <-signal:
		return nil
	case <-s.done:
		return ErrExecutionCanceled
	}
}

// enabledLocked computes the enabled set: TryEnable on every non-terminal
// operation, then filter. Sorted by id so strategies see a deterministic
// order.
func (s *Scheduler) enabledLocked() []Operation {
	var enabled []Operation
	for _, op := range s.operations {
		if op.Status() == StatusCompleted {
			continue
		}
		if op.TryEnable() {
			enabled = append(enabled, op)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].ID() < enabled[j].ID() })
	return enabled
}

func (s *Scheduler) allCompletedLocked() bool {
	for _, op := range s.operations {
		if op.Status() != StatusCompleted {
			return false
		}
	}
	return true
}

func (s *Scheduler) deadlockLocked() error {
	var blocked []BlockedOperation
	for _, op := range s.operations {
		if op.Status() == StatusCompleted {
			continue
		}
		blocked = append(blocked, BlockedOperation{
			ID:     op.ID(),
			Name:   op.Name(),
			Status: op.Status().String(),
		})
	}
	err := &DeadlockError{Blocked: blocked}
	s.failLocked(err)
	return err
}

// failLocked records the first terminal error and releases every parked
// goroutine. Later failures are kept only in the log.
func (s *Scheduler) failLocked(err error) {
	if s.finished {
		s.log.Debug().Err(err).Msg("error after termination")
		return
	}
	s.err = err
	s.finished = true
	s.log.Error().Err(err).Int("steps", s.trace.Len()).Msg("execution failed")
	close(s.done)
}

func (s *Scheduler) finishLocked() {
	if s.finished {
		return
	}
	s.finished = true
	s.log.Debug().Int("steps", s.trace.Len()).Msg("execution completed")
	close(s.done)
}

func member(set []Operation, op Operation) bool {
	if op == nil {
		return false
	}
	for _, o := range set {
		if o.ID() == op.ID() {
			return true
		}
	}
	return false
}
