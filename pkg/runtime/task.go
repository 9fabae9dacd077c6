package runtime

import "sync"

// Task is the external handle for one controlled unit of asynchronous work.
// Completion is observed by operations joining on the task, possibly from a
// different goroutine than the one that completes it, so the flag carries its
// own lock.
type Task struct {
	id uint64

	mu        sync.Mutex
	completed bool
	err       error
}

func newTask(id uint64) *Task { return &Task{id: id} }

// ID returns the identifier of the operation backing this task.
func (t *Task) ID() uint64 { return t.id }

// Completed reports whether the task's continuation has finished.
func (t *Task) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Err returns the failure the task's continuation ended with, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) complete(err error) {
	t.mu.Lock()
	t.completed = true
	t.err = err
	t.mu.Unlock()
}

// TaskOperation is the controlled operation backing one asynchronous
// continuation. It owns the join dependencies the operation is blocked on and
// tracks which user-level continuation is the operation's root versus the one
// currently executing.
//
// Join dependencies are evaluated synchronously by the scheduler through
// TryEnable, never by the underlying goroutine runtime: a join only resolves
// when the scheduler decides to check it, which is what makes replay exact.
type TaskOperation struct {
	BaseOperation

	sched *Scheduler

	joinDeps map[uint64]*Task
	resource *chanWaiter

	rootContinuation    string
	currentContinuation string
}

func newTaskOperation(id uint64, name string, sched *Scheduler) *TaskOperation {
	return &TaskOperation{
		BaseOperation: NewBaseOperation(id, name),
		sched:         sched,
		joinDeps:      make(map[uint64]*Task),
	}
}

// OnGetAwaiter marks the operation as suspended at an await point under
// scheduler control. It only flips the flag; the status is unchanged.
func (op *TaskOperation) OnGetAwaiter() {
	op.SetAwaiterControlled(true)
}

// OnWaitTask records a dependency on a single task, blocks the operation, and
// yields the turn. The caller must not invoke it for an already completed
// task.
func (op *TaskOperation) OnWaitTask(t *Task) error {
	op.joinDeps[t.ID()] = t
	op.SetStatus(StatusBlockedOnWaitAll)
	return op.sched.ScheduleNext(PointJoin)
}

// OnWaitTasks records dependencies on multiple tasks, skipping any that have
// already completed. The operation blocks and yields the turn only when the
// join condition is still unsatisfied: for wait-all, when any dependency
// remains; for wait-any, when none of the tasks has completed yet.
func (op *TaskOperation) OnWaitTasks(tasks []*Task, waitAll bool) error {
	anyCompleted := false
	for _, t := range tasks {
		if t.Completed() {
			anyCompleted = true
			continue
		}
		op.joinDeps[t.ID()] = t
	}
	if len(op.joinDeps) == 0 || (!waitAll && anyCompleted) {
		op.joinDeps = make(map[uint64]*Task)
		return nil
	}
	if waitAll {
		op.SetStatus(StatusBlockedOnWaitAll)
	} else {
		op.SetStatus(StatusBlockedOnWaitAny)
	}
	return op.sched.ScheduleNext(PointJoin)
}

// TryEnable re-evaluates the wait condition: wait-all requires every
// dependency completed, wait-any at least one, a resource wait requires the
// counterparty to have completed the exchange. On success the wait state is
// cleared and the operation becomes enabled again.
func (op *TaskOperation) TryEnable() bool {
	switch op.Status() {
	case StatusBlockedOnResource:
		if op.resource == nil || !op.resource.delivered {
			return false
		}
		op.resource = nil
	case StatusBlockedOnWaitAll:
		for _, t := range op.joinDeps {
			if !t.Completed() {
				return false
			}
		}
	case StatusBlockedOnWaitAny:
		satisfied := len(op.joinDeps) == 0
		for _, t := range op.joinDeps {
			if t.Completed() {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	default:
		return op.Status() == StatusEnabled
	}

	op.joinDeps = make(map[uint64]*Task)
	op.SetStatus(StatusEnabled)
	return true
}

// JoinDependencyCount returns the number of tasks the operation is currently
// waiting on. Diagnostics only.
func (op *TaskOperation) JoinDependencyCount() int { return len(op.joinDeps) }

// SetRootContinuation records the first user-level continuation this
// operation was created to run. It is set exactly once; later calls with a
// different id leave the root unchanged. An empty id means the
// instrumentation layer failed to identify a continuation, which is an
// internal consistency error.
func (op *TaskOperation) SetRootContinuation(id string) error {
	if id == "" {
		return ErrNoContinuation
	}
	if op.rootContinuation != "" {
		return nil
	}
	op.rootContinuation = id
	op.currentContinuation = id
	return nil
}

// SetCurrentContinuation records the continuation now executing under this
// operation. Called at every transfer of control into the operation's logic.
func (op *TaskOperation) SetCurrentContinuation(id string) {
	op.currentContinuation = id
}

// RootContinuation returns the operation's root continuation id.
func (op *TaskOperation) RootContinuation() string { return op.rootContinuation }

// CurrentContinuation returns the continuation currently executing.
func (op *TaskOperation) CurrentContinuation() string { return op.currentContinuation }

// IsExecutingRootContinuation reports whether the operation is running its
// outermost logic rather than a nested awaited call. Root-only bookkeeping,
// such as first-chance failure capture, applies only in that case.
func (op *TaskOperation) IsExecutingRootContinuation() bool {
	return op.rootContinuation != "" && op.rootContinuation == op.currentContinuation
}
