package runtime

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDuplicateOperation is returned when an operation id is registered twice.
	ErrDuplicateOperation = errors.New("operation already registered")

	// ErrNoContinuation signals that no user-level continuation could be
	// identified for an operation. This is an instrumentation bug, not a bug
	// in the program under test.
	ErrNoContinuation = errors.New("no user continuation identified")

	// ErrTraceDivergence signals that the enabled set observed during replay
	// differs from the one recorded, i.e. nondeterminism outside scheduler
	// control.
	ErrTraceDivergence = errors.New("execution diverged from recorded trace")

	// ErrExecutionCanceled is used to unwind parked operations once the
	// current execution has reached a terminal error.
	ErrExecutionCanceled = errors.New("execution canceled")

	// ErrMaxStepsReached is reported when an execution exceeds the configured
	// scheduling-step bound.
	ErrMaxStepsReached = errors.New("maximum scheduling steps reached")

	// ErrSchedulerStopped is returned by hooks invoked after the scheduler
	// has terminated.
	ErrSchedulerStopped = errors.New("scheduler already stopped")
)

// BlockedOperation describes one non-completed operation at deadlock time.
type BlockedOperation struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// DeadlockError is reported when no operation is enabled while at least one
// has not completed. It carries a snapshot of every blocked operation.
type DeadlockError struct {
	Blocked []BlockedOperation
}

func (e *DeadlockError) Error() string {
	var b strings.Builder
	b.WriteString("deadlock: no operation is enabled; blocked operations:")
	blocked := append([]BlockedOperation(nil), e.Blocked...)
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].ID < blocked[j].ID })
	for _, op := range blocked {
		fmt.Fprintf(&b, " %s[%d](%s)", op.Name, op.ID, op.Status)
	}
	return b.String()
}

// UserFailureError captures a failure raised inside a controlled operation's
// continuation. The trace prefix leading to it is preserved by the scheduler,
// so the failure can be replayed exactly.
type UserFailureError struct {
	OperationID  uint64
	Continuation string
	Value        any
}

func (e *UserFailureError) Error() string {
	return fmt.Sprintf("operation %d failed in %s: %v", e.OperationID, e.Continuation, e.Value)
}
