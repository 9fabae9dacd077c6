package runtime

import "fmt"

// Status represents where an operation is in its lifecycle.
type Status uint8

const (
	StatusEnabled Status = iota + 1
	StatusBlockedOnWaitAll
	StatusBlockedOnWaitAny
	StatusBlockedOnResource
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusEnabled:
		return "enabled"
	case StatusBlockedOnWaitAll:
		return "blocked-wait-all"
	case StatusBlockedOnWaitAny:
		return "blocked-wait-any"
	case StatusBlockedOnResource:
		return "blocked-resource"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Blocked reports whether the status is one of the blocked states.
func (s Status) Blocked() bool {
	switch s {
	case StatusBlockedOnWaitAll, StatusBlockedOnWaitAny, StatusBlockedOnResource:
		return true
	}
	return false
}

// Operation is a schedulable unit of concurrent work. Implementations share
// the status state machine and the TryEnable contract; the scheduler never
// needs to know what kind of work an operation performs.
//
// Status is mutated only by the goroutine holding the scheduling turn, or by
// the scheduler itself under its own lock, so implementations do not need
// internal synchronization.
type Operation interface {
	ID() uint64
	Name() string
	Status() Status
	SetStatus(Status)

	// TryEnable re-evaluates a blocked operation's wait condition and, if it
	// now holds, transitions the operation back to Enabled. It reports
	// whether the operation is enabled afterwards. It never has side effects
	// beyond the status transition.
	TryEnable() bool

	// AwaiterControlled reports whether the operation has handed control to
	// the scheduler at an await point and expects to be resumed only by it.
	AwaiterControlled() bool
	SetAwaiterControlled(bool)
}

// BaseOperation carries the identity and status machinery shared by all
// operation kinds. Its TryEnable is a no-op suitable for operations that
// never block.
type BaseOperation struct {
	id                uint64
	name              string
	status            Status
	awaiterControlled bool
}

// NewBaseOperation returns a BaseOperation in the Enabled state.
func NewBaseOperation(id uint64, name string) BaseOperation {
	if name == "" {
		name = fmt.Sprintf("op(%d)", id)
	}
	return BaseOperation{id: id, name: name, status: StatusEnabled}
}

func (op *BaseOperation) ID() uint64 { return op.id }

func (op *BaseOperation) Name() string { return op.name }

func (op *BaseOperation) Status() Status { return op.status }

func (op *BaseOperation) SetStatus(s Status) {
	if op.status == StatusCompleted {
		// Completed is terminal.
		return
	}
	op.status = s
}

func (op *BaseOperation) TryEnable() bool { return op.status == StatusEnabled }

func (op *BaseOperation) AwaiterControlled() bool { return op.awaiterControlled }

func (op *BaseOperation) SetAwaiterControlled(v bool) { op.awaiterControlled = v }
