package runtime

// Strategy defines the interface for scheduling strategies.
// Implementations decide which enabled operation runs next at each scheduling
// point, and supply any nondeterministic values the program asks for.
type Strategy interface {
	// Name identifies the strategy in reports and results.
	Name() string

	// InitializeNextIteration prepares the strategy for exploration
	// iteration i and reports whether another iteration is worth running.
	InitializeNextIteration(iteration uint64) bool

	// NextOperation returns exactly one member of the enabled set. The
	// scheduler passes the set sorted by operation id together with the
	// trace recorded so far. Returning an operation outside the set, or an
	// error, is fatal to the current execution.
	NextOperation(enabled []Operation, trace *Trace) (Operation, error)

	// NextBoolean supplies a controlled nondeterministic boolean.
	NextBoolean() (bool, error)

	// NextInteger supplies a controlled nondeterministic integer in [0, max).
	NextInteger(max int64) (int64, error)
}

// Replayer is a strategy driven by a previously recorded trace.
type Replayer interface {
	Strategy

	// Remaining returns the number of recorded steps not yet consumed.
	Remaining() int
}
