package runtime

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// StepKind represents the type of a recorded scheduling decision.
type StepKind uint8

const (
	// StepOperation records which operation was chosen at a scheduling point.
	StepOperation StepKind = iota + 1
	// StepBoolean records a nondeterministic boolean supplied to the program.
	StepBoolean
	// StepInteger records a nondeterministic integer supplied to the program.
	StepInteger
)

func (k StepKind) String() string {
	switch k {
	case StepOperation:
		return "operation"
	case StepBoolean:
		return "boolean"
	case StepInteger:
		return "integer"
	default:
		return "unknown"
	}
}

// SchedulePoint classifies why the scheduler was asked for a decision.
type SchedulePoint uint8

const (
	PointDefault SchedulePoint = iota
	PointCreate
	PointJoin
	PointYield
	PointComplete
)

func (p SchedulePoint) String() string {
	switch p {
	case PointCreate:
		return "create"
	case PointJoin:
		return "join"
	case PointYield:
		return "yield"
	case PointComplete:
		return "complete"
	default:
		return "default"
	}
}

// Step is a single recorded scheduling decision.
type Step struct {
	Index       int           `json:"index"`
	Kind        StepKind      `json:"kind"`
	Point       SchedulePoint `json:"point,omitempty"`
	OperationID uint64        `json:"op,omitempty"`
	Value       int64         `json:"value,omitempty"`
}

// Trace is the ordered log of scheduling decisions for one execution.
// Feeding the same trace back through a replay strategy reproduces an
// identical run. It is append-only during recording and is mutated only by
// the scheduler while it holds the turn, so it carries no lock of its own.
type Trace struct {
	steps []Step
}

// NewTrace returns an empty trace.
func NewTrace() *Trace { return &Trace{} }

// Len returns the number of recorded steps.
func (tr *Trace) Len() int { return len(tr.steps) }

// Step returns the i-th recorded step.
func (tr *Trace) Step(i int) Step { return tr.steps[i] }

// Steps returns a copy of all recorded steps.
func (tr *Trace) Steps() []Step {
	return append([]Step(nil), tr.steps...)
}

// OperationIDs returns the sequence of chosen operation ids, skipping
// recorded nondeterministic values.
func (tr *Trace) OperationIDs() []uint64 {
	var ids []uint64
	for _, s := range tr.steps {
		if s.Kind == StepOperation {
			ids = append(ids, s.OperationID)
		}
	}
	return ids
}

func (tr *Trace) appendOperation(point SchedulePoint, opID uint64) {
	tr.steps = append(tr.steps, Step{
		Index:       len(tr.steps),
		Kind:        StepOperation,
		Point:       point,
		OperationID: opID,
	})
}

func (tr *Trace) appendBoolean(v bool) {
	var n int64
	if v {
		n = 1
	}
	tr.steps = append(tr.steps, Step{Index: len(tr.steps), Kind: StepBoolean, Value: n})
}

func (tr *Trace) appendInteger(v int64) {
	tr.steps = append(tr.steps, Step{Index: len(tr.steps), Kind: StepInteger, Value: v})
}

// LoadTrace reads a trace from a JSON-lines file.
func LoadTrace(filename string) (*Trace, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	tr := NewTrace()
	dec := json.NewDecoder(bufio.NewReader(f))
	for dec.More() {
		var s Step
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to decode step: %w", err)
		}
		tr.steps = append(tr.steps, s)
	}
	return tr, nil
}

// SaveTrace writes a trace to a JSON-lines file.
func SaveTrace(filename string, tr *Trace) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, s := range tr.steps {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("failed to encode step: %w", err)
		}
	}
	return w.Flush()
}
