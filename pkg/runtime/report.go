package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Outcome classifies how an execution ended.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeDeadlock     Outcome = "deadlock"
	OutcomeUserFailure  Outcome = "failure"
	OutcomeDivergence   Outcome = "divergence"
	OutcomeBoundReached Outcome = "bound-reached"
	OutcomeInternal     Outcome = "internal-error"
)

// OperationSnapshot is the terminal state of one operation.
type OperationSnapshot struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Report is the terminal summary of one controlled execution: the outcome,
// every operation's final status, and the recorded trace. It is what the
// scheduler hands to reporters and the exploration engine.
type Report struct {
	Outcome    Outcome             `json:"outcome"`
	Steps      int                 `json:"steps"`
	Operations []OperationSnapshot `json:"operations"`
	Error      string              `json:"error,omitempty"`

	Trace *Trace `json:"-"`
	Err   error  `json:"-"`
}

// Report builds the terminal report for this execution. Call it only after
// the execution has terminated.
func (s *Scheduler) Report() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Report{
		Outcome: classify(s.err),
		Steps:   s.trace.Len(),
		Trace:   s.trace,
		Err:     s.err,
	}
	if s.err != nil {
		r.Error = s.err.Error()
	}
	for _, op := range s.operations {
		r.Operations = append(r.Operations, OperationSnapshot{
			ID:     op.ID(),
			Name:   op.Name(),
			Status: op.Status().String(),
		})
	}
	sort.Slice(r.Operations, func(i, j int) bool { return r.Operations[i].ID < r.Operations[j].ID })
	return r
}

func classify(err error) Outcome {
	var deadlock *DeadlockError
	var failure *UserFailureError
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.As(err, &deadlock):
		return OutcomeDeadlock
	case errors.As(err, &failure):
		return OutcomeUserFailure
	case errors.Is(err, ErrTraceDivergence):
		return OutcomeDivergence
	case errors.Is(err, ErrMaxStepsReached):
		return OutcomeBoundReached
	default:
		return OutcomeInternal
	}
}

// WriteReport writes the report as JSON to the given file.
func WriteReport(filename string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// LoadReport reads a report written by WriteReport.
func LoadReport(filename string) (*Report, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
