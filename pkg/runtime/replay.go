package runtime

import "fmt"

// ReplayStrategy replays a recorded trace decision by decision. Any mismatch
// between a recorded step and the choices available now means the execution
// diverged from the recording, which is reported rather than silently
// tolerated: a divergent replay would be unsound.
type ReplayStrategy struct {
	steps  []Step
	cursor int
}

// NewReplayStrategy creates a replay strategy from a recorded trace.
func NewReplayStrategy(tr *Trace) *ReplayStrategy {
	return &ReplayStrategy{steps: tr.Steps()}
}

// NewReplayStrategyFromFile loads a trace file and builds a replay strategy
// from it.
func NewReplayStrategyFromFile(filename string) (*ReplayStrategy, error) {
	tr, err := LoadTrace(filename)
	if err != nil {
		return nil, err
	}
	return NewReplayStrategy(tr), nil
}

func (s *ReplayStrategy) Name() string { return "replay" }

// InitializeNextIteration rewinds the trace. A replay is a single-schedule
// exploration, so only the first iteration runs.
func (s *ReplayStrategy) InitializeNextIteration(iteration uint64) bool {
	s.cursor = 0
	return iteration == 0
}

// Remaining returns the number of recorded steps not yet consumed.
func (s *ReplayStrategy) Remaining() int { return len(s.steps) - s.cursor }

func (s *ReplayStrategy) next(kind StepKind) (Step, error) {
	if s.cursor >= len(s.steps) {
		return Step{}, fmt.Errorf("%w: trace exhausted at step %d", ErrTraceDivergence, s.cursor)
	}
	step := s.steps[s.cursor]
	if step.Kind != kind {
		return Step{}, fmt.Errorf("%w: step %d recorded %s, execution asked for %s",
			ErrTraceDivergence, s.cursor, step.Kind, kind)
	}
	s.cursor++
	return step, nil
}

func (s *ReplayStrategy) NextOperation(enabled []Operation, _ *Trace) (Operation, error) {
	step, err := s.next(StepOperation)
	if err != nil {
		return nil, err
	}
	for _, op := range enabled {
		if op.ID() == step.OperationID {
			return op, nil
		}
	}
	return nil, fmt.Errorf("%w: step %d chose operation %d, which is not enabled",
		ErrTraceDivergence, step.Index, step.OperationID)
}

func (s *ReplayStrategy) NextBoolean() (bool, error) {
	step, err := s.next(StepBoolean)
	if err != nil {
		return false, err
	}
	return step.Value == 1, nil
}

func (s *ReplayStrategy) NextInteger(max int64) (int64, error) {
	step, err := s.next(StepInteger)
	if err != nil {
		return 0, err
	}
	if step.Value >= max {
		return 0, fmt.Errorf("%w: step %d recorded integer %d, bound is %d",
			ErrTraceDivergence, step.Index, step.Value, max)
	}
	return step.Value, nil
}
