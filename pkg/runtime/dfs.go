package runtime

import (
	"fmt"
	"math"
)

// DFSStrategy enumerates interleavings depth-first. Within one iteration
// every decision point follows the branch stack; between iterations the last
// non-exhausted decision advances to its next branch and everything below it
// is discarded. Exploration is exhaustive for programs whose decision tree is
// finite and deterministic given the schedule.
type DFSStrategy struct {
	stack []dfsChoice
	depth int
}

type dfsChoice struct {
	limit  int
	branch int
}

// NewDFSStrategy creates a depth-first strategy with backtracking across
// iterations.
func NewDFSStrategy() *DFSStrategy {
	return &DFSStrategy{}
}

func (s *DFSStrategy) Name() string { return "dfs" }

func (s *DFSStrategy) InitializeNextIteration(iteration uint64) bool {
	s.depth = 0
	if iteration == 0 {
		return true
	}
	for len(s.stack) > 0 {
		top := &s.stack[len(s.stack)-1]
		top.branch++
		if top.branch < top.limit {
			return true
		}
		s.stack = s.stack[:len(s.stack)-1]
	}
	return false
}

// decide returns the branch to take at the current decision point given n
// alternatives. A shrunken alternative count on a revisited point means the
// program is nondeterministic outside scheduler control.
func (s *DFSStrategy) decide(n int) (int, error) {
	if s.depth < len(s.stack) {
		c := s.stack[s.depth]
		if c.branch >= n {
			return 0, fmt.Errorf("%w: decision %d has %d alternatives, needed branch %d",
				ErrTraceDivergence, s.depth, n, c.branch)
		}
		s.depth++
		return c.branch, nil
	}
	s.stack = append(s.stack, dfsChoice{limit: n})
	s.depth++
	return 0, nil
}

func (s *DFSStrategy) NextOperation(enabled []Operation, _ *Trace) (Operation, error) {
	idx, err := s.decide(len(enabled))
	if err != nil {
		return nil, err
	}
	return enabled[idx], nil
}

func (s *DFSStrategy) NextBoolean() (bool, error) {
	idx, err := s.decide(2)
	return idx == 1, err
}

func (s *DFSStrategy) NextInteger(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	// The branch fan-out is capped so the conversion stays safe on 32-bit
	// platforms.
	if max > math.MaxInt32 {
		max = math.MaxInt32
	}
	idx, err := s.decide(int(max))
	return int64(idx), err
}
