package runtime

import "math/rand"

// PCTStrategy implements probabilistic concurrency testing: every operation
// gets a random priority on first sight, the highest-priority enabled
// operation always runs, and at a handful of randomly placed change points
// the running operation's priority is demoted below everyone else's. With d
// change points the strategy finds any bug of depth d with provable
// probability, which in practice beats uniform random walks.
type PCTStrategy struct {
	seed         int64
	rng          *rand.Rand
	changePoints int

	priorities   map[uint64]int
	changeSteps  map[int]bool
	lowestSoFar  int
	step         int
	lastRunSteps int
}

// NewPCTStrategy creates a priority-based strategy with the given number of
// priority change points per iteration.
func NewPCTStrategy(seed int64, changePoints int) *PCTStrategy {
	if changePoints < 1 {
		changePoints = 1
	}
	s := &PCTStrategy{
		seed:         seed,
		changePoints: changePoints,
	}
	s.reset(rand.New(rand.NewSource(seed)))
	return s
}

func (s *PCTStrategy) Name() string { return "pct" }

func (s *PCTStrategy) reset(rng *rand.Rand) {
	s.rng = rng
	s.priorities = make(map[uint64]int)
	s.changeSteps = make(map[int]bool)
	s.lowestSoFar = 0
	s.step = 0

	// Change points are sampled over the previous iteration's length; the
	// first iteration has nothing to go on and uses a small default horizon.
	horizon := s.lastRunSteps
	if horizon < 1 {
		horizon = 16
	}
	for i := 0; i < s.changePoints; i++ {
		s.changeSteps[s.rng.Intn(horizon)] = true
	}
}

func (s *PCTStrategy) InitializeNextIteration(iteration uint64) bool {
	s.lastRunSteps = s.step
	s.reset(rand.New(rand.NewSource(s.seed + int64(iteration))))
	return true
}

func (s *PCTStrategy) NextOperation(enabled []Operation, _ *Trace) (Operation, error) {
	for _, op := range enabled {
		if _, ok := s.priorities[op.ID()]; !ok {
			s.priorities[op.ID()] = s.rng.Intn(1 << 16)
		}
	}

	chosen := s.highestPriority(enabled)
	if s.changeSteps[s.step] {
		s.lowestSoFar--
		s.priorities[chosen.ID()] = s.lowestSoFar
		chosen = s.highestPriority(enabled)
	}
	s.step++
	return chosen, nil
}

func (s *PCTStrategy) highestPriority(enabled []Operation) Operation {
	chosen := enabled[0]
	for _, op := range enabled[1:] {
		if s.priorities[op.ID()] > s.priorities[chosen.ID()] {
			chosen = op
		}
	}
	return chosen
}

func (s *PCTStrategy) NextBoolean() (bool, error) {
	return s.rng.Intn(2) == 1, nil
}

func (s *PCTStrategy) NextInteger(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	return s.rng.Int63n(max), nil
}
