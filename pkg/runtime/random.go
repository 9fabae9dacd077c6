package runtime

import "math/rand"

// RandomStrategy picks uniformly among the enabled operations at every
// scheduling point. Each iteration reseeds from the base seed so that any
// single iteration can be reproduced from (seed, iteration) alone.
type RandomStrategy struct {
	seed int64
	rng  *rand.Rand
}

// NewRandomStrategy creates a uniform-random strategy.
// Use the same seed for reproducibility.
func NewRandomStrategy(seed int64) *RandomStrategy {
	return &RandomStrategy{seed: seed, rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomStrategy) Name() string { return "random" }

func (s *RandomStrategy) InitializeNextIteration(iteration uint64) bool {
	s.rng = rand.New(rand.NewSource(s.seed + int64(iteration)))
	return true
}

func (s *RandomStrategy) NextOperation(enabled []Operation, _ *Trace) (Operation, error) {
	return enabled[s.rng.Intn(len(enabled))], nil
}

func (s *RandomStrategy) NextBoolean() (bool, error) {
	return s.rng.Intn(2) == 1, nil
}

func (s *RandomStrategy) NextInteger(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	return s.rng.Int63n(max), nil
}
