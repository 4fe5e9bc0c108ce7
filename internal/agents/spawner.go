// Agent spawning — creates the population with its strategy mix.
package agents

import (
	"fmt"
	"math"
)

// Share is the fraction of the population that plays one strategy.
type Share struct {
	Strategy string  `json:"strategy" yaml:"strategy"`
	Ratio    float64 `json:"ratio" yaml:"ratio"`
}

// Spawner creates agents for a run.
type Spawner struct {
	nextID     AgentID
	aspiration AspirationParams
}

// NewSpawner creates a spawner. Aspiration params apply to "aspiration" agents.
func NewSpawner(aspiration AspirationParams) *Spawner {
	return &Spawner{aspiration: aspiration}
}

// SpawnPopulation creates n agents with ids 0..n-1. Each share gets
// floor(ratio*n) agents in the listed order; the flooring remainder goes to
// the last share so that the population always has exactly n agents.
func (s *Spawner) SpawnPopulation(n int, shares []Share) (*Population, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: population size must be positive, got %d", ErrConfiguration, n)
	}
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no strategy shares given", ErrConfiguration)
	}

	sum := 0.0
	for _, sh := range shares {
		if sh.Ratio < 0 || sh.Ratio > 1 || math.IsNaN(sh.Ratio) {
			return nil, fmt.Errorf("%w: ratio for %q must be in [0,1], got %g", ErrConfiguration, sh.Strategy, sh.Ratio)
		}
		sum += sh.Ratio
	}
	if math.Abs(sum-1) > 1e-9 {
		return nil, fmt.Errorf("%w: strategy ratios sum to %g, want 1", ErrConfiguration, sum)
	}
	if err := s.aspiration.Validate(); err != nil {
		return nil, err
	}

	s.nextID = 0
	agents := make([]*Agent, 0, n)
	for i, sh := range shares {
		count := int(math.Floor(sh.Ratio * float64(n)))
		if i == len(shares)-1 {
			count = n - len(agents)
		}
		for j := 0; j < count; j++ {
			a, err := s.spawnOne(sh.Strategy)
			if err != nil {
				return nil, err
			}
			agents = append(agents, a)
		}
	}

	return NewPopulation(agents)
}

func (s *Spawner) spawnOne(name string) (*Agent, error) {
	strat, err := NewStrategy(name, s.aspiration)
	if err != nil {
		return nil, err
	}
	id := s.nextID
	s.nextID++
	return &Agent{
		ID:       id,
		Action:   Cooperate,
		Strategy: strat,
	}, nil
}
