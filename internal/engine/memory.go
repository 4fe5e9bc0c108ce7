// Memory game — agents react to their own last payoff against the population mean.
package engine

import (
	"fmt"
	"math/rand"

	"github.com/talgya/evosim/internal/agents"
)

// MemoryGame is the well-mixed game for tit-for-tat, Pavlov and random
// players. Each round every agent first picks its move from its last payoff
// and the previous round's mean payoff, then all are paid by the rule.
// Strategies with a learning rule also update against a random reference.
type MemoryGame struct {
	base
	rule PayoffRule

	avg float64 // Mean payoff of the previous round
}

// NewMemoryGame builds the memory variant. A nil rule means PGG with the
// game's r and cost.
func NewMemoryGame(pop *agents.Population, params Params, rule PayoffRule, rng *rand.Rand, opts Options) (*MemoryGame, error) {
	b, err := newBase(VariantMemory, pop, params, rng, opts)
	if err != nil {
		return nil, err
	}
	return &MemoryGame{base: b, rule: rule}, nil
}

// Rule returns the payoff rule in use.
func (g *MemoryGame) Rule() PayoffRule {
	if g.rule == nil {
		return PGG{R: g.params.R, Cost: g.params.Cost}
	}
	if _, ok := g.rule.(PGG); ok {
		// Follow SetReturn.
		return PGG{R: g.params.R, Cost: g.params.Cost}
	}
	return g.rule
}

func (g *MemoryGame) InitGame() error {
	if err := g.beginInit(); err != nil {
		return err
	}
	if err := g.requireStrategies(); err != nil {
		return err
	}
	n := g.pop.Len()
	if n < 2 {
		return fmt.Errorf("%w: %s needs at least 2 agents, got %d", agents.ErrConfiguration, g.name, n)
	}
	maxP, minP := g.Rule().Bounds(n)
	if err := setBounds(g.pop, maxP, minP); err != nil {
		return fmt.Errorf("%s: %w", g.name, err)
	}
	g.avg = 0
	g.finishInit()
	return nil
}

func (g *MemoryGame) InitPopulation(mix Mix) error {
	g.avg = 0
	return g.assignActions(mix, false)
}

func (g *MemoryGame) Run() error {
	return g.run(g)
}

// AvgPayoff returns the mean payoff of the last completed round.
func (g *MemoryGame) AvgPayoff() float64 { return g.avg }

func (g *MemoryGame) PayoffPhase() error {
	nc := 0
	for _, a := range g.pop.Agents {
		switch a.Strategy.Play(a, g.avg, g.rng) {
		case agents.Cooperate:
			nc++
		case agents.Defect:
		default:
			return fmt.Errorf("%w: agent %d plays %s in %s", agents.ErrInvalidAction, a.ID, a.Action, g.name)
		}
	}

	n := g.pop.Len()
	d, c := g.Rule().Payoffs(nc, n)
	sum := 0.0
	for _, a := range g.pop.Agents {
		p, err := payoffFor(a.Action, d, c)
		if err != nil {
			return err
		}
		a.ConsumePayoff(p)
		sum += p
	}
	g.avg = sum / float64(n)
	return nil
}

func (g *MemoryGame) InspectionPhase() error { return nil }

func (g *MemoryGame) SelectionPhase() error {
	g.snapshot()
	for _, a := range g.pop.Agents {
		if err := a.Strategy.Update(a, g.pickUniform, g.rng); err != nil {
			return err
		}
	}
	return nil
}

func (g *MemoryGame) Bookkeeping() Census {
	for _, a := range g.pop.Agents {
		a.ResetRound()
	}
	return g.census()
}
