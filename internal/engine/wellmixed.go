// Well-mixed public goods game, with or without inspectors.
package engine

import (
	"fmt"
	"math/rand"

	"github.com/talgya/evosim/internal/agents"
)

// Variant names.
const (
	VariantPGG           = "pgg"
	VariantPGGI          = "pggi"
	VariantNetwork       = "network"
	VariantSocialControl = "social-control"
	VariantMemory        = "memory"
)

// WellMixed plays one public goods game over the whole population per round.
// Payoffs accumulate over the run and selection compares accumulated totals.
type WellMixed struct {
	base
	inspection bool

	d, c float64 // This round's defector and cooperator payoffs
}

// NewWellMixed builds the pgg variant, or pggi when inspection is set.
func NewWellMixed(pop *agents.Population, params Params, inspection bool, rng *rand.Rand, opts Options) (*WellMixed, error) {
	name := VariantPGG
	if inspection {
		name = VariantPGGI
	}
	b, err := newBase(name, pop, params, rng, opts)
	if err != nil {
		return nil, err
	}
	return &WellMixed{base: b, inspection: inspection}, nil
}

func (g *WellMixed) InitGame() error {
	if err := g.beginInit(); err != nil {
		return err
	}
	if err := g.requireStrategies(); err != nil {
		return err
	}
	n := g.pop.Len()
	if g.inspection && n < 2 {
		return fmt.Errorf("%w: %s needs at least 2 agents, got %d", agents.ErrConfiguration, g.name, n)
	}

	maxP, _ := PublicGoods(n-1, 0, n, g.params.R, g.params.Cost)
	_, minP := PublicGoods(1, 0, n, g.params.R, g.params.Cost)
	if err := setBounds(g.pop, maxP, minP); err != nil {
		return fmt.Errorf("%s: %w", g.name, err)
	}

	g.finishInit()
	return nil
}

func (g *WellMixed) InitPopulation(mix Mix) error {
	return g.assignActions(mix, g.inspection)
}

func (g *WellMixed) Run() error {
	return g.run(g)
}

func (g *WellMixed) PayoffPhase() error {
	n := g.pop.Len()
	g.d, g.c = PublicGoods(g.nc, g.ni, n, g.params.R, g.params.Cost)

	for _, a := range g.pop.Agents {
		var p float64
		switch a.Action {
		case agents.Cooperate:
			p = g.c
		case agents.Defect:
			p = g.d
		case agents.Inspect:
			if !g.inspection {
				return fmt.Errorf("%w: agent %d plays %s in %s", agents.ErrInvalidAction, a.ID, a.Action, g.name)
			}
		default:
			return fmt.Errorf("%w: agent %d plays %s", agents.ErrInvalidAction, a.ID, a.Action)
		}
		if g.nc == 0 {
			p = 0
		}
		a.ConsumePayoff(p)
	}
	return nil
}

// InspectionPhase lets every inspector audit one random other agent.
// Skipped when nobody cooperated, since there is no pot to take from.
func (g *WellMixed) InspectionPhase() error {
	if !g.inspection || g.nc == 0 || g.ni == 0 {
		return nil
	}
	reward := g.params.Nu * g.d
	for _, a := range g.pop.Agents {
		if a.Action != agents.Inspect {
			continue
		}
		target := g.pickOther(a.ID)
		if target.Action != agents.Defect {
			continue
		}
		a.Credit(reward)
		target.MarkInspected(reward)
	}
	return nil
}

func (g *WellMixed) SelectionPhase() error {
	g.snapshot()
	pick := g.pickUniform
	for _, a := range g.pop.Agents {
		if err := a.Strategy.Update(a, pick, g.rng); err != nil {
			return err
		}
	}
	return nil
}

func (g *WellMixed) Bookkeeping() Census {
	for _, a := range g.pop.Agents {
		a.ResetRound()
	}
	return g.census()
}
