// Networked public goods game with inspectors, played on ego-networks.
package engine

import (
	"fmt"
	"math/rand"

	"github.com/talgya/evosim/internal/agents"
	"github.com/talgya/evosim/internal/network"
)

// egoGroup is the payoff context of one ego-network kept for inspection.
type egoGroup struct {
	members    []*agents.Agent
	inspectors []*agents.Agent
	share      float64 // Defector payoff in this group
}

// NetworkGame plays one public goods game per agent, over the agent and its
// neighbors. Fitness is the sum over every group an agent belongs to and is
// reset each generation.
type NetworkGame struct {
	base

	earned []float64  // Per-agent group payoffs for the current round
	groups []egoGroup // Groups that hold inspectors and a pot
}

// NewNetworkGame builds the network variant over an already wired population.
func NewNetworkGame(pop *agents.Population, params Params, rng *rand.Rand, opts Options) (*NetworkGame, error) {
	b, err := newBase(VariantNetwork, pop, params, rng, opts)
	if err != nil {
		return nil, err
	}
	return &NetworkGame{base: b, earned: make([]float64, pop.Len())}, nil
}

// InitGame validates the topology and recomputes ego-network bounds from the
// current r.
func (g *NetworkGame) InitGame() error {
	if err := g.beginInit(); err != nil {
		return err
	}
	if err := g.requireStrategies(); err != nil {
		return err
	}
	if err := network.Validate(g.pop); err != nil {
		return fmt.Errorf("%s: %w", g.name, err)
	}

	r, cost := g.params.R, g.params.Cost
	for _, a := range g.pop.Agents {
		if len(a.Neighbors) == 0 {
			return fmt.Errorf("%w: agent %d has no neighbors", agents.ErrEmptyGroup, a.ID)
		}
		k := len(a.Neighbors)
		maxP, minP := LocalMax(k, r, cost), LocalMin(k, r, cost)
		for _, nb := range g.pop.Neighbors(a) {
			kn := len(nb.Neighbors)
			maxP += LocalMax(kn, r, cost)
			minP += LocalMin(kn, r, cost)
		}
		if maxP == minP {
			return fmt.Errorf("%s: agent %d: %w: maxP == minP == %g",
				g.name, a.ID, agents.ErrDegenerateNormalization, maxP)
		}
		a.MaxP, a.MinP = maxP, minP
	}

	g.finishInit()
	return nil
}

func (g *NetworkGame) InitPopulation(mix Mix) error {
	return g.assignActions(mix, true)
}

func (g *NetworkGame) Run() error {
	return g.run(g)
}

// PayoffPhase plays every ego-network in center id order.
func (g *NetworkGame) PayoffPhase() error {
	for i := range g.earned {
		g.earned[i] = 0
	}
	g.groups = g.groups[:0]

	r, cost := g.params.R, g.params.Cost
	for _, center := range g.pop.Agents {
		members := append([]*agents.Agent{center}, g.pop.Neighbors(center)...)

		nc, ni := 0, 0
		var inspectors []*agents.Agent
		for _, m := range members {
			switch m.Action {
			case agents.Cooperate:
				nc++
			case agents.Defect:
			case agents.Inspect:
				ni++
				inspectors = append(inspectors, m)
			default:
				return fmt.Errorf("%w: agent %d plays %s", agents.ErrInvalidAction, m.ID, m.Action)
			}
		}
		if nc == 0 {
			continue
		}

		d, c := PublicGoods(nc, ni, len(members), r, cost)
		for _, m := range members {
			switch m.Action {
			case agents.Cooperate:
				g.earned[m.ID] += c
			case agents.Defect:
				g.earned[m.ID] += d
			}
		}
		if ni > 0 {
			g.groups = append(g.groups, egoGroup{members: members, inspectors: inspectors, share: d})
		}
	}

	for _, a := range g.pop.Agents {
		a.ConsumePayoff(g.earned[a.ID])
	}
	return nil
}

// InspectionPhase runs each group's audits. Inspectors that catch the same
// defector split one reward between them.
func (g *NetworkGame) InspectionPhase() error {
	for _, grp := range g.groups {
		var eligible []*agents.Agent
		for _, m := range grp.members {
			if m.Action != agents.Inspect {
				eligible = append(eligible, m)
			}
		}
		if len(eligible) == 0 {
			return fmt.Errorf("%w: group of agent %d has no one to inspect", agents.ErrEmptyGroup, grp.members[0].ID)
		}

		targets := make([]*agents.Agent, len(grp.inspectors))
		catches := make(map[agents.AgentID]int)
		for i := range grp.inspectors {
			t := eligible[g.rng.Intn(len(eligible))]
			targets[i] = t
			if t.Action == agents.Defect {
				catches[t.ID]++
			}
		}

		for i, insp := range grp.inspectors {
			t := targets[i]
			if t.Action != agents.Defect {
				continue
			}
			reward := g.params.Nu * grp.share / float64(catches[t.ID])
			insp.Credit(reward)
			t.MarkInspected(reward)
		}
	}
	return nil
}

func (g *NetworkGame) SelectionPhase() error {
	g.snapshot()
	for _, a := range g.pop.Agents {
		pick := func() *agents.Agent {
			if len(a.Neighbors) == 0 {
				return nil
			}
			return g.pop.Get(a.Neighbors[g.rng.Intn(len(a.Neighbors))])
		}
		if err := a.Strategy.Update(a, pick, g.rng); err != nil {
			return err
		}
	}
	return nil
}

func (g *NetworkGame) Bookkeeping() Census {
	for _, a := range g.pop.Agents {
		a.ResetRound()
		a.ResetFitness()
	}
	return g.census()
}
