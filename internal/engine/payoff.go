// Payoff functions for the social dilemmas.
package engine

import (
	"fmt"

	"github.com/talgya/evosim/internal/agents"
)

// PublicGoods returns the defector and cooperator payoffs of a public goods
// game with nc cooperators and ni inspectors in a group of n. Inspectors do
// not share in the pot, so the denominator is n-ni.
func PublicGoods(nc, ni, n int, r, cost float64) (d, c float64) {
	if nc == 0 || n-ni <= 0 {
		return 0, -cost
	}
	d = float64(nc) * r * cost / float64(n-ni)
	return d, d - cost
}

// LocalMax is the best payoff an agent with k neighbors can earn in its own
// ego-network: defecting among k cooperators.
func LocalMax(k int, r, cost float64) float64 {
	return r * cost * float64(k) / float64(k+1)
}

// LocalMin is the worst: the lone cooperator among k defectors.
func LocalMin(k int, r, cost float64) float64 {
	return (r/float64(k+1) - 1) * cost
}

// PayoffRule maps a cooperator count to round payoffs.
type PayoffRule interface {
	Name() string
	Payoffs(nc, n int) (d, c float64)
	// Bounds returns the best and worst payoff over all counts.
	Bounds(n int) (maxP, minP float64)
}

// Payoff rule names.
const (
	RuleNIPD = "nipd"
	RulePGG  = "pgg"
)

// NIPD is the N-person prisoner's dilemma with the standard 5/3/1/0 matrix
// averaged over the other n-1 players.
type NIPD struct{}

func (NIPD) Name() string { return RuleNIPD }

func (NIPD) Payoffs(nc, n int) (d, c float64) {
	others := float64(n - 1)
	d = (5*float64(nc) + float64(n-nc-1)) / others
	c = 3 * float64(nc-1) / others
	return d, c
}

func (r NIPD) Bounds(n int) (maxP, minP float64) {
	maxP, _ = r.Payoffs(n-1, n)
	_, minP = r.Payoffs(1, n)
	return maxP, minP
}

// PGG is the well-mixed public goods game without inspectors.
type PGG struct {
	R    float64
	Cost float64
}

func (PGG) Name() string { return RulePGG }

func (p PGG) Payoffs(nc, n int) (d, c float64) {
	return PublicGoods(nc, 0, n, p.R, p.Cost)
}

func (p PGG) Bounds(n int) (maxP, minP float64) {
	maxP, _ = p.Payoffs(n-1, n)
	_, minP = p.Payoffs(1, n)
	return maxP, minP
}

// NewPayoffRule builds a rule by name.
func NewPayoffRule(name string, r, cost float64) (PayoffRule, error) {
	switch name {
	case RuleNIPD:
		return NIPD{}, nil
	case RulePGG, "":
		return PGG{R: r, Cost: cost}, nil
	default:
		return nil, fmt.Errorf("%w: unknown payoff rule %q", agents.ErrConfiguration, name)
	}
}

// payoffFor picks the payoff matching a C/D action.
func payoffFor(a agents.Action, d, c float64) (float64, error) {
	switch a {
	case agents.Cooperate:
		return c, nil
	case agents.Defect:
		return d, nil
	default:
		return 0, fmt.Errorf("%w: %s", agents.ErrInvalidAction, a)
	}
}

// setBounds stores normalization bounds on every agent.
func setBounds(pop *agents.Population, maxP, minP float64) error {
	if maxP == minP {
		return fmt.Errorf("%w: maxP == minP == %g", agents.ErrDegenerateNormalization, maxP)
	}
	for _, a := range pop.Agents {
		a.MaxP, a.MinP = maxP, minP
	}
	return nil
}
