// Social-control game — public goods with an inspector role, audits of
// defectors, and mutation.
package engine

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/talgya/evosim/internal/agents"
)

// SocialParams configure the social-control variant.
type SocialParams struct {
	Alpha    float64 `json:"alpha" yaml:"alpha"`       // Chance an inspector audits in a round
	Gamma    float64 `json:"gamma" yaml:"gamma"`       // Penalty multiplier on a caught defector
	Delta    float64 `json:"delta" yaml:"delta"`       // Reward multiplier for the inspector
	Mutation float64 `json:"mutation" yaml:"mutation"` // Per-agent mutation probability
}

// DefaultSocialParams returns the usual settings.
func DefaultSocialParams() SocialParams {
	return SocialParams{Alpha: 0.5, Gamma: 1.0, Delta: 0, Mutation: 0.01}
}

// Validate checks parameter ranges.
func (p SocialParams) Validate() error {
	for _, c := range []struct {
		name    string
		v, upto float64
	}{
		{"alpha", p.Alpha, 1},
		{"gamma", p.Gamma, math.Inf(1)},
		{"delta", p.Delta, math.Inf(1)},
		{"mutation", p.Mutation, 1},
	} {
		if !(c.v >= 0 && c.v <= c.upto) || math.IsInf(c.v, 0) {
			return fmt.Errorf("%w: %s out of range: %g", agents.ErrConfiguration, c.name, c.v)
		}
	}
	return nil
}

// SocialControl is the well-mixed public goods game where any agent may also
// hold the inspector role. Roles and actions spread together by imitation.
type SocialControl struct {
	base
	social SocialParams

	d, c       float64
	defectors  []*agents.Agent
	inspectors []*agents.Agent
}

// NewSocialControl builds the social-control variant.
func NewSocialControl(pop *agents.Population, params Params, social SocialParams, rng *rand.Rand, opts Options) (*SocialControl, error) {
	if err := social.Validate(); err != nil {
		return nil, err
	}
	b, err := newBase(VariantSocialControl, pop, params, rng, opts)
	if err != nil {
		return nil, err
	}
	return &SocialControl{base: b, social: social}, nil
}

// Social returns the social-control parameters.
func (g *SocialControl) Social() SocialParams { return g.social }

// NormFactor returns 1/(maxP-minP) as used by selection.
func (g *SocialControl) NormFactor() float64 {
	a := g.pop.Agents[0]
	return 1 / (a.MaxP - a.MinP)
}

// InitGame sets bounds: the best case is a lone defector that also collects
// the full inspection reward, the worst a lone cooperator.
func (g *SocialControl) InitGame() error {
	if err := g.beginInit(); err != nil {
		return err
	}
	if err := g.social.Validate(); err != nil {
		return err
	}
	n := g.pop.Len()
	d, _ := PublicGoods(n-1, 0, n, g.params.R, g.params.Cost)
	_, c := PublicGoods(1, 0, n, g.params.R, g.params.Cost)
	if err := setBounds(g.pop, (1+g.social.Delta)*d, c); err != nil {
		return fmt.Errorf("%s: %w", g.name, err)
	}
	g.defectors, g.inspectors = nil, nil
	g.finishInit()
	g.roleCensus()
	return nil
}

// InitPopulation splits the population into the four cohorts. Agents are
// ranked by their layout draw, so a clustered layout keeps cohorts together.
// DNI, CNI and DI get floor(N*fraction) agents each; CI takes the rest.
func (g *SocialControl) InitPopulation(mix Mix) error {
	if g.state != StateInitialized {
		return fmt.Errorf("%s: init population: %w (state %s)", g.name, ErrNotInitialized, g.state)
	}
	if mix.Cohorts == nil {
		return fmt.Errorf("%w: %s needs cohort fractions", agents.ErrConfiguration, g.name)
	}
	co := *mix.Cohorts
	if err := co.Validate(); err != nil {
		return err
	}

	n := g.pop.Len()
	vals := g.layout.Values(n, g.rng)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return vals[order[i]] < vals[order[j]] })

	dni := int(math.Floor(float64(n) * co.DNI))
	cni := int(math.Floor(float64(n) * co.CNI))
	di := int(math.Floor(float64(n) * co.DI))
	cohorts := []struct {
		count     int
		action    agents.Action
		inspector bool
	}{
		{dni, agents.Defect, false},
		{cni, agents.Cooperate, false},
		{di, agents.Defect, true},
		{n - dni - cni - di, agents.Cooperate, true},
	}

	pos := 0
	for _, ch := range cohorts {
		for k := 0; k < ch.count; k++ {
			a := g.pop.Agents[order[pos]]
			a.Init(ch.action)
			a.Inspector = ch.inspector
			a.PrevInspector = ch.inspector
			pos++
		}
	}
	g.roleCensus()
	g.populated = true
	return nil
}

func (g *SocialControl) Run() error {
	return g.run(g)
}

// roleCensus rebuilds the defector and inspector lists in id order and
// counts inspectors by role.
func (g *SocialControl) roleCensus() Census {
	g.defectors = g.defectors[:0]
	g.inspectors = g.inspectors[:0]
	g.nc, g.ni = 0, 0
	for _, a := range g.pop.Agents {
		if a.Action == agents.Cooperate {
			g.nc++
		} else {
			g.defectors = append(g.defectors, a)
		}
		if a.Inspector {
			g.ni++
			g.inspectors = append(g.inspectors, a)
		}
	}
	return Census{Size: g.pop.Len(), Cooperators: g.nc, Inspectors: g.ni}
}

// Defectors returns the current defector list.
func (g *SocialControl) Defectors() []*agents.Agent { return g.defectors }

// Inspectors returns the current inspector list.
func (g *SocialControl) Inspectors() []*agents.Agent { return g.inspectors }

func (g *SocialControl) PayoffPhase() error {
	g.d, g.c = PublicGoods(g.nc, 0, g.pop.Len(), g.params.R, g.params.Cost)
	for _, a := range g.pop.Agents {
		p, err := payoffFor(a.Action, g.d, g.c)
		if err != nil {
			return fmt.Errorf("agent %d: %w", a.ID, err)
		}
		a.ConsumePayoff(p)
	}
	return nil
}

// InspectionPhase lets each inspector, with probability alpha, audit a random
// defector. A defector pays the penalty once per round however many audits
// hit it; the inspector is rewarded for every audit.
func (g *SocialControl) InspectionPhase() error {
	if len(g.defectors) == 0 {
		return nil
	}
	penalty := g.social.Gamma * g.d
	reward := g.social.Delta * g.d
	for _, insp := range g.inspectors {
		if g.rng.Float64() >= g.social.Alpha {
			continue
		}
		target := g.defectors[g.rng.Intn(len(g.defectors))]
		if !target.Inspected {
			target.MarkInspected(penalty)
		}
		insp.Credit(reward)
	}
	return nil
}

// SelectionPhase copies action and role from a better-off random agent, then
// applies mutation.
func (g *SocialControl) SelectionPhase() error {
	g.snapshot()
	for _, a := range g.pop.Agents {
		ref := g.pickUniform()
		ok, err := agents.Imitate(a, ref, g.rng)
		if err != nil {
			return err
		}
		if ok {
			a.Action = ref.PrevAction
			a.Inspector = ref.PrevInspector
		}
		g.mutate(a)
	}
	return nil
}

// mutate flips the action, the role, or both, each a third of the time.
func (g *SocialControl) mutate(a *agents.Agent) {
	if g.rng.Float64() >= g.social.Mutation {
		return
	}
	switch pc := g.rng.Float64(); {
	case pc < 1.0/3:
		a.Action = a.Action.Flip()
	case pc < 2.0/3:
		a.Inspector = !a.Inspector
	default:
		a.Action = a.Action.Flip()
		a.Inspector = !a.Inspector
	}
}

func (g *SocialControl) Bookkeeping() Census {
	for _, a := range g.pop.Agents {
		a.ResetRound()
	}
	return g.roleCensus()
}
