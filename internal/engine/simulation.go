// Game lifecycle shared by every variant.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/talgya/evosim/internal/agents"
)

// ErrNotInitialized is returned when a lifecycle call comes out of order.
var ErrNotInitialized = errors.New("game not initialized")

// State is the position of a game in its lifecycle.
type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Game is the callable surface of every variant.
type Game interface {
	Name() string
	State() State

	// InitGame computes normalization bounds and resets aggregates and series.
	InitGame() error
	// InitPopulation assigns starting actions from the mix. Repeatable.
	InitPopulation(mix Mix) error
	// Run executes threshold+generations rounds.
	Run() error

	CoopLevel() []float64
	InspLevel() []float64
	Population() *agents.Population

	Return() float64
	SetReturn(r float64)
}

// Params are the scalar parameters shared by every variant.
type Params struct {
	Threshold   int     `json:"threshold" yaml:"threshold"`
	Generations int     `json:"generations" yaml:"generations"`
	Cost        float64 `json:"cost" yaml:"cost"`
	R           float64 `json:"r" yaml:"r"`
	Nu          float64 `json:"nu" yaml:"nu"`
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	switch {
	case p.Threshold < 0:
		return fmt.Errorf("%w: threshold must be >= 0, got %d", agents.ErrConfiguration, p.Threshold)
	case p.Generations <= 0:
		return fmt.Errorf("%w: generations must be > 0, got %d", agents.ErrConfiguration, p.Generations)
	case !(p.Cost > 0) || math.IsInf(p.Cost, 0):
		return fmt.Errorf("%w: cost must be > 0, got %g", agents.ErrConfiguration, p.Cost)
	case !(p.R >= 0) || math.IsInf(p.R, 0):
		return fmt.Errorf("%w: r must be >= 0, got %g", agents.ErrConfiguration, p.R)
	case !(p.Nu >= 0) || math.IsInf(p.Nu, 0):
		return fmt.Errorf("%w: nu must be >= 0, got %g", agents.ErrConfiguration, p.Nu)
	}
	return nil
}

// Cohorts are the four starting groups of the social-control variant:
// cooperators or defectors, each with or without the inspector role.
type Cohorts struct {
	CI  float64 `json:"ci" yaml:"ci"`
	CNI float64 `json:"cni" yaml:"cni"`
	DI  float64 `json:"di" yaml:"di"`
	DNI float64 `json:"dni" yaml:"dni"`
}

// Mix gives the starting composition of the population as fractions of N.
type Mix struct {
	Cooperators float64  `json:"cooperators" yaml:"cooperators"`
	Inspectors  float64  `json:"inspectors" yaml:"inspectors"`
	Cohorts     *Cohorts `json:"cohorts,omitempty" yaml:"cohorts,omitempty"`
}

const fractionSlack = 1e-9

func checkFractions(names []string, vals []float64) error {
	sum := 0.0
	for i, v := range vals {
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("%w: fraction %s must be in [0,1], got %g", agents.ErrConfiguration, names[i], v)
		}
		sum += v
	}
	if sum > 1+fractionSlack {
		return fmt.Errorf("%w: fractions sum to %g, must be <= 1", agents.ErrConfiguration, sum)
	}
	return nil
}

// Validate checks the cooperator/inspector fractions.
func (m Mix) Validate() error {
	return checkFractions([]string{"cooperators", "inspectors"}, []float64{m.Cooperators, m.Inspectors})
}

// Validate checks the four cohort fractions.
func (c Cohorts) Validate() error {
	return checkFractions([]string{"ci", "cni", "di", "dni"}, []float64{c.CI, c.CNI, c.DI, c.DNI})
}

// Options tune a game beyond its parameters.
type Options struct {
	Layout  agents.Layout             // Starting-action draws; uniform when nil
	OnRound func(round int, c Census) // Called after every round
}

// base carries the state every variant shares.
type base struct {
	name      string
	pop       *agents.Population
	rng       *rand.Rand
	layout    agents.Layout
	params    Params
	onRound   func(round int, c Census)
	series    Series
	state     State
	populated bool

	nc int // Current cooperators
	ni int // Current inspectors
}

func newBase(name string, pop *agents.Population, params Params, rng *rand.Rand, opts Options) (base, error) {
	if pop == nil || pop.Len() == 0 {
		return base{}, fmt.Errorf("%w: %s needs a non-empty population", agents.ErrConfiguration, name)
	}
	if rng == nil {
		return base{}, fmt.Errorf("%w: %s needs a random source", agents.ErrConfiguration, name)
	}
	if err := params.Validate(); err != nil {
		return base{}, err
	}
	layout := opts.Layout
	if layout == nil {
		layout = agents.UniformLayout{}
	}
	return base{
		name:    name,
		pop:     pop,
		rng:     rng,
		layout:  layout,
		params:  params,
		onRound: opts.OnRound,
	}, nil
}

func (b *base) Name() string                   { return b.name }
func (b *base) State() State                   { return b.state }
func (b *base) Population() *agents.Population { return b.pop }
func (b *base) CoopLevel() []float64           { return b.series.Coop }
func (b *base) InspLevel() []float64           { return b.series.Insp }
func (b *base) Return() float64                { return b.params.R }

// SetReturn changes r for the next InitGame. Bounds are recomputed there.
func (b *base) SetReturn(r float64) { b.params.R = r }

// beginInit validates parameters and clears the series. The caller computes
// bounds and then calls finishInit.
func (b *base) beginInit() error {
	if b.state == StateRunning {
		return fmt.Errorf("%s: cannot init while running", b.name)
	}
	if err := b.params.Validate(); err != nil {
		return err
	}
	b.series = NewSeries(b.params.Threshold, b.params.Generations)
	b.populated = false
	return nil
}

func (b *base) finishInit() {
	b.census()
	b.state = StateInitialized
}

func (b *base) requireStrategies() error {
	for _, a := range b.pop.Agents {
		if a.Strategy == nil {
			return fmt.Errorf("%w: agent %d has no strategy", agents.ErrConfiguration, a.ID)
		}
	}
	return nil
}

// assignActions draws one layout value per agent: below Cooperators means
// C, below Cooperators+Inspectors means I, otherwise D.
func (b *base) assignActions(mix Mix, inspection bool) error {
	if b.state != StateInitialized {
		return fmt.Errorf("%s: init population: %w (state %s)", b.name, ErrNotInitialized, b.state)
	}
	if err := mix.Validate(); err != nil {
		return err
	}
	if mix.Inspectors > 0 && !inspection {
		return fmt.Errorf("%w: %s has no inspectors, got inspector fraction %g",
			agents.ErrConfiguration, b.name, mix.Inspectors)
	}

	vals := b.layout.Values(b.pop.Len(), b.rng)
	for i, a := range b.pop.Agents {
		action := agents.Defect
		switch u := vals[i]; {
		case u < mix.Cooperators:
			action = agents.Cooperate
		case u < mix.Cooperators+mix.Inspectors:
			action = agents.Inspect
		}
		a.Init(action)
	}
	b.census()
	b.populated = true
	return nil
}

// census recounts nc and ni from current actions.
func (b *base) census() Census {
	b.nc, b.ni = 0, 0
	for _, a := range b.pop.Agents {
		switch a.Action {
		case agents.Cooperate:
			b.nc++
		case agents.Inspect:
			b.ni++
		}
	}
	return Census{Size: b.pop.Len(), Cooperators: b.nc, Inspectors: b.ni}
}

// run drives p through the loop and moves the game to Finished.
func (b *base) run(p Phases) error {
	if b.state != StateInitialized || !b.populated {
		return fmt.Errorf("%s: run: %w (state %s, populated %t)", b.name, ErrNotInitialized, b.state, b.populated)
	}
	b.state = StateRunning
	slog.Debug("game started", "game", b.name, "agents", b.pop.Len(),
		"r", b.params.R, "rounds", b.params.Threshold+b.params.Generations)

	loop := Loop{Threshold: b.params.Threshold, Generations: b.params.Generations, OnRound: b.onRound}
	err := loop.Run(p, &b.series)
	b.state = StateFinished
	if err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}

	slog.Debug("game finished", "game", b.name, "ncoop", b.nc, "ninsp", b.ni)
	return nil
}

// pickUniform draws any agent of the population.
func (b *base) pickUniform() *agents.Agent {
	return b.pop.Agents[b.rng.Intn(b.pop.Len())]
}

// pickOther draws any agent except self.
func (b *base) pickOther(self agents.AgentID) *agents.Agent {
	for {
		a := b.pickUniform()
		if a.ID != self {
			return a
		}
	}
}

// snapshot freezes current actions and roles before selection.
func (b *base) snapshot() {
	for _, a := range b.pop.Agents {
		a.PrevAction = a.Action
		a.PrevInspector = a.Inspector
	}
}
