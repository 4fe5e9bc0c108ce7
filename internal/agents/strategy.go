// Strategies — how an agent picks its move and how it updates between rounds.
package agents

import (
	"fmt"
	"math"
	"math/rand"
)

// Strategy is the per-agent decision rule.
//
// Play returns the move for the coming round given the population's mean
// payoff from the previous round. Update runs in the selection phase; pick
// draws the reference agent lazily so rules that never compare draw nothing.
type Strategy interface {
	Name() string
	Play(a *Agent, avgPayoff float64, rng *rand.Rand) Action
	Update(a *Agent, pick func() *Agent, rng *rand.Rand) error
}

// Resetter is implemented by strategies that carry learning state across rounds.
type Resetter interface {
	Reset()
}

// Strategy names accepted by the spawner.
const (
	StrategyTFT        = "tft"
	StrategyPavlov     = "pavlov"
	StrategyRandom     = "random"
	StrategyImitation  = "imitation"
	StrategyAspiration = "aspiration"
)

// TitForTat defects after a below-average round and cooperates otherwise.
type TitForTat struct{}

func (TitForTat) Name() string { return StrategyTFT }

func (TitForTat) Play(a *Agent, avgPayoff float64, _ *rand.Rand) Action {
	a.PrevAction = a.Action
	if a.Rounds > 0 {
		if a.LastPayoff < avgPayoff {
			a.Action = Defect
		} else {
			a.Action = Cooperate
		}
	}
	return a.Action
}

func (TitForTat) Update(*Agent, func() *Agent, *rand.Rand) error { return nil }

// Pavlov is win-stay, lose-shift against the average payoff.
type Pavlov struct{}

func (Pavlov) Name() string { return StrategyPavlov }

func (Pavlov) Play(a *Agent, avgPayoff float64, _ *rand.Rand) Action {
	a.PrevAction = a.Action
	if a.Rounds > 0 && a.LastPayoff < avgPayoff {
		a.Action = a.PrevAction.Flip()
	}
	return a.Action
}

func (Pavlov) Update(*Agent, func() *Agent, *rand.Rand) error { return nil }

// Random flips a fair coin every round.
type Random struct{}

func (Random) Name() string { return StrategyRandom }

func (Random) Play(a *Agent, _ float64, rng *rand.Rand) Action {
	a.PrevAction = a.Action
	if rng.Float64() < 0.5 {
		a.Action = Cooperate
	} else {
		a.Action = Defect
	}
	return a.Action
}

func (Random) Update(*Agent, func() *Agent, *rand.Rand) error { return nil }

// Imitation holds a pure action and copies better-off reference agents.
type Imitation struct{}

func (Imitation) Name() string { return StrategyImitation }

func (Imitation) Play(a *Agent, _ float64, _ *rand.Rand) Action {
	return a.Action
}

// Update adopts the reference's snapshot action with the linear imitation
// probability. Only PrevAction of the reference is read, so agents updated
// earlier in the same phase do not leak into later decisions.
func (Imitation) Update(a *Agent, pick func() *Agent, rng *rand.Rand) error {
	ref := pick()
	if ref == nil {
		return fmt.Errorf("%w: agent %d has no reference to imitate", ErrEmptyGroup, a.ID)
	}
	ok, err := Imitate(a, ref, rng)
	if err != nil {
		return err
	}
	if ok {
		a.Action = ref.PrevAction
	}
	return nil
}

// ImitationProbability is the chance of copying a reference with payoff ref
// when the agent's own payoff is self. It is zero when self >= ref and grows
// linearly with the gap otherwise.
func ImitationProbability(self, ref, maxP, minP float64) (float64, error) {
	if self >= ref {
		return 0, nil
	}
	span := maxP - minP
	if span == 0 {
		return 0, fmt.Errorf("%w: maxP == minP == %g", ErrDegenerateNormalization, maxP)
	}
	return (ref - self) / span, nil
}

// Imitate decides whether a copies ref, drawing from rng only when ref is ahead.
func Imitate(a, ref *Agent, rng *rand.Rand) (bool, error) {
	prob, err := ImitationProbability(a.TotalPayoff, ref.TotalPayoff, a.MaxP, a.MinP)
	if err != nil {
		return false, fmt.Errorf("agent %d imitating %d: %w", a.ID, ref.ID, err)
	}
	if prob == 0 {
		return false, nil
	}
	return rng.Float64() < prob, nil
}

// AspirationParams configure the aspiration learner.
type AspirationParams struct {
	A0   float64 `json:"a0" yaml:"a0"`     // Initial aspiration level
	P0   float64 `json:"p0" yaml:"p0"`     // Initial cooperation probability
	H    float64 `json:"h" yaml:"h"`       // Habituation
	L    float64 `json:"l" yaml:"l"`       // Learning rate
	Beta float64 `json:"beta" yaml:"beta"` // Stimulus sensitivity
	E    float64 `json:"e" yaml:"e"`       // Misimplementation probability
}

// DefaultAspirationParams returns the standard learner settings.
func DefaultAspirationParams() AspirationParams {
	return AspirationParams{A0: 0.5, P0: 0.5, H: 0, L: 0.5, Beta: 0.2, E: 0.05}
}

// Validate checks ranges that keep p inside [0,1].
func (p AspirationParams) Validate() error {
	in01 := func(name string, v float64) error {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: aspiration %s must be in [0,1], got %g", ErrConfiguration, name, v)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		v    float64
	}{{"p0", p.P0}, {"h", p.H}, {"l", p.L}, {"e", p.E}} {
		if err := in01(c.name, c.v); err != nil {
			return err
		}
	}
	if p.Beta < 0 {
		return fmt.Errorf("%w: aspiration beta must be >= 0, got %g", ErrConfiguration, p.Beta)
	}
	return nil
}

// Aspiration is a Bush-Mosteller style learner with an adaptive aspiration level.
type Aspiration struct {
	Params AspirationParams
	A      float64 // Current aspiration level
	P      float64 // Current cooperation probability
}

// NewAspiration returns a learner at its initial state.
func NewAspiration(params AspirationParams) *Aspiration {
	s := &Aspiration{Params: params}
	s.Reset()
	return s
}

func (s *Aspiration) Name() string { return StrategyAspiration }

// Reset restores the initial aspiration and cooperation probability.
func (s *Aspiration) Reset() {
	s.A = s.Params.A0
	s.P = s.Params.P0
}

func (s *Aspiration) Play(a *Agent, _ float64, _ *rand.Rand) Action {
	return a.Action
}

// Update draws the next action from p, then reinforces it by the stimulus.
func (s *Aspiration) Update(a *Agent, _ func() *Agent, rng *rand.Rand) error {
	action := Defect
	if rng.Float64() <= s.P {
		action = Cooperate
	}
	if rng.Float64() <= s.Params.E {
		action = action.Flip()
	}
	a.Action = action

	s.A = (1-s.Params.H)*s.A + s.Params.H*a.TotalPayoff
	stim := s.Stimulus(a.TotalPayoff)
	l := s.Params.L

	if action == Cooperate {
		if stim >= 0 {
			s.P += (1 - s.P) * l * stim
		} else {
			s.P += s.P * l * stim
		}
	} else {
		if stim >= 0 {
			s.P -= s.P * l * stim
		} else {
			s.P -= (1 - s.P) * l * stim
		}
	}
	return nil
}

// Stimulus maps the payoff's distance from the aspiration level into (-1,1).
func (s *Aspiration) Stimulus(payoff float64) float64 {
	return math.Tanh(s.Params.Beta * (payoff - s.A))
}

// NewStrategy builds a strategy by name. Stateless strategies are shared values.
func NewStrategy(name string, aspiration AspirationParams) (Strategy, error) {
	switch name {
	case StrategyTFT:
		return TitForTat{}, nil
	case StrategyPavlov:
		return Pavlov{}, nil
	case StrategyRandom:
		return Random{}, nil
	case StrategyImitation:
		return Imitation{}, nil
	case StrategyAspiration:
		return NewAspiration(aspiration), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrConfiguration, name)
	}
}
