// Package engine provides the generation-stepped game loop and its variants.
package engine

import (
	"fmt"
	"log/slog"
)

// Census is the population tally taken after a round.
type Census struct {
	Size        int `json:"size"`
	Cooperators int `json:"cooperators"`
	Inspectors  int `json:"inspectors"`
}

// CoopFraction returns nc/N.
func (c Census) CoopFraction() float64 {
	if c.Size == 0 {
		return 0
	}
	return float64(c.Cooperators) / float64(c.Size)
}

// InspFraction returns ni/N.
func (c Census) InspFraction() float64 {
	if c.Size == 0 {
		return 0
	}
	return float64(c.Inspectors) / float64(c.Size)
}

// Phases is what a game variant plugs into the loop. Each round runs the
// phases strictly in this order; payoffs are settled before any agent
// changes its action.
type Phases interface {
	PayoffPhase() error
	InspectionPhase() error
	SelectionPhase() error
	Bookkeeping() Census
}

// Loop drives a variant through threshold+generations rounds.
type Loop struct {
	Threshold   int // Burn-in rounds, simulated but not recorded
	Generations int // Recorded rounds

	// Optional hook, called after each round's bookkeeping.
	OnRound func(round int, c Census)
}

// Rounds returns the total number of rounds a run executes.
func (l Loop) Rounds() int {
	return l.Threshold + l.Generations
}

// Run executes every round and records post-burn-in tallies into s.
// A round is atomic: any phase error aborts the run at once.
func (l Loop) Run(p Phases, s *Series) error {
	for round := 0; round < l.Rounds(); round++ {
		if err := p.PayoffPhase(); err != nil {
			return fmt.Errorf("round %d payoff: %w", round, err)
		}
		if err := p.InspectionPhase(); err != nil {
			return fmt.Errorf("round %d inspection: %w", round, err)
		}
		if err := p.SelectionPhase(); err != nil {
			return fmt.Errorf("round %d selection: %w", round, err)
		}

		c := p.Bookkeeping()
		s.Record(round, c)

		slog.Debug("round", "round", round, "ncoop", c.Cooperators, "ninsp", c.Inspectors)
		if l.OnRound != nil {
			l.OnRound(round, c)
		}
	}
	return nil
}
