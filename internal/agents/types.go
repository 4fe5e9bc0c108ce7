// Package agents provides the agent data model, strategies, and population spawning.
package agents

import "fmt"

// AgentID is a dense identifier for an agent: ids run 0..N-1 in creation order.
type AgentID int

// Action is the move an agent makes in a round.
type Action uint8

const (
	Cooperate Action = 0
	Defect    Action = 1
	Inspect   Action = 2 // Only understood by inspection-aware games
)

// String returns the one-letter label used in logs.
func (a Action) String() string {
	switch a {
	case Cooperate:
		return "C"
	case Defect:
		return "D"
	case Inspect:
		return "I"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Valid reports whether a is one of the three known actions.
func (a Action) Valid() bool {
	return a <= Inspect
}

// Flip swaps Cooperate and Defect. Inspect is returned unchanged.
func (a Action) Flip() Action {
	switch a {
	case Cooperate:
		return Defect
	case Defect:
		return Cooperate
	default:
		return a
	}
}

// Agent is a player in the population.
type Agent struct {
	ID AgentID `json:"id"`

	// Moves
	Action     Action `json:"action"`
	PrevAction Action `json:"prev_action"` // Snapshot taken before selection

	// Fitness
	LastPayoff  float64 `json:"last_payoff"`
	TotalPayoff float64 `json:"total_payoff"`
	Rounds      int     `json:"rounds"`

	// Normalization bounds for imitation, set by the game at init.
	MaxP float64 `json:"max_p"`
	MinP float64 `json:"min_p"`

	// Inspection state, cleared every round.
	Inspected bool `json:"inspected"`
	Catches   int  `json:"catches"` // Inspectors that caught this agent this round

	// Social-control role.
	Inspector     bool `json:"inspector"`
	PrevInspector bool `json:"prev_inspector"`

	// Neighbors are ids into the same population. Symmetric, loop-free.
	Neighbors []AgentID `json:"neighbors,omitempty"`

	Strategy Strategy `json:"-"`
}

// ConsumePayoff credits a round payoff.
func (a *Agent) ConsumePayoff(p float64) {
	a.LastPayoff = p
	a.TotalPayoff += p
	a.Rounds++
}

// MarkInspected takes back a penalty from a payoff already credited this round.
func (a *Agent) MarkInspected(penalty float64) {
	a.LastPayoff -= penalty
	a.TotalPayoff -= penalty
	a.Inspected = true
	a.Catches++
}

// Credit adds an inspection reward to the payoff already credited this round.
func (a *Agent) Credit(amount float64) {
	a.LastPayoff += amount
	a.TotalPayoff += amount
}

// ResetRound clears transient per-round flags.
func (a *Agent) ResetRound() {
	a.Inspected = false
	a.Catches = 0
}

// ResetFitness zeroes accumulated payoffs and the round counter.
func (a *Agent) ResetFitness() {
	a.LastPayoff = 0
	a.TotalPayoff = 0
	a.Rounds = 0
}

// Init prepares the agent for a fresh realization.
func (a *Agent) Init(action Action) {
	a.Action = action
	a.PrevAction = action
	a.Inspector = false
	a.PrevInspector = false
	a.ResetFitness()
	a.ResetRound()
	if r, ok := a.Strategy.(Resetter); ok {
		r.Reset()
	}
}

// String renders the agent the way debug logs show it.
func (a *Agent) String() string {
	return fmt.Sprintf("[%d] %s payoff=%.4f", a.ID, a.Action, a.TotalPayoff)
}

// Population owns the agents of one run, stored by id.
type Population struct {
	Agents []*Agent
}

// NewPopulation wraps agents whose ids must equal their slice positions.
func NewPopulation(ag []*Agent) (*Population, error) {
	for i, a := range ag {
		if int(a.ID) != i {
			return nil, fmt.Errorf("%w: agent at position %d has id %d", ErrConfiguration, i, a.ID)
		}
	}
	return &Population{Agents: ag}, nil
}

// Len returns N.
func (p *Population) Len() int {
	return len(p.Agents)
}

// Get returns the agent with the given id.
func (p *Population) Get(id AgentID) *Agent {
	return p.Agents[id]
}

// Neighbors resolves an agent's neighbor ids in O(degree).
func (p *Population) Neighbors(a *Agent) []*Agent {
	out := make([]*Agent, len(a.Neighbors))
	for i, id := range a.Neighbors {
		out[i] = p.Agents[id]
	}
	return out
}

// ClearNeighbors drops every neighbor link.
func (p *Population) ClearNeighbors() {
	for _, a := range p.Agents {
		a.Neighbors = nil
	}
}
