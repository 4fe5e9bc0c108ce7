// Package network wires neighbor relations into a population.
//
// Builders mutate agents in place: the game reads neighbor ids straight off
// each agent. Every builder clears existing links first.
package network

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/talgya/evosim/internal/agents"
)

// Kind names a topology in configuration.
type Kind string

const (
	KindNone      Kind = "none"       // Well-mixed; no links
	KindRing      Kind = "ring"       // Regular ring lattice
	KindScaleFree Kind = "scale-free" // Preferential attachment
)

// AddEdge links a and b in both directions. It never deduplicates: callers
// must not propose an existing edge or a self edge.
func AddEdge(pop *agents.Population, a, b agents.AgentID) {
	pa, pb := pop.Get(a), pop.Get(b)
	pa.Neighbors = append(pa.Neighbors, b)
	pb.Neighbors = append(pb.Neighbors, a)
}

// Ring builds a ring lattice where each agent links to the floor(c/2) agents
// on either side of it, wrapping around. Every agent ends with degree
// 2*floor(c/2).
func Ring(pop *agents.Population, avgConnectivity int) error {
	n := pop.Len()
	radius := avgConnectivity / 2
	if radius < 1 {
		return fmt.Errorf("%w: ring connectivity must be at least 2, got %d", agents.ErrConfiguration, avgConnectivity)
	}
	if 2*radius >= n {
		return fmt.Errorf("%w: ring connectivity %d needs more than %d agents, have %d",
			agents.ErrConfiguration, avgConnectivity, 2*radius, n)
	}

	pop.ClearNeighbors()
	for i := 0; i < n; i++ {
		a := pop.Agents[i]
		a.Neighbors = make([]agents.AgentID, 0, 2*radius)
		for d := -radius; d <= radius; d++ {
			if d == 0 {
				continue
			}
			j := (i + d + n) % n
			a.Neighbors = append(a.Neighbors, agents.AgentID(j))
		}
	}

	slog.Debug("ring lattice built", "agents", n, "degree", 2*radius)
	return nil
}

// PreferentialAttachment grows a scale-free graph. The first m0 agents form a
// clique; each later agent attaches to m distinct existing agents drawn
// uniformly from a multiset holding every agent once per incident edge, which
// makes the pick proportional to degree.
func PreferentialAttachment(pop *agents.Population, m, m0 int, seed int64) error {
	n := pop.Len()
	if m < 1 || m >= n {
		return fmt.Errorf("%w: preferential attachment needs 1 <= m < N, got m=%d N=%d", agents.ErrConfiguration, m, n)
	}
	if m0 < m || m0 > n {
		return fmt.Errorf("%w: preferential attachment needs m <= m0 <= N, got m=%d m0=%d N=%d",
			agents.ErrConfiguration, m, m0, n)
	}

	rng := rand.New(rand.NewSource(seed))
	pop.ClearNeighbors()

	repeated := make([]agents.AgentID, 0, 2*(m0*(m0-1)/2+m*(n-m0)))
	for i := 0; i < m0; i++ {
		for j := i + 1; j < m0; j++ {
			AddEdge(pop, agents.AgentID(i), agents.AgentID(j))
			repeated = append(repeated, agents.AgentID(i), agents.AgentID(j))
		}
	}
	// A one-agent seed has no edges to weight by; start it with uniform weight.
	if len(repeated) == 0 {
		for i := 0; i < m0; i++ {
			repeated = append(repeated, agents.AgentID(i))
		}
	}

	for s := m0; s < n; s++ {
		src := agents.AgentID(s)
		targets := randomSubset(repeated, m, rng)
		for _, t := range targets {
			AddEdge(pop, src, t)
		}
		repeated = append(repeated, targets...)
		for k := 0; k < m; k++ {
			repeated = append(repeated, src)
		}
	}

	slog.Debug("scale-free network built", "agents", n, "m", m, "m0", m0, "avg_degree", AverageDegree(pop))
	return nil
}

// randomSubset draws m distinct ids from seq, keeping draw order so the
// result is reproducible for a seed.
func randomSubset(seq []agents.AgentID, m int, rng *rand.Rand) []agents.AgentID {
	seen := make(map[agents.AgentID]bool, m)
	out := make([]agents.AgentID, 0, m)
	for len(out) < m {
		x := seq[rng.Intn(len(seq))]
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

// AverageDegree returns the mean neighbor-set size.
func AverageDegree(pop *agents.Population) float64 {
	if pop.Len() == 0 {
		return 0
	}
	total := 0
	for _, a := range pop.Agents {
		total += len(a.Neighbors)
	}
	return float64(total) / float64(pop.Len())
}

// Build wires pop according to kind. KindNone clears all links.
func Build(pop *agents.Population, kind Kind, connectivity, m, m0 int, seed int64) error {
	switch kind {
	case "", KindNone:
		pop.ClearNeighbors()
		return nil
	case KindRing:
		return Ring(pop, connectivity)
	case KindScaleFree:
		return PreferentialAttachment(pop, m, m0, seed)
	default:
		return fmt.Errorf("%w: unknown network kind %q", agents.ErrConfiguration, kind)
	}
}
