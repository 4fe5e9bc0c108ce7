// Topology checks and diagnostics.
package network

import (
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/talgya/evosim/internal/agents"
)

// Stats summarizes a wired population.
type Stats struct {
	Nodes      int     `json:"nodes"`
	Edges      int     `json:"edges"`
	MinDegree  int     `json:"min_degree"`
	MaxDegree  int     `json:"max_degree"`
	AvgDegree  float64 `json:"avg_degree"`
	Components int     `json:"components"`
}

// Validate checks that neighbor ids are in range, that no agent lists itself,
// and that every link appears the same number of times from both ends.
func Validate(pop *agents.Population) error {
	n := pop.Len()
	for _, a := range pop.Agents {
		for _, nb := range a.Neighbors {
			if nb < 0 || int(nb) >= n {
				return fmt.Errorf("%w: agent %d lists unknown neighbor %d", agents.ErrConfiguration, a.ID, nb)
			}
			if nb == a.ID {
				return fmt.Errorf("%w: agent %d lists itself", agents.ErrConfiguration, a.ID)
			}
			if count(pop.Get(nb).Neighbors, a.ID) != count(a.Neighbors, nb) {
				return fmt.Errorf("%w: link %d-%d is not symmetric", agents.ErrConfiguration, a.ID, nb)
			}
		}
	}
	return nil
}

func count(ids []agents.AgentID, id agents.AgentID) int {
	c := 0
	for _, x := range ids {
		if x == id {
			c++
		}
	}
	return c
}

// Inspect computes topology statistics. The population must pass Validate.
func Inspect(pop *agents.Population) (Stats, error) {
	if err := Validate(pop); err != nil {
		return Stats{}, err
	}

	g := simple.NewUndirectedGraph()
	for _, a := range pop.Agents {
		g.AddNode(simple.Node(a.ID))
	}

	st := Stats{Nodes: pop.Len(), AvgDegree: AverageDegree(pop)}
	halfDegrees := 0
	for i, a := range pop.Agents {
		deg := len(a.Neighbors)
		halfDegrees += deg
		if i == 0 || deg < st.MinDegree {
			st.MinDegree = deg
		}
		if deg > st.MaxDegree {
			st.MaxDegree = deg
		}
		for _, nb := range a.Neighbors {
			if nb > a.ID {
				g.SetEdge(simple.Edge{F: simple.Node(a.ID), T: simple.Node(nb)})
			}
		}
	}
	st.Edges = halfDegrees / 2
	st.Components = len(topo.ConnectedComponents(g))
	return st, nil
}
