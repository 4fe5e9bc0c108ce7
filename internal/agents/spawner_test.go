package agents

import (
	"errors"
	"math/rand"
	"testing"
)

func TestSpawnPopulationIDsAndCounts(t *testing.T) {
	sp := NewSpawner(DefaultAspirationParams())
	pop, err := sp.SpawnPopulation(10, []Share{
		{Strategy: StrategyTFT, Ratio: 0.33},
		{Strategy: StrategyImitation, Ratio: 0.67},
	})
	if err != nil {
		t.Fatal(err)
	}
	if pop.Len() != 10 {
		t.Fatalf("expected 10 agents, got %d", pop.Len())
	}

	counts := map[string]int{}
	for i, a := range pop.Agents {
		if int(a.ID) != i {
			t.Errorf("agent at %d has id %d", i, a.ID)
		}
		counts[a.Strategy.Name()]++
	}
	// floor(3.3) = 3 TFT, remainder to imitation.
	if counts[StrategyTFT] != 3 || counts[StrategyImitation] != 7 {
		t.Errorf("unexpected mix %v", counts)
	}
}

func TestSpawnAspirationAgentsHaveOwnState(t *testing.T) {
	sp := NewSpawner(DefaultAspirationParams())
	pop, err := sp.SpawnPopulation(2, []Share{{Strategy: StrategyAspiration, Ratio: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if pop.Agents[0].Strategy == pop.Agents[1].Strategy {
		t.Error("aspiration learners must not share state")
	}
}

func TestSpawnPopulationRejectsBadRatios(t *testing.T) {
	sp := NewSpawner(DefaultAspirationParams())
	cases := []struct {
		name   string
		n      int
		shares []Share
	}{
		{"sum below one", 10, []Share{{StrategyTFT, 0.5}}},
		{"negative", 10, []Share{{StrategyTFT, -0.5}, {StrategyPavlov, 1.5}}},
		{"unknown strategy", 10, []Share{{"grim", 1}}},
		{"empty", 10, nil},
		{"zero size", 0, []Share{{StrategyTFT, 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sp.SpawnPopulation(tc.n, tc.shares)
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestNewPopulationChecksIDs(t *testing.T) {
	_, err := NewPopulation([]*Agent{{ID: 0}, {ID: 2}})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestUniformLayoutDeterministic(t *testing.T) {
	a := UniformLayout{}.Values(50, rand.New(rand.NewSource(7)))
	b := UniformLayout{}.Values(50, rand.New(rand.NewSource(7)))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("value %d differs: %g vs %g", i, a[i], b[i])
		}
		if a[i] < 0 || a[i] >= 1 {
			t.Fatalf("value %d out of range: %g", i, a[i])
		}
	}
}

func TestNoiseLayoutQuantiles(t *testing.T) {
	const n = 100
	vals := NoiseLayout{Scale: 10}.Values(n, rand.New(rand.NewSource(42)))
	if len(vals) != n {
		t.Fatalf("expected %d values, got %d", n, len(vals))
	}

	below := 0
	seen := map[float64]bool{}
	for _, v := range vals {
		if v < 0.3 {
			below++
		}
		if seen[v] {
			t.Fatalf("duplicate quantile %g", v)
		}
		seen[v] = true
	}
	if below != 30 {
		t.Errorf("expected exactly 30 values below 0.3, got %d", below)
	}
}

func TestNewLayout(t *testing.T) {
	if l, err := NewLayout("", 0); err != nil || l.Name() != LayoutUniform {
		t.Errorf("empty name should give uniform layout, got %v, %v", l, err)
	}
	if l, err := NewLayout(LayoutClustered, 4); err != nil || l.Name() != LayoutClustered {
		t.Errorf("expected clustered layout, got %v, %v", l, err)
	}
	if _, err := NewLayout("spiral", 0); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
