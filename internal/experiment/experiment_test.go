package experiment

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/talgya/evosim/internal/agents"
	"github.com/talgya/evosim/internal/config"
	"github.com/talgya/evosim/internal/engine"
	"github.com/talgya/evosim/internal/network"
)

func smallConfig() *config.Config {
	cfg := config.Default()
	cfg.Seed = 42
	cfg.Population.Size = 40
	cfg.Game.Threshold = 5
	cfg.Game.Generations = 20
	cfg.Sweep = config.SweepConfig{RMin: 1, RMax: 3, RStep: 1, Realizations: 2, Runs: 2}
	return cfg
}

func TestBuildVariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{engine.VariantPGG, func(c *config.Config) { c.Game.Variant = engine.VariantPGG; c.Mix.Inspectors = 0 }},
		{engine.VariantPGGI, func(c *config.Config) {}},
		{engine.VariantNetwork, func(c *config.Config) {
			c.Game.Variant = engine.VariantNetwork
			c.Network.Kind = network.KindRing
		}},
		{engine.VariantSocialControl, func(c *config.Config) {
			c.Game.Variant = engine.VariantSocialControl
			c.Mix = engine.Mix{Cohorts: &engine.Cohorts{CI: 0.25, CNI: 0.25, DI: 0.25, DNI: 0.25}}
		}},
		{engine.VariantMemory, func(c *config.Config) {
			c.Game.Variant = engine.VariantMemory
			c.Game.Payoff = engine.RuleNIPD
			c.Mix.Inspectors = 0
			c.Population.Strategies = []agents.Share{
				{Strategy: agents.StrategyTFT, Ratio: 0.5},
				{Strategy: agents.StrategyPavlov, Ratio: 0.5},
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.mutate(cfg)
			s, err := Build(cfg)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if s.Game.Name() != tt.name {
				t.Errorf("built %q, want %q", s.Game.Name(), tt.name)
			}
			res, err := RunOnce(context.Background(), s)
			if err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if len(res.CoopLevel) != cfg.Game.Generations {
				t.Errorf("series length %d", len(res.CoopLevel))
			}
			if res.MeanCoop < 0 || res.MeanCoop > 1 || res.MeanInsp < 0 || res.MeanInsp > 1 {
				t.Errorf("means out of range: %g %g", res.MeanCoop, res.MeanInsp)
			}
			if res.ID == "" || res.Seed != 42 {
				t.Errorf("missing id or seed: %+v", res)
			}
		})
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Game.Variant = engine.VariantNetwork
	if _, err := Build(cfg); !errors.Is(err, agents.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}

	cfg = smallConfig()
	cfg.Game.Variant = engine.VariantNetwork
	cfg.Network.Kind = network.KindRing
	cfg.Network.Connectivity = 40
	if _, err := Build(cfg); !errors.Is(err, agents.ErrConfiguration) {
		t.Errorf("oversized ring: expected ErrConfiguration, got %v", err)
	}
}

func TestRunOnceDeterministic(t *testing.T) {
	run := func() *Result {
		s, err := Build(smallConfig())
		if err != nil {
			t.Fatal(err)
		}
		res, err := RunOnce(context.Background(), s)
		if err != nil {
			t.Fatal(err)
		}
		return res
	}
	a, b := run(), run()
	for i := range a.CoopLevel {
		if a.CoopLevel[i] != b.CoopLevel[i] || a.InspLevel[i] != b.InspLevel[i] {
			t.Fatalf("runs diverge at %d", i)
		}
	}
	if a.ID == b.ID {
		t.Error("run ids should be unique")
	}
}

func TestRunOnceHonoursCancelledContext(t *testing.T) {
	s, err := Build(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RunOnce(ctx, s); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.Game.State() != engine.StateUninitialized {
		t.Errorf("game touched after cancel: %s", s.Game.State())
	}
}

func TestDegree(t *testing.T) {
	s, err := Build(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	if s.Degree() != 39 {
		t.Errorf("well-mixed degree %g, want N-1", s.Degree())
	}

	cfg := smallConfig()
	cfg.Game.Variant = engine.VariantNetwork
	cfg.Network.Kind = network.KindRing
	cfg.Network.Connectivity = 4
	s, err = Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if s.Degree() != 4 || s.Topology == nil || s.Topology.Components != 1 {
		t.Errorf("ring degree %g topology %+v", s.Degree(), s.Topology)
	}
}

func TestReturns(t *testing.T) {
	got := Returns(config.SweepConfig{RMin: 1, RMax: 2, RStep: 0.1})
	if len(got) != 10 {
		t.Fatalf("expected 10 points, got %d: %v", len(got), got)
	}
	if math.Abs(got[9]-1.9) > 1e-12 {
		t.Errorf("last point %g", got[9])
	}
}

func TestSweep(t *testing.T) {
	s, err := Build(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	var seen []float64
	res, err := Sweep(context.Background(), s, s.Config.Sweep, func(p Point) { seen = append(seen, p.R) })
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Points) != 2 || len(seen) != 2 {
		t.Fatalf("expected 2 points, got %d (callback %d)", len(res.Points), len(seen))
	}
	for _, p := range res.Points {
		if p.Runs != 4 {
			t.Errorf("r=%g: %d runs, want 4", p.R, p.Runs)
		}
		if want := p.R / 40; math.Abs(p.Eta-want) > 1e-12 {
			t.Errorf("r=%g: eta %g, want %g", p.R, p.Eta, want)
		}
		if p.MeanCoop < 0 || p.MeanCoop > 1 || p.StdCoop < 0 {
			t.Errorf("r=%g: bad stats %+v", p.R, p)
		}
	}
	if s.Game.Return() != smallConfig().Game.R {
		t.Errorf("sweep should restore r, got %g", s.Game.Return())
	}
	if res.FinishedAt.Before(res.StartedAt) {
		t.Error("finish before start")
	}
}

func TestSweepStopsOnCancel(t *testing.T) {
	s, err := Build(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	res, err := Sweep(ctx, s, s.Config.Sweep, func(Point) { cancel() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.Points) != 1 {
		t.Errorf("expected the first point to survive, got %d", len(res.Points))
	}
}

func TestSweepPropagatesGameErrors(t *testing.T) {
	cfg := smallConfig()
	cfg.Population.Size = 1
	cfg.Game.Variant = engine.VariantPGG
	cfg.Mix.Inspectors = 0
	s, err := Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	// A lone agent at r=1 has no payoff range to normalize by.
	_, err = Sweep(context.Background(), s, config.SweepConfig{RMin: 1, RMax: 2, RStep: 1, Realizations: 1, Runs: 1}, nil)
	if !errors.Is(err, agents.ErrDegenerateNormalization) {
		t.Errorf("expected ErrDegenerateNormalization, got %v", err)
	}
}
