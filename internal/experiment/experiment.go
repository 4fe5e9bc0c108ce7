// Package experiment turns a configuration into a ready game and drives
// single runs and parameter sweeps over it.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/evosim/internal/agents"
	"github.com/talgya/evosim/internal/config"
	"github.com/talgya/evosim/internal/engine"
	"github.com/talgya/evosim/internal/entropy"
	"github.com/talgya/evosim/internal/network"
)

// Setup is a built experiment: a wired population and the game that owns it.
// A Setup is not safe for concurrent use; runs on it are sequential.
type Setup struct {
	Config     *config.Config
	Seed       int64 // Seed actually used, drawn when the config asked for 0
	Population *agents.Population
	Game       engine.Game
	Topology   *network.Stats // Nil for well-mixed populations
}

// Build validates cfg, spawns the population, wires the network and
// constructs the configured game variant. The network and the game draw
// from independent child seeds of the experiment seed.
func Build(cfg *config.Config) (*Setup, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	master, seed := entropy.NewSource(cfg.Seed)
	netSeed := entropy.Derive(master)
	gameSeed := entropy.Derive(master)

	spawner := agents.NewSpawner(cfg.Population.Aspiration)
	pop, err := spawner.SpawnPopulation(cfg.Population.Size, cfg.Population.Strategies)
	if err != nil {
		return nil, fmt.Errorf("spawn population: %w", err)
	}

	s := &Setup{Config: cfg, Seed: seed, Population: pop}

	nc := cfg.Network
	if nc.Kind != "" && nc.Kind != network.KindNone {
		if err := network.Build(pop, nc.Kind, nc.Connectivity, nc.M, nc.M0, netSeed); err != nil {
			return nil, fmt.Errorf("build network: %w", err)
		}
		st, err := network.Inspect(pop)
		if err != nil {
			return nil, fmt.Errorf("inspect network: %w", err)
		}
		s.Topology = &st
		slog.Info("network built", "kind", nc.Kind, "nodes", st.Nodes, "edges", st.Edges,
			"avg_degree", st.AvgDegree, "max_degree", st.MaxDegree, "components", st.Components)
	}

	layout, err := agents.NewLayout(cfg.Layout.Kind, cfg.Layout.Scale)
	if err != nil {
		return nil, err
	}
	opts := engine.Options{Layout: layout}
	rng := rand.New(rand.NewSource(gameSeed))

	s.Game, err = newGame(cfg, pop, rng, opts)
	if err != nil {
		return nil, fmt.Errorf("build game: %w", err)
	}

	slog.Info("experiment built", "variant", cfg.Game.Variant, "agents", pop.Len(), "seed", seed)
	return s, nil
}

func newGame(cfg *config.Config, pop *agents.Population, rng *rand.Rand, opts engine.Options) (engine.Game, error) {
	params := cfg.Game.Params
	switch cfg.Game.Variant {
	case engine.VariantPGG:
		return engine.NewWellMixed(pop, params, false, rng, opts)
	case engine.VariantPGGI:
		return engine.NewWellMixed(pop, params, true, rng, opts)
	case engine.VariantNetwork:
		return engine.NewNetworkGame(pop, params, rng, opts)
	case engine.VariantSocialControl:
		return engine.NewSocialControl(pop, params, cfg.Game.SocialParams, rng, opts)
	case engine.VariantMemory:
		rule, err := engine.NewPayoffRule(cfg.Game.Payoff, params.R, params.Cost)
		if err != nil {
			return nil, err
		}
		return engine.NewMemoryGame(pop, params, rule, rng, opts)
	default:
		return nil, fmt.Errorf("%w: unknown game variant %q", agents.ErrConfiguration, cfg.Game.Variant)
	}
}

// Degree returns the interaction degree z: the average network degree, or
// N-1 when every agent meets every other.
func (s *Setup) Degree() float64 {
	if s.Topology != nil {
		return s.Topology.AvgDegree
	}
	return float64(s.Population.Len() - 1)
}

// Result is the outcome of one run.
type Result struct {
	ID         string    `json:"id"`
	Variant    string    `json:"variant"`
	Seed       int64     `json:"seed"`
	Agents     int       `json:"agents"`
	R          float64   `json:"r"`
	CoopLevel  []float64 `json:"coop_level"`
	InspLevel  []float64 `json:"insp_level"`
	MeanCoop   float64   `json:"mean_coop"`
	MeanInsp   float64   `json:"mean_insp"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunOnce initializes the game and population and runs it to completion.
// ctx is only consulted before the run starts; a run is never interrupted.
func RunOnce(ctx context.Context, s *Setup) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		ID:        uuid.New().String(),
		Variant:   s.Game.Name(),
		Seed:      s.Seed,
		Agents:    s.Population.Len(),
		R:         s.Game.Return(),
		StartedAt: time.Now().UTC(),
	}
	if err := runGame(s); err != nil {
		return nil, err
	}
	res.FinishedAt = time.Now().UTC()
	res.CoopLevel = s.Game.CoopLevel()
	res.InspLevel = s.Game.InspLevel()
	res.MeanCoop = stat.Mean(res.CoopLevel, nil)
	res.MeanInsp = stat.Mean(res.InspLevel, nil)

	slog.Info("run finished", "id", res.ID, "variant", res.Variant, "r", res.R,
		"mean_coop", res.MeanCoop, "mean_insp", res.MeanInsp,
		"elapsed", res.FinishedAt.Sub(res.StartedAt))
	return res, nil
}

// runGame is the init_game, init_population, run cycle.
func runGame(s *Setup) error {
	g := s.Game
	if err := g.InitGame(); err != nil {
		return fmt.Errorf("init game: %w", err)
	}
	if err := g.InitPopulation(s.Config.Mix); err != nil {
		return fmt.Errorf("init population: %w", err)
	}
	if err := g.Run(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}
