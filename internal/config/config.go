// Package config loads experiment configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/talgya/evosim/internal/agents"
	"github.com/talgya/evosim/internal/engine"
	"github.com/talgya/evosim/internal/logging"
	"github.com/talgya/evosim/internal/network"
)

// Config is one experiment: population, topology, game and sweep settings.
type Config struct {
	// Seed for every random draw of the experiment. Zero draws one at start.
	Seed int64 `json:"seed" yaml:"seed"`

	Population PopulationConfig `json:"population" yaml:"population"`
	Network    NetworkConfig    `json:"network" yaml:"network"`
	Game       GameConfig       `json:"game" yaml:"game"`
	Mix        engine.Mix       `json:"mix" yaml:"mix"`
	Layout     LayoutConfig     `json:"layout" yaml:"layout"`
	Sweep      SweepConfig      `json:"sweep" yaml:"sweep"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	API     APIConfig     `json:"api" yaml:"api"`
}

// PopulationConfig sizes the population and splits it between strategies.
type PopulationConfig struct {
	Size       int                     `json:"size" yaml:"size"`
	Strategies []agents.Share          `json:"strategies" yaml:"strategies"`
	Aspiration agents.AspirationParams `json:"aspiration" yaml:"aspiration"`
}

// NetworkConfig selects the topology.
type NetworkConfig struct {
	Kind network.Kind `json:"kind" yaml:"kind"`

	// Connectivity is the ring's average degree.
	Connectivity int `json:"connectivity" yaml:"connectivity"`

	// M and M0 drive preferential attachment: links per new node and seed clique size.
	M  int `json:"m" yaml:"m"`
	M0 int `json:"m0" yaml:"m0"`
}

// GameConfig selects the variant and its parameters.
type GameConfig struct {
	// Variant is one of pgg, pggi, network, social-control, memory.
	Variant string `json:"variant" yaml:"variant"`

	// Payoff is the memory game's rule: nipd or pgg.
	Payoff string `json:"payoff" yaml:"payoff"`

	engine.Params       `yaml:",inline"`
	engine.SocialParams `yaml:",inline"`
}

// LayoutConfig selects how starting actions are spread over the population.
type LayoutConfig struct {
	Kind  string  `json:"kind" yaml:"kind"`   // uniform or clustered
	Scale float64 `json:"scale" yaml:"scale"` // Cluster size for clustered layouts
}

// SweepConfig drives a sweep over r.
type SweepConfig struct {
	RMin  float64 `json:"r_min" yaml:"r_min"`
	RMax  float64 `json:"r_max" yaml:"r_max"`
	RStep float64 `json:"r_step" yaml:"r_step"`

	// Realizations re-draw starting actions; runs repeat each realization.
	Realizations int `json:"realizations" yaml:"realizations"`
	Runs         int `json:"runs" yaml:"runs"`
}

// LoggingConfig configures the operational logger.
type LoggingConfig struct {
	// Level sets the log verbosity: "debug", "info" (default), "warn" or "error".
	Level string `json:"level" yaml:"level"`
}

// StorageConfig locates the results database.
type StorageConfig struct {
	Path string `json:"path" yaml:"path"`
}

// APIConfig configures the results server.
type APIConfig struct {
	Port int `json:"port" yaml:"port"`
}

// Default returns a Config for a well-mixed public goods game with inspectors.
func Default() *Config {
	return &Config{
		Population: PopulationConfig{
			Size:       100,
			Strategies: []agents.Share{{Strategy: agents.StrategyImitation, Ratio: 1}},
			Aspiration: agents.DefaultAspirationParams(),
		},
		Network: NetworkConfig{
			Kind:         network.KindNone,
			Connectivity: 4,
			M:            2,
			M0:           2,
		},
		Game: GameConfig{
			Variant:      engine.VariantPGGI,
			Payoff:       engine.RulePGG,
			Params:       engine.Params{Threshold: 100, Generations: 1000, Cost: 1, R: 3, Nu: 1},
			SocialParams: engine.DefaultSocialParams(),
		},
		Mix: engine.Mix{Cooperators: 0.5, Inspectors: 0.1},
		Layout: LayoutConfig{
			Kind:  agents.LayoutUniform,
			Scale: 8,
		},
		Sweep: SweepConfig{
			RMin:         1,
			RMax:         5,
			RStep:        0.5,
			Realizations: 5,
			Runs:         2,
		},
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{Path: "evosim.db"},
		API:     APIConfig{Port: 8080},
	}
}

// Load returns defaults, overlaid by the file at path when path is set, then
// by environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration before anything is built. Errors wrap
// agents.ErrConfiguration where they concern the simulation itself.
func (c *Config) Validate() error {
	if c.Population.Size < 1 {
		return fmt.Errorf("%w: population size must be positive, got %d", agents.ErrConfiguration, c.Population.Size)
	}
	if err := c.Population.Aspiration.Validate(); err != nil {
		return err
	}
	if err := c.Game.Params.Validate(); err != nil {
		return err
	}

	switch c.Game.Variant {
	case engine.VariantPGG, engine.VariantPGGI, engine.VariantMemory:
	case engine.VariantNetwork:
		if c.Network.Kind == "" || c.Network.Kind == network.KindNone {
			return fmt.Errorf("%w: variant %s needs a network kind", agents.ErrConfiguration, c.Game.Variant)
		}
	case engine.VariantSocialControl:
		if err := c.Game.SocialParams.Validate(); err != nil {
			return err
		}
		if c.Mix.Cohorts == nil {
			return fmt.Errorf("%w: variant %s needs mix.cohorts", agents.ErrConfiguration, c.Game.Variant)
		}
	default:
		return fmt.Errorf("%w: unknown game variant %q", agents.ErrConfiguration, c.Game.Variant)
	}

	if c.Game.Variant == engine.VariantMemory {
		if c.Game.Payoff != engine.RuleNIPD && c.Game.Payoff != engine.RulePGG && c.Game.Payoff != "" {
			return fmt.Errorf("%w: unknown payoff rule %q", agents.ErrConfiguration, c.Game.Payoff)
		}
	}

	if err := c.Mix.Validate(); err != nil {
		return err
	}
	if c.Mix.Cohorts != nil {
		if err := c.Mix.Cohorts.Validate(); err != nil {
			return err
		}
	}

	if c.Layout.Kind != "" && c.Layout.Kind != agents.LayoutUniform && c.Layout.Kind != agents.LayoutClustered {
		return fmt.Errorf("%w: unknown layout %q", agents.ErrConfiguration, c.Layout.Kind)
	}

	if err := c.Sweep.Validate(); err != nil {
		return err
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error, or empty for default)", c.Logging.Level)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port: %d", c.API.Port)
	}
	return nil
}

// Validate checks the sweep range and repeat counts.
func (s SweepConfig) Validate() error {
	switch {
	case s.RStep <= 0:
		return fmt.Errorf("%w: sweep r_step must be positive, got %g", agents.ErrConfiguration, s.RStep)
	case s.RMin < 0 || s.RMax <= s.RMin:
		return fmt.Errorf("%w: sweep range [%g, %g) is empty or negative", agents.ErrConfiguration, s.RMin, s.RMax)
	case s.Realizations < 1 || s.Runs < 1:
		return fmt.Errorf("%w: sweep needs realizations and runs >= 1, got %d and %d",
			agents.ErrConfiguration, s.Realizations, s.Runs)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EVOSIM_DB"); v != "" {
		cfg.Storage.Path = v
	}

	if v := os.Getenv("EVOSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("EVOSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}

	if v := os.Getenv("EVOSIM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}
}
