// Package config loads the single YAML document that tunes a kindred run.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/kindred/internal/engine"
	"github.com/talgya/kindred/internal/sandbox"
	"github.com/talgya/kindred/internal/social"
)

// Config is the whole run configuration.
type Config struct {
	Seed      int64             `yaml:"seed"`
	Engine    EngineConfig      `yaml:"engine"`
	HTTP      HTTPConfig        `yaml:"http"`
	Store     StoreConfig       `yaml:"store"`
	Sandbox   sandbox.Config    `yaml:"sandbox"`
	Sim       engine.Config     `yaml:"simulation"`
	SafeZones []social.SafeZone `yaml:"safe_zones"`
}

// EngineConfig paces the tick loop.
type EngineConfig struct {
	Interval time.Duration `yaml:"interval"`
	Step     time.Duration `yaml:"step"`
	Speed    float64       `yaml:"speed"`
}

// HTTPConfig configures the inspection API.
type HTTPConfig struct {
	Addr       string        `yaml:"addr"`
	AdminKey   string        `yaml:"admin_key"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
	MaxStreams int           `yaml:"max_streams"`
}

// StoreConfig configures the chronicle database.
type StoreConfig struct {
	Path             string        `yaml:"path"`
	FlushInterval    time.Duration `yaml:"flush_interval"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// Default returns a configuration that runs out of the box.
func Default() Config {
	return Config{
		Seed: 42,
		Engine: EngineConfig{
			Interval: time.Second,
			Step:     time.Second,
			Speed:    1,
		},
		HTTP: HTTPConfig{
			Addr:       ":8080",
			RateLimit:  60,
			RateWindow: time.Minute,
			MaxStreams: 4,
		},
		Store: StoreConfig{
			Path:             "data/kindred.db",
			FlushInterval:    5 * time.Second,
			SnapshotInterval: 10 * time.Minute,
		},
		Sandbox: sandbox.DefaultConfig(),
		Sim:     engine.DefaultConfig(),
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
// KINDRED_ADMIN_KEY overrides the admin key from the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if key := os.Getenv("KINDRED_ADMIN_KEY"); key != "" {
		cfg.HTTP.AdminKey = key
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		if path == "" {
			return cfg, err
		}
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Normalize fills zero values that have an obvious meaning.
func (c *Config) Normalize() {
	if c.Engine.Interval <= 0 {
		c.Engine.Interval = time.Second
	}
	if c.Engine.Step <= 0 {
		c.Engine.Step = time.Second
	}
	if c.Engine.Speed < 0 {
		c.Engine.Speed = 0
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateWindow <= 0 {
		c.HTTP.RateWindow = time.Minute
	}
	if c.Store.FlushInterval <= 0 {
		c.Store.FlushInterval = 5 * time.Second
	}
	if c.Sandbox.WalkSpeed <= 0 {
		c.Sandbox.WalkSpeed = 1.4
	}
	c.Sandbox.Seed = c.Seed
}

// Validate reports every setting that cannot run.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.Speed > 1000 {
		errs = append(errs, fmt.Errorf("engine.speed %v above 1000", c.Engine.Speed))
	}
	if c.HTTP.RateLimit < 1 {
		errs = append(errs, fmt.Errorf("http.rate_limit must be positive"))
	}
	if c.Sandbox.Groups < 1 || c.Sandbox.FamilySize < 1 {
		errs = append(errs, fmt.Errorf("sandbox needs at least one group of one"))
	}
	if c.Sim.Memory.Lifetime <= 0 {
		errs = append(errs, fmt.Errorf("simulation.memory.lifetime must be positive"))
	}
	if c.Sim.Routine.HourLength <= 0 {
		errs = append(errs, fmt.Errorf("simulation.routine.hour_length must be positive"))
	}
	if c.Sim.ChronicleSize < 1 {
		errs = append(errs, fmt.Errorf("simulation.chronicle_size must be positive"))
	}
	if c.Sim.Memory.PruneBelow < 0 || c.Sim.Memory.PruneBelow >= 1 {
		errs = append(errs, fmt.Errorf("simulation.memory.prune_below %v outside [0,1)", c.Sim.Memory.PruneBelow))
	}
	for i, z := range c.SafeZones {
		if z.Radius <= 0 {
			errs = append(errs, fmt.Errorf("safe_zones[%d]: radius must be positive", i))
		}
	}
	return errors.Join(errs...)
}
