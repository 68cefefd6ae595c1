package cli

import (
	"fmt"
	"time"

	"github.com/talgya/kindred/internal/config"
	"github.com/talgya/kindred/internal/engine"
	"github.com/talgya/kindred/internal/sandbox"
	"github.com/talgya/kindred/internal/social"
)

// runtime is a populated sandbox with its simulation and tick loop.
type runtime struct {
	world *sandbox.World
	sim   *engine.Simulation
	eng   *engine.Engine
}

func build(cfg config.Config) (*runtime, error) {
	w := sandbox.New(cfg.Sandbox)
	reg := social.NewRegistry()
	for _, z := range cfg.SafeZones {
		reg.AddSafeZone(z)
	}
	sc := cfg.Sandbox
	if err := sandbox.NewSpawner(w, cfg.Seed).Populate(reg, sc.Groups, sc.FamilySize, sc.Spread); err != nil {
		return nil, fmt.Errorf("populate: %w", err)
	}

	sim := engine.New(w, reg, cfg.Seed, cfg.Sim)
	if err := sim.Bootstrap(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	eng := engine.NewEngine()
	eng.Interval = cfg.Engine.Interval
	eng.Step = cfg.Engine.Step
	eng.SetSpeed(cfg.Engine.Speed)
	eng.OnTick = func(_ uint64, dt time.Duration) {
		w.Advance(dt)
		sim.Tick(dt)
	}
	return &runtime{world: w, sim: sim, eng: eng}, nil
}
