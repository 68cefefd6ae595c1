// Package sandbox is a self-contained, deterministic host world: actors with
// traits and positions, simplex terrain, a weather cycle and a clock. It
// lets the simulation run headless and doubles as the collaborator in tests.
package sandbox

import (
	"cmp"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/weather"
	"github.com/talgya/kindred/internal/world"
)

// Config controls the sandbox.
type Config struct {
	Seed int64 `yaml:"-"`
	// Relief scales terrain height in world units. 0 is flat.
	Relief float64 `yaml:"relief"`
	// ObstacleThreshold is the clutter noise level above which a cell is
	// blocked. 1 disables obstacles.
	ObstacleThreshold float64 `yaml:"obstacle_threshold"`
	// WeatherInterval is how often the sky may change. 0 freezes it.
	WeatherInterval time.Duration `yaml:"weather_interval"`
	// SeasonLength is the span of one season. 0 freezes the season.
	SeasonLength time.Duration `yaml:"season_length"`
	// WalkSpeed in world units per second.
	WalkSpeed float64 `yaml:"walk_speed"`

	Groups     int     `yaml:"groups"`
	FamilySize int     `yaml:"family_size"`
	Spread     float64 `yaml:"spread"`
}

// DefaultConfig returns a small lively world.
func DefaultConfig() Config {
	return Config{
		Relief:            120,
		ObstacleThreshold: 0.82,
		WeatherInterval:   10 * time.Minute,
		SeasonLength:      4 * time.Hour,
		WalkSpeed:         1.4,
		Groups:            4,
		FamilySize:        6,
		Spread:            400,
	}
}

// Flat returns a featureless, frozen world for exact arithmetic in tests.
func Flat(seed int64) Config {
	return Config{Seed: seed, ObstacleThreshold: 1, WalkSpeed: 1.4}
}

// Actor is a sandbox-owned person.
type Actor struct {
	ID     world.ActorID `json:"id"`
	Name   string        `json:"name"`
	Pos    world.Vec3    `json:"pos"`
	Health float64       `json:"health"`
	Armed  bool          `json:"armed"`
	Traits world.Traits  `json:"traits"`

	target *world.Vec3
}

// EffectRecord is a visual or audio effect the core asked for.
type EffectRecord struct {
	Name string        `json:"name"`
	At   world.Vec3    `json:"at"`
	When time.Duration `json:"when"`
}

const taskHistory = 16

// World implements world.World and world.Personalities.
type World struct {
	cfg     Config
	rng     *entropy.Source
	terrain *Terrain
	sky     *weather.Cycle

	clock       time.Duration
	lastWeather time.Duration
	season      world.Season

	actors    map[world.ActorID]*Actor
	order     []world.ActorID
	nextID    world.ActorID
	tasks     map[world.ActorID][]world.Task
	flags     map[world.ActorID]map[world.Flag]bool
	obstacles []world.Vec3
	effects   []EffectRecord
}

// New creates an empty sandbox.
func New(cfg Config) *World {
	rng := entropy.New(cfg.Seed)
	return &World{
		cfg:     cfg,
		rng:     rng,
		terrain: NewTerrain(rng.Seed(), cfg.Relief, cfg.ObstacleThreshold),
		sky:     weather.NewCycle(rng.Fork(500), world.Clear),
		actors:  make(map[world.ActorID]*Actor),
		tasks:   make(map[world.ActorID][]world.Task),
		flags:   make(map[world.ActorID]map[world.Flag]bool),
		nextID:  1,
	}
}

// Spawn places a new actor on the ground at p.
func (w *World) Spawn(name string, p world.Vec3, t world.Traits) world.ActorID {
	id := w.nextID
	w.nextID++
	p.Z = w.GroundZ(p.X, p.Y)
	w.actors[id] = &Actor{ID: id, Name: name, Pos: p, Health: 1, Traits: t}
	w.order = append(w.order, id)
	return id
}

// Remove despawns an actor.
func (w *World) Remove(id world.ActorID) {
	if _, ok := w.actors[id]; !ok {
		return
	}
	delete(w.actors, id)
	delete(w.tasks, id)
	delete(w.flags, id)
	w.order = slices.DeleteFunc(w.order, func(a world.ActorID) bool { return a == id })
}

// Actor returns a copy of the actor.
func (w *World) Actor(id world.ActorID) (Actor, bool) {
	a, ok := w.actors[id]
	if !ok {
		return Actor{}, false
	}
	return *a, true
}

// ActorIDs returns live actors in spawn order.
func (w *World) ActorIDs() []world.ActorID {
	return slices.Clone(w.order)
}

// Place teleports an actor.
func (w *World) Place(id world.ActorID, p world.Vec3) {
	if a, ok := w.actors[id]; ok {
		a.Pos = p
		a.target = nil
	}
}

// Arm sets whether an actor carries a weapon.
func (w *World) Arm(id world.ActorID, armed bool) {
	if a, ok := w.actors[id]; ok {
		a.Armed = armed
	}
}

// AddObstacle adds a fixed obstacle on top of the generated clutter.
func (w *World) AddObstacle(p world.Vec3) {
	w.obstacles = append(w.obstacles, p)
}

// SetWeather pins the current weather.
func (w *World) SetWeather(x world.Weather) {
	w.sky.Set(x)
}

// SetSeason pins the current season.
func (w *World) SetSeason(s world.Season) {
	w.season = s
}

// Advance moves the clock, walks actors toward their targets and steps the
// weather and season.
func (w *World) Advance(dt time.Duration) {
	w.clock += dt
	if w.cfg.SeasonLength > 0 {
		w.season = world.Season((w.clock / w.cfg.SeasonLength) % 4)
	}
	if w.cfg.WeatherInterval > 0 && w.clock-w.lastWeather >= w.cfg.WeatherInterval {
		w.lastWeather = w.clock
		w.sky.Next(w.season)
	}

	step := w.cfg.WalkSpeed * dt.Seconds() / weather.For(w.sky.Current(), w.season).TravelPenalty
	for _, id := range w.order {
		a := w.actors[id]
		if a.target == nil {
			continue
		}
		d := a.Pos.Dist2D(*a.target)
		if d <= step {
			a.Pos = *a.target
			a.target = nil
		} else {
			a.Pos = a.Pos.Lerp(*a.target, step/d)
		}
		a.Pos.Z = w.GroundZ(a.Pos.X, a.Pos.Y)
	}
}

// ActorsNear implements world.World.
func (w *World) ActorsNear(center world.Vec3, radius float64, limit int) []world.ActorID {
	type hit struct {
		id world.ActorID
		d  float64
	}
	var hits []hit
	for _, id := range w.order {
		if d := w.actors[id].Pos.Dist2D(center); d <= radius {
			hits = append(hits, hit{id, d})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(a.d, b.d) })
	if limit >= 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]world.ActorID, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out
}

func (w *World) Exists(id world.ActorID) bool {
	_, ok := w.actors[id]
	return ok
}

func (w *World) Attributes(id world.ActorID) (world.Attributes, bool) {
	a, ok := w.actors[id]
	if !ok {
		return world.Attributes{}, false
	}
	return world.Attributes{Position: a.Pos, Health: a.Health, Armed: a.Armed}, true
}

func (w *World) GroundZ(x, y float64) float64 {
	return w.terrain.Height(x, y)
}

// ObstaclesNear counts fixed obstacles plus blocked clutter cells.
func (w *World) ObstaclesNear(p world.Vec3, radius float64, limit int) int {
	n := 0
	for _, o := range w.obstacles {
		if o.Dist2D(p) <= radius {
			n++
			if n >= limit {
				return limit
			}
		}
	}
	r := int(radius)
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			if float64(dx*dx+dy*dy) > radius*radius {
				continue
			}
			if w.terrain.Obstacle(p.X+float64(dx), p.Y+float64(dy)) {
				n++
				if n >= limit {
					return limit
				}
			}
		}
	}
	return n
}

func (w *World) Now() time.Duration     { return w.clock }
func (w *World) Weather() world.Weather { return w.sky.Current() }
func (w *World) Season() world.Season   { return w.season }

// Dispatch records the task and starts walking for movement tasks.
func (w *World) Dispatch(id world.ActorID, t world.Task) {
	a, ok := w.actors[id]
	if !ok {
		return
	}
	h := append(w.tasks[id], t)
	if len(h) > taskHistory {
		h = h[len(h)-taskHistory:]
	}
	w.tasks[id] = h

	switch t := t.(type) {
	case world.MoveTo:
		target := t.Target
		a.target = &target
	case world.Flee:
		away := world.Vec3{X: a.Pos.X + (a.Pos.X - t.From.X), Y: a.Pos.Y + (a.Pos.Y - t.From.Y)}
		a.target = &away
	case world.Follow:
		if l, ok := w.actors[t.Leader]; ok {
			target := l.Pos
			a.target = &target
		}
	case world.Engage:
		if v, ok := w.actors[t.Target]; ok {
			target := v.Pos
			a.target = &target
		}
	case world.Patrol:
		target := t.Center.Add(world.Vec3{X: t.Radius})
		a.target = &target
	case world.Idle:
		a.target = nil
	case world.Scenario:
	}
}

// Tasks returns the recent tasks dispatched to an actor, oldest first.
func (w *World) Tasks(id world.ActorID) []world.Task {
	return slices.Clone(w.tasks[id])
}

// LastTask returns the most recent task for an actor.
func (w *World) LastTask(id world.ActorID) (world.Task, bool) {
	h := w.tasks[id]
	if len(h) == 0 {
		return nil, false
	}
	return h[len(h)-1], true
}

func (w *World) SetFlag(id world.ActorID, f world.Flag, on bool) {
	if _, ok := w.actors[id]; !ok {
		return
	}
	m := w.flags[id]
	if m == nil {
		m = make(map[world.Flag]bool)
		w.flags[id] = m
	}
	m[f] = on
}

// Flag reports a world-facing flag.
func (w *World) Flag(id world.ActorID, f world.Flag) bool {
	return w.flags[id][f]
}

func (w *World) Effect(name string, at world.Vec3) {
	w.effects = append(w.effects, EffectRecord{Name: name, At: at, When: w.clock})
	if len(w.effects) > 256 {
		w.effects = w.effects[len(w.effects)-256:]
	}
}

// Effects returns requested effects, oldest first.
func (w *World) Effects() []EffectRecord {
	return slices.Clone(w.effects)
}

// Traits implements world.Personalities.
func (w *World) Traits(id world.ActorID) (world.Traits, bool) {
	a, ok := w.actors[id]
	if !ok {
		return world.Traits{}, false
	}
	return a.Traits, true
}

func (w *World) SetTraits(id world.ActorID, t world.Traits) {
	if a, ok := w.actors[id]; ok {
		a.Traits = t
	}
}
