package engine

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/kindred/internal/diplomacy"
	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/events"
	"github.com/talgya/kindred/internal/gathering"
	"github.com/talgya/kindred/internal/hierarchy"
	"github.com/talgya/kindred/internal/learning"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/migration"
	"github.com/talgya/kindred/internal/reputation"
	"github.com/talgya/kindred/internal/rituals"
	"github.com/talgya/kindred/internal/routine"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

// Host is what the simulation needs from the game: the world itself and the
// personality store.
type Host interface {
	world.World
	world.Personalities
}

// Config aggregates subsystem tuning with the coordinator's own constants.
type Config struct {
	Memory     memory.Config     `yaml:"memory"`
	Reputation reputation.Config `yaml:"reputation"`
	Hierarchy  hierarchy.Config  `yaml:"hierarchy"`
	Diplomacy  diplomacy.Config  `yaml:"diplomacy"`
	Learning   learning.Config   `yaml:"learning"`
	Migration  migration.Config  `yaml:"migration"`
	Events     events.Config     `yaml:"events"`
	Gathering  gathering.Config  `yaml:"gathering"`
	Routine    routine.Config    `yaml:"routine"`

	// Focus is where global observations such as weather are recorded.
	Focus world.Vec3 `yaml:"focus"`

	CohesionTension     float64       `yaml:"cohesion_tension"`
	CohesionGain        float64       `yaml:"cohesion_gain"`
	SafeAggression      float64       `yaml:"safe_aggression"`
	SafeZoneScan        int           `yaml:"safe_zone_scan"`
	PropagationRadius   float64       `yaml:"propagation_radius"`
	PropagationSources  int           `yaml:"propagation_sources"`
	PropagationInterval time.Duration `yaml:"propagation_interval"`
	RiotRadius          float64       `yaml:"riot_radius"`
	StormRadius         float64       `yaml:"storm_radius"`
	CombatRadius        float64       `yaml:"combat_radius"`
	CombatImportance    float64       `yaml:"combat_importance"`
	CombatSeverity      float64       `yaml:"combat_severity"`
	WorkDistance        float64       `yaml:"work_distance"`
	ChronicleSize       int           `yaml:"chronicle_size"`

	// QuarrelLoss and FeudLoss are the shares of honor lost to a quarrel
	// inside a family and between families.
	QuarrelLoss    float64 `yaml:"quarrel_loss"`
	FeudLoss       float64 `yaml:"feud_loss"`
	FeudImportance float64 `yaml:"feud_importance"`
	TraditionHonor float64 `yaml:"tradition_honor"`
}

// DefaultConfig returns every subsystem's defaults and the coordinator
// constants.
func DefaultConfig() Config {
	return Config{
		Memory:     memory.DefaultConfig(),
		Reputation: reputation.DefaultConfig(),
		Hierarchy:  hierarchy.DefaultConfig(),
		Diplomacy:  diplomacy.DefaultConfig(),
		Learning:   learning.DefaultConfig(),
		Migration:  migration.DefaultConfig(),
		Events:     events.DefaultConfig(),
		Gathering:  gathering.DefaultConfig(),
		Routine:    routine.DefaultConfig(),

		CohesionTension:     0.7,
		CohesionGain:        0.1,
		SafeAggression:      0.3,
		SafeZoneScan:        30,
		PropagationRadius:   20,
		PropagationSources:  30,
		PropagationInterval: 10 * time.Second,
		RiotRadius:          30,
		StormRadius:         200,
		CombatRadius:        50,
		CombatImportance:    0.8,
		CombatSeverity:      0.5,
		WorkDistance:        80,
		ChronicleSize:       500,
		QuarrelLoss:         0.1,
		FeudLoss:            0.05,
		FeudImportance:      0.7,
		TraditionHonor:      0.1,
	}
}

// Event is a notable occurrence in the chronicle.
type Event struct {
	Tick        uint64         `json:"tick"`
	At          time.Duration  `json:"at"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Simulation holds one of every subsystem and the state the coordinator
// needs between ticks.
type Simulation struct {
	cfg  Config
	host Host
	rng  *entropy.Source
	out  *effect.Outbox

	Groups     *social.Registry
	Memory     *memory.Store
	Reputation *reputation.Engine
	Hierarchy  *hierarchy.Engine
	Diplomacy  *diplomacy.Engine
	Learning   *learning.Engine
	Migration  *migration.Engine
	Rituals    *rituals.Engine
	Events     *events.Engine
	Gatherings *gathering.Engine
	Routines   *routine.Engine

	LastTick uint64

	weather   world.Weather
	lastEnded string
	sincePass time.Duration
	cursor    int

	// Original aggression of actors currently held down in a safe zone.
	calmed      map[world.ActorID]float64
	calmedOrder []world.ActorID

	chronicle []Event

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int

	snapshot atomic.Pointer[Snapshot]
}

// New wires every subsystem against host. groups may already hold families;
// call Bootstrap once they are all registered.
func New(host Host, groups *social.Registry, seed int64, cfg Config) *Simulation {
	if groups == nil {
		groups = social.NewRegistry()
	}
	rng := entropy.New(seed)
	out := &effect.Outbox{}
	mem := memory.NewStore(cfg.Memory)
	rep := reputation.New(host, host, cfg.Reputation)
	hier := hierarchy.New(host, host, rep, out, cfg.Hierarchy)

	s := &Simulation{
		cfg:        cfg,
		host:       host,
		rng:        rng,
		out:        out,
		Groups:     groups,
		Memory:     mem,
		Reputation: rep,
		Hierarchy:  hier,
		Diplomacy:  diplomacy.New(host, host, groups, mem, rng.Fork(1), out, cfg.Diplomacy),
		Learning:   learning.New(host, host, rng.Fork(2), cfg.Learning),
		Migration:  migration.New(host, groups, rng.Fork(3), out, cfg.Migration),
		Rituals:    rituals.New(host, hier, out),
		Events:     events.New(host, host, rng.Fork(4), out, cfg.Events),
		Gatherings: gathering.New(host, groups, out, cfg.Gathering),
		Routines:   routine.New(host, rng.Fork(5), cfg.Routine),
		weather:    host.Weather(),
		calmed:     make(map[world.ActorID]float64),
		subs:       make(map[int]chan Event),
	}
	s.publish()
	return s
}

// Config returns the active configuration.
func (s *Simulation) Config() Config { return s.cfg }

// Bootstrap brings every registered group into every subsystem: memory,
// hierarchy, learning table, home settlement and member routines.
func (s *Simulation) Bootstrap() error {
	for _, g := range s.Groups.All() {
		if err := s.bootstrapGroup(g); err != nil {
			return fmt.Errorf("bootstrap %s: %w", g.ID, err)
		}
	}
	s.apply()
	s.publish()
	slog.Info("simulation bootstrapped",
		"groups", s.Groups.Len(),
		"settlements", len(s.Migration.Settlements()),
		"routines", s.Routines.Len(),
	)
	return nil
}

// AddGroup registers a group after bootstrap and brings it up to date.
func (s *Simulation) AddGroup(g *social.Group) error {
	if err := s.Groups.Add(g); err != nil {
		return err
	}
	if err := s.bootstrapGroup(g); err != nil {
		return fmt.Errorf("bootstrap %s: %w", g.ID, err)
	}
	s.apply()
	return nil
}

func (s *Simulation) bootstrapGroup(g *social.Group) error {
	s.Memory.Ensure(g.ID)
	if err := s.Hierarchy.Initialize(g.ID, g.Members, g.Home); err != nil {
		return err
	}
	if err := s.Learning.Initialize(g.ID); err != nil {
		return err
	}
	if _, err := s.Migration.Found(g.ID); err != nil {
		return err
	}
	angle := s.rng.Float() * 2 * math.Pi
	work := g.Home.Add(world.Vec3{X: math.Cos(angle) * s.cfg.WorkDistance, Y: math.Sin(angle) * s.cfg.WorkDistance})
	work.Z = s.host.GroundZ(work.X, work.Y)
	for _, actor := range g.Actors() {
		if err := s.Routines.Assign(actor, g.Home, work); err != nil {
			slog.Debug("routine skipped", "actor", actor, "error", err)
		}
	}
	return nil
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	return s.LastTick
}

// Tick runs one frame: every subsystem in its fixed order, each followed by
// the effects it queued, then the resolution pass. The host is expected to
// have advanced its clock by dt already.
func (s *Simulation) Tick(dt time.Duration) {
	s.LastTick++
	now := s.host.Now()

	s.Memory.Update(now)
	s.apply()
	s.Reputation.Update()
	s.apply()
	s.Hierarchy.Update(dt)
	s.apply()
	s.Diplomacy.Update(dt)
	s.apply()
	s.Learning.Update(s.Memory, dt)
	s.apply()
	s.Migration.Update(dt)
	s.apply()
	s.Rituals.Update(dt)
	s.apply()
	s.Events.Update(dt)
	s.apply()
	s.Gatherings.Update(dt)
	s.apply()
	s.Routines.Update()

	s.resolve(dt)
	s.publish()
}

// EmitEvent appends to the chronicle and fans out to subscribers. Slow
// subscribers miss events rather than stall the tick.
func (s *Simulation) EmitEvent(e Event) {
	if e.Tick == 0 {
		e.Tick = s.LastTick
	}
	if e.At == 0 {
		e.At = s.host.Now()
	}
	slog.Info("event", "category", e.Category, "description", e.Description)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.chronicle = append(s.chronicle, e)
	if n := s.cfg.ChronicleSize; n > 0 && len(s.chronicle) > n {
		s.chronicle = s.chronicle[len(s.chronicle)-n:]
	}
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Chronicle returns the retained chronicle, oldest first.
func (s *Simulation) Chronicle() []Event {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return slices.Clone(s.chronicle)
}

// Subscribe returns a channel receiving every future chronicle event.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.subscribe()
}

// Follow returns the last n retained events together with a subscription
// that starts right after them, so nothing is missed or seen twice.
func (s *Simulation) Follow(n int) ([]Event, int, <-chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	backlog := s.chronicle
	if n >= 0 && len(backlog) > n {
		backlog = backlog[len(backlog)-n:]
	}
	id, ch := s.subscribe()
	return slices.Clone(backlog), id, ch
}

func (s *Simulation) subscribe() (int, <-chan Event) {
	s.nextID++
	ch := make(chan Event, 64)
	s.subs[s.nextID] = ch
	return s.nextID, ch
}

// Unsubscribe closes and forgets a subscription.
func (s *Simulation) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}
