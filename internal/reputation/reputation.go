// Package reputation tracks each actor's standing: reputation, influence and
// notoriety, the reputation type and social status derived from them, and
// the one-hop spread of a deed to the people nearby.
package reputation

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/world"
)

// Type is the discrete label others put on an actor.
type Type uint8

const (
	Neutral Type = iota
	Hero
	Criminal
	Friendly
	Hostile
	Feared
)

func (t Type) String() string {
	switch t {
	case Neutral:
		return "neutral"
	case Hero:
		return "hero"
	case Criminal:
		return "criminal"
	case Friendly:
		return "friendly"
	case Hostile:
		return "hostile"
	case Feared:
		return "feared"
	default:
		return "unknown"
	}
}

// Status is the social ladder, lowest first.
type Status uint8

const (
	Outsider Status = iota
	Member
	Respected
	Influential
	Leader
	Legendary
)

func (s Status) String() string {
	switch s {
	case Outsider:
		return "outsider"
	case Member:
		return "member"
	case Respected:
		return "respected"
	case Influential:
		return "influential"
	case Leader:
		return "leader"
	case Legendary:
		return "legendary"
	default:
		return "unknown"
	}
}

// Record is an actor's standing.
type Record struct {
	Actor      world.ActorID `json:"actor"`
	Reputation float64       `json:"reputation"`
	Influence  float64       `json:"influence"`
	Notoriety  float64       `json:"notoriety"`
	Type       Type          `json:"type"`
	Status     Status        `json:"status"`
	Crimes     int           `json:"crimes"`
	GoodDeeds  int           `json:"good_deeds"`
}

// EffectiveInfluence is influence adjusted by status: leaders carry more
// weight, outsiders less.
func (r Record) EffectiveInfluence() float64 {
	switch r.Status {
	case Leader:
		return bounded.Unit(r.Influence + 0.1)
	case Outsider:
		return bounded.Unit(r.Influence - 0.1)
	case Member, Respected, Influential, Legendary:
		return r.Influence
	default:
		return r.Influence
	}
}

// Config holds reputation tuning.
type Config struct {
	WitnessRadius     float64 `yaml:"witness_radius"`
	MaxWitnesses      int     `yaml:"max_witnesses"`
	BraveAbove        float64 `yaml:"brave_above"`
	CautiousBelow     float64 `yaml:"cautious_below"`
	GoodDeedRadius    float64 `yaml:"good_deed_radius"`
	PropagationFactor float64 `yaml:"propagation_factor"`
	MaxPropagation    int     `yaml:"max_propagation"`
}

// DefaultConfig returns the standard reputation constants.
func DefaultConfig() Config {
	return Config{
		WitnessRadius:     20,
		MaxWitnesses:      10,
		BraveAbove:        0.7,
		CautiousBelow:     0.4,
		GoodDeedRadius:    30,
		PropagationFactor: 0.1,
		MaxPropagation:    20,
	}
}

// Engine owns every reputation record.
type Engine struct {
	cfg     Config
	w       world.World
	p       world.Personalities
	records map[world.ActorID]*Record
	order   []world.ActorID
}

// New creates an engine reading the given collaborators.
func New(w world.World, p world.Personalities, cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		w:       w,
		p:       p,
		records: make(map[world.ActorID]*Record),
	}
}

// Get returns a copy of an actor's record.
func (e *Engine) Get(actor world.ActorID) (Record, bool) {
	r, ok := e.records[actor]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Records returns copies of all records in creation order.
func (e *Engine) Records() []Record {
	out := make([]Record, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.records[id])
	}
	return out
}

func (e *Engine) record(actor world.ActorID) (*Record, error) {
	if r, ok := e.records[actor]; ok {
		return r, nil
	}
	if !e.w.Exists(actor) {
		return nil, fmt.Errorf("actor %d: %w", actor, world.ErrNotFound)
	}
	r := &Record{Actor: actor, Status: Member}
	e.records[actor] = r
	e.order = append(e.order, actor)
	e.derive(r)
	return r, nil
}

// UpdateReputation shifts an actor's reputation and rederives type,
// influence and status.
func (e *Engine) UpdateReputation(actor world.ActorID, delta float64) error {
	r, err := e.record(actor)
	if err != nil {
		return err
	}
	r.Reputation = bounded.Signed(r.Reputation + delta)
	e.derive(r)
	return nil
}

// RecomputeStatus rederives an actor's labels without changing inputs.
// Calling it repeatedly is idempotent.
func (e *Engine) RecomputeStatus(actor world.ActorID) error {
	r, ok := e.records[actor]
	if !ok {
		return fmt.Errorf("actor %d: %w", actor, world.ErrNotFound)
	}
	e.derive(r)
	return nil
}

func (e *Engine) derive(r *Record) {
	r.Type = classify(r.Reputation, r.Notoriety)
	r.Influence = bounded.Unit(min(float64(r.GoodDeeds)/100, 0.5) + max(r.Reputation, 0))

	prev := r.Status
	r.Status = ladder((r.Reputation+1)*0.5 + r.Influence)
	if r.Status != prev {
		e.applyFlags(r, prev)
	}
}

func classify(rep, notoriety float64) Type {
	switch {
	case notoriety > 0.8:
		return Feared
	case rep > 0.7:
		return Hero
	case rep < -0.7:
		return Criminal
	case rep > 0.3:
		return Friendly
	case rep < -0.3:
		return Hostile
	default:
		return Neutral
	}
}

func ladder(score float64) Status {
	switch {
	case score > 1.8:
		return Legendary
	case score > 1.5:
		return Leader
	case score > 1.2:
		return Influential
	case score > 0.8:
		return Respected
	case score > 0.4:
		return Member
	default:
		return Outsider
	}
}

func (e *Engine) applyFlags(r *Record, prev Status) {
	e.w.SetFlag(r.Actor, world.FlagUntargetable, r.Status == Legendary)
	e.w.SetFlag(r.Actor, world.FlagAvoided, r.Status == Outsider)
	slog.Debug("social status changed", "actor", r.Actor, "from", prev, "to", r.Status)
}

// RemoveActor forgets an actor.
func (e *Engine) RemoveActor(actor world.ActorID) {
	if _, ok := e.records[actor]; !ok {
		return
	}
	delete(e.records, actor)
	e.order = slices.DeleteFunc(e.order, func(a world.ActorID) bool { return a == actor })
}

// Actors returns actors with records, in creation order.
func (e *Engine) Actors() []world.ActorID {
	return slices.Clone(e.order)
}

// Update rederives every record so status flags track the world.
func (e *Engine) Update() {
	for _, id := range e.order {
		e.derive(e.records[id])
	}
}
