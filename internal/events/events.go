// Package events runs area-wide special events that take over the
// behavior of everyone caught inside them.
package events

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/world"
)

// Kind is the type of special event.
type Kind uint8

const (
	Riot Kind = iota
	GangWar
	Celebration
	Emergency
)

func (k Kind) String() string {
	switch k {
	case Riot:
		return "riot"
	case GangWar:
		return "gang_war"
	case Celebration:
		return "celebration"
	case Emergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// ParseKind maps a name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k := Riot; k <= Emergency; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Duration is how long an event of kind lasts.
func (k Kind) Duration() time.Duration {
	switch k {
	case GangWar:
		return 600 * time.Second
	case Celebration:
		return 900 * time.Second
	case Riot, Emergency:
		return 300 * time.Second
	default:
		return 300 * time.Second
	}
}

func (k Kind) ambience() string {
	switch k {
	case Riot, GangWar:
		return "smoke"
	case Celebration:
		return "fireworks"
	case Emergency:
		return "emergency_lights"
	default:
		return ""
	}
}

var celebrationScenarios = []string{"cheering", "drinking", "partying"}

// Event is a running special event.
type Event struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Epicenter world.Vec3      `json:"epicenter"`
	Radius    float64         `json:"radius"`
	Duration  time.Duration   `json:"duration"`
	Remaining time.Duration   `json:"remaining"`
	StartedAt time.Duration   `json:"started_at"`
	Affected  []world.ActorID `json:"affected"`
	Ended     string          `json:"ended,omitempty"`
}

// Covers reports whether p lies inside the event.
func (ev *Event) Covers(p world.Vec3) bool {
	return ev.Epicenter.Dist2D(p) <= ev.Radius
}

// Config holds event tuning.
type Config struct {
	MaxAffected     int     `yaml:"max_affected"`
	AggressiveAbove float64 `yaml:"aggressive_above"`
	BraveAbove      float64 `yaml:"brave_above"`
	SociableAbove   float64 `yaml:"sociable_above"`
}

// DefaultConfig returns the standard event constants.
func DefaultConfig() Config {
	return Config{MaxAffected: 50, AggressiveAbove: 0.6, BraveAbove: 0.6, SociableAbove: 0.5}
}

// Engine owns running special events.
type Engine struct {
	cfg      Config
	w        world.World
	p        world.Personalities
	rng      *entropy.Source
	out      *effect.Outbox
	active   []*Event
	finished []Event
	seq      int
}

// New creates an event engine.
func New(w world.World, p world.Personalities, rng *entropy.Source, out *effect.Outbox, cfg Config) *Engine {
	return &Engine{cfg: cfg, w: w, p: p, rng: rng, out: out}
}

// Trigger starts an event and directs everyone within radius of at.
func (e *Engine) Trigger(kind Kind, at world.Vec3, radius float64) (string, error) {
	if kind > Emergency {
		return "", fmt.Errorf("event kind %d: %w", kind, world.ErrInvalidTransition)
	}
	if radius <= 0 {
		return "", fmt.Errorf("event radius %.1f: %w", radius, world.ErrIneligible)
	}
	e.seq++
	ev := &Event{
		ID:        fmt.Sprintf("%s_%d", kind, e.seq),
		Kind:      kind,
		Epicenter: at,
		Radius:    radius,
		Duration:  kind.Duration(),
		Remaining: kind.Duration(),
		StartedAt: e.w.Now(),
		Affected:  e.w.ActorsNear(at, radius, e.cfg.MaxAffected),
	}
	e.direct(ev)
	e.w.Effect(ev.Kind.ambience(), at)
	e.active = append(e.active, ev)
	e.out.Chronicle("event", fmt.Sprintf("%s broke out at %s", kind, at))
	slog.Info("special event", "kind", kind, "at", at, "radius", radius, "affected", len(ev.Affected))
	return ev.ID, nil
}

func (e *Engine) traits(a world.ActorID) world.Traits {
	t, _ := e.p.Traits(a)
	return t
}

// direct hands every affected actor a task for the event.
func (e *Engine) direct(ev *Event) {
	var fighters []world.ActorID
	switch ev.Kind {
	case Riot:
		for _, a := range ev.Affected {
			if e.traits(a).Aggression > e.cfg.AggressiveAbove {
				fighters = append(fighters, a)
			}
		}
	case GangWar:
		for _, a := range ev.Affected {
			attr, ok := e.w.Attributes(a)
			if ok && attr.Armed && e.traits(a).Aggression > e.cfg.AggressiveAbove {
				fighters = append(fighters, a)
			}
		}
	case Celebration, Emergency:
	}

	for _, a := range ev.Affected {
		switch ev.Kind {
		case Riot, GangWar:
			if !slices.Contains(fighters, a) {
				e.w.Dispatch(a, world.Flee{From: ev.Epicenter})
				continue
			}
			if target, ok := e.opponent(ev, a, fighters); ok {
				e.w.Dispatch(a, world.Engage{Target: target})
			} else {
				e.w.Dispatch(a, world.Patrol{Center: ev.Epicenter, Radius: ev.Radius / 2})
			}
		case Celebration:
			name := celebrationScenarios[e.rng.Intn(len(celebrationScenarios))]
			e.w.Dispatch(a, world.Scenario{Name: name, Duration: ev.Duration})
		case Emergency:
			t := e.traits(a)
			if t.Bravery > e.cfg.BraveAbove && t.Sociability > e.cfg.SociableAbove {
				e.w.Dispatch(a, world.MoveTo{Target: ev.Epicenter})
			} else {
				e.w.Dispatch(a, world.Flee{From: ev.Epicenter})
			}
		}
	}
}

// opponent picks the nearest target for a fighter: rioters go after
// bystanders, gang members after other gang members.
func (e *Engine) opponent(ev *Event, a world.ActorID, fighters []world.ActorID) (world.ActorID, bool) {
	from, ok := e.w.Attributes(a)
	if !ok {
		return 0, false
	}
	best, bestD := world.ActorID(0), -1.0
	for _, b := range ev.Affected {
		if b == a {
			continue
		}
		fighter := slices.Contains(fighters, b)
		if (ev.Kind == Riot && fighter) || (ev.Kind == GangWar && !fighter) {
			continue
		}
		to, ok := e.w.Attributes(b)
		if !ok {
			continue
		}
		if d := from.Position.Dist(to.Position); bestD < 0 || d < bestD {
			best, bestD = b, d
		}
	}
	return best, bestD >= 0
}

// Update counts down running events and ends the expired ones.
func (e *Engine) Update(dt time.Duration) {
	for _, ev := range slices.Clone(e.active) {
		ev.Remaining -= dt
		if ev.Remaining <= 0 {
			e.end(ev, "expired")
		}
	}
}

func (e *Engine) end(ev *Event, reason string) {
	ev.Ended = reason
	if ev.Remaining < 0 {
		ev.Remaining = 0
	}
	e.active = slices.DeleteFunc(e.active, func(x *Event) bool { return x == ev })
	c := *ev
	c.Affected = slices.Clone(ev.Affected)
	e.finished = append(e.finished, c)
	if len(e.finished) > 64 {
		e.finished = e.finished[len(e.finished)-64:]
	}
	slog.Info("special event over", "kind", ev.Kind, "reason", reason)
}

// Cancel ends an event early.
func (e *Engine) Cancel(id string) error {
	for _, ev := range e.active {
		if ev.ID == id {
			e.end(ev, "cancelled")
			return nil
		}
	}
	return fmt.Errorf("event %s: %w", id, world.ErrNotFound)
}

// Covering returns the running events whose area contains p.
func (e *Engine) Covering(p world.Vec3) []Event {
	var out []Event
	for _, ev := range e.active {
		if ev.Covers(p) {
			out = append(out, *ev)
		}
	}
	return out
}

// Active returns copies of running events.
func (e *Engine) Active() []Event {
	out := make([]Event, 0, len(e.active))
	for _, ev := range e.active {
		c := *ev
		c.Affected = slices.Clone(ev.Affected)
		out = append(out, c)
	}
	return out
}

// Finished returns recently ended events, oldest first.
func (e *Engine) Finished() []Event {
	return slices.Clone(e.finished)
}

// RemoveActor forgets a vanished actor.
func (e *Engine) RemoveActor(actor world.ActorID) {
	for _, ev := range e.active {
		ev.Affected = slices.DeleteFunc(ev.Affected, func(a world.ActorID) bool { return a == actor })
	}
}
