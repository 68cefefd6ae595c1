// Package rituals runs phased group rituals whose outcome feeds back into
// group cohesion and stability.
package rituals

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/learning"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/world"
)

// Kind selects a ritual template.
type Kind uint8

const (
	Initiation Kind = iota
	Celebration
	Ceremony
	Gathering
)

func (k Kind) String() string {
	switch k {
	case Initiation:
		return "initiation"
	case Celebration:
		return "celebration"
	case Ceremony:
		return "ceremony"
	case Gathering:
		return "gathering"
	default:
		return "unknown"
	}
}

// ParseKind maps a name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k := Initiation; k <= Gathering; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Phase is one timed step of a ritual.
type Phase struct {
	Name           string        `json:"name"`
	Duration       time.Duration `json:"duration"`
	Scenarios      []string      `json:"scenarios"`
	RequiresLeader bool          `json:"requires_leader,omitempty"`
}

func template(k Kind) (float64, []Phase) {
	switch k {
	case Initiation:
		return 0.9, []Phase{
			{Name: "preparation", Duration: 60 * time.Second, Scenarios: []string{"guard_stand"}, RequiresLeader: true},
			{Name: "ceremony", Duration: 120 * time.Second, Scenarios: []string{"guard_patrol"}, RequiresLeader: true},
		}
	case Celebration:
		return 0.7, []Phase{
			{Name: "gathering", Duration: 30 * time.Second, Scenarios: []string{"partying"}},
			{Name: "feast", Duration: 180 * time.Second, Scenarios: []string{"drinking", "partying"}},
		}
	case Ceremony:
		return 0.8, []Phase{
			{Name: "vows", Duration: 60 * time.Second, Scenarios: []string{"standing_vows"}},
			{Name: "feast", Duration: 120 * time.Second, Scenarios: []string{"drinking"}},
		}
	case Gathering:
		return 0.8, []Phase{
			{Name: "greeting", Duration: 30 * time.Second, Scenarios: []string{"cheering"}},
			{Name: "meal", Duration: 300 * time.Second, Scenarios: []string{"seat_eating"}},
		}
	default:
		return 0, nil
	}
}

// Status is where a ritual stands.
type Status uint8

const (
	Running Status = iota
	Succeeded
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Ritual is one performance by a group.
type Ritual struct {
	ID           string          `json:"id"`
	Group        world.GroupID   `json:"group"`
	Kind         Kind            `json:"kind"`
	Importance   float64         `json:"importance"`
	Phases       []Phase         `json:"phases"`
	Participants []world.ActorID `json:"participants"`
	Location     world.Vec3      `json:"location"`
	Status       Status          `json:"status"`
	Phase        int             `json:"phase"`
	Remaining    time.Duration   `json:"remaining"`
	StartedAt    time.Duration   `json:"started_at"`
}

// Leaders tells who leads a group.
type Leaders interface {
	Leader(group world.GroupID) (world.ActorID, bool)
}

// Radius is the circle participants stand on.
const Radius = 5.0

// Engine runs at most one ritual per group.
type Engine struct {
	w        world.World
	leaders  Leaders
	out      *effect.Outbox
	active   map[world.GroupID]*Ritual
	order    []world.GroupID
	finished []Ritual
	seq      int
}

// New creates a ritual engine.
func New(w world.World, leaders Leaders, out *effect.Outbox) *Engine {
	return &Engine{w: w, leaders: leaders, out: out, active: make(map[world.GroupID]*Ritual)}
}

// Start begins a ritual of kind at a place with the given participants.
func (e *Engine) Start(group world.GroupID, kind Kind, at world.Vec3, participants []world.ActorID) (string, error) {
	importance, phases := template(kind)
	if phases == nil {
		return "", fmt.Errorf("ritual kind %d: %w", kind, world.ErrInvalidTransition)
	}
	if r, ok := e.active[group]; ok {
		return "", fmt.Errorf("group %s already performing %s: %w", group, r.Kind, world.ErrInvalidTransition)
	}
	var present []world.ActorID
	for _, a := range participants {
		if e.w.Exists(a) && !slices.Contains(present, a) {
			present = append(present, a)
		}
	}
	if len(present) == 0 {
		return "", fmt.Errorf("ritual for %s: no participants: %w", group, world.ErrIneligible)
	}
	e.seq++
	at.Z = e.w.GroundZ(at.X, at.Y)
	r := &Ritual{
		ID:           fmt.Sprintf("%s_ritual_%d", group, e.seq),
		Group:        group,
		Kind:         kind,
		Importance:   importance,
		Phases:       phases,
		Participants: present,
		Location:     at,
		StartedAt:    e.w.Now(),
	}
	e.active[group] = r
	e.order = append(e.order, group)
	e.out.Remember(group, memory.New(memory.Positive, importance, at, "group_ritual_"+kind.String(), present...))
	slog.Info("ritual started", "group", group, "kind", kind, "participants", len(present))
	e.enter(r, 0)
	return r.ID, nil
}

// enter begins phase i unless its leader requirement is unmet.
func (e *Engine) enter(r *Ritual, i int) {
	r.Phase = i
	ph := r.Phases[i]
	r.Remaining = ph.Duration
	if ph.RequiresLeader && !e.leaderPresent(r) {
		e.finish(r, Failed)
		return
	}
	n := len(r.Participants)
	for j, a := range r.Participants {
		angle := 2 * math.Pi * float64(j) / float64(n)
		p := world.Vec3{X: r.Location.X + Radius*math.Cos(angle), Y: r.Location.Y + Radius*math.Sin(angle)}
		p.Z = e.w.GroundZ(p.X, p.Y)
		e.w.Dispatch(a, world.MoveTo{Target: p})
		e.w.Dispatch(a, world.Scenario{Name: ph.Scenarios[j%len(ph.Scenarios)], Duration: ph.Duration})
	}
	if r.Kind == Celebration {
		e.w.Effect("fireworks", r.Location.Add(world.Vec3{Z: 10}))
	}
	slog.Debug("ritual phase", "group", r.Group, "phase", ph.Name)
}

func (e *Engine) leaderPresent(r *Ritual) bool {
	lead, ok := e.leaders.Leader(r.Group)
	return ok && e.w.Exists(lead) && slices.Contains(r.Participants, lead)
}

// Update counts down the current phase of every ritual. A ritual whose
// participants have all gone is called off.
func (e *Engine) Update(dt time.Duration) {
	for _, g := range slices.Clone(e.order) {
		r, ok := e.active[g]
		if !ok {
			continue
		}
		if len(r.Participants) == 0 {
			e.finish(r, Cancelled)
			continue
		}
		if r.Phases[r.Phase].RequiresLeader && !e.leaderPresent(r) {
			e.finish(r, Failed)
			continue
		}
		r.Remaining -= dt
		if r.Remaining > 0 {
			continue
		}
		if r.Phase+1 >= len(r.Phases) {
			e.finish(r, Succeeded)
			continue
		}
		e.enter(r, r.Phase+1)
	}
}

func (e *Engine) finish(r *Ritual, s Status) {
	r.Status = s
	delete(e.active, r.Group)
	e.order = slices.DeleteFunc(e.order, func(g world.GroupID) bool { return g == r.Group })
	c := *r
	c.Participants = slices.Clone(r.Participants)
	e.finished = append(e.finished, c)
	if len(e.finished) > 64 {
		e.finished = e.finished[len(e.finished)-64:]
	}

	switch s {
	case Succeeded:
		e.out.Push(effect.AdjustGroup{Group: r.Group, Cohesion: 0.2, Stability: 0.1})
		e.out.Remember(r.Group, memory.New(memory.Positive, r.Importance, r.Location, "ritual_outcome", r.Participants...))
		e.out.Push(effect.Outcome{Group: r.Group, Category: learning.Social, Success: true})
	case Failed:
		e.out.Push(effect.AdjustGroup{Group: r.Group, Stability: -0.2})
		e.out.Remember(r.Group, memory.New(memory.Negative, r.Importance, r.Location, "ritual_outcome", r.Participants...))
		e.out.Push(effect.Outcome{Group: r.Group, Category: learning.Social, Success: false})
	case Running, Cancelled:
	}
	if s != Cancelled {
		e.out.Chronicle("ritual", fmt.Sprintf("%s %s %s", r.Group, r.Kind, s))
	}
	slog.Info("ritual ended", "group", r.Group, "kind", r.Kind, "status", s)
}

// Cancel stops a group's ritual with no outcome.
func (e *Engine) Cancel(group world.GroupID) error {
	r, ok := e.active[group]
	if !ok {
		return fmt.Errorf("ritual for %s: %w", group, world.ErrNotFound)
	}
	e.finish(r, Cancelled)
	return nil
}

// IsParticipating reports whether actor is in a running ritual.
func (e *Engine) IsParticipating(actor world.ActorID) bool {
	for _, g := range e.order {
		if slices.Contains(e.active[g].Participants, actor) {
			return true
		}
	}
	return false
}

// RemoveActor drops a vanished participant.
func (e *Engine) RemoveActor(actor world.ActorID) {
	for _, g := range e.order {
		r := e.active[g]
		r.Participants = slices.DeleteFunc(r.Participants, func(a world.ActorID) bool { return a == actor })
	}
}

// Active returns a copy of a group's running ritual.
func (e *Engine) Active(group world.GroupID) (Ritual, bool) {
	r, ok := e.active[group]
	if !ok {
		return Ritual{}, false
	}
	c := *r
	c.Participants = slices.Clone(r.Participants)
	return c, true
}

// Rituals returns copies of all running rituals.
func (e *Engine) Rituals() []Ritual {
	out := make([]Ritual, 0, len(e.order))
	for _, g := range e.order {
		r, _ := e.Active(g)
		out = append(out, r)
	}
	return out
}

// Finished returns recently ended rituals, oldest first.
func (e *Engine) Finished() []Ritual {
	return slices.Clone(e.finished)
}
