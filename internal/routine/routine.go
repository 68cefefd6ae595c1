// Package routine drives each actor's daily schedule.
package routine

import (
	"fmt"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/world"
)

// Activity is one slot of a day.
type Activity struct {
	Name     string     `json:"name"`
	Location world.Vec3 `json:"location"`
	Start    int        `json:"start"`
	End      int        `json:"end"`
	Scenario string     `json:"scenario"`
	Optional bool       `json:"optional,omitempty"`
}

// Covers reports whether hour falls in the slot.
func (a Activity) Covers(hour int) bool { return hour >= a.Start && hour < a.End }

// Routine is an actor's schedule.
type Routine struct {
	Actor       world.ActorID `json:"actor"`
	Home        world.Vec3    `json:"home"`
	Work        world.Vec3    `json:"work"`
	Activities  []Activity    `json:"activities"`
	Current     int           `json:"current"`
	Interrupted bool          `json:"interrupted,omitempty"`
}

// Config holds routine tuning.
type Config struct {
	HourLength    time.Duration `yaml:"hour_length"`
	SlotHours     int           `yaml:"slot_hours"`
	ErrandRadius  float64       `yaml:"errand_radius"`
	MaxInterrupts int           `yaml:"max_interrupts"`
}

// DefaultConfig returns a day of 24 one-minute hours in three hour slots.
func DefaultConfig() Config {
	return Config{HourLength: time.Minute, SlotHours: 3, ErrandRadius: 100, MaxInterrupts: 50}
}

var errands = []struct{ name, scenario string }{
	{"sleep", "sleep_ground"},
	{"work", "clipboard"},
	{"eat", "seat_wall_eating"},
	{"leisure", "stand_mobile"},
	{"shopping", "stand_impatient"},
	{"exercise", "jog_standing"},
}

// Engine owns every actor's routine.
type Engine struct {
	cfg      Config
	w        world.World
	rng      *entropy.Source
	routines map[world.ActorID]*Routine
	order    []world.ActorID
}

// New creates a routine engine.
func New(w world.World, rng *entropy.Source, cfg Config) *Engine {
	if cfg.SlotHours <= 0 {
		cfg.SlotHours = 3
	}
	return &Engine{cfg: cfg, w: w, rng: rng, routines: make(map[world.ActorID]*Routine)}
}

// Assign generates a day for actor around home and work.
func (e *Engine) Assign(actor world.ActorID, home, work world.Vec3) error {
	if !e.w.Exists(actor) {
		return fmt.Errorf("routine for %d: %w", actor, world.ErrNotFound)
	}
	r := &Routine{Actor: actor, Home: home, Work: work, Current: -1}
	for hour := 0; hour < 24; hour += e.cfg.SlotHours {
		a := Activity{Start: hour, End: min(24, hour+e.cfg.SlotHours)}
		switch {
		case hour >= 22 || hour < 6:
			a.Name, a.Scenario, a.Location = errands[0].name, errands[0].scenario, home
		case hour >= 9 && hour < 17:
			a.Name, a.Scenario, a.Location = errands[1].name, errands[1].scenario, work
		default:
			pick := errands[e.rng.Intn(len(errands))]
			a.Name, a.Scenario = pick.name, pick.scenario
			a.Location = e.errandNear(home)
		}
		a.Optional = a.Name != "sleep" && a.Name != "work"
		r.Activities = append(r.Activities, a)
	}
	if _, ok := e.routines[actor]; !ok {
		e.order = append(e.order, actor)
	}
	e.routines[actor] = r
	return nil
}

func (e *Engine) errandNear(home world.Vec3) world.Vec3 {
	half := e.cfg.ErrandRadius / 2
	p := home.Add(world.Vec3{X: e.rng.Range(-half, half), Y: e.rng.Range(-half, half)})
	p.Z = e.w.GroundZ(p.X, p.Y)
	return p
}

// Hour returns the simulated hour of the day.
func (e *Engine) Hour() int {
	if e.cfg.HourLength <= 0 {
		return 0
	}
	return int((e.w.Now() / e.cfg.HourLength) % 24)
}

// Update dispatches the activity of the current hour to everyone whose
// slot just changed.
func (e *Engine) Update() {
	hour := e.Hour()
	for _, id := range e.order {
		r := e.routines[id]
		if r.Interrupted || !e.w.Exists(id) {
			continue
		}
		i := slices.IndexFunc(r.Activities, func(a Activity) bool { return a.Covers(hour) })
		if i < 0 || i == r.Current {
			continue
		}
		r.Current = i
		a := r.Activities[i]
		e.w.Dispatch(id, world.MoveTo{Target: a.Location})
		e.w.Dispatch(id, world.Scenario{Name: a.Scenario, Duration: time.Duration(a.End-a.Start) * e.cfg.HourLength})
	}
}

// Interrupt suspends an actor's routine.
func (e *Engine) Interrupt(actor world.ActorID) error {
	r, ok := e.routines[actor]
	if !ok {
		return fmt.Errorf("routine for %d: %w", actor, world.ErrNotFound)
	}
	r.Interrupted = true
	return nil
}

// InterruptNear suspends the routines of actors around at and returns how
// many were suspended.
func (e *Engine) InterruptNear(at world.Vec3, radius float64) int {
	n := 0
	for _, id := range e.w.ActorsNear(at, radius, e.cfg.MaxInterrupts) {
		if r, ok := e.routines[id]; ok && !r.Interrupted {
			r.Interrupted = true
			n++
		}
	}
	return n
}

// Resume restarts an actor's routine from the current hour.
func (e *Engine) Resume(actor world.ActorID) error {
	r, ok := e.routines[actor]
	if !ok {
		return fmt.Errorf("routine for %d: %w", actor, world.ErrNotFound)
	}
	r.Interrupted = false
	r.Current = -1
	return nil
}

// ResumeAll restarts every suspended routine.
func (e *Engine) ResumeAll() {
	for _, id := range e.order {
		if r := e.routines[id]; r.Interrupted {
			r.Interrupted = false
			r.Current = -1
		}
	}
}

// SetHome moves an actor's home and resets the slots that use it.
func (e *Engine) SetHome(actor world.ActorID, home world.Vec3) {
	r, ok := e.routines[actor]
	if !ok {
		return
	}
	for i := range r.Activities {
		if r.Activities[i].Location == r.Home {
			r.Activities[i].Location = home
		}
	}
	r.Home = home
	r.Current = -1
}

// Interrupted reports whether an actor's routine is suspended.
func (e *Engine) Interrupted(actor world.ActorID) bool {
	r, ok := e.routines[actor]
	return ok && r.Interrupted
}

// Routine returns a copy of an actor's routine.
func (e *Engine) Routine(actor world.ActorID) (Routine, bool) {
	r, ok := e.routines[actor]
	if !ok {
		return Routine{}, false
	}
	c := *r
	c.Activities = slices.Clone(r.Activities)
	return c, true
}

// RemoveActor drops a vanished actor's routine.
func (e *Engine) RemoveActor(actor world.ActorID) {
	if _, ok := e.routines[actor]; !ok {
		return
	}
	delete(e.routines, actor)
	e.order = slices.DeleteFunc(e.order, func(a world.ActorID) bool { return a == actor })
}

// Len returns the number of routines.
func (e *Engine) Len() int { return len(e.order) }
