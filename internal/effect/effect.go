// Package effect carries cross-subsystem writes. A subsystem never touches
// another subsystem's state directly: it queues an Effect, and the
// coordinator applies the queue right after that subsystem's step.
package effect

import (
	"github.com/talgya/kindred/internal/learning"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/world"
)

// Effect is a queued write. The set is closed.
type Effect interface {
	effect()
}

// Remember writes an event into a group's memory.
type Remember struct {
	Group world.GroupID
	Event memory.Event
}

// AdjustGroup nudges a group's bounded scalars.
type AdjustGroup struct {
	Group     world.GroupID
	Honor     float64
	Stability float64
	Cohesion  float64
}

// AddTraditions merges traditions into a group.
type AddTraditions struct {
	Group      world.GroupID
	Traditions []string
}

// MoveHome relocates a group's home.
type MoveHome struct {
	Group world.GroupID
	To    world.Vec3
}

// Teach passes a behavior from one actor to another inside a group. An
// empty Behavior teaches the group's strongest one.
type Teach struct {
	Group    world.GroupID
	Teacher  world.ActorID
	Student  world.ActorID
	Behavior string
}

// Chronicle is a notable occurrence for the simulation log.
type Chronicle struct {
	Category    string
	Description string
}

// Outcome credits a finished activity to the group's strongest behavior of
// the matching category.
type Outcome struct {
	Group    world.GroupID
	Category learning.Category
	Success  bool
}

// Cooperate marks groups that acted together. Every live alliance
// between any two of them is strengthened.
type Cooperate struct {
	Groups []world.GroupID
}

func (Remember) effect()      {}
func (AdjustGroup) effect()   {}
func (AddTraditions) effect() {}
func (MoveHome) effect()      {}
func (Teach) effect()         {}
func (Chronicle) effect()     {}
func (Outcome) effect()       {}
func (Cooperate) effect()     {}

// Outbox queues effects in emission order.
type Outbox struct {
	items []Effect
}

// Push queues effects.
func (o *Outbox) Push(e ...Effect) {
	o.items = append(o.items, e...)
}

// Remember is shorthand for queueing a memory write.
func (o *Outbox) Remember(group world.GroupID, ev memory.Event) {
	o.items = append(o.items, Remember{Group: group, Event: ev})
}

// Chronicle is shorthand for queueing a log entry.
func (o *Outbox) Chronicle(category, description string) {
	o.items = append(o.items, Chronicle{Category: category, Description: description})
}

// Drain returns and clears the queue.
func (o *Outbox) Drain() []Effect {
	out := o.items
	o.items = nil
	return out
}

// Len returns the number of queued effects.
func (o *Outbox) Len() int {
	return len(o.items)
}
