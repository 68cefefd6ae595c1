package world

import "time"

// Task is a directive dispatched to an actor. The set of tasks is closed:
// only types in this package implement it.
type Task interface {
	task()
}

// MoveTo walks the actor to a point.
type MoveTo struct {
	Target Vec3
}

// Follow keeps the actor near another actor.
type Follow struct {
	Leader ActorID
}

// Engage starts hostilities against a target.
type Engage struct {
	Target ActorID
}

// Flee runs from a point of danger.
type Flee struct {
	From Vec3
}

// Scenario plays a named ambient scenario for a while.
type Scenario struct {
	Name     string
	Duration time.Duration
}

// Patrol walks a circuit around a point.
type Patrol struct {
	Center Vec3
	Radius float64
}

// Idle clears any standing directive.
type Idle struct{}

func (MoveTo) task()   {}
func (Follow) task()   {}
func (Engage) task()   {}
func (Flee) task()     {}
func (Scenario) task() {}
func (Patrol) task()   {}
func (Idle) task()     {}

// TaskName returns a short label for logs and chronicles.
func TaskName(t Task) string {
	switch t.(type) {
	case MoveTo:
		return "move_to"
	case Follow:
		return "follow"
	case Engage:
		return "engage"
	case Flee:
		return "flee"
	case Scenario:
		return "scenario"
	case Patrol:
		return "patrol"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}
