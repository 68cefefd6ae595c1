package reputation

import (
	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/world"
)

// Reaction is how a witness responded to a crime.
type Reaction struct {
	Witness world.ActorID
	Task    world.Task
}

// RecordCrime marks an actor as the perpetrator of a crime of the given
// severity. Nearby witnesses react by temperament: the brave engage, the
// cautious flee, the rest look away.
func (e *Engine) RecordCrime(actor world.ActorID, severity float64) ([]Reaction, error) {
	r, err := e.record(actor)
	if err != nil {
		return nil, err
	}
	severity = bounded.Unit(severity)
	r.Crimes++
	r.Notoriety = bounded.Unit(r.Notoriety + severity)
	r.Reputation = bounded.Signed(r.Reputation - severity*0.5)
	e.derive(r)

	attrs, ok := e.w.Attributes(actor)
	if !ok {
		return nil, nil
	}
	var reactions []Reaction
	// One extra slot so the perpetrator does not eat a witness place.
	for _, id := range e.w.ActorsNear(attrs.Position, e.cfg.WitnessRadius, e.cfg.MaxWitnesses+1) {
		if id == actor || len(reactions) >= e.cfg.MaxWitnesses {
			continue
		}
		t, ok := e.p.Traits(id)
		if !ok {
			continue
		}
		var task world.Task
		switch {
		case t.Bravery > e.cfg.BraveAbove:
			task = world.Engage{Target: actor}
		case t.Bravery < e.cfg.CautiousBelow:
			task = world.Flee{From: attrs.Position}
		default:
			continue
		}
		e.w.Dispatch(id, task)
		reactions = append(reactions, Reaction{Witness: id, Task: task})
	}
	return reactions, nil
}

// RecordGoodDeed credits an actor and lets word spread nearby.
func (e *Engine) RecordGoodDeed(actor world.ActorID, weight float64) error {
	r, err := e.record(actor)
	if err != nil {
		return err
	}
	r.GoodDeeds++
	r.Reputation = bounded.Signed(r.Reputation + bounded.Unit(weight)*0.5)
	e.derive(r)
	return e.Propagate(actor, e.cfg.GoodDeedRadius)
}

// Propagate nudges the reputation of actors near the source, attenuated
// linearly with distance and signed by the source's own reputation. It is a
// single hop: neighbors do not pass it on.
func (e *Engine) Propagate(actor world.ActorID, radius float64) error {
	src, ok := e.records[actor]
	if !ok {
		return nil
	}
	if src.Reputation == 0 || radius <= 0 {
		return nil
	}
	attrs, ok := e.w.Attributes(actor)
	if !ok {
		return nil
	}
	sign := 1.0
	if src.Reputation < 0 {
		sign = -1
	}
	influence := src.EffectiveInfluence()
	reached := 0
	for _, id := range e.w.ActorsNear(attrs.Position, radius, e.cfg.MaxPropagation+1) {
		if id == actor || reached >= e.cfg.MaxPropagation {
			continue
		}
		reached++
		na, ok := e.w.Attributes(id)
		if !ok {
			continue
		}
		falloff := 1 - na.Position.Dist2D(attrs.Position)/radius
		if falloff <= 0 {
			continue
		}
		if err := e.UpdateReputation(id, sign*falloff*influence*e.cfg.PropagationFactor); err != nil {
			continue
		}
	}
	return nil
}

// RecordInteraction applies a small mutual adjustment after two actors meet.
func (e *Engine) RecordInteraction(a, b world.ActorID, friendly bool) error {
	delta := 0.05
	if !friendly {
		delta = -0.05
	}
	ra, err := e.record(a)
	if err != nil {
		return err
	}
	rb, err := e.record(b)
	if err != nil {
		return err
	}
	for _, r := range []*Record{ra, rb} {
		r.Reputation = bounded.Signed(r.Reputation + delta)
		e.derive(r)
	}
	return nil
}
