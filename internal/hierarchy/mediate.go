package hierarchy

import (
	"fmt"
	"slices"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/world"
)

// Mediate resolves a dispute between a and b. The mediator is the
// non-participant with the best respect and influence blend, preferring
// Elders and designated Mediators. Both disputants are sent to stand
// beside the mediator and lose a little respect; the mediator gains some.
func (e *Engine) Mediate(group world.GroupID, a, b world.ActorID) (world.ActorID, error) {
	f, ok := e.forests[group]
	if !ok {
		return 0, fmt.Errorf("hierarchy %s: %w", group, world.ErrNotFound)
	}
	na, err := e.lookup(group, a)
	if err != nil {
		return 0, err
	}
	nb, err := e.lookup(group, b)
	if err != nil {
		return 0, err
	}

	best := e.mediator(f, a, b, true)
	if best == 0 {
		best = e.mediator(f, a, b, false)
	}
	med := e.node(best)
	if med == nil {
		return 0, fmt.Errorf("hierarchy %s: no mediator: %w", group, world.ErrNotFound)
	}

	if attrs, ok := e.w.Attributes(med.Actor); ok {
		e.w.Dispatch(a, world.MoveTo{Target: attrs.Position.Add(world.Vec3{X: -1})})
		e.w.Dispatch(b, world.MoveTo{Target: attrs.Position.Add(world.Vec3{X: 1})})
	}
	na.Respect = bounded.Unit(na.Respect * e.cfg.RespectLoss)
	nb.Respect = bounded.Unit(nb.Respect * e.cfg.RespectLoss)
	med.Respect = bounded.Unit(med.Respect * e.cfg.RespectGain)
	return med.Actor, nil
}

func (e *Engine) mediator(f *forest, a, b world.ActorID, preferred bool) NodeID {
	var best NodeID
	bestScore := -1.0
	for _, id := range f.members {
		n := e.node(id)
		if n.Actor == a || n.Actor == b || !e.w.Exists(n.Actor) {
			continue
		}
		if preferred && n.Rank != Elder && n.Role != Mediator {
			continue
		}
		score := n.Respect*0.6 + e.influenceOf(n.Actor)*0.4
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	return best
}

// Leader returns the group's leader.
func (e *Engine) Leader(group world.GroupID) (world.ActorID, bool) {
	f, ok := e.forests[group]
	if !ok {
		return 0, false
	}
	n := e.node(f.root)
	if n == nil {
		return 0, false
	}
	return n.Actor, true
}

// Node returns a copy of an actor's node.
func (e *Engine) Node(actor world.ActorID) (Node, bool) {
	n := e.node(e.byActor[actor])
	if n == nil {
		return Node{}, false
	}
	return clone(n), true
}

// Nodes returns copies of a group's nodes in formation order.
func (e *Engine) Nodes(group world.GroupID) []Node {
	f, ok := e.forests[group]
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(f.members))
	for _, id := range f.members {
		out = append(out, clone(e.node(id)))
	}
	return out
}

// Groups returns groups with a hierarchy.
func (e *Engine) Groups() []world.GroupID {
	return slices.Clone(e.order)
}

// Has reports whether the actor holds a node.
func (e *Engine) Has(actor world.ActorID) bool {
	return e.node(e.byActor[actor]) != nil
}

func clone(n *Node) Node {
	c := *n
	c.Subordinates = slices.Clone(n.Subordinates)
	c.Mentees = slices.Clone(n.Mentees)
	return c
}
