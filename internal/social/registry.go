package social

import (
	"fmt"

	"github.com/talgya/kindred/internal/world"
)

// SafeZone is an area where aggression is suppressed.
type SafeZone struct {
	Center world.Vec3 `json:"center" yaml:"center"`
	Radius float64    `json:"radius" yaml:"radius"`
}

// Registry owns every group for the process lifetime. Iteration follows
// insertion order so ticks are reproducible.
type Registry struct {
	groups  map[world.GroupID]*Group
	order   []world.GroupID
	byActor map[world.ActorID]world.GroupID
	zones   []SafeZone
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups:  make(map[world.GroupID]*Group),
		byActor: make(map[world.ActorID]world.GroupID),
	}
}

// Add registers a group. An actor belongs to at most one group.
func (r *Registry) Add(g *Group) error {
	if g.ID == "" {
		return fmt.Errorf("group: empty id: %w", world.ErrInvalidTransition)
	}
	if _, ok := r.groups[g.ID]; ok {
		return fmt.Errorf("group %s: already registered: %w", g.ID, world.ErrInvalidTransition)
	}
	for _, m := range g.Members {
		if other, ok := r.byActor[m.Actor]; ok {
			return fmt.Errorf("actor %d already in %s: %w", m.Actor, other, world.ErrInvalidTransition)
		}
	}
	r.groups[g.ID] = g
	r.order = append(r.order, g.ID)
	for _, m := range g.Members {
		r.byActor[m.Actor] = g.ID
	}
	return nil
}

// Get returns the live group.
func (r *Registry) Get(id world.GroupID) (*Group, bool) {
	g, ok := r.groups[id]
	return g, ok
}

// Lookup returns the group or a wrapped ErrNotFound.
func (r *Registry) Lookup(id world.GroupID) (*Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, world.ErrNotFound)
	}
	return g, nil
}

// IDs returns group ids in insertion order.
func (r *Registry) IDs() []world.GroupID {
	out := make([]world.GroupID, len(r.order))
	copy(out, r.order)
	return out
}

// All returns live groups in insertion order.
func (r *Registry) All() []*Group {
	out := make([]*Group, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.groups[id])
	}
	return out
}

// Len returns the number of groups.
func (r *Registry) Len() int { return len(r.order) }

// GroupOf returns the group an actor belongs to.
func (r *Registry) GroupOf(actor world.ActorID) (world.GroupID, bool) {
	id, ok := r.byActor[actor]
	return id, ok
}

// Join adds an actor to a group.
func (r *Registry) Join(id world.GroupID, actor world.ActorID, role Role) error {
	g, err := r.Lookup(id)
	if err != nil {
		return err
	}
	if other, ok := r.byActor[actor]; ok {
		return fmt.Errorf("actor %d already in %s: %w", actor, other, world.ErrInvalidTransition)
	}
	g.Members = append(g.Members, Member{Actor: actor, Role: role})
	r.byActor[actor] = id
	return nil
}

// RemoveActor drops an actor from its group. Unknown actors are a no-op.
func (r *Registry) RemoveActor(actor world.ActorID) (world.GroupID, bool) {
	id, ok := r.byActor[actor]
	if !ok {
		return "", false
	}
	delete(r.byActor, actor)
	g := r.groups[id]
	for i, m := range g.Members {
		if m.Actor == actor {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			break
		}
	}
	return id, true
}

// AddSafeZone designates an area where aggression is suppressed.
func (r *Registry) AddSafeZone(z SafeZone) {
	r.zones = append(r.zones, z)
}

// SafeZones returns the designated zones.
func (r *Registry) SafeZones() []SafeZone {
	out := make([]SafeZone, len(r.zones))
	copy(out, r.zones)
	return out
}

// InSafeZone reports whether p lies inside any designated zone.
func (r *Registry) InSafeZone(p world.Vec3) bool {
	for _, z := range r.zones {
		if z.Center.Dist2D(p) <= z.Radius {
			return true
		}
	}
	return false
}
