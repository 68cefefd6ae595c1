// Package social holds the families and factions the simulation reasons
// about: membership, home, honor, stability, cohesion and traditions.
package social

import (
	"fmt"
	"slices"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/world"
)

// Role is a member's relation within the group.
type Role uint8

const (
	RoleKin Role = iota
	RoleHead
	RoleSpouse
	RoleChild
	RoleElder
	RoleMediator
)

func (r Role) String() string {
	switch r {
	case RoleKin:
		return "kin"
	case RoleHead:
		return "head"
	case RoleSpouse:
		return "spouse"
	case RoleChild:
		return "child"
	case RoleElder:
		return "elder"
	case RoleMediator:
		return "mediator"
	default:
		return "unknown"
	}
}

// ParseRole maps a name back to a Role.
func ParseRole(s string) (Role, bool) {
	for r := RoleKin; r <= RoleMediator; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

// Member is an actor and its relation role, in join order.
type Member struct {
	Actor world.ActorID `json:"actor"`
	Role  Role          `json:"role"`
}

// Group is a family or faction. Scalars are clamped on write; use the
// Adjust methods rather than assigning.
type Group struct {
	ID         world.GroupID `json:"id"`
	Name       string        `json:"name"`
	Members    []Member      `json:"members"`
	Home       world.Vec3    `json:"home"`
	Honor      float64       `json:"honor"`
	Stability  float64       `json:"stability"`
	Cohesion   float64       `json:"cohesion"`
	Traditions []string      `json:"traditions"`
}

// NewGroup creates a group with neutral standing.
func NewGroup(id world.GroupID, name string, home world.Vec3) *Group {
	return &Group{
		ID:        id,
		Name:      name,
		Home:      home,
		Honor:     0.5,
		Stability: 0.5,
		Cohesion:  0.5,
	}
}

// Actors returns member actor ids in join order.
func (g *Group) Actors() []world.ActorID {
	out := make([]world.ActorID, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.Actor
	}
	return out
}

// Has reports membership.
func (g *Group) Has(actor world.ActorID) bool {
	_, ok := g.RoleOf(actor)
	return ok
}

// RoleOf returns the member's relation role.
func (g *Group) RoleOf(actor world.ActorID) (Role, bool) {
	for _, m := range g.Members {
		if m.Actor == actor {
			return m.Role, true
		}
	}
	return 0, false
}

func (g *Group) SetHonor(v float64)     { g.Honor = bounded.Unit(v) }
func (g *Group) SetStability(v float64) { g.Stability = bounded.Unit(v) }
func (g *Group) SetCohesion(v float64)  { g.Cohesion = bounded.Unit(v) }

func (g *Group) AdjustHonor(d float64)     { g.SetHonor(g.Honor + d) }
func (g *Group) AdjustStability(d float64) { g.SetStability(g.Stability + d) }
func (g *Group) AdjustCohesion(d float64)  { g.SetCohesion(g.Cohesion + d) }

// AddTraditions merges traditions, keeping the set sorted and unique.
func (g *Group) AddTraditions(ts ...string) {
	for _, t := range ts {
		if t == "" {
			continue
		}
		i, found := slices.BinarySearch(g.Traditions, t)
		if !found {
			g.Traditions = slices.Insert(g.Traditions, i, t)
		}
	}
}

// HasTradition reports whether the group keeps tradition t.
func (g *Group) HasTradition(t string) bool {
	_, found := slices.BinarySearch(g.Traditions, t)
	return found
}

// Clone returns a deep copy for read-only publication.
func (g *Group) Clone() Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	c.Traditions = slices.Clone(g.Traditions)
	return c
}

func (g *Group) String() string {
	return fmt.Sprintf("%s(%d members)", g.ID, len(g.Members))
}
