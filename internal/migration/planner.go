package migration

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

// waypointSlack absorbs rounding when progress lands on a waypoint.
const waypointSlack = 1e-9

// Engine plans and executes migrations.
type Engine struct {
	cfg    Config
	w      world.World
	groups *social.Registry
	rng    *entropy.Source
	out    *effect.Outbox

	settlements map[string]*Settlement
	order       []string
	nextID      int

	plans     map[world.GroupID]*Plan
	planOrder []world.GroupID
	finished  []Plan

	season world.Season
}

// New creates a migration engine.
func New(w world.World, groups *social.Registry, rng *entropy.Source, out *effect.Outbox, cfg Config) *Engine {
	return &Engine{
		cfg:         cfg,
		w:           w,
		groups:      groups,
		rng:         rng,
		out:         out,
		settlements: make(map[string]*Settlement),
		plans:       make(map[world.GroupID]*Plan),
		season:      w.Season(),
	}
}

// CreateSettlement founds an empty settlement with the stock capacity and
// resources of its terrain.
func (e *Engine) CreateSettlement(at world.Vec3, t Terrain) string {
	e.nextID++
	p := t.profile()
	at.Z = e.w.GroundZ(at.X, at.Y)
	s := &Settlement{
		ID:        fmt.Sprintf("settlement_%d", e.nextID),
		Location:  at,
		Terrain:   t,
		Capacity:  p.capacity,
		Resources: p.resources,
		Seasonal:  p.seasonal,
	}
	e.settlements[s.ID] = s
	e.order = append(e.order, s.ID)
	return s.ID
}

// Found settles a group at its home, joining a settlement already there
// or creating one whose terrain follows the ground height.
func (e *Engine) Found(group world.GroupID) (string, error) {
	g, err := e.groups.Lookup(group)
	if err != nil {
		return "", err
	}
	if s, ok := e.residence(group); ok {
		return s.ID, nil
	}
	var home *Settlement
	for _, id := range e.order {
		if s := e.settlements[id]; s.Location.Dist2D(g.Home) <= e.cfg.SharedWithin {
			home = s
			break
		}
	}
	if home == nil {
		t := Plains
		if e.w.GroundZ(g.Home.X, g.Home.Y) > e.cfg.MountainAbove {
			t = Mountain
		}
		home = e.settlements[e.CreateSettlement(g.Home, t)]
	}
	home.Residents = append(home.Residents, group)
	return home.ID, nil
}

func (e *Engine) residence(group world.GroupID) (*Settlement, bool) {
	for _, id := range e.order {
		if s := e.settlements[id]; slices.Contains(s.Residents, group) {
			return s, true
		}
	}
	return nil, false
}

// occupancy counts members of resident groups.
func (e *Engine) occupancy(s *Settlement) int {
	n := 0
	for _, g := range s.Residents {
		if grp, ok := e.groups.Get(g); ok {
			n += len(grp.Members)
		}
	}
	return n
}

func (e *Engine) nearest(p world.Vec3) (*Settlement, bool) {
	var best *Settlement
	bestD := math.Inf(1)
	for _, id := range e.order {
		s := e.settlements[id]
		if d := s.Location.Dist(p); d < bestD {
			best, bestD = s, d
		}
	}
	return best, best != nil
}

// choose picks a destination for policy. Ties go to the oldest settlement.
func (e *Engine) choose(policy Policy, origin *Settlement, size int, only func(*Settlement) bool) (*Settlement, bool) {
	var best *Settlement
	bestScore := math.Inf(-1)
	for _, id := range e.order {
		s := e.settlements[id]
		if s == origin || e.occupancy(s)+size > s.Capacity {
			continue
		}
		if only != nil && !only(s) {
			continue
		}
		d := s.Location.Dist(origin.Location)
		var score float64
		switch policy {
		case Seasonal, ResourceDriven:
			score = s.Resources
		case ConflictEscape:
			score = d
		case Opportunity:
			score = s.Resources / (1 + d/1000)
		case Forced:
			score = -d
		}
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	return best, best != nil
}

// PlanMigration starts moving a group from the settlement nearest its home
// to one chosen by policy.
func (e *Engine) PlanMigration(group world.GroupID, policy Policy) (string, error) {
	var only func(*Settlement) bool
	if policy == Seasonal {
		switch e.w.Season() {
		case world.Winter:
			only = func(s *Settlement) bool { return s.Terrain == Plains }
		case world.Summer:
			only = func(s *Settlement) bool { return s.Terrain == Mountain }
		case world.Spring, world.Autumn:
		}
	}
	return e.plan(group, policy, only)
}

func (e *Engine) plan(group world.GroupID, policy Policy, only func(*Settlement) bool) (string, error) {
	g, err := e.groups.Lookup(group)
	if err != nil {
		return "", err
	}
	if p, ok := e.plans[group]; ok {
		return "", fmt.Errorf("group %s already migrating (%s): %w", group, p.ID, world.ErrInvalidTransition)
	}
	origin, ok := e.nearest(g.Home)
	if !ok {
		return "", fmt.Errorf("origin for %s: %w", group, world.ErrNotFound)
	}
	dest, ok := e.choose(policy, origin, len(g.Members), only)
	if !ok {
		return "", fmt.Errorf("%s destination for %s: %w", policy, group, world.ErrIneligible)
	}
	now := e.w.Now()
	path := e.BuildPath(origin.Location, dest.Location, origin.Terrain)
	path.Difficulty = e.PathDifficulty(path.Waypoints, path.Terrain, e.w.Season())
	p := &Plan{
		ID:          fmt.Sprintf("%s_migration_%d", group, int64(bounded.Seconds(now))),
		Group:       group,
		Policy:      policy,
		Origin:      origin.ID,
		Destination: dest.ID,
		Path:        path,
		Active:      true,
		Members:     g.Actors(),
		StartedAt:   now,
		waypoint:    -1,
	}
	e.plans[group] = p
	e.planOrder = append(e.planOrder, group)
	e.out.Chronicle("migration", fmt.Sprintf("%s sets out from %s to %s (%s)", group, origin.ID, dest.ID, policy))
	slog.Info("migration planned", "group", group, "policy", policy, "from", origin.ID, "to", dest.ID, "difficulty", path.Difficulty)
	return p.ID, nil
}

// BuildPath interpolates ground-projected waypoints between from and to.
func (e *Engine) BuildPath(from, to world.Vec3, t Terrain) Path {
	n := max(1, e.cfg.Segments)
	path := Path{Terrain: t, Distance: from.Dist(to)}
	for i := 0; i <= n; i++ {
		p := from.Lerp(to, float64(i)/float64(n))
		p.Z = e.w.GroundZ(p.X, p.Y)
		path.Waypoints = append(path.Waypoints, p)
	}
	return path
}

// PathDifficulty scores a route from elevation change and nearby
// obstacles, scaled by terrain and season, in [0,1].
func (e *Engine) PathDifficulty(waypoints []world.Vec3, t Terrain, s world.Season) float64 {
	var d float64
	for i, wp := range waypoints {
		if i > 0 {
			d += math.Abs(wp.Z-waypoints[i-1].Z) / 100
		}
		d += 0.1 * float64(e.w.ObstaclesNear(wp, e.cfg.ObstacleRadius, e.cfg.MaxObstacles))
	}
	d *= t.profile().hardship
	switch s {
	case world.Winter:
		d *= 2.0
	case world.Spring:
		d *= 1.2
	case world.Summer, world.Autumn:
	}
	return bounded.Unit(d)
}

// Cancel stops a group's migration where it is.
func (e *Engine) Cancel(group world.GroupID) error {
	p, ok := e.plans[group]
	if !ok {
		return fmt.Errorf("migration of %s: %w", group, world.ErrNotFound)
	}
	e.end(p, "cancelled")
	return nil
}

func (e *Engine) end(p *Plan, reason string) {
	p.Active = false
	p.Reason = reason
	delete(e.plans, p.Group)
	e.planOrder = slices.DeleteFunc(e.planOrder, func(g world.GroupID) bool { return g == p.Group })
	c := *p
	c.Members = slices.Clone(p.Members)
	e.finished = append(e.finished, c)
	if n := e.cfg.ArchiveSize; n > 0 && len(e.finished) > n {
		e.finished = e.finished[len(e.finished)-n:]
	}
	if reason != "arrived" {
		e.out.Chronicle("migration", fmt.Sprintf("migration of %s stopped: %s", p.Group, reason))
	}
	slog.Info("migration ended", "group", p.Group, "reason", reason, "progress", p.Progress)
}

// Update reacts to season changes and walks every active plan forward.
func (e *Engine) Update(dt time.Duration) {
	if s := e.w.Season(); s != e.season {
		e.season = s
		e.seasonChanged(s)
	}
	for _, g := range slices.Clone(e.planOrder) {
		if p, ok := e.plans[g]; ok {
			e.advance(p, dt)
		}
	}
}

func (e *Engine) advance(p *Plan, dt time.Duration) {
	rate := e.cfg.ProgressRate / math.Max(p.Path.Difficulty, e.cfg.MinDifficulty)
	p.Progress = bounded.Unit(p.Progress + bounded.Step(rate, dt))
	if n := len(p.Path.Waypoints); n > 0 {
		i := min(int(p.Progress*float64(n-1)+waypointSlack), n-1)
		if i != p.waypoint {
			p.waypoint = i
			for _, a := range p.Members {
				if e.w.Exists(a) {
					e.w.Dispatch(a, world.MoveTo{Target: p.Path.Waypoints[i]})
				}
			}
		}
	}
	if p.Progress >= 1 {
		e.arrive(p)
	}
}

func (e *Engine) arrive(p *Plan) {
	dest := e.settlements[p.Destination]
	for _, id := range e.order {
		s := e.settlements[id]
		s.Residents = slices.DeleteFunc(s.Residents, func(g world.GroupID) bool { return g == p.Group })
	}
	dest.Residents = append(dest.Residents, p.Group)
	e.out.Push(effect.MoveHome{Group: p.Group, To: dest.Location})
	e.out.Remember(p.Group, memory.New(memory.Positive, 0.8, dest.Location, "group_migration"))
	e.out.Chronicle("migration", fmt.Sprintf("%s arrived at %s", p.Group, dest.ID))
	e.end(p, "arrived")
}

// seasonChanged evacuates seasonal settlements in winter and closes routes
// the new season makes too hard.
func (e *Engine) seasonChanged(s world.Season) {
	for _, g := range slices.Clone(e.planOrder) {
		p := e.plans[g]
		p.Path.Difficulty = e.PathDifficulty(p.Path.Waypoints, p.Path.Terrain, s)
		if p.Path.Difficulty > e.cfg.CloseAbove {
			e.end(p, "path_closed")
		}
	}
	if s != world.Winter {
		return
	}
	for _, id := range e.order {
		st := e.settlements[id]
		if !st.Seasonal {
			continue
		}
		for _, g := range slices.Clone(st.Residents) {
			if _, busy := e.plans[g]; busy {
				continue
			}
			_, err := e.plan(g, Forced, func(c *Settlement) bool { return c.Terrain == Plains })
			if err != nil {
				_, err = e.plan(g, Forced, func(c *Settlement) bool { return !c.Seasonal })
			}
			if err != nil {
				slog.Debug("evacuation not planned", "group", g, "error", err)
			}
		}
		st.Resources *= 0.5
	}
}

// RemoveActor drops a vanished actor from every plan.
func (e *Engine) RemoveActor(actor world.ActorID) {
	for _, g := range e.planOrder {
		p := e.plans[g]
		p.Members = slices.DeleteFunc(p.Members, func(a world.ActorID) bool { return a == actor })
	}
}

// Settlements returns copies of every settlement.
func (e *Engine) Settlements() []Settlement {
	out := make([]Settlement, 0, len(e.order))
	for _, id := range e.order {
		s := *e.settlements[id]
		s.Residents = slices.Clone(s.Residents)
		out = append(out, s)
	}
	return out
}

// Settlement returns a copy of one settlement.
func (e *Engine) Settlement(id string) (Settlement, bool) {
	s, ok := e.settlements[id]
	if !ok {
		return Settlement{}, false
	}
	c := *s
	c.Residents = slices.Clone(s.Residents)
	return c, true
}

// Plan returns a copy of a group's active plan.
func (e *Engine) Plan(group world.GroupID) (Plan, bool) {
	p, ok := e.plans[group]
	if !ok {
		return Plan{}, false
	}
	c := *p
	c.Members = slices.Clone(p.Members)
	return c, true
}

// Plans returns copies of active plans.
func (e *Engine) Plans() []Plan {
	out := make([]Plan, 0, len(e.planOrder))
	for _, g := range e.planOrder {
		p, _ := e.Plan(g)
		out = append(out, p)
	}
	return out
}

// Finished returns recently ended plans, oldest first.
func (e *Engine) Finished() []Plan {
	return slices.Clone(e.finished)
}
