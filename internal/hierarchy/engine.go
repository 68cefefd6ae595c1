package hierarchy

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/reputation"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

type forest struct {
	root           NodeID
	members        []NodeID
	home           world.Vec3
	sinceDirective time.Duration
}

// Engine owns every group's hierarchy.
type Engine struct {
	cfg     Config
	w       world.World
	p       world.Personalities
	rep     *reputation.Engine
	out     *effect.Outbox
	arena   []Node
	forests map[world.GroupID]*forest
	order   []world.GroupID
	byActor map[world.ActorID]NodeID
}

// New creates an engine. Effects such as succession memories are queued
// on out.
func New(w world.World, p world.Personalities, rep *reputation.Engine, out *effect.Outbox, cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		w:       w,
		p:       p,
		rep:     rep,
		out:     out,
		forests: make(map[world.GroupID]*forest),
		byActor: make(map[world.ActorID]NodeID),
	}
}

func (e *Engine) node(id NodeID) *Node {
	if id == 0 || int(id) > len(e.arena) {
		return nil
	}
	n := &e.arena[id-1]
	if n.removed {
		return nil
	}
	return n
}

func (e *Engine) alloc(n Node) NodeID {
	e.arena = append(e.arena, n)
	id := NodeID(len(e.arena))
	e.arena[id-1].ID = id
	return id
}

func (e *Engine) traits(actor world.ActorID) world.Traits {
	t, _ := e.p.Traits(actor)
	return t
}

func (e *Engine) respectFor(actor world.ActorID) float64 {
	if r, ok := e.rep.Get(actor); ok {
		return bounded.Unit((r.Reputation + 1) / 2)
	}
	return 0.5
}

func (e *Engine) influenceOf(actor world.ActorID) float64 {
	if r, ok := e.rep.Get(actor); ok {
		return r.EffectiveInfluence()
	}
	return 0
}

// Initialize builds a group's hierarchy from its members, replacing any
// previous one. The best-scoring member leads with full authority.
func (e *Engine) Initialize(group world.GroupID, members []social.Member, home world.Vec3) error {
	type cand struct {
		m     social.Member
		score float64
	}
	var cands []cand
	for _, m := range members {
		if !e.w.Exists(m.Actor) {
			continue
		}
		cands = append(cands, cand{m, leaderScore(e.traits(m.Actor))})
	}
	if len(cands) == 0 {
		return fmt.Errorf("hierarchy %s: no live members: %w", group, world.ErrIneligible)
	}
	slices.SortStableFunc(cands, func(a, b cand) int { return cmp.Compare(b.score, a.score) })

	e.drop(group)
	f := &forest{home: home}
	e.forests[group] = f
	e.order = append(e.order, group)

	var elders, veterans []NodeID
	for i, c := range cands {
		n := Node{
			Actor:   c.m.Actor,
			Group:   group,
			Respect: e.respectFor(c.m.Actor),
		}
		if c.m.Role == social.RoleMediator {
			n.Role = Mediator
		}
		switch {
		case i == 0:
			n.Rank = Leader
			n.Authority = 1
		case c.score > e.cfg.ElderAbove:
			n.Rank = Elder
		case c.score > e.cfg.VeteranAbove:
			n.Rank = Veteran
			if e.traits(c.m.Actor).Bravery > e.cfg.EnforcerBravery && n.Role == NoRole {
				n.Role = Enforcer
			}
		default:
			n.Rank = Member
		}
		if i > 0 {
			n.Authority = bounded.Unit(c.score)
		}
		id := e.alloc(n)
		f.members = append(f.members, id)
		e.byActor[c.m.Actor] = id
		switch n.Rank {
		case Leader:
			f.root = id
		case Elder:
			elders = append(elders, id)
		case Veteran:
			veterans = append(veterans, id)
		case Member, Initiate, Outsider:
		}
	}

	// Chain of command: elders answer to the leader, veterans to elders,
	// everyone else to veterans, falling back up the chain when a tier is empty.
	pick := func(tiers [][]NodeID, i int) NodeID {
		for _, t := range tiers {
			if len(t) > 0 {
				return t[i%len(t)]
			}
		}
		return f.root
	}
	var mi, vi, ei int
	for _, id := range f.members {
		n := e.node(id)
		switch n.Rank {
		case Leader:
			continue
		case Elder:
			e.attach(id, f.root)
		case Veteran:
			e.attach(id, pick([][]NodeID{elders}, vi))
			vi++
		case Member, Initiate, Outsider:
			e.attach(id, pick([][]NodeID{veterans, elders}, mi))
			mi++
			if len(elders) > 0 {
				el := e.node(elders[ei%len(elders)])
				el.Mentees = append(el.Mentees, n.Actor)
				ei++
			}
		}
	}
	e.capAuthority(f)
	slog.Info("hierarchy formed", "group", group, "leader", e.node(f.root).Actor, "members", len(f.members))
	return nil
}

func (e *Engine) attach(child, parent NodeID) {
	c := e.node(child)
	if c == nil {
		return
	}
	if old := e.node(c.Superior); old != nil {
		old.Subordinates = slices.DeleteFunc(old.Subordinates, func(id NodeID) bool { return id == child })
	}
	c.Superior = 0
	p := e.node(parent)
	if p == nil || parent == child {
		return
	}
	c.Superior = parent
	p.Subordinates = append(p.Subordinates, child)
}

func (e *Engine) drop(group world.GroupID) {
	f, ok := e.forests[group]
	if !ok {
		return
	}
	for _, id := range f.members {
		n := &e.arena[id-1]
		delete(e.byActor, n.Actor)
		n.removed = true
	}
	delete(e.forests, group)
	e.order = slices.DeleteFunc(e.order, func(g world.GroupID) bool { return g == group })
}

// Join adds an actor to an existing hierarchy as an Initiate.
func (e *Engine) Join(group world.GroupID, actor world.ActorID) error {
	f, ok := e.forests[group]
	if !ok {
		return fmt.Errorf("hierarchy %s: %w", group, world.ErrNotFound)
	}
	if _, ok := e.byActor[actor]; ok {
		return fmt.Errorf("actor %d already ranked: %w", actor, world.ErrInvalidTransition)
	}
	id := e.alloc(Node{Actor: actor, Group: group, Rank: Initiate, Respect: e.respectFor(actor)})
	f.members = append(f.members, id)
	e.byActor[actor] = id
	parent := f.root
	for _, m := range f.members {
		if n := e.node(m); n != nil && n.Rank == Veteran {
			parent = m
			break
		}
	}
	e.attach(id, parent)
	e.capAuthority(f)
	return nil
}

// SetHome updates where enforcers patrol.
func (e *Engine) SetHome(group world.GroupID, home world.Vec3) {
	if f, ok := e.forests[group]; ok {
		f.home = home
	}
}

// SetRank promotes or demotes a non-leader. Leadership changes only
// through succession.
func (e *Engine) SetRank(group world.GroupID, actor world.ActorID, rank Rank) error {
	n, err := e.lookup(group, actor)
	if err != nil {
		return err
	}
	if rank == Leader || n.Rank == Leader {
		return fmt.Errorf("rank %s→%s for %d: %w", n.Rank, rank, actor, world.ErrInvalidTransition)
	}
	n.Rank = rank
	return nil
}

func (e *Engine) lookup(group world.GroupID, actor world.ActorID) (*Node, error) {
	n := e.node(e.byActor[actor])
	if n == nil || n.Group != group {
		return nil, fmt.Errorf("actor %d in %s: %w", actor, group, world.ErrNotFound)
	}
	return n, nil
}

// Update evolves authority for elapsed dt, enforces the superior cap,
// rebalances outsized power and issues periodic directives.
func (e *Engine) Update(dt time.Duration) {
	inertia := bounded.Retain(e.cfg.Inertia, dt)
	gain := 0.0
	if e.cfg.Inertia < 1 {
		gain = (1 - inertia) / (1 - e.cfg.Inertia)
	}
	for _, g := range e.order {
		f := e.forests[g]
		e.evolve(f, inertia, gain)
		e.balance(f)
		e.capAuthority(f)
		f.sinceDirective += dt
		if e.cfg.DirectiveInterval > 0 && f.sinceDirective >= e.cfg.DirectiveInterval {
			f.sinceDirective = 0
			e.direct(g, f)
		}
	}
}

func (e *Engine) evolve(f *forest, inertia, gain float64) {
	prev := make(map[NodeID]float64, len(f.members))
	for _, id := range f.members {
		prev[id] = e.node(id).Authority
	}
	for _, id := range f.members {
		n := e.node(id)
		var input float64
		for _, s := range n.Subordinates {
			input += prev[s] * e.cfg.SubordinateWeight
		}
		input += e.traits(n.Actor).Charisma * e.cfg.CharismaWeight
		input += n.Respect * e.cfg.RespectWeight
		n.Authority = bounded.Unit(inertia*prev[id] + gain*input)
	}
}

// balance sheds authority from any node holding more than ImbalanceAbove
// times the group average down to its subordinates.
func (e *Engine) balance(f *forest) {
	if len(f.members) < 2 {
		return
	}
	var sum float64
	for _, id := range f.members {
		sum += e.node(id).Authority
	}
	avg := sum / float64(len(f.members))
	for _, id := range f.members {
		n := e.node(id)
		if n.Authority <= avg*e.cfg.ImbalanceAbove || len(n.Subordinates) == 0 {
			continue
		}
		excess := n.Authority - avg*e.cfg.ShedTo
		n.Authority = bounded.Unit(n.Authority - excess)
		share := excess / float64(len(n.Subordinates))
		for _, s := range n.Subordinates {
			sub := e.node(s)
			sub.Authority = bounded.Unit(sub.Authority + share)
		}
	}
}

// capAuthority walks down from each root keeping every node at or below
// SubordinateCap times its superior.
func (e *Engine) capAuthority(f *forest) {
	var roots []NodeID
	for _, id := range f.members {
		if e.node(id).Superior == 0 {
			roots = append(roots, id)
		}
	}
	queue := roots
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := e.node(id)
		limit := n.Authority * e.cfg.SubordinateCap
		for _, s := range n.Subordinates {
			sub := e.node(s)
			if sub.Authority > limit {
				sub.Authority = limit
			}
			queue = append(queue, s)
		}
	}
}

func (e *Engine) direct(group world.GroupID, f *forest) {
	root := e.node(f.root)
	for _, id := range f.members {
		n := e.node(id)
		if root != nil && n.Superior == root.ID {
			e.w.Dispatch(n.Actor, world.Follow{Leader: root.Actor})
		}
		if n.Role == Enforcer {
			e.w.Dispatch(n.Actor, world.Patrol{Center: f.home, Radius: e.cfg.PatrolRadius})
		}
		if n.Rank == Elder {
			for _, m := range n.Mentees {
				e.out.Push(effect.Teach{Group: group, Teacher: n.Actor, Student: m})
			}
		}
	}
}

// HandleSuccession installs the best Elder or Veteran as the group's only
// Leader, falling back to Members and Initiates. The previous leader, if
// still present, steps down to Elder.
func (e *Engine) HandleSuccession(group world.GroupID) (world.ActorID, error) {
	f, ok := e.forests[group]
	if !ok {
		return 0, fmt.Errorf("hierarchy %s: %w", group, world.ErrNotFound)
	}
	best := e.successor(f, Elder, Veteran)
	if best == 0 {
		best = e.successor(f, Member, Initiate)
	}
	if best == 0 {
		return 0, fmt.Errorf("hierarchy %s: no successor: %w", group, world.ErrNotFound)
	}

	heir := e.node(best)
	oldRoot := f.root
	e.attach(best, 0)
	heir.Rank = Leader
	heir.Authority = 1
	f.root = best

	if old := e.node(oldRoot); old != nil && oldRoot != best {
		for _, s := range slices.Clone(old.Subordinates) {
			e.attach(s, best)
		}
		old.Rank = Elder
		e.attach(oldRoot, best)
	}
	// Orphans of a departed leader, and any other stray roots, fall in line.
	for _, id := range f.members {
		if n := e.node(id); n != nil && id != best && n.Superior == 0 {
			e.attach(id, best)
		}
	}
	e.capAuthority(f)

	e.out.Remember(group, memory.New(memory.Positive, 1.0, f.home, "leadership_succession", heir.Actor))
	e.out.Chronicle("hierarchy", fmt.Sprintf("%d now leads %s", heir.Actor, group))
	slog.Info("leadership succession", "group", group, "leader", heir.Actor)
	return heir.Actor, nil
}

func (e *Engine) successor(f *forest, ranks ...Rank) NodeID {
	var best NodeID
	bestScore := -1.0
	for _, id := range f.members {
		n := e.node(id)
		if n == nil || id == f.root && n.Rank == Leader || !slices.Contains(ranks, n.Rank) || !e.w.Exists(n.Actor) {
			continue
		}
		t := e.traits(n.Actor)
		score := n.Authority*0.4 + t.Charisma*0.3 + n.Respect*0.3
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	return best
}

// RemoveActor takes an actor out of its hierarchy. Subordinates move up to
// the removed node's superior; losing the leader triggers succession.
func (e *Engine) RemoveActor(actor world.ActorID) {
	id, ok := e.byActor[actor]
	if !ok {
		return
	}
	n := e.node(id)
	if n == nil {
		delete(e.byActor, actor)
		return
	}
	group := n.Group
	f := e.forests[group]
	wasLeader := id == f.root
	superior := n.Superior

	subs := slices.Clone(n.Subordinates)
	e.attach(id, 0)
	n.removed = true
	delete(e.byActor, actor)
	f.members = slices.DeleteFunc(f.members, func(m NodeID) bool { return m == id })
	for _, s := range subs {
		if sn := e.node(s); sn != nil {
			sn.Superior = 0
			if !wasLeader {
				e.attach(s, superior)
			}
		}
	}
	for _, m := range f.members {
		mn := e.node(m)
		mn.Mentees = slices.DeleteFunc(mn.Mentees, func(a world.ActorID) bool { return a == actor })
	}

	if len(f.members) == 0 {
		e.drop(group)
		return
	}
	if wasLeader {
		f.root = 0
		if _, err := e.HandleSuccession(group); err != nil {
			slog.Debug("group left leaderless", "group", group, "error", err)
		}
	}
}
