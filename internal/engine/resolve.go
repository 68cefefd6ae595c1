package engine

import (
	"log/slog"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/diplomacy"
	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/events"
	"github.com/talgya/kindred/internal/learning"
	"github.com/talgya/kindred/internal/world"
)

// apply drains the outbox into the owning subsystems.
func (s *Simulation) apply() {
	now := s.host.Now()
	for s.out.Len() > 0 {
		for _, fx := range s.out.Drain() {
			switch fx := fx.(type) {
			case effect.Remember:
				logErr("remember", s.Memory.Record(fx.Group, fx.Event, now))
			case effect.AdjustGroup:
				g, ok := s.Groups.Get(fx.Group)
				if !ok {
					continue
				}
				g.AdjustHonor(fx.Honor)
				g.AdjustStability(fx.Stability)
				g.AdjustCohesion(fx.Cohesion)
			case effect.AddTraditions:
				if g, ok := s.Groups.Get(fx.Group); ok {
					g.AddTraditions(fx.Traditions...)
				}
			case effect.MoveHome:
				s.moveHome(fx.Group, fx.To)
			case effect.Teach:
				logErr("teach", s.Learning.Teach(fx.Group, fx.Teacher, fx.Student, fx.Behavior))
			case effect.Chronicle:
				s.EmitEvent(Event{Category: fx.Category, Description: fx.Description})
			case effect.Outcome:
				logErr("outcome", s.Learning.RecordCategoryOutcome(fx.Group, fx.Category, fx.Success))
			case effect.Cooperate:
				s.cooperate(fx.Groups)
			}
		}
	}
}

// cooperate strengthens every live alliance joining two of groups.
func (s *Simulation) cooperate(groups []world.GroupID) {
	seen := make(map[string]bool)
	for i, a := range groups {
		for _, b := range groups[i+1:] {
			for _, al := range s.Diplomacy.Between(a, b) {
				if seen[al.ID] {
					continue
				}
				seen[al.ID] = true
				logErr("cooperation", s.Diplomacy.HandleEvent(al.ID, diplomacy.Cooperation))
			}
		}
	}
}

func (s *Simulation) moveHome(group world.GroupID, to world.Vec3) {
	g, ok := s.Groups.Get(group)
	if !ok {
		return
	}
	g.Home = to
	s.Hierarchy.SetHome(group, to)
	for _, actor := range g.Actors() {
		s.Routines.SetHome(actor, to)
	}
}

// resolve is the only place that reads and writes across subsystems in one
// step.
func (s *Simulation) resolve(dt time.Duration) {
	s.apply()
	s.riots()
	s.groupDynamics(dt)
	s.environment()
	s.conflicts()
	s.propagate(dt)
	s.cleanup()
	s.apply()
}

func (s *Simulation) riots() {
	for _, r := range s.Memory.DrainRiots() {
		id, err := s.Events.Trigger(events.Riot, r.Location, s.cfg.RiotRadius)
		if err != nil {
			logErr("riot", err)
			continue
		}
		s.EmitEvent(Event{
			Category:    "riot",
			Description: string(r.Group) + " riots",
			Meta:        map[string]any{"group": r.Group, "event": id, "tension": r.Tension},
		})
	}
}

// groupDynamics pulls tense groups together.
func (s *Simulation) groupDynamics(dt time.Duration) {
	for _, g := range s.Groups.All() {
		if s.Memory.Tension(g.ID) > s.cfg.CohesionTension {
			g.AdjustCohesion(bounded.Step(s.cfg.CohesionGain, dt))
		}
	}
}

// environment reacts to a change of weather.
func (s *Simulation) environment() {
	w := s.host.Weather()
	if w == s.weather {
		return
	}
	s.weather = w
	now := s.host.Now()
	s.Memory.RecordWeather(w, s.cfg.Focus, now)
	slog.Info("weather changed", "weather", w)

	storm := w == world.Rain || w == world.Thunder
	if !storm {
		s.Routines.ResumeAll()
	}
	for _, g := range s.Groups.All() {
		logErr("weather adaptation", s.Learning.AdaptToWeather(g.ID, w, g.Home))
		if !s.Memory.ShouldReactToWeather(g.ID, g.Home, now) {
			continue
		}
		if storm {
			for _, actor := range g.Actors() {
				logErr("shelter", s.Routines.Interrupt(actor))
			}
		}
		if w == world.Thunder {
			if _, err := s.Events.Trigger(events.Emergency, g.Home, s.cfg.StormRadius); err != nil {
				logErr("storm", err)
			}
		}
	}
}

// conflicts settles contradictory directives: running events beat routines,
// safe zones beat temper.
func (s *Simulation) conflicts() {
	for _, ev := range s.Events.Active() {
		s.Routines.InterruptNear(ev.Epicenter, ev.Radius)
	}
	s.releaseEnded()
	s.calm()
}

// releaseEnded resumes the routines of people whose event ended, unless
// another event or a storm still holds them.
func (s *Simulation) releaseEnded() {
	finished := s.Events.Finished()
	start := 0
	if s.lastEnded != "" {
		if i := slices.IndexFunc(finished, func(e events.Event) bool { return e.ID == s.lastEnded }); i >= 0 {
			start = i + 1
		}
	}
	if start >= len(finished) {
		return
	}
	s.lastEnded = finished[len(finished)-1].ID
	for _, ev := range finished[start:] {
		s.eventOutcome(ev)
	}
	if s.weather == world.Rain || s.weather == world.Thunder {
		return
	}
	for _, ev := range finished[start:] {
		for _, actor := range ev.Affected {
			attrs, ok := s.host.Attributes(actor)
			if !ok || len(s.Events.Covering(attrs.Position)) > 0 {
				continue
			}
			if s.Routines.Interrupted(actor) {
				logErr("resume", s.Routines.Resume(actor))
			}
		}
	}
}

// eventOutcome credits an event that ran its course to the groups caught
// in it. Groups celebrating together cooperate.
func (s *Simulation) eventOutcome(ev events.Event) {
	if ev.Ended == "cancelled" {
		return
	}
	var groups []world.GroupID
	for _, actor := range ev.Affected {
		if g, ok := s.Groups.GroupOf(actor); ok && !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	cat, success := learning.Combat, false
	switch ev.Kind {
	case events.Celebration:
		cat, success = learning.Social, true
	case events.Emergency:
		cat, success = learning.Survival, true
	case events.Riot, events.GangWar:
	}
	for _, g := range groups {
		logErr("event outcome", s.Learning.RecordCategoryOutcome(g, cat, success))
	}
	if ev.Kind == events.Celebration && len(groups) > 1 {
		s.cooperate(groups)
	}
}

// calm caps aggression inside safe zones and restores it once the actor
// leaves.
func (s *Simulation) calm() {
	limit := s.cfg.SafeAggression
	for _, z := range s.Groups.SafeZones() {
		for _, id := range s.host.ActorsNear(z.Center, z.Radius, s.cfg.SafeZoneScan) {
			t, ok := s.host.Traits(id)
			if !ok || t.Aggression <= limit {
				continue
			}
			if _, held := s.calmed[id]; !held {
				s.calmed[id] = t.Aggression
				s.calmedOrder = append(s.calmedOrder, id)
			}
			t.Aggression = limit
			s.host.SetTraits(id, t)
		}
	}
	for _, id := range slices.Clone(s.calmedOrder) {
		attrs, ok := s.host.Attributes(id)
		if ok && s.Groups.InSafeZone(attrs.Position) {
			continue
		}
		if t, ok := s.host.Traits(id); ok {
			t.Aggression = s.calmed[id]
			s.host.SetTraits(id, t)
		}
		s.release(id)
	}
}

func (s *Simulation) release(id world.ActorID) {
	delete(s.calmed, id)
	s.calmedOrder = slices.DeleteFunc(s.calmedOrder, func(a world.ActorID) bool { return a == id })
}

// propagate lets a bounded rotating set of actors spread their reputation
// one hop.
func (s *Simulation) propagate(dt time.Duration) {
	s.sincePass += dt
	if s.sincePass < s.cfg.PropagationInterval {
		return
	}
	s.sincePass = 0
	actors := s.Reputation.Actors()
	if len(actors) == 0 {
		return
	}
	n := min(s.cfg.PropagationSources, len(actors))
	for i := 0; i < n; i++ {
		logErr("propagate", s.Reputation.Propagate(actors[(s.cursor+i)%len(actors)], s.cfg.PropagationRadius))
	}
	s.cursor = (s.cursor + n) % len(actors)
}

// cleanup removes every trace of actors the world no longer has.
func (s *Simulation) cleanup() {
	seen := make(map[world.ActorID]bool)
	var gone []world.ActorID
	check := func(id world.ActorID) {
		if seen[id] {
			return
		}
		seen[id] = true
		if !s.host.Exists(id) {
			gone = append(gone, id)
		}
	}
	for _, g := range s.Groups.All() {
		for _, id := range g.Actors() {
			check(id)
		}
	}
	for _, id := range s.Reputation.Actors() {
		check(id)
	}
	for _, id := range s.calmedOrder {
		check(id)
	}
	for _, id := range gone {
		s.RemoveActor(id)
	}
}

// RemoveActor drops an actor from every subsystem.
func (s *Simulation) RemoveActor(id world.ActorID) {
	group, _ := s.Groups.RemoveActor(id)
	s.Memory.RemoveActor(id)
	s.Reputation.RemoveActor(id)
	s.Hierarchy.RemoveActor(id)
	s.Learning.RemoveActor(id)
	s.Migration.RemoveActor(id)
	s.Rituals.RemoveActor(id)
	s.Events.RemoveActor(id)
	s.Gatherings.RemoveActor(id)
	s.Routines.RemoveActor(id)
	s.release(id)
	slog.Debug("actor removed", "actor", id, "group", group)
}

func logErr(op string, err error) {
	if err != nil {
		slog.Debug("operation skipped", "op", op, "error", err)
	}
}
