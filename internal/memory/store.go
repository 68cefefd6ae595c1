package memory

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/world"
)

// GroupMemory is one group's view of the past.
type GroupMemory struct {
	Events      []Event      `json:"events"`
	Significant []world.Vec3 `json:"significant"`
	Tension     float64      `json:"tension"`

	actors  map[world.ActorID]float64
	rioting bool
	fresh   []Event
}

// ActorImportance returns the highest live importance the actor appears with.
func (m *GroupMemory) ActorImportance(actor world.ActorID) float64 {
	return m.actors[actor]
}

// WeatherRecord is one entry of the global weather log.
type WeatherRecord struct {
	Weather  world.Weather `json:"weather"`
	At       time.Duration `json:"at"`
	Location world.Vec3    `json:"location"`
}

// Store owns every group's memory.
type Store struct {
	cfg     Config
	groups  map[world.GroupID]*GroupMemory
	order   []world.GroupID
	weather []WeatherRecord
	riots   []Riot
	now     time.Duration
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	return &Store{
		cfg:    cfg,
		groups: make(map[world.GroupID]*GroupMemory),
	}
}

// Ensure creates group memory if missing.
func (s *Store) Ensure(group world.GroupID) {
	if _, ok := s.groups[group]; ok {
		return
	}
	s.groups[group] = &GroupMemory{actors: make(map[world.ActorID]float64)}
	s.order = append(s.order, group)
}

// Group returns the live group memory.
func (s *Store) Group(group world.GroupID) (*GroupMemory, bool) {
	m, ok := s.groups[group]
	return m, ok
}

// Record writes ev under group at time now and spreads a weaker copy to
// groups whose significant places lie within the propagation radius.
// An event already below the prune threshold is dropped on arrival.
func (s *Store) Record(group world.GroupID, ev Event, now time.Duration) error {
	m, ok := s.groups[group]
	if !ok {
		return fmt.Errorf("memory %s: %w", group, world.ErrNotFound)
	}
	ev.At = now
	ev.Importance = bounded.Unit(ev.Importance)
	if ev.Importance < s.cfg.PruneBelow {
		return nil
	}
	ev.Initial = ev.Importance
	ev.Origin = group
	ev.Actors = slices.Clone(ev.Actors)
	s.insert(m, ev)

	if !ev.Local && !ev.Propagated {
		s.propagate(group, ev)
	}
	m.Tension = s.tension(m, now)
	return nil
}

func (s *Store) propagate(origin world.GroupID, ev Event) {
	for _, id := range s.order {
		if id == origin {
			continue
		}
		m := s.groups[id]
		if !m.near(ev.Location, s.cfg.PropagationRadius) {
			continue
		}
		cp := ev
		cp.Importance = bounded.Unit(ev.Initial * s.cfg.PropagationFactor)
		cp.Initial = cp.Importance
		cp.Propagated = true
		cp.Actors = slices.Clone(ev.Actors)
		if cp.Importance < s.cfg.PruneBelow {
			continue
		}
		s.insert(m, cp)
		m.Tension = s.tension(m, ev.At)
	}
}

func (m *GroupMemory) near(p world.Vec3, radius float64) bool {
	for _, loc := range m.Significant {
		if loc.Dist(p) <= radius {
			return true
		}
	}
	return false
}

func (s *Store) insert(m *GroupMemory, ev Event) {
	m.Events = append(m.Events, ev)
	for _, a := range ev.Actors {
		if ev.Importance > m.actors[a] {
			m.actors[a] = ev.Importance
		}
	}
	if ev.Importance > s.cfg.SignificantAbove {
		m.markSignificant(ev.Location, s.cfg.MaxSignificant)
	}
	m.fresh = append(m.fresh, ev)
	if s.cfg.MaxEvents > 0 && len(m.Events) > s.cfg.MaxEvents {
		m.dropWeakest()
		m.reindex(s.cfg)
	}
}

func (m *GroupMemory) markSignificant(p world.Vec3, max int) {
	for _, loc := range m.Significant {
		if loc.Dist(p) < 1 {
			return
		}
	}
	m.Significant = append(m.Significant, p)
	if max > 0 && len(m.Significant) > max {
		m.Significant = m.Significant[len(m.Significant)-max:]
	}
}

func (m *GroupMemory) dropWeakest() {
	weakest := 0
	for i, ev := range m.Events {
		if ev.Importance < m.Events[weakest].Importance {
			weakest = i
		}
	}
	n := len(m.Events)
	m.Events = append(m.Events[:weakest], m.Events[weakest+1:]...)
	clear(m.Events[len(m.Events):n])
}

// Update decays every event to Initial*(1-age/Lifetime), prunes what fell
// below the threshold, and recomputes tension. The decay depends only on
// age so the tick rate does not change it.
func (s *Store) Update(now time.Duration) {
	s.now = now
	for _, id := range s.order {
		m := s.groups[id]
		live := m.Events[:0]
		for _, ev := range m.Events {
			decayed := ev.Initial * s.retention(ev.At, now)
			if decayed < ev.Importance {
				ev.Importance = decayed
			}
			if ev.Importance < s.cfg.PruneBelow {
				continue
			}
			live = append(live, ev)
		}
		clear(m.Events[len(live):])
		m.Events = live
		m.reindex(s.cfg)

		m.Tension = s.tension(m, now)
		s.checkRiot(id, m)
	}
}

func (s *Store) retention(at, now time.Duration) float64 {
	if s.cfg.Lifetime <= 0 {
		return 1
	}
	age := bounded.Seconds(now - at)
	return max(0, 1-age/s.cfg.Lifetime.Seconds())
}

// reindex rebuilds the actor map and the significant places from live events.
func (m *GroupMemory) reindex(cfg Config) {
	clear(m.actors)
	var sig []world.Vec3
	for _, ev := range m.Events {
		for _, a := range ev.Actors {
			if ev.Importance > m.actors[a] {
				m.actors[a] = ev.Importance
			}
		}
		if ev.Initial > cfg.SignificantAbove {
			keep := true
			for _, loc := range sig {
				if loc.Dist(ev.Location) < 1 {
					keep = false
					break
				}
			}
			if keep {
				sig = append(sig, ev.Location)
			}
		}
	}
	if cfg.MaxSignificant > 0 && len(sig) > cfg.MaxSignificant {
		sig = sig[len(sig)-cfg.MaxSignificant:]
	}
	m.Significant = sig
}

func (s *Store) tension(m *GroupMemory, now time.Duration) float64 {
	var t float64
	for _, ev := range m.Events {
		w := ev.Importance * s.retention(ev.At, now)
		switch ev.Kind {
		case Threat:
			t += w * 2
		case Negative:
			t += w
		case Positive:
			t -= w * 0.5
		case Neutral, Alliance:
		}
	}
	return bounded.Unit(t)
}

func (s *Store) checkRiot(id world.GroupID, m *GroupMemory) {
	if m.Tension <= s.cfg.RiotThreshold {
		m.rioting = false
		return
	}
	if m.rioting {
		return
	}
	m.rioting = true
	loc := world.Vec3{}
	switch {
	case len(m.Significant) > 0:
		loc = m.Significant[0]
	case len(m.Events) > 0:
		loc = m.Events[len(m.Events)-1].Location
	}
	s.riots = append(s.riots, Riot{Group: id, Location: loc, Tension: m.Tension})
	slog.Info("group tension boiling over", "group", id, "tension", fmt.Sprintf("%.2f", m.Tension))
}

// DrainRiots returns and clears pending riot signals.
func (s *Store) DrainRiots() []Riot {
	out := s.riots
	s.riots = nil
	return out
}

// DrainFresh returns and clears events written to group since the last drain.
func (s *Store) DrainFresh(group world.GroupID) []Event {
	m, ok := s.groups[group]
	if !ok {
		return nil
	}
	out := m.fresh
	m.fresh = nil
	return out
}

// Tension returns the group's current tension, 0 for unknown groups.
func (s *Store) Tension(group world.GroupID) float64 {
	if m, ok := s.groups[group]; ok {
		return m.Tension
	}
	return 0
}

// Events returns a copy of the group's live events, oldest first.
func (s *Store) Events(group world.GroupID) []Event {
	m, ok := s.groups[group]
	if !ok {
		return nil
	}
	return slices.Clone(m.Events)
}

// Recent returns up to n events, newest first.
func (s *Store) Recent(group world.GroupID, n int) []Event {
	m, ok := s.groups[group]
	if !ok || n <= 0 {
		return nil
	}
	out := make([]Event, 0, min(n, len(m.Events)))
	for i := len(m.Events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.Events[i])
	}
	return out
}

// SignificantLocations returns a copy of the group's significant places.
func (s *Store) SignificantLocations(group world.GroupID) []world.Vec3 {
	m, ok := s.groups[group]
	if !ok {
		return nil
	}
	return slices.Clone(m.Significant)
}

// ActorImportance returns the highest importance an actor carries in group.
func (s *Store) ActorImportance(group world.GroupID, actor world.ActorID) float64 {
	if m, ok := s.groups[group]; ok {
		return m.ActorImportance(actor)
	}
	return 0
}

// Groups returns group ids in creation order.
func (s *Store) Groups() []world.GroupID {
	return slices.Clone(s.order)
}

// RemoveActor forgets an actor everywhere. Events survive without it.
func (s *Store) RemoveActor(actor world.ActorID) {
	for _, id := range s.order {
		m := s.groups[id]
		delete(m.actors, actor)
		for i := range m.Events {
			m.Events[i].Actors = slices.DeleteFunc(m.Events[i].Actors, func(a world.ActorID) bool { return a == actor })
		}
	}
}
