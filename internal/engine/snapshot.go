package engine

import (
	"time"

	"github.com/talgya/kindred/internal/diplomacy"
	"github.com/talgya/kindred/internal/events"
	"github.com/talgya/kindred/internal/gathering"
	"github.com/talgya/kindred/internal/migration"
	"github.com/talgya/kindred/internal/rituals"
	"github.com/talgya/kindred/internal/world"
)

// GroupView is the published summary of one group.
type GroupView struct {
	ID         world.GroupID `json:"id"`
	Name       string        `json:"name"`
	Home       world.Vec3    `json:"home"`
	Honor      float64       `json:"honor"`
	Stability  float64       `json:"stability"`
	Cohesion   float64       `json:"cohesion"`
	Tension    float64       `json:"tension"`
	Members    int           `json:"members"`
	Leader     world.ActorID `json:"leader,omitempty"`
	Traditions []string      `json:"traditions"`
}

// Stats tracks aggregate world statistics.
type Stats struct {
	Actors          int     `json:"actors"`
	Groups          int     `json:"groups"`
	LiveAlliances   int     `json:"live_alliances"`
	Negotiations    int     `json:"negotiations"`
	Migrations      int     `json:"migrations"`
	Rituals         int     `json:"rituals"`
	SpecialEvents   int     `json:"special_events"`
	Gatherings      int     `json:"gatherings"`
	AvgTension      float64 `json:"avg_tension"`
	AvgCohesion     float64 `json:"avg_cohesion"`
	ChronicleLength int     `json:"chronicle_length"`
}

// Snapshot is an immutable copy of the simulation published after every
// tick. Readers on other goroutines use it without taking the engine lock.
type Snapshot struct {
	Tick         uint64                  `json:"tick"`
	Clock        time.Duration           `json:"clock"`
	SimTime      string                  `json:"sim_time"`
	Season       string                  `json:"season"`
	Weather      string                  `json:"weather"`
	Stats        Stats                   `json:"stats"`
	Groups       []GroupView             `json:"groups"`
	Alliances    []diplomacy.Alliance    `json:"alliances"`
	Negotiations []diplomacy.Negotiation `json:"negotiations"`
	Settlements  []migration.Settlement  `json:"settlements"`
	Migrations   []migration.Plan        `json:"migrations"`
	Rituals      []rituals.Ritual        `json:"rituals"`
	Events       []events.Event          `json:"events"`
	Gatherings   []gathering.Gathering   `json:"gatherings"`
}

// Snapshot returns the most recently published snapshot.
func (s *Simulation) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

func (s *Simulation) publish() {
	snap := &Snapshot{
		Tick:         s.LastTick,
		Clock:        s.host.Now(),
		SimTime:      SimTime(s.LastTick),
		Season:       s.host.Season().String(),
		Weather:      s.host.Weather().String(),
		Alliances:    s.Diplomacy.Alliances(),
		Negotiations: s.Diplomacy.Negotiations(),
		Settlements:  s.Migration.Settlements(),
		Migrations:   s.Migration.Plans(),
		Rituals:      s.Rituals.Rituals(),
		Events:       s.Events.Active(),
		Gatherings:   s.Gatherings.Active(),
	}
	for _, g := range s.Groups.All() {
		v := GroupView{
			ID:         g.ID,
			Name:       g.Name,
			Home:       g.Home,
			Honor:      g.Honor,
			Stability:  g.Stability,
			Cohesion:   g.Cohesion,
			Tension:    s.Memory.Tension(g.ID),
			Members:    len(g.Members),
			Traditions: append([]string(nil), g.Traditions...),
		}
		if leader, ok := s.Hierarchy.Leader(g.ID); ok {
			v.Leader = leader
		}
		snap.Groups = append(snap.Groups, v)
		snap.Stats.Actors += v.Members
		snap.Stats.AvgTension += v.Tension
		snap.Stats.AvgCohesion += v.Cohesion
	}
	if n := len(snap.Groups); n > 0 {
		snap.Stats.AvgTension /= float64(n)
		snap.Stats.AvgCohesion /= float64(n)
	}
	snap.Stats.Groups = len(snap.Groups)
	for _, a := range snap.Alliances {
		if a.Status.Live() {
			snap.Stats.LiveAlliances++
		}
	}
	snap.Stats.Negotiations = len(snap.Negotiations)
	for _, p := range snap.Migrations {
		if p.Active {
			snap.Stats.Migrations++
		}
	}
	snap.Stats.Rituals = len(snap.Rituals)
	snap.Stats.SpecialEvents = len(snap.Events)
	snap.Stats.Gatherings = len(snap.Gatherings)
	snap.Stats.ChronicleLength = len(s.chronicle)
	s.snapshot.Store(snap)
}
