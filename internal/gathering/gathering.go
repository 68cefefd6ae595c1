// Package gathering runs social occasions that bring several groups
// together, and the seasonal festivals every group is invited to.
package gathering

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/learning"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

// Kind is the type of gathering.
type Kind uint8

const (
	Feast Kind = iota
	Festival
	Tournament
	Council
	HarvestFestival
	WinterSolstice
)

func (k Kind) String() string {
	switch k {
	case Feast:
		return "feast"
	case Festival:
		return "festival"
	case Tournament:
		return "tournament"
	case Council:
		return "council"
	case HarvestFestival:
		return "harvest_festival"
	case WinterSolstice:
		return "winter_solstice"
	default:
		return "unknown"
	}
}

// ParseKind maps a name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k := Feast; k <= WinterSolstice; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Seasonal reports whether the kind is tied to a season.
func (k Kind) Seasonal() bool {
	return k == HarvestFestival || k == WinterSolstice
}

// ForSeason returns the festival held when season s begins.
func ForSeason(s world.Season) (Kind, bool) {
	switch s {
	case world.Autumn:
		return HarvestFestival, true
	case world.Winter:
		return WinterSolstice, true
	case world.Spring, world.Summer:
	}
	return 0, false
}

type rules struct {
	honor      float64
	duration   time.Duration
	importance float64
	scenarios  []string
	traditions []string
}

func (k Kind) rules() rules {
	switch k {
	case Feast:
		return rules{honor: 0.3, duration: 1800 * time.Second, importance: 0.7, scenarios: []string{"seat_eating", "drinking"}}
	case Festival:
		return rules{honor: 0.4, duration: 3600 * time.Second, importance: 0.8, scenarios: []string{"cheering", "partying"}}
	case Tournament:
		return rules{honor: 0.5, duration: 7200 * time.Second, importance: 0.8, scenarios: []string{"guard_patrol", "guard_stand"}}
	case Council:
		return rules{honor: 0.6, duration: 1800 * time.Second, importance: 0.9, scenarios: []string{"standing_vows"}}
	case HarvestFestival:
		return rules{duration: 7200 * time.Second, importance: 0.9, scenarios: []string{"seat_eating", "cheering"},
			traditions: []string{"community_feast", "crop_blessing", "harvest_dance"}}
	case WinterSolstice:
		return rules{duration: 3600 * time.Second, importance: 1.0, scenarios: []string{"guard_patrol"},
			traditions: []string{"gift_exchange", "light_ceremony", "winter_tales"}}
	default:
		return rules{}
	}
}

// Status is where a gathering stands.
type Status uint8

const (
	Running Status = iota
	Completed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Gathering is one occasion shared by its groups.
type Gathering struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Groups     []world.GroupID `json:"groups"`
	Attendees  []world.ActorID `json:"attendees"`
	Location   world.Vec3      `json:"location"`
	Importance float64         `json:"importance"`
	Traditions []string        `json:"traditions,omitempty"`
	Duration   time.Duration   `json:"duration"`
	Remaining  time.Duration   `json:"remaining"`
	StartedAt  time.Duration   `json:"started_at"`
	Status     Status          `json:"status"`
	Sheltered  bool            `json:"sheltered,omitempty"`
}

// Config holds gathering tuning.
type Config struct {
	MinMembers   int     `yaml:"min_members"`
	MaxAttendees int     `yaml:"max_attendees"`
	HonorGain    float64 `yaml:"honor_gain"`

	// StormShorten scales the time left when a seasonal festival is rained on.
	StormShorten     float64 `yaml:"storm_shorten"`
	SeasonImportance float64 `yaml:"season_importance"`
	FinishedLog      int     `yaml:"finished_log"`
}

// DefaultConfig returns the standard gathering constants.
func DefaultConfig() Config {
	return Config{
		MinMembers:       1,
		MaxAttendees:     20,
		HonorGain:        0.1,
		StormShorten:     0.8,
		SeasonImportance: 0.7,
		FinishedLog:      64,
	}
}

// Engine owns running gatherings and watches the season.
type Engine struct {
	cfg      Config
	w        world.World
	groups   *social.Registry
	out      *effect.Outbox
	active   []*Gathering
	finished []Gathering
	season   world.Season
	seq      int
}

// New creates a gathering engine. The season at creation is taken as
// already begun.
func New(w world.World, groups *social.Registry, out *effect.Outbox, cfg Config) *Engine {
	return &Engine{cfg: cfg, w: w, groups: groups, out: out, season: w.Season()}
}

func (e *Engine) present(g *social.Group) []world.ActorID {
	var out []world.ActorID
	for _, a := range g.Actors() {
		if e.w.Exists(a) {
			out = append(out, a)
		}
	}
	return out
}

// CanParticipate reports why a group may not attend a gathering of kind.
func (e *Engine) CanParticipate(kind Kind, group world.GroupID) error {
	g, err := e.groups.Lookup(group)
	if err != nil {
		return err
	}
	if r := kind.rules(); g.Honor < r.honor {
		return fmt.Errorf("group %s honor %.2f below %.2f for %s: %w", group, g.Honor, r.honor, kind, world.ErrIneligible)
	}
	if n := len(e.present(g)); n < e.cfg.MinMembers {
		return fmt.Errorf("group %s has %d members present: %w", group, n, world.ErrIneligible)
	}
	return nil
}

// Organize opens a gathering of kind among groups. Social gatherings need
// at least two groups; every named group must be eligible.
func (e *Engine) Organize(kind Kind, groups []world.GroupID) (string, error) {
	if kind > WinterSolstice {
		return "", fmt.Errorf("gathering kind %d: %w", kind, world.ErrInvalidTransition)
	}
	var ids []world.GroupID
	for _, g := range groups {
		if !slices.Contains(ids, g) {
			ids = append(ids, g)
		}
	}
	if !kind.Seasonal() && len(ids) < 2 {
		return "", fmt.Errorf("%s needs two groups, got %d: %w", kind, len(ids), world.ErrIneligible)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%s has no groups: %w", kind, world.ErrIneligible)
	}
	for _, g := range ids {
		if err := e.CanParticipate(kind, g); err != nil {
			return "", err
		}
		if e.attending(g) {
			return "", fmt.Errorf("group %s already gathering: %w", g, world.ErrInvalidTransition)
		}
	}
	return e.open(kind, ids), nil
}

func (e *Engine) attending(g world.GroupID) bool {
	for _, ga := range e.active {
		if slices.Contains(ga.Groups, g) {
			return true
		}
	}
	return false
}

// open starts a gathering among already checked groups. It is held at the
// home of the most honorable group.
func (e *Engine) open(kind Kind, ids []world.GroupID) string {
	r := kind.rules()
	e.seq++
	ga := &Gathering{
		ID:         fmt.Sprintf("%s_%d", kind, e.seq),
		Kind:       kind,
		Groups:     ids,
		Importance: r.importance,
		Duration:   r.duration,
		Remaining:  r.duration,
		StartedAt:  e.w.Now(),
	}
	host := -1.0
	var union []string
	for _, id := range ids {
		g, _ := e.groups.Get(id)
		if g.Honor > host {
			host = g.Honor
			ga.Location = g.Home
		}
		union = append(union, g.Traditions...)
		present := e.present(g)
		if n := e.cfg.MaxAttendees; n > 0 && len(present) > n {
			present = present[:n]
		}
		ga.Attendees = append(ga.Attendees, present...)
	}
	ga.Location.Z = e.w.GroundZ(ga.Location.X, ga.Location.Y)

	union = append(union, r.traditions...)
	slices.Sort(union)
	ga.Traditions = slices.Compact(union)
	for _, id := range ids {
		e.out.Push(effect.AddTraditions{Group: id, Traditions: slices.Clone(ga.Traditions)})
	}

	for i, a := range ga.Attendees {
		e.w.Dispatch(a, world.MoveTo{Target: ga.Location})
		e.w.Dispatch(a, world.Scenario{Name: r.scenarios[i%len(r.scenarios)], Duration: ga.Duration})
	}
	e.active = append(e.active, ga)
	e.out.Chronicle("gathering", fmt.Sprintf("%s opened for %d groups at %s", kind, len(ids), ga.Location))
	slog.Info("gathering opened", "kind", kind, "groups", len(ids), "attendees", len(ga.Attendees))
	return ga.ID
}

// Update follows the season and counts down running gatherings. A storm
// over a seasonal festival shortens it once.
func (e *Engine) Update(dt time.Duration) {
	if s := e.w.Season(); s != e.season {
		e.season = s
		e.seasonChanged(s)
	}
	storm := e.w.Weather() == world.Rain || e.w.Weather() == world.Thunder
	for _, ga := range slices.Clone(e.active) {
		if storm && ga.Kind.Seasonal() && !ga.Sheltered {
			ga.Sheltered = true
			ga.Remaining = time.Duration(float64(ga.Remaining) * e.cfg.StormShorten)
		}
		ga.Remaining -= dt
		if ga.Remaining <= 0 {
			e.complete(ga)
		}
	}
}

// seasonChanged lets every group remember the new season and opens that
// season's festival for all eligible groups.
func (e *Engine) seasonChanged(s world.Season) {
	tag := "season_change_" + s.String()
	for _, g := range e.groups.All() {
		e.out.Remember(g.ID, memory.New(memory.Positive, e.cfg.SeasonImportance, g.Home, tag))
	}
	kind, ok := ForSeason(s)
	if !ok {
		return
	}
	var ids []world.GroupID
	for _, g := range e.groups.All() {
		if e.CanParticipate(kind, g.ID) == nil && !e.attending(g.ID) {
			ids = append(ids, g.ID)
		}
	}
	if len(ids) == 0 {
		slog.Debug("no group fit for festival", "kind", kind, "season", s)
		return
	}
	e.open(kind, ids)
}

func (e *Engine) complete(ga *Gathering) {
	tag := "social_event_" + ga.Kind.String()
	for _, g := range ga.Groups {
		e.out.Remember(g, memory.New(memory.Positive, ga.Importance, ga.Location, tag, ga.Attendees...))
		e.out.Push(
			effect.AdjustGroup{Group: g, Honor: e.cfg.HonorGain},
			effect.Outcome{Group: g, Category: learning.Social, Success: true},
		)
	}
	if len(ga.Groups) > 1 {
		e.out.Push(effect.Cooperate{Groups: slices.Clone(ga.Groups)})
	}
	e.out.Chronicle("gathering", fmt.Sprintf("%s closed for %d groups", ga.Kind, len(ga.Groups)))
	e.end(ga, Completed)
}

func (e *Engine) end(ga *Gathering, s Status) {
	ga.Status = s
	if ga.Remaining < 0 {
		ga.Remaining = 0
	}
	e.active = slices.DeleteFunc(e.active, func(x *Gathering) bool { return x == ga })
	e.finished = append(e.finished, clone(ga))
	if n := e.cfg.FinishedLog; n > 0 && len(e.finished) > n {
		e.finished = e.finished[len(e.finished)-n:]
	}
	slog.Info("gathering over", "kind", ga.Kind, "status", s)
}

// Cancel ends a gathering with no outcome.
func (e *Engine) Cancel(id string) error {
	for _, ga := range e.active {
		if ga.ID == id {
			e.end(ga, Cancelled)
			return nil
		}
	}
	return fmt.Errorf("gathering %s: %w", id, world.ErrNotFound)
}

// RemoveActor drops a vanished attendee.
func (e *Engine) RemoveActor(actor world.ActorID) {
	for _, ga := range e.active {
		ga.Attendees = slices.DeleteFunc(ga.Attendees, func(a world.ActorID) bool { return a == actor })
	}
}

// Active returns copies of running gatherings.
func (e *Engine) Active() []Gathering {
	out := make([]Gathering, 0, len(e.active))
	for _, ga := range e.active {
		out = append(out, clone(ga))
	}
	return out
}

// Finished returns recently ended gatherings, oldest first.
func (e *Engine) Finished() []Gathering {
	return slices.Clone(e.finished)
}

func clone(ga *Gathering) Gathering {
	c := *ga
	c.Groups = slices.Clone(ga.Groups)
	c.Attendees = slices.Clone(ga.Attendees)
	c.Traditions = slices.Clone(ga.Traditions)
	return c
}
