package learning

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/world"
)

type knowledge struct {
	behaviors    map[string]*Behavior
	order        []string
	seeded       map[string]bool
	locations    []world.Vec3
	ratings      map[world.ActorID]float64
	adaptability float64
	generation   int
}

func (k *knowledge) add(b *Behavior) {
	k.behaviors[b.Name] = b
	k.order = append(k.order, b.Name)
}

// makeRoom evicts the least effective, least used acquired behaviors until
// n more fit under limit. Seeded behaviors and those keep reports are never
// evicted. It returns how many of the n now fit.
func (k *knowledge) makeRoom(n, limit int, keep func(*Behavior) bool) int {
	for len(k.behaviors)+n > limit {
		victim := -1
		for i, name := range k.order {
			b := k.behaviors[name]
			if k.seeded[name] || (keep != nil && keep(b)) {
				continue
			}
			if victim < 0 {
				victim = i
				continue
			}
			v := k.behaviors[k.order[victim]]
			if b.Effectiveness < v.Effectiveness || (b.Effectiveness == v.Effectiveness && b.Uses < v.Uses) {
				victim = i
			}
		}
		if victim < 0 {
			break
		}
		delete(k.behaviors, k.order[victim])
		k.order = slices.Delete(k.order, victim, victim+1)
	}
	return max(0, min(n, limit-len(k.behaviors)))
}

// Engine owns every group's behavior table.
type Engine struct {
	cfg         Config
	w           world.World
	p           world.Personalities
	rng         *entropy.Source
	groups      map[world.GroupID]*knowledge
	order       []world.GroupID
	sinceEvolve time.Duration
}

// New creates a learning engine.
func New(w world.World, p world.Personalities, rng *entropy.Source, cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		w:      w,
		p:      p,
		rng:    rng,
		groups: make(map[world.GroupID]*knowledge),
	}
}

// Initialize seeds a group with the basic behaviors.
func (e *Engine) Initialize(group world.GroupID) error {
	if _, ok := e.groups[group]; ok {
		return fmt.Errorf("learning %s: already initialized: %w", group, world.ErrInvalidTransition)
	}
	k := &knowledge{
		behaviors:    make(map[string]*Behavior),
		seeded:       map[string]bool{"basic_combat": true, "basic_survival": true},
		ratings:      make(map[world.ActorID]float64),
		adaptability: 0.5,
		generation:   1,
	}
	k.add(&Behavior{Name: "basic_combat", Category: Combat, SuccessRate: 0.5, Effectiveness: 0.5})
	k.add(&Behavior{Name: "basic_survival", Category: Survival, SuccessRate: 0.5, Effectiveness: 0.5})
	e.groups[group] = k
	e.order = append(e.order, group)
	return nil
}

func (e *Engine) lookup(group world.GroupID) (*knowledge, error) {
	k, ok := e.groups[group]
	if !ok {
		return nil, fmt.Errorf("learning %s: %w", group, world.ErrNotFound)
	}
	return k, nil
}

func (e *Engine) behavior(group world.GroupID, name string) (*knowledge, *Behavior, error) {
	k, err := e.lookup(group)
	if err != nil {
		return nil, nil, err
	}
	b, ok := k.behaviors[name]
	if !ok {
		return nil, nil, fmt.Errorf("behavior %s/%s: %w", group, name, world.ErrNotFound)
	}
	return k, b, nil
}

// RecordOutcome folds one use of a behavior into its statistics and the
// group's adaptability.
func (e *Engine) RecordOutcome(group world.GroupID, name string, success bool) error {
	k, b, err := e.behavior(group, name)
	if err != nil {
		return err
	}
	var s float64
	if success {
		s = 1
	}
	b.Uses++
	r := e.cfg.LearningRate
	b.SuccessRate = bounded.Unit(b.SuccessRate*(1-r) + s*r)
	b.Effectiveness = bounded.Unit((b.Effectiveness*float64(b.Uses-1) + s) / float64(b.Uses))
	if success {
		k.adaptability = bounded.Unit(k.adaptability*0.9 + 0.1)
	} else {
		k.adaptability = bounded.Unit(k.adaptability*0.9 - 0.05)
	}
	return nil
}

// RecordCategoryOutcome credits the outcome to the group's strongest
// behavior of category.
func (e *Engine) RecordCategoryOutcome(group world.GroupID, c Category, success bool) error {
	k, err := e.lookup(group)
	if err != nil {
		return err
	}
	var best *Behavior
	for _, name := range k.order {
		b := k.behaviors[name]
		if b.Category == c && (best == nil || b.SuccessRate > best.SuccessRate) {
			best = b
		}
	}
	if best == nil {
		return fmt.Errorf("%s behavior for %s: %w", c, group, world.ErrNotFound)
	}
	return e.RecordOutcome(group, best.Name, success)
}

// Share copies a behavior into another group's table as untried.
func (e *Engine) Share(source, target world.GroupID, name string) error {
	_, b, err := e.behavior(source, name)
	if err != nil {
		return err
	}
	to, err := e.lookup(target)
	if err != nil {
		return err
	}
	if _, ok := to.behaviors[name]; ok {
		return fmt.Errorf("behavior %s/%s: already known: %w", target, name, world.ErrInvalidTransition)
	}
	if to.makeRoom(1, e.cfg.MaxBehaviors, nil) < 1 {
		return fmt.Errorf("behavior table %s full: %w", target, world.ErrIneligible)
	}
	c := *b
	c.Uses = 0
	c.Teachers = nil
	to.add(&c)
	return nil
}

// strongest returns the behavior with the best success rate.
func (k *knowledge) strongest() (*Behavior, bool) {
	var best *Behavior
	for _, name := range k.order {
		b := k.behaviors[name]
		if best == nil || b.SuccessRate > best.SuccessRate {
			best = b
		}
	}
	return best, best != nil
}

// Teach has teacher demonstrate a behavior to student. An empty name
// teaches the group's strongest behavior. Teachers must be rated above the
// teaching bar; a first-time teacher is rated by intelligence.
func (e *Engine) Teach(group world.GroupID, teacher, student world.ActorID, name string) error {
	k, err := e.lookup(group)
	if err != nil {
		return err
	}
	var b *Behavior
	if name == "" {
		b, _ = k.strongest()
	} else {
		b = k.behaviors[name]
	}
	if b == nil {
		return fmt.Errorf("behavior %s/%q: %w", group, name, world.ErrNotFound)
	}
	if !e.w.Exists(teacher) || !e.w.Exists(student) {
		return fmt.Errorf("lesson %d→%d: %w", teacher, student, world.ErrNotFound)
	}
	rating, ok := k.ratings[teacher]
	if !ok {
		if t, found := e.p.Traits(teacher); found {
			rating = t.Intelligence
		}
	}
	if rating <= e.cfg.TeachRating {
		return fmt.Errorf("teacher %d rating %.2f: %w", teacher, rating, world.ErrIneligible)
	}
	switch b.Category {
	case Combat:
		e.w.Dispatch(student, world.Engage{Target: teacher})
	case Territory:
		e.w.Dispatch(student, world.MoveTo{Target: b.LastLocation})
	case Survival, Social, Resources, Tactics:
		e.w.Dispatch(student, world.Follow{Leader: teacher})
	}
	k.ratings[teacher] = bounded.Unit(rating + e.cfg.RatingGain)
	if !slices.Contains(b.Teachers, teacher) {
		b.Teachers = append(b.Teachers, teacher)
	}
	slog.Debug("lesson", "group", group, "behavior", b.Name, "teacher", teacher, "student", student)
	return nil
}

// LearnFromEvent adds a behavior seeded by a remembered event. Involved
// actors bright enough to explain it become its teachers.
func (e *Engine) LearnFromEvent(group world.GroupID, ev memory.Event) error {
	k, err := e.lookup(group)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("learned_%s_%d", ev.Tag, int64(bounded.Seconds(ev.At)))
	if _, ok := k.behaviors[name]; ok {
		return nil
	}
	if k.makeRoom(1, e.cfg.MaxBehaviors, nil) < 1 {
		return fmt.Errorf("behavior table %s full: %w", group, world.ErrIneligible)
	}
	b := &Behavior{
		Name:          name,
		Category:      CategoryFor(ev.Kind),
		SuccessRate:   0.5,
		Effectiveness: 0.5,
		LastLocation:  ev.Location,
	}
	for _, a := range ev.Actors {
		if !e.w.Exists(a) {
			continue
		}
		if t, ok := e.p.Traits(a); ok && t.Intelligence > e.cfg.TeacherIntelligence {
			b.Teachers = append(b.Teachers, a)
		}
	}
	k.add(b)
	return nil
}

// AdaptToWeather reweights survival behaviors for the sky over at and
// remembers the place as strategic when the group adapts well.
func (e *Engine) AdaptToWeather(group world.GroupID, w world.Weather, at world.Vec3) error {
	k, err := e.lookup(group)
	if err != nil {
		return err
	}
	for _, name := range k.order {
		b := k.behaviors[name]
		switch b.Category {
		case Survival:
			switch w {
			case world.Rain, world.Thunder:
				b.Effectiveness = bounded.Unit(b.Effectiveness * 1.2)
			case world.Clear:
				b.Effectiveness = bounded.Unit(b.Effectiveness * 0.9)
			case world.Clouds, world.Fog, world.Snow:
			}
		case Territory:
			if w.Wet() {
				b.LastLocation = at
				b.Effectiveness = bounded.Unit(b.Effectiveness + 0.1)
			}
		case Combat, Social, Resources, Tactics:
		}
	}
	if k.adaptability > e.cfg.StrategicAbove && len(k.locations) < e.cfg.MaxLocations {
		known := slices.ContainsFunc(k.locations, func(p world.Vec3) bool { return p.Dist(at) < 1 })
		if !known {
			k.locations = append(k.locations, at)
		}
	}
	return nil
}

// Evolve down-weights failing behaviors and breeds new ones from pairs of
// proven behaviors.
func (e *Engine) Evolve(group world.GroupID) error {
	k, err := e.lookup(group)
	if err != nil {
		return err
	}
	var proven []*Behavior
	for _, name := range k.order {
		b := k.behaviors[name]
		if b.Uses > e.cfg.PruneUses && b.SuccessRate < e.cfg.PruneBelow {
			b.Effectiveness = bounded.Unit(b.Effectiveness * b.Category.downweight())
		}
		if b.SuccessRate > e.cfg.CombineAbove && b.Uses > e.cfg.CombineUses {
			proven = append(proven, b)
		}
	}
	slices.SortFunc(proven, func(a, b *Behavior) int { return strings.Compare(a.Name, b.Name) })

	var born []*Behavior
	for i := range proven {
		for j := i + 1; j < len(proven); j++ {
			a, b := proven[i], proven[j]
			name := "evolved_" + a.Name + "_" + b.Name
			if _, ok := k.behaviors[name]; ok {
				continue
			}
			born = append(born, &Behavior{
				Name:          name,
				Category:      a.Category,
				SuccessRate:   (a.SuccessRate + b.SuccessRate) / 2,
				Effectiveness: (a.Effectiveness + b.Effectiveness) / 2,
				LastLocation:  a.LastLocation,
			})
		}
	}
	room := 0
	if len(born) > 0 {
		room = k.makeRoom(len(born), e.cfg.MaxBehaviors, func(b *Behavior) bool {
			return slices.Contains(proven, b)
		})
	}
	if len(born) > room {
		e.rng.Shuffle(len(born), func(i, j int) { born[i], born[j] = born[j], born[i] })
		born = born[:room]
	}
	for _, b := range born {
		k.add(b)
	}
	k.generation++
	if len(born) > 0 {
		slog.Debug("behaviors evolved", "group", group, "new", len(born), "generation", k.generation)
	}
	return nil
}

// Update learns from memories written since the last call and evolves
// every table once per evolve interval.
func (e *Engine) Update(mem *memory.Store, dt time.Duration) {
	for _, g := range e.order {
		for _, ev := range mem.DrainFresh(g) {
			if ev.Local {
				continue
			}
			if err := e.LearnFromEvent(g, ev); err != nil {
				slog.Debug("event not learned", "group", g, "error", err)
			}
		}
	}
	e.sinceEvolve += dt
	if e.cfg.EvolveInterval <= 0 || e.sinceEvolve < e.cfg.EvolveInterval {
		return
	}
	e.sinceEvolve -= e.cfg.EvolveInterval
	for _, g := range e.order {
		_ = e.Evolve(g)
	}
}

// RemoveActor forgets a vanished actor as a teacher.
func (e *Engine) RemoveActor(actor world.ActorID) {
	for _, g := range e.order {
		k := e.groups[g]
		delete(k.ratings, actor)
		for _, b := range k.behaviors {
			b.Teachers = slices.DeleteFunc(b.Teachers, func(a world.ActorID) bool { return a == actor })
		}
	}
}

// Table returns a copy of a group's knowledge.
func (e *Engine) Table(group world.GroupID) (Table, bool) {
	k, ok := e.groups[group]
	if !ok {
		return Table{}, false
	}
	t := Table{
		Group:              group,
		Adaptability:       k.adaptability,
		Generation:         k.generation,
		StrategicLocations: slices.Clone(k.locations),
	}
	for _, name := range k.order {
		b := *k.behaviors[name]
		b.Teachers = slices.Clone(b.Teachers)
		t.Behaviors = append(t.Behaviors, b)
	}
	return t, true
}

// Behavior returns a copy of one behavior.
func (e *Engine) Behavior(group world.GroupID, name string) (Behavior, bool) {
	_, b, err := e.behavior(group, name)
	if err != nil {
		return Behavior{}, false
	}
	c := *b
	c.Teachers = slices.Clone(b.Teachers)
	return c, true
}

// Groups lists groups with a table.
func (e *Engine) Groups() []world.GroupID {
	return slices.Clone(e.order)
}
