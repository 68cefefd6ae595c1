package engine

import (
	"fmt"
	"slices"

	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/rituals"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

// FamilyGathering calls the whole family home for a greeting and a meal.
func (s *Simulation) FamilyGathering(group world.GroupID) (string, error) {
	g, err := s.Groups.Lookup(group)
	if err != nil {
		return "", err
	}
	defer s.apply()
	id, err := s.Rituals.Start(group, rituals.Gathering, g.Home, g.Actors())
	if err != nil {
		return "", err
	}
	s.EmitEvent(Event{
		Category:    "social",
		Description: fmt.Sprintf("%s gathered at home", group),
		Meta:        map[string]any{"group": group, "ritual": id},
	})
	return id, nil
}

// PassTradition has the family head or an elder teach a tradition to the
// children in a ceremony at home. The family keeps the tradition and gains
// honor, and each child is taught the teacher's strongest behavior.
func (s *Simulation) PassTradition(group world.GroupID, tradition string) (string, error) {
	g, err := s.Groups.Lookup(group)
	if err != nil {
		return "", err
	}
	if tradition == "" {
		return "", fmt.Errorf("tradition for %s: empty name: %w", group, world.ErrIneligible)
	}
	var (
		teacher  world.ActorID
		students []world.ActorID
	)
	for _, m := range g.Members {
		if !s.host.Exists(m.Actor) {
			continue
		}
		switch m.Role {
		case social.RoleElder, social.RoleHead:
			if teacher == 0 || m.Role == social.RoleElder {
				teacher = m.Actor
			}
		case social.RoleChild:
			students = append(students, m.Actor)
		case social.RoleKin, social.RoleSpouse, social.RoleMediator:
		}
	}
	if teacher == 0 {
		return "", fmt.Errorf("%s has no elder to teach: %w", group, world.ErrIneligible)
	}
	if len(students) == 0 {
		return "", fmt.Errorf("%s has no children to teach: %w", group, world.ErrIneligible)
	}
	defer s.apply()
	id, err := s.Rituals.Start(group, rituals.Ceremony, g.Home, slices.Insert(students, 0, teacher))
	if err != nil {
		return "", err
	}
	s.out.Push(
		effect.AddTraditions{Group: group, Traditions: []string{tradition}},
		effect.AdjustGroup{Group: group, Honor: s.cfg.TraditionHonor},
	)
	for _, st := range students {
		s.out.Push(effect.Teach{Group: group, Teacher: teacher, Student: st})
	}
	s.EmitEvent(Event{
		Category:    "social",
		Description: fmt.Sprintf("%s passed on %s", group, tradition),
		Meta:        map[string]any{"group": group, "teacher": teacher, "students": len(students)},
	})
	return id, nil
}

// ResolveFamilyConflict settles a quarrel between two actors and returns
// the mediator, if any. Inside one group the hierarchy mediates and the
// family loses some honor and stability. Between groups both families lose
// honor and remember the quarrel.
func (s *Simulation) ResolveFamilyConflict(a, b world.ActorID) (world.ActorID, error) {
	defer s.apply()
	return s.conflict(a, b, true)
}

// conflict handles a quarrel. across says whether a quarrel between two
// groups is recorded as well.
func (s *Simulation) conflict(a, b world.ActorID, across bool) (world.ActorID, error) {
	ga, ok := s.Groups.GroupOf(a)
	if !ok {
		return 0, fmt.Errorf("actor %d has no group: %w", a, world.ErrNotFound)
	}
	gb, ok := s.Groups.GroupOf(b)
	if !ok {
		return 0, fmt.Errorf("actor %d has no group: %w", b, world.ErrNotFound)
	}
	if ga == gb {
		med, err := s.Hierarchy.Mediate(ga, a, b)
		if err != nil {
			return 0, err
		}
		g, _ := s.Groups.Get(ga)
		s.out.Push(effect.AdjustGroup{
			Group:     ga,
			Honor:     -g.Honor * s.cfg.QuarrelLoss,
			Stability: -g.Stability * s.cfg.QuarrelLoss,
		})
		s.EmitEvent(Event{
			Category:    "social",
			Description: fmt.Sprintf("%s settled a quarrel between %d and %d", ga, a, b),
			Meta:        map[string]any{"group": ga, "mediator": med},
		})
		return med, nil
	}
	if !across {
		return 0, nil
	}
	at, _ := s.host.Attributes(a)
	for _, id := range []world.GroupID{ga, gb} {
		g, _ := s.Groups.Get(id)
		s.out.Push(effect.AdjustGroup{Group: id, Honor: -g.Honor * s.cfg.FeudLoss})
		s.out.Remember(id, memory.New(memory.Negative, s.cfg.FeudImportance, at.Position, "family_conflict", a, b))
	}
	return 0, nil
}
