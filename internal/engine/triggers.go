package engine

import (
	"fmt"

	"github.com/talgya/kindred/internal/diplomacy"
	"github.com/talgya/kindred/internal/events"
	"github.com/talgya/kindred/internal/gathering"
	"github.com/talgya/kindred/internal/hierarchy"
	"github.com/talgya/kindred/internal/learning"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/migration"
	"github.com/talgya/kindred/internal/reputation"
	"github.com/talgya/kindred/internal/rituals"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

// Trigger entry points are invoked by gameplay between ticks. Each applies
// whatever effects it queued before returning.

// RecordEvent writes an event into a group's memory.
func (s *Simulation) RecordEvent(group world.GroupID, ev memory.Event) error {
	defer s.apply()
	return s.Memory.Record(group, ev, s.host.Now())
}

// RecordCrime marks actor as a perpetrator and returns how witnesses reacted.
func (s *Simulation) RecordCrime(actor world.ActorID, severity float64) ([]reputation.Reaction, error) {
	reactions, err := s.Reputation.RecordCrime(actor, severity)
	if err != nil {
		return nil, err
	}
	s.EmitEvent(Event{
		Category:    "crime",
		Description: fmt.Sprintf("actor %d committed a crime", actor),
		Meta:        map[string]any{"actor": actor, "severity": severity, "witnesses": len(reactions)},
	})
	return reactions, nil
}

// RecordGoodDeed credits actor.
func (s *Simulation) RecordGoodDeed(actor world.ActorID, weight float64) error {
	return s.Reputation.RecordGoodDeed(actor, weight)
}

// RecordInteraction adjusts two actors after they meet. A hostile meeting
// is also a family conflict.
func (s *Simulation) RecordInteraction(a, b world.ActorID, friendly bool) error {
	if err := s.Reputation.RecordInteraction(a, b, friendly); err != nil {
		return err
	}
	if !friendly {
		defer s.apply()
		if _, err := s.conflict(a, b, true); err != nil {
			logErr("family conflict", err)
		}
	}
	return nil
}

// RecordCombat reacts to a fight: every group remembers the threat, the
// attacker is treated as a criminal and a gang war breaks out around them.
// A fight inside one group is also mediated by its hierarchy.
func (s *Simulation) RecordCombat(attacker, victim world.ActorID) (string, error) {
	attrs, ok := s.host.Attributes(attacker)
	if !ok {
		return "", fmt.Errorf("attacker %d: %w", attacker, world.ErrNotFound)
	}
	now := s.host.Now()
	ev := memory.New(memory.Threat, s.cfg.CombatImportance, attrs.Position, "combat", attacker, victim)
	// Every group already gets its own copy, so none is propagated.
	ev.Local = true
	for _, id := range s.Groups.IDs() {
		logErr("combat memory", s.Memory.Record(id, ev, now))
	}
	if _, err := s.RecordCrime(attacker, s.cfg.CombatSeverity); err != nil {
		logErr("combat crime", err)
	}
	if _, err := s.conflict(attacker, victim, false); err != nil {
		logErr("combat mediation", err)
	}
	id, err := s.Events.Trigger(events.GangWar, attrs.Position, s.cfg.CombatRadius)
	s.apply()
	return id, err
}

// ProposeAlliance opens an alliance for the target group to consider.
func (s *Simulation) ProposeAlliance(a, b world.GroupID, t diplomacy.AllianceType) (string, error) {
	defer s.apply()
	return s.Diplomacy.ProposeAlliance(a, b, t)
}

// StartNegotiation opens talks between two groups.
func (s *Simulation) StartNegotiation(a, b world.GroupID, topic diplomacy.Topic) (string, error) {
	defer s.apply()
	return s.Diplomacy.StartNegotiation(a, b, topic)
}

// ArrangeMarriage matches a couple across two groups, seals the marriage
// alliance and holds the wedding ceremony at the midpoint of their homes.
func (s *Simulation) ArrangeMarriage(a, b world.GroupID) (diplomacy.Wedding, error) {
	defer s.apply()
	w, err := s.Diplomacy.ArrangeMarriage(a, b)
	if err != nil {
		return diplomacy.Wedding{}, err
	}
	if _, err := s.Rituals.Start(a, rituals.Ceremony, w.Location, w.Couple[:]); err != nil {
		logErr("wedding ceremony", err)
	}
	s.EmitEvent(Event{
		Category:    "social",
		Description: fmt.Sprintf("%s and %s joined by marriage", a, b),
		Meta:        map[string]any{"alliance": w.AllianceID, "couple": w.Couple},
	})
	return w, nil
}

// StartRitual gathers participants at the group's home. With no
// participants named, the whole group attends.
func (s *Simulation) StartRitual(group world.GroupID, kind rituals.Kind, participants []world.ActorID) (string, error) {
	g, err := s.Groups.Lookup(group)
	if err != nil {
		return "", err
	}
	if len(participants) == 0 {
		participants = g.Actors()
	}
	defer s.apply()
	return s.Rituals.Start(group, kind, g.Home, participants)
}

// TriggerSpecialEvent starts a riot, gang war, celebration or emergency.
func (s *Simulation) TriggerSpecialEvent(kind events.Kind, at world.Vec3, radius float64) (string, error) {
	defer s.apply()
	return s.Events.Trigger(kind, at, radius)
}

// PlanMigration sets a group moving under policy.
func (s *Simulation) PlanMigration(group world.GroupID, policy migration.Policy) (string, error) {
	defer s.apply()
	return s.Migration.PlanMigration(group, policy)
}

// RecordOutcome folds one use of a learned behavior into its statistics.
func (s *Simulation) RecordOutcome(group world.GroupID, behavior string, success bool) error {
	return s.Learning.RecordOutcome(group, behavior, success)
}

// RecordCategoryOutcome credits an outcome to the group's strongest
// behavior of a category.
func (s *Simulation) RecordCategoryOutcome(group world.GroupID, c learning.Category, success bool) error {
	return s.Learning.RecordCategoryOutcome(group, c, success)
}

// ShareBehavior hands a behavior from one group's table to another's.
func (s *Simulation) ShareBehavior(source, target world.GroupID, behavior string) error {
	return s.Learning.Share(source, target, behavior)
}

// ReportBreach flags an unmet alliance obligation.
func (s *Simulation) ReportBreach(alliance, obligation string) error {
	return s.Diplomacy.ReportBreach(alliance, obligation)
}

// ShareTraditions merges the traditions of an alliance's members.
func (s *Simulation) ShareTraditions(alliance string) error {
	defer s.apply()
	return s.Diplomacy.ShareTraditions(alliance)
}

// HandleDiplomaticEvent applies a betrayal or cooperation to an alliance.
func (s *Simulation) HandleDiplomaticEvent(alliance string, ev diplomacy.Event) error {
	defer s.apply()
	return s.Diplomacy.HandleEvent(alliance, ev)
}

// ProposeTerm puts a term on the negotiating table.
func (s *Simulation) ProposeTerm(negotiation string, t diplomacy.Term) error {
	defer s.apply()
	return s.Diplomacy.ProposeTerm(negotiation, t)
}

// MakeOffer tables a bundle of terms on behalf of from.
func (s *Simulation) MakeOffer(negotiation string, from world.GroupID, terms []diplomacy.Term) error {
	defer s.apply()
	return s.Diplomacy.MakeOffer(negotiation, from, terms)
}

// RespondToOffer records a participant accepting or refusing the table.
func (s *Simulation) RespondToOffer(negotiation string, g world.GroupID, accept bool) error {
	defer s.apply()
	return s.Diplomacy.Respond(negotiation, g, accept)
}

// AssignMediator brings a third group into a negotiation.
func (s *Simulation) AssignMediator(negotiation string, mediator world.GroupID) error {
	defer s.apply()
	return s.Diplomacy.AssignMediator(negotiation, mediator)
}

// CancelNegotiation ends talks without agreement.
func (s *Simulation) CancelNegotiation(negotiation string) error {
	defer s.apply()
	return s.Diplomacy.Cancel(negotiation)
}

// CancelRitual calls off a group's ritual.
func (s *Simulation) CancelRitual(group world.GroupID) error {
	defer s.apply()
	return s.Rituals.Cancel(group)
}

// CancelEvent ends a special event early. Routines held by it resume on
// the next tick.
func (s *Simulation) CancelEvent(id string) error {
	defer s.apply()
	return s.Events.Cancel(id)
}

// CancelMigration stops a group where it stands.
func (s *Simulation) CancelMigration(group world.GroupID) error {
	defer s.apply()
	return s.Migration.Cancel(group)
}

// OrganizeGathering opens a feast, festival, tournament or council among
// groups.
func (s *Simulation) OrganizeGathering(kind gathering.Kind, groups []world.GroupID) (string, error) {
	defer s.apply()
	return s.Gatherings.Organize(kind, groups)
}

// CancelGathering calls off a gathering with no outcome.
func (s *Simulation) CancelGathering(id string) error {
	defer s.apply()
	return s.Gatherings.Cancel(id)
}

// Mediate has the group's hierarchy settle a dispute and returns the
// mediator.
func (s *Simulation) Mediate(group world.GroupID, a, b world.ActorID) (world.ActorID, error) {
	defer s.apply()
	return s.Hierarchy.Mediate(group, a, b)
}

// SetRank promotes or demotes a member.
func (s *Simulation) SetRank(group world.GroupID, actor world.ActorID, rank hierarchy.Rank) error {
	return s.Hierarchy.SetRank(group, actor, rank)
}

// JoinGroup takes an actor into a group: membership, an Initiate's place in
// the hierarchy and a routine sharing the family's workplace.
func (s *Simulation) JoinGroup(group world.GroupID, actor world.ActorID, role social.Role) error {
	g, err := s.Groups.Lookup(group)
	if err != nil {
		return err
	}
	if !s.host.Exists(actor) {
		return fmt.Errorf("actor %d: %w", actor, world.ErrNotFound)
	}
	if err := s.Groups.Join(group, actor, role); err != nil {
		return err
	}
	if err := s.Hierarchy.Join(group, actor); err != nil {
		s.Groups.RemoveActor(actor)
		return err
	}
	work := g.Home
	for _, m := range g.Actors() {
		if r, ok := s.Routines.Routine(m); ok {
			work = r.Work
			break
		}
	}
	logErr("routine", s.Routines.Assign(actor, g.Home, work))
	s.EmitEvent(Event{
		Category:    "social",
		Description: fmt.Sprintf("actor %d joined %s", actor, group),
		Meta:        map[string]any{"group": group, "actor": actor, "role": role.String()},
	})
	return nil
}
