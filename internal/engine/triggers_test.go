package engine

import (
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/talgya/kindred/internal/diplomacy"
	"github.com/talgya/kindred/internal/events"
	"github.com/talgya/kindred/internal/gathering"
	"github.com/talgya/kindred/internal/hierarchy"
	"github.com/talgya/kindred/internal/learning"
	"github.com/talgya/kindred/internal/migration"
	"github.com/talgya/kindred/internal/rituals"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

func remembers(f *fixture, g world.GroupID, tag string) bool {
	for _, ev := range f.sim.Memory.Events(g) {
		if ev.Tag == tag {
			return true
		}
	}
	return false
}

func categoryUses(f *fixture, g world.GroupID, c learning.Category) int {
	t, _ := f.sim.Learning.Table(g)
	n := 0
	for _, b := range t.Behaviors {
		if b.Category == c {
			n += b.Uses
		}
	}
	return n
}

func TestCancelThroughSimulation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if _, err := f.sim.StartRitual("north", rituals.Celebration, nil); err != nil {
		t.Fatal(err)
	}
	if err := f.sim.CancelRitual("north"); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.sim.Rituals.Active("north"); ok {
		t.Fatal("ritual still running after cancel")
	}
	if err := f.sim.CancelRitual("north"); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("second cancel: err = %v", err)
	}

	id, err := f.sim.TriggerSpecialEvent(events.Emergency, world.Vec3{X: -30}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.sim.CancelEvent(id); err != nil {
		t.Fatal(err)
	}
	if len(f.sim.Events.Active()) != 0 {
		t.Fatal("event still running after cancel")
	}
	f.tick()
	if n := categoryUses(f, "north", learning.Survival); n != 0 {
		t.Fatalf("cancelled event credited survival %d times", n)
	}

	if _, err := f.sim.PlanMigration("north", migration.ResourceDriven); err != nil {
		t.Fatal(err)
	}
	if err := f.sim.CancelMigration("north"); err != nil {
		t.Fatal(err)
	}
	if fin := f.sim.Migration.Finished(); len(fin) == 0 || fin[len(fin)-1].Reason != "cancelled" {
		t.Fatalf("finished migrations = %+v", fin)
	}

	nid, err := f.sim.StartNegotiation("north", "south", diplomacy.TopicPeace)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.sim.CancelNegotiation(nid); err != nil {
		t.Fatal(err)
	}
	if n, _ := f.sim.Diplomacy.Negotiation(nid); n.Stage != diplomacy.StageRejected || n.Reason != "cancelled" {
		t.Fatalf("negotiation = %+v", n)
	}
}

func TestNegotiationTriggers(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id, err := f.sim.StartNegotiation("north", "south", diplomacy.TopicTerritory)
	if err != nil {
		t.Fatal(err)
	}
	term := diplomacy.Term{Name: "shared_well", Value: 0.5, Beneficiary: diplomacy.Both, Provider: diplomacy.Both}
	if err := f.sim.ProposeTerm(id, term); err != nil {
		t.Fatal(err)
	}
	if err := f.sim.MakeOffer(id, "north", []diplomacy.Term{{Name: "grazing", Value: 0.3, Beneficiary: "north", Provider: "south"}}); err != nil {
		t.Fatal(err)
	}
	if err := f.sim.RespondToOffer(id, "south", true); err != nil {
		t.Fatal(err)
	}
	n, _ := f.sim.Diplomacy.Negotiation(id)
	if n.Stage < diplomacy.StageDiscussing || n.Progress < 0.25 {
		t.Fatalf("negotiation = %+v", n)
	}
	if err := f.sim.AssignMediator(id, "nowhere"); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("unknown mediator: err = %v", err)
	}
	if err := f.sim.RespondToOffer(id, "nowhere", true); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("outsider response: err = %v", err)
	}
}

func TestAllianceTriggers(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id, _ := f.sim.ProposeAlliance("north", "south", diplomacy.Trade)
	f.tick()
	north, _ := f.sim.Groups.Get("north")
	north.AddTraditions("family_dinner")
	if err := f.sim.ShareTraditions(id); err != nil {
		t.Fatal(err)
	}
	if south, _ := f.sim.Groups.Get("south"); !south.HasTradition("family_dinner") {
		t.Fatalf("south traditions = %v", south.Traditions)
	}
	before, _ := f.sim.Diplomacy.Alliance(id)
	if err := f.sim.HandleDiplomaticEvent(id, diplomacy.Betrayal); err != nil {
		t.Fatal(err)
	}
	after, _ := f.sim.Diplomacy.Alliance(id)
	if math.Abs(after.Trust-before.Trust*0.5) > 1e-9 {
		t.Fatalf("trust %v after betrayal, want %v", after.Trust, before.Trust*0.5)
	}
	if !remembers(f, "north", "alliance_betrayal") {
		t.Fatal("betrayal not remembered")
	}
	if err := f.sim.ReportBreach(id, "no_such_duty"); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("unknown obligation: err = %v", err)
	}
}

func TestEmergencyCreditsSurvival(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if _, err := f.sim.TriggerSpecialEvent(events.Emergency, world.Vec3{X: -30}, 10); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 301; i++ {
		f.tick()
	}
	if n := categoryUses(f, "north", learning.Survival); n != 1 {
		t.Fatalf("north survival uses = %d, want 1", n)
	}
	if n := categoryUses(f, "south", learning.Survival); n != 0 {
		t.Fatalf("south survival uses = %d, want 0", n)
	}
}

func TestGatheringStrengthensAlliance(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	aid, _ := f.sim.ProposeAlliance("north", "south", diplomacy.Trade)
	f.tick()
	before, _ := f.sim.Diplomacy.Alliance(aid)
	g, _ := f.sim.Groups.Get("north")
	honor := g.Honor

	if _, err := f.sim.OrganizeGathering(gathering.Feast, []world.GroupID{"north", "south"}); err != nil {
		t.Fatal(err)
	}
	f.sim.Gatherings.Update(1800 * time.Second)
	f.sim.apply()

	after, _ := f.sim.Diplomacy.Alliance(aid)
	if after.Trust <= before.Trust {
		t.Fatalf("trust %v after feast, was %v", after.Trust, before.Trust)
	}
	if g.Honor <= honor {
		t.Fatalf("honor %v after feast, was %v", g.Honor, honor)
	}
	if !remembers(f, "north", "social_event_feast") || !remembers(f, "south", "alliance_cooperation") {
		t.Fatal("feast or cooperation not remembered")
	}
}

func TestCelebrationAmongAlliesCooperates(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	aid, _ := f.sim.ProposeAlliance("north", "south", diplomacy.Trade)
	f.tick()
	before, _ := f.sim.Diplomacy.Alliance(aid)
	f.sim.eventOutcome(events.Event{
		Kind:     events.Celebration,
		Affected: []world.ActorID{f.north[0], f.south[0], f.south[1]},
		Ended:    "expired",
	})
	f.sim.apply()
	if after, _ := f.sim.Diplomacy.Alliance(aid); after.Trust <= before.Trust {
		t.Fatalf("trust %v after shared celebration, was %v", after.Trust, before.Trust)
	}
}

func TestCombatInsideGroupIsMediated(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	g, _ := f.sim.Groups.Get("north")
	honor, stability := g.Honor, g.Stability
	if _, err := f.sim.RecordCombat(f.north[1], f.north[2]); err != nil {
		t.Fatal(err)
	}
	if g.Honor >= honor || g.Stability >= stability {
		t.Fatalf("honor %v stability %v after a quarrel, was %v %v", g.Honor, g.Stability, honor, stability)
	}
	settled := slices.ContainsFunc(f.sim.Chronicle(), func(e Event) bool {
		return strings.Contains(e.Description, "settled a quarrel")
	})
	if !settled {
		t.Fatal("quarrel not mediated")
	}
}

func TestHostileMeetingBetweenFamilies(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	n, _ := f.sim.Groups.Get("north")
	s, _ := f.sim.Groups.Get("south")
	hn, hs := n.Honor, s.Honor
	if err := f.sim.RecordInteraction(f.north[1], f.south[1], false); err != nil {
		t.Fatal(err)
	}
	if n.Honor >= hn || s.Honor >= hs {
		t.Fatalf("honor north %v south %v", n.Honor, s.Honor)
	}
	if !remembers(f, "north", "family_conflict") || !remembers(f, "south", "family_conflict") {
		t.Fatal("conflict not remembered by both families")
	}
	if _, err := f.sim.ResolveFamilyConflict(f.north[1], 999); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("ungrouped actor: err = %v", err)
	}
}

func TestPassTradition(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	g, _ := f.sim.Groups.Get("north")
	g.Members[2].Role = social.RoleChild
	honor := g.Honor
	if _, err := f.sim.PassTradition("north", "respect_elders"); err != nil {
		t.Fatal(err)
	}
	r, ok := f.sim.Rituals.Active("north")
	if !ok || r.Kind != rituals.Ceremony || !slices.Equal(r.Participants, []world.ActorID{f.north[0], f.north[2]}) {
		t.Fatalf("ritual = %+v, %v", r, ok)
	}
	if !g.HasTradition("respect_elders") || g.Honor <= honor {
		t.Fatalf("traditions %v honor %v", g.Traditions, g.Honor)
	}
	if _, err := f.sim.PassTradition("south", "respect_elders"); !errors.Is(err, world.ErrIneligible) {
		t.Fatalf("childless family: err = %v", err)
	}
}

func TestFamilyGathering(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if _, err := f.sim.FamilyGathering("south"); err != nil {
		t.Fatal(err)
	}
	r, ok := f.sim.Rituals.Active("south")
	if !ok || r.Kind != rituals.Gathering || len(r.Participants) != 3 {
		t.Fatalf("ritual = %+v, %v", r, ok)
	}
	if _, err := f.sim.FamilyGathering("nowhere"); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("unknown family: err = %v", err)
	}
}

func TestJoinGroupAndRank(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	kid := f.w.Spawn("north_kid", world.Vec3{X: -30, Y: 8}, world.Traits{Sociability: 0.5})
	if err := f.sim.JoinGroup("north", kid, social.RoleChild); err != nil {
		t.Fatal(err)
	}
	if g, ok := f.sim.Groups.GroupOf(kid); !ok || g != "north" {
		t.Fatalf("group of newcomer = %q, %v", g, ok)
	}
	if n, ok := f.sim.Hierarchy.Node(kid); !ok || n.Rank != hierarchy.Initiate {
		t.Fatalf("node = %+v, %v", n, ok)
	}
	if _, ok := f.sim.Routines.Routine(kid); !ok {
		t.Fatal("newcomer has no routine")
	}
	if err := f.sim.JoinGroup("south", kid, social.RoleKin); !errors.Is(err, world.ErrInvalidTransition) {
		t.Fatalf("double join: err = %v", err)
	}
	if err := f.sim.SetRank("north", kid, hierarchy.Member); err != nil {
		t.Fatal(err)
	}
	if n, _ := f.sim.Hierarchy.Node(kid); n.Rank != hierarchy.Member {
		t.Fatalf("rank = %v, want member", n.Rank)
	}
	if _, err := f.sim.Mediate("north", f.north[1], kid); err != nil {
		t.Fatal(err)
	}
}

func TestLearningTriggers(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if err := f.sim.RecordOutcome("north", "basic_combat", true); err != nil {
		t.Fatal(err)
	}
	if b, _ := f.sim.Learning.Behavior("north", "basic_combat"); b.Uses != 1 {
		t.Fatalf("uses = %d, want 1", b.Uses)
	}
	if err := f.sim.ShareBehavior("north", "south", "basic_combat"); err == nil {
		t.Fatal("shared a behavior the target already knows")
	}
	if err := f.sim.RecordOutcome("north", "no_such_skill", true); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("unknown behavior: err = %v", err)
	}
}

func TestFollowHandsOverWithoutGaps(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.sim.EmitEvent(Event{Category: "test", Description: "old"})
	backlog, id, ch := f.sim.Follow(1)
	defer f.sim.Unsubscribe(id)
	if len(backlog) != 1 || backlog[0].Description != "old" {
		t.Fatalf("backlog = %+v", backlog)
	}
	f.sim.EmitEvent(Event{Category: "test", Description: "new"})
	if e := <-ch; e.Description != "new" {
		t.Fatalf("streamed %q, want new", e.Description)
	}
	if len(ch) != 0 {
		t.Fatalf("%d extra events streamed", len(ch))
	}
}
