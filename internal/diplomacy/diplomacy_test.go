package diplomacy

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/sandbox"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

type fixture struct {
	w   *sandbox.World
	reg *social.Registry
	mem *memory.Store
	out *effect.Outbox
	e   *Engine
}

func traits(soc, cha float64) world.Traits {
	return world.Traits{Sociability: soc, Charisma: cha, Bravery: 0.5, Intelligence: 0.5}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w := sandbox.New(sandbox.Flat(7))
	f := &fixture{
		w:   w,
		reg: social.NewRegistry(),
		mem: memory.NewStore(memory.DefaultConfig()),
		out: &effect.Outbox{},
	}
	f.e = New(w, w, f.reg, f.mem, entropy.New(7), f.out, DefaultConfig())
	f.group(t, "north", world.Vec3{X: -50}, traits(0.6, 0.6), traits(0.2, 0.9))
	f.group(t, "south", world.Vec3{X: 50}, traits(0.9, 0.1), traits(0.65, 0.55))
	f.group(t, "elders", world.Vec3{Y: 80}, traits(0.5, 0.5))
	return f
}

func (f *fixture) group(t *testing.T, id world.GroupID, home world.Vec3, members ...world.Traits) *social.Group {
	t.Helper()
	g := social.NewGroup(id, string(id), home)
	if err := f.reg.Add(g); err != nil {
		t.Fatal(err)
	}
	f.mem.Ensure(id)
	for i, tr := range members {
		a := f.w.Spawn(string(id), home.Add(world.Vec3{X: float64(i)}), tr)
		if err := f.reg.Join(id, a, social.RoleKin); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func (f *fixture) honor(g world.GroupID, v float64) {
	grp, _ := f.reg.Get(g)
	grp.SetHonor(v)
}

// tick advances the clock and diplomacy by one second.
func (f *fixture) tick() {
	f.w.Advance(time.Second)
	f.e.Update(time.Second)
}

func remembered(effs []effect.Effect, tag string) int {
	n := 0
	for _, e := range effs {
		if r, ok := e.(effect.Remember); ok && r.Event.Tag == tag {
			n++
		}
	}
	return n
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestInitializeMarriage(t *testing.T) {
	f := newFixture(t)
	id, err := f.e.InitializeAlliance("north", "south", Marriage)
	if err != nil {
		t.Fatal(err)
	}
	al, ok := f.e.Alliance(id)
	if !ok {
		t.Fatal("alliance missing")
	}
	if al.Status != Proposed || al.Strength != 0.8 || al.Trust != 0.5 {
		t.Fatalf("got %s strength %v trust %v", al.Status, al.Strength, al.Trust)
	}
	if len(al.Terms.Obligations) != 3 || !al.HasObligation("attend_ceremonies") {
		t.Fatalf("obligations = %v", al.Terms.Obligations)
	}
	if _, err := f.e.InitializeAlliance("north", "south", Marriage); !errors.Is(err, world.ErrInvalidTransition) {
		t.Fatalf("duplicate: err = %v", err)
	}
}

func TestInitializeErrors(t *testing.T) {
	f := newFixture(t)
	if _, err := f.e.InitializeAlliance("north", "north", Trade); !errors.Is(err, world.ErrInvalidTransition) {
		t.Fatalf("self: err = %v", err)
	}
	if _, err := f.e.InitializeAlliance("north", "nowhere", Trade); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("unknown: err = %v", err)
	}
	if err := f.e.Activate("missing"); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("activate unknown: err = %v", err)
	}
}

func TestTransitions(t *testing.T) {
	allowed := map[AllianceStatus][]AllianceStatus{
		Proposed: {Active, Broken},
		Active:   {Strained, Broken},
		Strained: {Renewed, Broken},
		Renewed:  {Broken},
	}
	all := []AllianceStatus{Proposed, Active, Strained, Broken, Renewed}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				want = want || a == to
			}
			if got := canMove(from, to); got != want {
				t.Errorf("canMove(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestProposalAccepted(t *testing.T) {
	f := newFixture(t)
	id, _ := f.e.ProposeAlliance("north", "south", Trade)
	f.tick()
	al, _ := f.e.Alliance(id)
	if al.Status != Active {
		t.Fatalf("status = %s, want active", al.Status)
	}
	if n := remembered(f.out.Drain(), "alliance_formation"); n != 2 {
		t.Fatalf("formation memories = %d, want 2", n)
	}
	if err := f.e.Activate(id); !errors.Is(err, world.ErrInvalidTransition) {
		t.Fatalf("second activate: err = %v", err)
	}
}

func TestProposalDeclined(t *testing.T) {
	f := newFixture(t)
	for _, g := range []world.GroupID{"north", "south"} {
		grp, _ := f.reg.Get(g)
		grp.SetHonor(0.1)
		grp.SetStability(0.1)
	}
	id, _ := f.e.ProposeAlliance("north", "south", Military)
	f.tick()
	if al, _ := f.e.Alliance(id); al.Status != Proposed {
		t.Fatalf("status = %s, want proposed", al.Status)
	}
	f.w.Advance(300 * time.Second)
	f.e.Update(time.Second)
	arch := f.e.Archived()
	if len(arch) != 1 || arch[0].Reason != "proposal_declined" || arch[0].Status != Broken {
		t.Fatalf("archive = %+v", arch)
	}
	if len(f.e.Alliances()) != 0 {
		t.Fatal("declined proposal still listed")
	}
}

func active(t *testing.T, f *fixture, typ AllianceType) string {
	t.Helper()
	id, err := f.e.InitializeAlliance("north", "south", typ)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.e.Activate(id); err != nil {
		t.Fatal(err)
	}
	f.out.Drain()
	return id
}

func TestBetrayal(t *testing.T) {
	f := newFixture(t)
	id := active(t, f, Military)
	if err := f.e.HandleEvent(id, Betrayal); err != nil {
		t.Fatal(err)
	}
	al, _ := f.e.Alliance(id)
	if !approx(al.Trust, 0.25) || !approx(al.Strength, 0.35) || al.Status != Strained {
		t.Fatalf("after one betrayal: %+v", al)
	}
	if n := remembered(f.out.Drain(), "alliance_betrayal"); n != 2 {
		t.Fatalf("betrayal memories = %d", n)
	}
	if err := f.e.HandleEvent(id, Betrayal); err != nil {
		t.Fatal(err)
	}
	al, _ = f.e.Alliance(id)
	if al.Status != Broken || al.Reason != "trust_broken" {
		t.Fatalf("after two betrayals: %s %q", al.Status, al.Reason)
	}
	if err := f.e.HandleEvent(id, Cooperation); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("event on archived alliance: err = %v", err)
	}
}

func TestCooperation(t *testing.T) {
	f := newFixture(t)
	id := active(t, f, Trade)
	if err := f.e.HandleEvent(id, Cooperation); err != nil {
		t.Fatal(err)
	}
	al, _ := f.e.Alliance(id)
	if !approx(al.Trust, 0.6) || !approx(al.Strength, 0.55) {
		t.Fatalf("trust %v strength %v", al.Trust, al.Strength)
	}
	effs := f.out.Drain()
	if n := remembered(effs, "alliance_cooperation"); n != 2 {
		t.Fatalf("cooperation memories = %d", n)
	}
	honor := 0
	for _, e := range effs {
		if a, ok := e.(effect.AdjustGroup); ok && a.Honor == 0.05 {
			honor++
		}
	}
	if honor != 2 {
		t.Fatalf("honor adjustments = %d, want 2", honor)
	}
}

func TestStrainAndRenewal(t *testing.T) {
	f := newFixture(t)
	id := active(t, f, Trade)
	al := f.e.alliances[id]

	al.Strength = 0.35
	if err := f.e.review(al); err != nil || al.Status != Strained {
		t.Fatalf("status = %s err = %v, want strained", al.Status, err)
	}
	al.Strength, al.Trust = 0.65, 0.55
	if err := f.e.review(al); err != nil || al.Status != Renewed {
		t.Fatalf("status = %s err = %v, want renewed", al.Status, err)
	}
	al.Strength = 0.3
	if err := f.e.review(al); err != nil || al.Status != Renewed {
		t.Fatalf("renewed alliance moved to %s", al.Status)
	}
	al.Strength = 0.1
	if err := f.e.review(al); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.e.Alliance(id); got.Status != Broken || got.Reason != "alliance_deteriorated" {
		t.Fatalf("got %s %q", got.Status, got.Reason)
	}
}

func TestObligationsAndBreach(t *testing.T) {
	f := newFixture(t)
	id := active(t, f, Military)
	if err := f.e.UpdateAllianceStrength(id, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	al, _ := f.e.Alliance(id)
	if !approx(al.Strength, 0.8) || !approx(al.Trust, 0.65) {
		t.Fatalf("kept obligations: strength %v trust %v", al.Strength, al.Trust)
	}

	if err := f.e.ReportBreach(id, "share_intel"); err != nil {
		t.Fatal(err)
	}
	if err := f.e.UpdateAllianceStrength(id, time.Second); err != nil {
		t.Fatal(err)
	}
	al, _ = f.e.Alliance(id)
	if !approx(al.Strength, 0.8) || !approx(al.Trust, 0.65) {
		t.Fatalf("one breach: strength %v trust %v", al.Strength, al.Trust)
	}
	if err := f.e.ReportBreach(id, "share_gossip"); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("unknown obligation: err = %v", err)
	}
}

func TestHonorPullsStrength(t *testing.T) {
	f := newFixture(t)
	f.honor("north", 0.1)
	f.honor("south", 0.1)
	id := active(t, f, Trade)
	if err := f.e.UpdateAllianceStrength(id, time.Second); err != nil {
		t.Fatal(err)
	}
	al, _ := f.e.Alliance(id)
	// two kept obligations +0.02, two dishonorable members -0.008
	if !approx(al.Strength, 0.512) {
		t.Fatalf("strength = %v, want 0.512", al.Strength)
	}
}

func TestExpiry(t *testing.T) {
	f := newFixture(t)
	keep := active(t, f, Trade)
	_, _ = f.e.InitializeAlliance("north", "south", Military)
	lapse := f.e.Alliances()[1].ID
	if err := f.e.Activate(lapse); err != nil {
		t.Fatal(err)
	}
	f.e.alliances[lapse].Trust = 0.3

	f.w.Advance(3600 * time.Second)
	f.e.Update(time.Second)

	if al, _ := f.e.Alliance(keep); al.Status != Active || al.FormedAt != f.w.Now() {
		t.Fatalf("trusted alliance: %s formed %v", al.Status, al.FormedAt)
	}
	if al, _ := f.e.Alliance(lapse); al.Status != Broken || al.Reason != "terms_expired" {
		t.Fatalf("distrusted alliance: %s %q", al.Status, al.Reason)
	}
}

func TestShareTraditions(t *testing.T) {
	f := newFixture(t)
	n, _ := f.reg.Get("north")
	n.AddTraditions("harvest_song")
	s, _ := f.reg.Get("south")
	s.AddTraditions("river_blessing", "harvest_song")
	id := active(t, f, Marriage)
	if err := f.e.ShareTraditions(id); err != nil {
		t.Fatal(err)
	}
	effs := f.out.Drain()
	if len(effs) != 2 {
		t.Fatalf("effects = %d, want 2", len(effs))
	}
	for _, e := range effs {
		add := e.(effect.AddTraditions)
		if len(add.Traditions) != 2 || add.Traditions[0] != "harvest_song" || add.Traditions[1] != "river_blessing" {
			t.Fatalf("%s traditions = %v", add.Group, add.Traditions)
		}
	}
	al, _ := f.e.Alliance(id)
	if !approx(al.Strength, 0.9) || !approx(al.Trust, 0.55) {
		t.Fatalf("strength %v trust %v", al.Strength, al.Trust)
	}
}

func TestArrangeMarriage(t *testing.T) {
	f := newFixture(t)
	w, err := f.e.ArrangeMarriage("north", "south")
	if err != nil {
		t.Fatal(err)
	}
	north, _ := f.reg.Get("north")
	south, _ := f.reg.Get("south")
	if w.Couple[0] != north.Members[0].Actor || w.Couple[1] != south.Members[1].Actor {
		t.Fatalf("couple = %v", w.Couple)
	}
	if w.Location.X != 0 {
		t.Fatalf("ceremony at %v, want midway", w.Location)
	}
	al, _ := f.e.Alliance(w.AllianceID)
	if al.Type != Marriage || al.Status != Active {
		t.Fatalf("alliance %s %s", al.Type, al.Status)
	}
}

func TestArrangeMarriageIncompatible(t *testing.T) {
	f := newFixture(t)
	f.group(t, "far", world.Vec3{Y: -80}, traits(0, 0))
	f.group(t, "other", world.Vec3{Y: -90}, traits(1, 1))
	if _, err := f.e.ArrangeMarriage("far", "other"); !errors.Is(err, world.ErrIneligible) {
		t.Fatalf("err = %v, want ErrIneligible", err)
	}
	if len(f.e.Alliances()) != 0 {
		t.Fatal("alliance created for incompatible families")
	}
}
