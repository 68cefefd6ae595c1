package gathering

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/sandbox"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

func setup(t *testing.T) (*Engine, *sandbox.World, *social.Registry, *effect.Outbox) {
	t.Helper()
	w := sandbox.New(sandbox.Flat(3))
	reg := social.NewRegistry()
	for i, id := range []world.GroupID{"east", "west", "low"} {
		home := world.Vec3{X: float64(i * 40)}
		g := social.NewGroup(id, string(id), home)
		for j := 0; j < 2; j++ {
			g.Members = append(g.Members, social.Member{Actor: w.Spawn(string(id), home, world.Traits{})})
		}
		if err := reg.Add(g); err != nil {
			t.Fatal(err)
		}
	}
	east, _ := reg.Get("east")
	east.SetHonor(0.9)
	east.AddTraditions("family_dinner")
	west, _ := reg.Get("west")
	west.AddTraditions("respect_elders")
	low, _ := reg.Get("low")
	low.SetHonor(0.1)
	out := &effect.Outbox{}
	return New(w, reg, out, DefaultConfig()), w, reg, out
}

func run(e *Engine, d time.Duration) {
	for s := time.Duration(0); s < d; s += time.Second {
		e.Update(time.Second)
	}
}

func TestFeastSharesTraditionsAndHonor(t *testing.T) {
	e, w, _, out := setup(t)
	id, err := e.Organize(Feast, []world.GroupID{"west", "east", "west"})
	if err != nil {
		t.Fatal(err)
	}
	ga := e.Active()[0]
	if ga.ID != id || len(ga.Groups) != 2 || len(ga.Attendees) != 4 {
		t.Fatalf("gathering = %+v", ga)
	}
	if ga.Location != (world.Vec3{}) {
		t.Fatalf("held at %v, want the more honorable east home", ga.Location)
	}
	task, _ := w.LastTask(ga.Attendees[0])
	if _, ok := task.(world.Scenario); !ok {
		t.Fatalf("attendee task = %#v", task)
	}
	var shared []effect.AddTraditions
	for _, fx := range out.Drain() {
		if a, ok := fx.(effect.AddTraditions); ok {
			shared = append(shared, a)
		}
	}
	want := []string{"family_dinner", "respect_elders"}
	if len(shared) != 2 || !slices.Equal(shared[0].Traditions, want) {
		t.Fatalf("traditions shared = %+v", shared)
	}

	run(e, 1800*time.Second)
	if len(e.Active()) != 0 || e.Finished()[0].Status != Completed {
		t.Fatalf("finished = %+v", e.Finished())
	}
	var honor, outcomes int
	var coop []effect.Cooperate
	for _, fx := range out.Drain() {
		switch fx := fx.(type) {
		case effect.AdjustGroup:
			if fx.Honor == 0.1 {
				honor++
			}
		case effect.Outcome:
			outcomes++
		case effect.Cooperate:
			coop = append(coop, fx)
		}
	}
	if honor != 2 || outcomes != 2 {
		t.Fatalf("honor raises = %d, outcomes = %d, want 2 each", honor, outcomes)
	}
	if len(coop) != 1 || len(coop[0].Groups) != 2 {
		t.Fatalf("cooperation = %+v", coop)
	}
}

func TestOrganizeRules(t *testing.T) {
	e, _, _, _ := setup(t)
	if _, err := e.Organize(Feast, []world.GroupID{"east"}); !errors.Is(err, world.ErrIneligible) {
		t.Fatalf("single group feast: err = %v", err)
	}
	if _, err := e.Organize(Council, []world.GroupID{"east", "low"}); !errors.Is(err, world.ErrIneligible) {
		t.Fatalf("dishonored council member: err = %v", err)
	}
	if _, err := e.Organize(Feast, []world.GroupID{"east", "nowhere"}); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("unknown group: err = %v", err)
	}
	if _, err := e.Organize(Feast, []world.GroupID{"east", "west"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Organize(Festival, []world.GroupID{"west", "east"}); !errors.Is(err, world.ErrInvalidTransition) {
		t.Fatalf("double booking: err = %v", err)
	}
}

func TestSeasonOpensFestival(t *testing.T) {
	e, w, _, out := setup(t)
	w.SetSeason(world.Autumn)
	e.Update(time.Second)
	active := e.Active()
	if len(active) != 1 || active[0].Kind != HarvestFestival || len(active[0].Groups) != 3 {
		t.Fatalf("active = %+v", active)
	}
	if !slices.Contains(active[0].Traditions, "crop_blessing") {
		t.Fatalf("traditions = %v", active[0].Traditions)
	}
	seen := 0
	for _, fx := range out.Drain() {
		if r, ok := fx.(effect.Remember); ok && r.Event.Tag == "season_change_Autumn" {
			seen++
		}
	}
	if seen != 3 {
		t.Fatalf("season remembered by %d groups, want 3", seen)
	}
	e.Update(time.Second)
	if len(e.Active()) != 1 {
		t.Fatal("same season opened a second festival")
	}
}

func TestStormShortensFestivalOnce(t *testing.T) {
	e, w, _, _ := setup(t)
	w.SetSeason(world.Winter)
	e.Update(time.Second)
	before := e.Active()[0].Remaining
	w.SetWeather(world.Thunder)
	e.Update(time.Second)
	e.Update(time.Second)
	got := e.Active()[0]
	want := time.Duration(float64(before)*0.8) - 2*time.Second
	if !got.Sheltered || got.Remaining != want {
		t.Fatalf("remaining = %v, want %v", got.Remaining, want)
	}
}

func TestCancelGathering(t *testing.T) {
	e, _, _, out := setup(t)
	id, _ := e.Organize(Festival, []world.GroupID{"east", "west"})
	out.Drain()
	if err := e.Cancel(id); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 || e.Finished()[0].Status != Cancelled {
		t.Fatalf("cancel queued %d effects, finished = %+v", out.Len(), e.Finished())
	}
	if err := e.Cancel(id); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("second cancel: err = %v", err)
	}
	if _, ok := ParseKind("winter_solstice"); !ok {
		t.Fatal("winter_solstice not parsed")
	}
}
