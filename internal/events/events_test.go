package events

import (
	"errors"
	"testing"
	"time"

	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/sandbox"
	"github.com/talgya/kindred/internal/world"
)

func setup() (*Engine, *sandbox.World) {
	w := sandbox.New(sandbox.Flat(9))
	return New(w, w, entropy.New(9), &effect.Outbox{}, DefaultConfig()), w
}

func TestRiot(t *testing.T) {
	e, w := setup()
	thug := w.Spawn("thug", world.Vec3{X: 1}, world.Traits{Aggression: 0.9})
	near := w.Spawn("near", world.Vec3{X: 3}, world.Traits{Aggression: 0.1})
	far := w.Spawn("far", world.Vec3{X: 8}, world.Traits{Aggression: 0.2})
	outside := w.Spawn("outside", world.Vec3{X: 50}, world.Traits{})

	if _, err := e.Trigger(Riot, world.Vec3{}, 10); err != nil {
		t.Fatal(err)
	}
	task, _ := w.LastTask(thug)
	if en, ok := task.(world.Engage); !ok || en.Target != near {
		t.Fatalf("rioter task = %#v, want engage nearest bystander", task)
	}
	for _, id := range []world.ActorID{near, far} {
		if task, _ := w.LastTask(id); world.TaskName(task) != "flee" {
			t.Fatalf("bystander %d task = %#v, want flee", id, task)
		}
	}
	if _, ok := w.LastTask(outside); ok {
		t.Fatal("actor outside the radius was directed")
	}
	if len(w.Effects()) != 1 || w.Effects()[0].Name != "smoke" {
		t.Fatalf("effects = %+v", w.Effects())
	}
}

func TestGangWar(t *testing.T) {
	e, w := setup()
	a := w.Spawn("a", world.Vec3{X: 1}, world.Traits{Aggression: 0.9})
	b := w.Spawn("b", world.Vec3{X: -4}, world.Traits{Aggression: 0.8})
	unarmed := w.Spawn("c", world.Vec3{X: 2}, world.Traits{Aggression: 0.9})
	w.Arm(a, true)
	w.Arm(b, true)

	_, _ = e.Trigger(GangWar, world.Vec3{}, 20)
	if task, _ := w.LastTask(a); task != (world.Engage{Target: b}) {
		t.Fatalf("a task = %#v, want engage b", task)
	}
	if task, _ := w.LastTask(unarmed); world.TaskName(task) != "flee" {
		t.Fatalf("unarmed task = %#v, want flee", task)
	}
}

func TestLoneFighterPatrols(t *testing.T) {
	e, w := setup()
	a := w.Spawn("a", world.Vec3{X: 1}, world.Traits{Aggression: 0.9})
	_, _ = e.Trigger(Riot, world.Vec3{}, 10)
	if task, _ := w.LastTask(a); world.TaskName(task) != "patrol" {
		t.Fatalf("task = %#v, want patrol", task)
	}
}

func TestEmergency(t *testing.T) {
	e, w := setup()
	hero := w.Spawn("hero", world.Vec3{X: 5}, world.Traits{Bravery: 0.8, Sociability: 0.7})
	loner := w.Spawn("loner", world.Vec3{X: 6}, world.Traits{Bravery: 0.8, Sociability: 0.2})
	_, _ = e.Trigger(Emergency, world.Vec3{}, 10)
	if task, _ := w.LastTask(hero); task != (world.MoveTo{Target: world.Vec3{}}) {
		t.Fatalf("hero task = %#v, want move to help", task)
	}
	if task, _ := w.LastTask(loner); world.TaskName(task) != "flee" {
		t.Fatalf("loner task = %#v, want flee", task)
	}
}

func TestCelebrationDeterministic(t *testing.T) {
	names := func() []string {
		e, w := setup()
		var ids []world.ActorID
		for i := 0; i < 6; i++ {
			ids = append(ids, w.Spawn("guest", world.Vec3{X: float64(i)}, world.Traits{}))
		}
		_, _ = e.Trigger(Celebration, world.Vec3{}, 10)
		var out []string
		for _, id := range ids {
			task, _ := w.LastTask(id)
			sc := task.(world.Scenario)
			if sc.Duration != 900*time.Second {
				t.Fatalf("duration = %v", sc.Duration)
			}
			out = append(out, sc.Name)
		}
		return out
	}
	a, b := names(), names()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("scenario choice differs between seeded runs: %v vs %v", a, b)
		}
	}
}

func TestAffectedCapped(t *testing.T) {
	e, w := setup()
	for i := 0; i < 80; i++ {
		w.Spawn("crowd", world.Vec3{X: float64(i % 10), Y: float64(i / 10)}, world.Traits{})
	}
	_, _ = e.Trigger(Celebration, world.Vec3{}, 100)
	if n := len(e.Active()[0].Affected); n != 50 {
		t.Fatalf("affected = %d, want 50", n)
	}
}

func TestExpiryAndCancel(t *testing.T) {
	e, _ := setup()
	riot, _ := e.Trigger(Riot, world.Vec3{}, 10)
	war, _ := e.Trigger(GangWar, world.Vec3{X: 100}, 10)
	if len(e.Covering(world.Vec3{X: 3})) != 1 || len(e.Covering(world.Vec3{X: 50})) != 0 {
		t.Fatal("coverage wrong")
	}
	for i := 0; i < 300; i++ {
		e.Update(time.Second)
	}
	if act := e.Active(); len(act) != 1 || act[0].ID != war {
		t.Fatalf("active = %+v, want only the gang war", act)
	}
	if fin := e.Finished(); fin[0].ID != riot || fin[0].Ended != "expired" {
		t.Fatalf("finished = %+v", fin)
	}
	if err := e.Cancel(war); err != nil {
		t.Fatal(err)
	}
	if err := e.Cancel(war); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("second cancel: err = %v", err)
	}
	if _, err := e.Trigger(Riot, world.Vec3{}, 0); !errors.Is(err, world.ErrIneligible) {
		t.Fatalf("zero radius: err = %v", err)
	}
}
