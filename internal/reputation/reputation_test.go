package reputation

import (
	"errors"
	"math"
	"testing"

	"github.com/talgya/kindred/internal/sandbox"
	"github.com/talgya/kindred/internal/world"
)

func setup() (*sandbox.World, *Engine) {
	w := sandbox.New(sandbox.Flat(1))
	return w, New(w, w, DefaultConfig())
}

func TestUpdateReputationClampsAndClassifies(t *testing.T) {
	w, e := setup()
	id := w.Spawn("a", world.Vec3{}, world.Traits{})
	if err := e.UpdateReputation(id, 5); err != nil {
		t.Fatal(err)
	}
	r, _ := e.Get(id)
	if r.Reputation != 1 || r.Type != Hero {
		t.Fatalf("record = %+v", r)
	}
	// score (1+1)*0.5 + 1 = 2 → legendary.
	if r.Status != Legendary || !w.Flag(id, world.FlagUntargetable) {
		t.Fatalf("status = %v untargetable = %v", r.Status, w.Flag(id, world.FlagUntargetable))
	}
	_ = e.UpdateReputation(id, -1.5)
	r, _ = e.Get(id)
	if math.Abs(r.Reputation+0.5) > 1e-9 || r.Type != Hostile {
		t.Fatalf("record = %+v", r)
	}
	if w.Flag(id, world.FlagUntargetable) {
		t.Fatal("untargetable flag kept after fall from grace")
	}
}

func TestUnknownActor(t *testing.T) {
	_, e := setup()
	if err := e.UpdateReputation(99, 0.1); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := e.RecomputeStatus(99); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRecomputeStatusIdempotent(t *testing.T) {
	w, e := setup()
	id := w.Spawn("a", world.Vec3{}, world.Traits{})
	_ = e.UpdateReputation(id, 0.45)
	_ = e.RecomputeStatus(id)
	first, _ := e.Get(id)
	_ = e.RecomputeStatus(id)
	second, _ := e.Get(id)
	if first != second {
		t.Fatalf("status drifted: %+v then %+v", first, second)
	}
}

func TestCrimeWitnesses(t *testing.T) {
	w, e := setup()
	thief := w.Spawn("thief", world.Vec3{}, world.Traits{})
	brave := w.Spawn("brave", world.Vec3{X: 5}, world.Traits{Bravery: 0.9})
	timid := w.Spawn("timid", world.Vec3{X: 6}, world.Traits{Bravery: 0.1})
	plain := w.Spawn("plain", world.Vec3{X: 7}, world.Traits{Bravery: 0.5})
	far := w.Spawn("far", world.Vec3{X: 60}, world.Traits{Bravery: 0.9})

	reactions, err := e.RecordCrime(thief, 0.6)
	if err != nil {
		t.Fatal(err)
	}
	if len(reactions) != 2 {
		t.Fatalf("got %d reactions, want 2", len(reactions))
	}
	if task, _ := w.LastTask(brave); task != (world.Engage{Target: thief}) {
		t.Fatalf("brave witness task = %#v", task)
	}
	if task, _ := w.LastTask(timid); world.TaskName(task) != "flee" {
		t.Fatalf("timid witness task = %#v", task)
	}
	if _, ok := w.LastTask(plain); ok {
		t.Fatal("indifferent witness reacted")
	}
	if _, ok := w.LastTask(far); ok {
		t.Fatal("distant actor reacted")
	}
	r, _ := e.Get(thief)
	if r.Crimes != 1 || math.Abs(r.Notoriety-0.6) > 1e-9 || math.Abs(r.Reputation+0.3) > 1e-9 {
		t.Fatalf("thief record = %+v", r)
	}
}

func TestWitnessCap(t *testing.T) {
	w, e := setup()
	thief := w.Spawn("thief", world.Vec3{}, world.Traits{})
	for i := 0; i < 15; i++ {
		w.Spawn("w", world.Vec3{X: float64(i%5) + 1}, world.Traits{Bravery: 0.95})
	}
	reactions, _ := e.RecordCrime(thief, 0.2)
	if len(reactions) != 10 {
		t.Fatalf("got %d reactions, want 10", len(reactions))
	}
}

func TestFearedOverridesHero(t *testing.T) {
	w, e := setup()
	id := w.Spawn("warlord", world.Vec3{}, world.Traits{})
	_, _ = e.RecordCrime(id, 0.9)
	r, _ := e.Get(id)
	if r.Type != Feared {
		t.Fatalf("type = %v, want feared", r.Type)
	}
}

func TestGoodDeedPropagatesOneHop(t *testing.T) {
	w, e := setup()
	saint := w.Spawn("saint", world.Vec3{}, world.Traits{})
	near := w.Spawn("near", world.Vec3{X: 15}, world.Traits{})
	far := w.Spawn("far", world.Vec3{X: 45}, world.Traits{})

	if err := e.RecordGoodDeed(saint, 1); err != nil {
		t.Fatal(err)
	}
	s, _ := e.Get(saint)
	if math.Abs(s.Reputation-0.5) > 1e-9 || s.GoodDeeds != 1 {
		t.Fatalf("saint = %+v", s)
	}
	// influence 0.01+0.5 = 0.51, falloff 0.5 at 15/30, factor 0.1.
	n, ok := e.Get(near)
	if !ok || math.Abs(n.Reputation-0.0255) > 1e-9 {
		t.Fatalf("near = %+v", n)
	}
	if _, ok := e.Get(far); ok {
		t.Fatal("reputation reached beyond the radius")
	}
}

func TestEffectiveInfluence(t *testing.T) {
	lead := Record{Influence: 0.5, Status: Leader}
	out := Record{Influence: 0.05, Status: Outsider}
	if got := lead.EffectiveInfluence(); math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("leader influence = %v", got)
	}
	if got := out.EffectiveInfluence(); got != 0 {
		t.Fatalf("outsider influence = %v", got)
	}
}

func TestOutsiderAvoided(t *testing.T) {
	w, e := setup()
	id := w.Spawn("pariah", world.Vec3{}, world.Traits{})
	_ = e.UpdateReputation(id, -0.9)
	r, _ := e.Get(id)
	if r.Status != Outsider || !w.Flag(id, world.FlagAvoided) {
		t.Fatalf("status = %v avoided = %v", r.Status, w.Flag(id, world.FlagAvoided))
	}
}

func TestInteractionWithUnknownLeavesFirstUntouched(t *testing.T) {
	w, e := setup()
	a := w.Spawn("a", world.Vec3{}, world.Traits{})
	_ = e.UpdateReputation(a, 0.2)
	if err := e.RecordInteraction(a, 99, true); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if r, _ := e.Get(a); math.Abs(r.Reputation-0.2) > 1e-9 {
		t.Fatalf("reputation = %v, want 0.2", r.Reputation)
	}
	b := w.Spawn("b", world.Vec3{}, world.Traits{})
	if err := e.RecordInteraction(a, b, false); err != nil {
		t.Fatal(err)
	}
	if r, _ := e.Get(b); math.Abs(r.Reputation+0.05) > 1e-9 {
		t.Fatalf("b reputation = %v, want -0.05", r.Reputation)
	}
}
