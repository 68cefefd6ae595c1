package sandbox

import (
	"testing"
	"time"

	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

func TestActorsNearSortedAndCapped(t *testing.T) {
	w := New(Flat(1))
	far := w.Spawn("far", world.Vec3{X: 9}, world.Traits{})
	near := w.Spawn("near", world.Vec3{X: 1}, world.Traits{})
	w.Spawn("out", world.Vec3{X: 50}, world.Traits{})

	got := w.ActorsNear(world.Vec3{}, 10, 5)
	if len(got) != 2 || got[0] != near || got[1] != far {
		t.Fatalf("ActorsNear = %v, want [%d %d]", got, near, far)
	}
	if got := w.ActorsNear(world.Vec3{}, 10, 1); len(got) != 1 {
		t.Fatalf("limit ignored: %v", got)
	}
}

func TestMoveToWalks(t *testing.T) {
	w := New(Flat(1))
	id := w.Spawn("walker", world.Vec3{}, world.Traits{})
	w.Dispatch(id, world.MoveTo{Target: world.Vec3{X: 14}})
	w.Advance(5 * time.Second)
	a, _ := w.Actor(id)
	if a.Pos.X < 6.9 || a.Pos.X > 7.1 {
		t.Fatalf("position after 5s = %v, want x≈7", a.Pos)
	}
	w.Advance(10 * time.Second)
	a, _ = w.Actor(id)
	if a.Pos.X != 14 {
		t.Fatalf("did not arrive: %v", a.Pos)
	}
	if last, ok := w.LastTask(id); !ok || world.TaskName(last) != "move_to" {
		t.Fatalf("last task = %v", last)
	}
}

func TestObstaclesCounted(t *testing.T) {
	w := New(Flat(1))
	w.AddObstacle(world.Vec3{X: 2})
	w.AddObstacle(world.Vec3{X: 3})
	w.AddObstacle(world.Vec3{X: 40})
	if n := w.ObstaclesNear(world.Vec3{}, 5, 10); n != 2 {
		t.Fatalf("got %d obstacles, want 2", n)
	}
	if n := w.ObstaclesNear(world.Vec3{}, 5, 1); n != 1 {
		t.Fatalf("limit ignored: %d", n)
	}
}

func TestSeasonsFollowClock(t *testing.T) {
	cfg := Flat(1)
	cfg.SeasonLength = time.Hour
	w := New(cfg)
	w.Advance(3*time.Hour + time.Minute)
	if w.Season() != world.Winter {
		t.Fatalf("season = %v, want Winter", w.Season())
	}
}

func TestPopulateDeterministic(t *testing.T) {
	build := func() *social.Registry {
		w := New(Flat(4))
		reg := social.NewRegistry()
		if err := NewSpawner(w, 4).Populate(reg, 3, 5, 200); err != nil {
			t.Fatal(err)
		}
		return reg
	}
	a, b := build(), build()
	if a.Len() != 3 {
		t.Fatalf("groups = %d", a.Len())
	}
	for i, g := range a.All() {
		h := b.All()[i]
		if g.Name != h.Name || len(g.Members) != 5 || g.Members[0].Role != social.RoleHead {
			t.Fatalf("group %d differs: %+v vs %+v", i, g, h)
		}
	}
}
