package migration

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/sandbox"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

type fixture struct {
	w   *sandbox.World
	reg *social.Registry
	out *effect.Outbox
	e   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w := sandbox.New(sandbox.Flat(11))
	reg := social.NewRegistry()
	out := &effect.Outbox{}
	return &fixture{w: w, reg: reg, out: out, e: New(w, reg, entropy.New(11), out, DefaultConfig())}
}

func (f *fixture) family(t *testing.T, id world.GroupID, home world.Vec3, size int) {
	t.Helper()
	if err := f.reg.Add(social.NewGroup(id, string(id), home)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < size; i++ {
		a := f.w.Spawn(string(id), home, world.Traits{})
		if err := f.reg.Join(id, a, social.RoleKin); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.e.Found(id); err != nil {
		t.Fatal(err)
	}
}

func TestFound(t *testing.T) {
	f := newFixture(t)
	f.family(t, "a", world.Vec3{}, 2)
	f.family(t, "b", world.Vec3{X: 5}, 2)
	f.family(t, "c", world.Vec3{X: 300}, 2)
	ss := f.e.Settlements()
	if len(ss) != 2 {
		t.Fatalf("settlements = %d, want 2", len(ss))
	}
	if len(ss[0].Residents) != 2 || ss[0].Terrain != Plains || ss[0].Capacity != 150 || ss[0].Resources != 100 {
		t.Fatalf("shared settlement = %+v", ss[0])
	}
	if _, err := f.e.Found("ghost"); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("found unknown: err = %v", err)
	}
}

func TestDestinationPolicies(t *testing.T) {
	f := newFixture(t)
	f.family(t, "fam", world.Vec3{}, 3)
	mountain := f.e.CreateSettlement(world.Vec3{X: 200}, Mountain)
	coast := f.e.CreateSettlement(world.Vec3{X: 100}, Coastal)
	plains := f.e.CreateSettlement(world.Vec3{X: 1500}, Plains)

	cases := []struct {
		policy Policy
		season world.Season
		want   string
	}{
		{Seasonal, world.Summer, mountain},
		{Seasonal, world.Winter, plains},
		{Seasonal, world.Spring, plains},
		{ResourceDriven, world.Autumn, plains},
		{ConflictEscape, world.Autumn, plains},
		{Forced, world.Autumn, coast},
		{Opportunity, world.Autumn, coast},
	}
	for _, tc := range cases {
		f.w.SetSeason(tc.season)
		if _, err := f.e.PlanMigration("fam", tc.policy); err != nil {
			t.Fatalf("%s in %s: %v", tc.policy, tc.season, err)
		}
		p, _ := f.e.Plan("fam")
		if p.Destination != tc.want {
			t.Errorf("%s in %s: destination %s, want %s", tc.policy, tc.season, p.Destination, tc.want)
		}
		_ = f.e.Cancel("fam")
	}
}

func TestPlanErrors(t *testing.T) {
	f := newFixture(t)
	f.family(t, "fam", world.Vec3{}, 3)
	if _, err := f.e.PlanMigration("fam", ResourceDriven); !errors.Is(err, world.ErrIneligible) {
		t.Fatalf("nowhere to go: err = %v", err)
	}
	full := f.e.CreateSettlement(world.Vec3{X: 100}, Desert)
	f.e.settlements[full].Capacity = 2
	if _, err := f.e.PlanMigration("fam", ResourceDriven); !errors.Is(err, world.ErrIneligible) {
		t.Fatalf("no spare capacity: err = %v", err)
	}
	f.e.settlements[full].Capacity = 3
	if _, err := f.e.PlanMigration("fam", ResourceDriven); err != nil {
		t.Fatal(err)
	}
	if _, err := f.e.PlanMigration("fam", Forced); !errors.Is(err, world.ErrInvalidTransition) {
		t.Fatalf("second plan: err = %v", err)
	}
	if _, err := f.e.PlanMigration("ghost", Forced); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("unknown group: err = %v", err)
	}
}

func TestBuildPath(t *testing.T) {
	f := newFixture(t)
	p := f.e.BuildPath(world.Vec3{}, world.Vec3{X: 500, Y: 100}, Forest)
	if len(p.Waypoints) != 6 {
		t.Fatalf("waypoints = %d, want 6", len(p.Waypoints))
	}
	if p.Waypoints[1].X != 100 || p.Waypoints[1].Y != 20 || p.Waypoints[5].X != 500 {
		t.Fatalf("waypoints = %v", p.Waypoints)
	}
	if want := math.Hypot(500, 100); math.Abs(p.Distance-want) > 1e-9 {
		t.Fatalf("distance = %v, want %v", p.Distance, want)
	}
}

func TestMountainHarderInWinter(t *testing.T) {
	f := newFixture(t)
	wps := []world.Vec3{{Z: 0}, {X: 10, Z: 10}, {X: 20, Z: 20}}
	summer := f.e.PathDifficulty(wps, Mountain, world.Summer)
	winter := f.e.PathDifficulty(wps, Mountain, world.Winter)
	if math.Abs(summer-0.3) > 1e-9 {
		t.Fatalf("summer = %v, want 0.3", summer)
	}
	if !(winter > summer) {
		t.Fatalf("winter %v not harder than summer %v", winter, summer)
	}
	if plains := f.e.PathDifficulty(wps, Plains, world.Summer); plains >= summer {
		t.Fatalf("plains %v not easier than mountain %v", plains, summer)
	}
	if spring := f.e.PathDifficulty(wps, Plains, world.Spring); math.Abs(spring-0.24) > 1e-9 {
		t.Fatalf("spring = %v, want 0.24", spring)
	}
}

func TestObstaclesAddDifficulty(t *testing.T) {
	f := newFixture(t)
	wps := []world.Vec3{{}, {X: 100}}
	f.w.AddObstacle(world.Vec3{X: 2})
	f.w.AddObstacle(world.Vec3{X: 98})
	f.w.AddObstacle(world.Vec3{X: 50})
	if d := f.e.PathDifficulty(wps, Plains, world.Autumn); math.Abs(d-0.2) > 1e-9 {
		t.Fatalf("difficulty = %v, want 0.2", d)
	}
	if d := f.e.PathDifficulty(wps, Desert, world.Winter); math.Abs(d-0.52) > 1e-9 {
		t.Fatalf("desert winter = %v", d)
	}
}

func TestExecution(t *testing.T) {
	f := newFixture(t)
	f.family(t, "fam", world.Vec3{}, 2)
	dest := f.e.CreateSettlement(world.Vec3{X: 500}, Coastal)
	if _, err := f.e.PlanMigration("fam", Forced); err != nil {
		t.Fatal(err)
	}
	f.e.Update(time.Second)
	p, _ := f.e.Plan("fam")
	if math.Abs(p.Progress-0.2) > 1e-9 {
		t.Fatalf("progress = %v, want 0.2", p.Progress)
	}
	task, _ := f.w.LastTask(p.Members[0])
	if mv, ok := task.(world.MoveTo); !ok || mv.Target.X != 100 {
		t.Fatalf("member task = %#v, want first waypoint", task)
	}
	for i := 0; i < 3; i++ {
		f.e.Update(time.Second)
	}
	if _, ok := f.e.Plan("fam"); !ok {
		t.Fatal("arrived too early")
	}
	for i := 0; i < 3; i++ {
		f.e.Update(time.Second)
	}
	if _, ok := f.e.Plan("fam"); ok {
		t.Fatal("still migrating")
	}
	if s, _ := f.e.Settlement(dest); len(s.Residents) != 1 || s.Residents[0] != "fam" {
		t.Fatalf("destination residents = %v", s.Residents)
	}
	if s := f.e.Settlements()[0]; len(s.Residents) != 0 {
		t.Fatalf("origin residents = %v", s.Residents)
	}
	var moved, remembered bool
	for _, e := range f.out.Drain() {
		switch x := e.(type) {
		case effect.MoveHome:
			moved = x.Group == "fam" && x.To.X == 500
		case effect.Remember:
			remembered = remembered || x.Event.Tag == "group_migration"
		}
	}
	if !moved || !remembered {
		t.Fatalf("moved %v remembered %v", moved, remembered)
	}
	if fin := f.e.Finished(); len(fin) != 1 || fin[0].Reason != "arrived" || fin[0].Active {
		t.Fatalf("finished = %+v", fin)
	}
}

func TestWinterEvacuation(t *testing.T) {
	f := newFixture(t)
	f.family(t, "herders", world.Vec3{}, 2)
	peak := f.e.Settlements()[0].ID
	f.e.settlements[peak].Terrain = Mountain
	f.e.settlements[peak].Seasonal = true
	f.e.settlements[peak].Resources = 70
	valley := f.e.CreateSettlement(world.Vec3{X: 400}, Plains)
	f.e.CreateSettlement(world.Vec3{X: 100}, Coastal)

	f.w.SetSeason(world.Winter)
	f.e.Update(time.Second)
	p, ok := f.e.Plan("herders")
	if !ok || p.Policy != Forced || p.Destination != valley {
		t.Fatalf("evacuation plan = %+v", p)
	}
	if s, _ := f.e.Settlement(peak); s.Resources != 35 {
		t.Fatalf("resources = %v, want halved", s.Resources)
	}
}

func TestSeasonClosesHardPaths(t *testing.T) {
	f := newFixture(t)
	f.w.SetSeason(world.Summer)
	f.family(t, "fam", world.Vec3{}, 2)
	f.e.CreateSettlement(world.Vec3{X: 500}, Coastal)
	for i := 0; i < 5; i++ {
		f.w.AddObstacle(world.Vec3{X: 1, Y: float64(i)})
	}
	f.e.season = world.Summer
	if _, err := f.e.PlanMigration("fam", Forced); err != nil {
		t.Fatal(err)
	}
	if p, _ := f.e.Plan("fam"); math.Abs(p.Path.Difficulty-0.5) > 1e-9 {
		t.Fatalf("summer difficulty = %v, want 0.5", p.Path.Difficulty)
	}
	f.w.SetSeason(world.Winter)
	f.e.Update(time.Second)
	if _, ok := f.e.Plan("fam"); ok {
		t.Fatal("path still open in winter")
	}
	if fin := f.e.Finished(); len(fin) != 1 || fin[0].Reason != "path_closed" {
		t.Fatalf("finished = %+v", fin)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.family(t, "fam", world.Vec3{}, 2)
	f.e.CreateSettlement(world.Vec3{X: 500}, Coastal)
	_, _ = f.e.PlanMigration("fam", Forced)
	if err := f.e.Cancel("fam"); err != nil {
		t.Fatal(err)
	}
	if len(f.e.Plans()) != 0 || f.e.Finished()[0].Reason != "cancelled" {
		t.Fatal("cancelled plan still active")
	}
	if err := f.e.Cancel("fam"); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("second cancel: err = %v", err)
	}
}
