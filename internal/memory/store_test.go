package memory

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/talgya/kindred/internal/world"
)

func newStore(groups ...world.GroupID) *Store {
	s := NewStore(DefaultConfig())
	for _, g := range groups {
		s.Ensure(g)
	}
	return s
}

func TestThreatDecaysAndPrunes(t *testing.T) {
	s := newStore("G1")
	if err := s.Record("G1", New(Threat, 0.9, world.Vec3{}, "ambush"), 0); err != nil {
		t.Fatal(err)
	}
	s.Update(1800 * time.Second)
	evs := s.Events("G1")
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if got := evs[0].Importance; math.Abs(got-0.45) > 1e-9 {
		t.Fatalf("importance after 1800s = %v, want 0.45", got)
	}
	s.Update(3600 * time.Second)
	if evs := s.Events("G1"); len(evs) != 0 {
		t.Fatalf("event survived 3600s: %+v", evs)
	}
}

func TestImportanceNeverRises(t *testing.T) {
	s := newStore("G1")
	_ = s.Record("G1", New(Negative, 0.6, world.Vec3{}, "theft"), 0)
	prev := 1.0
	for step := 0; step <= 30; step++ {
		s.Update(time.Duration(step) * 60 * time.Second)
		evs := s.Events("G1")
		if len(evs) == 0 {
			break
		}
		if evs[0].Importance > prev {
			t.Fatalf("step %d: importance rose from %v to %v", step, prev, evs[0].Importance)
		}
		if evs[0].Importance < DefaultConfig().PruneBelow {
			t.Fatalf("step %d: sub-threshold event still readable", step)
		}
		prev = evs[0].Importance
	}
	// Stepping back in time must not resurrect importance.
	s.Update(0)
	if evs := s.Events("G1"); len(evs) > 0 && evs[0].Importance > prev {
		t.Fatalf("importance rose after clock rewind")
	}
}

func TestRecordUnknownGroup(t *testing.T) {
	s := newStore()
	err := s.Record("nope", New(Positive, 0.5, world.Vec3{}, "x"), 0)
	if !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSignificantAndPropagation(t *testing.T) {
	s := newStore("A", "B", "C")
	// B knows a place near the origin, C is far away.
	_ = s.Record("B", New(Positive, 0.8, world.Vec3{X: 50}, "feast"), 0)
	_ = s.Record("C", New(Positive, 0.8, world.Vec3{X: 5000}, "feast"), 0)

	_ = s.Record("A", New(Threat, 0.75, world.Vec3{}, "raid", 7), 0)
	if locs := s.SignificantLocations("A"); len(locs) != 1 {
		t.Fatalf("A significant = %v", locs)
	}
	if got := s.ActorImportance("A", 7); got != 0.75 {
		t.Fatalf("actor importance = %v", got)
	}

	var copied *Event
	for _, ev := range s.Events("B") {
		if ev.Tag == "raid" {
			ev := ev
			copied = &ev
		}
	}
	if copied == nil {
		t.Fatal("raid did not propagate to B")
	}
	if math.Abs(copied.Importance-0.6) > 1e-9 || !copied.Propagated || copied.Origin != "A" {
		t.Fatalf("propagated copy = %+v", *copied)
	}
	for _, ev := range s.Events("C") {
		if ev.Tag == "raid" {
			t.Fatal("raid reached a distant group")
		}
	}
	// The copy in B must not bounce back into A.
	n := 0
	for _, ev := range s.Events("A") {
		if ev.Tag == "raid" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("A holds %d raid events, want 1", n)
	}
}

func TestTensionAndRiotEdge(t *testing.T) {
	s := newStore("G")
	_ = s.Record("G", New(Threat, 0.5, world.Vec3{X: 3}, "shots"), 0)
	s.Update(0)
	if got := s.Tension("G"); math.Abs(got-1) > 1e-9 {
		t.Fatalf("tension = %v, want 1", got)
	}
	riots := s.DrainRiots()
	if len(riots) != 1 || riots[0].Group != "G" {
		t.Fatalf("riots = %+v", riots)
	}
	s.Update(time.Second)
	if len(s.DrainRiots()) != 0 {
		t.Fatal("riot re-raised while tension stayed high")
	}
	_ = s.Record("G", New(Positive, 1, world.Vec3{}, "wedding"), time.Second)
	_ = s.Record("G", New(Positive, 1, world.Vec3{}, "harvest"), time.Second)
	s.Update(2 * time.Second)
	if s.Tension("G") > 0.8 {
		t.Fatalf("tension = %v after good news", s.Tension("G"))
	}
}

func TestWeatherBroadcast(t *testing.T) {
	s := newStore("A", "B")
	s.RecordWeather(world.Rain, world.Vec3{}, 10*time.Second)
	for _, g := range []world.GroupID{"A", "B"} {
		evs := s.Events(g)
		if len(evs) != 1 || evs[0].Tag != "weather_rain" || evs[0].Kind != Neutral {
			t.Fatalf("%s events = %+v", g, evs)
		}
	}
	if !s.ShouldReactToWeather("A", world.Vec3{X: 20}, 100*time.Second) {
		t.Fatal("recent nearby weather ignored")
	}
	if s.ShouldReactToWeather("A", world.Vec3{X: 500}, 100*time.Second) {
		t.Fatal("distant weather triggered a reaction")
	}
	if s.ShouldReactToWeather("A", world.Vec3{}, 400*time.Second) {
		t.Fatal("stale weather triggered a reaction")
	}
	if len(s.WeatherLog()) != 1 {
		t.Fatal("weather log not recorded")
	}
}

func TestFreshDrainAndCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEvents = 3
	s := NewStore(cfg)
	s.Ensure("G")
	for i := 0; i < 5; i++ {
		_ = s.Record("G", New(Neutral, 0.2+float64(i)*0.1, world.Vec3{}, "tick"), 0)
	}
	if n := len(s.Events("G")); n != 3 {
		t.Fatalf("got %d events, want 3", n)
	}
	if n := len(s.DrainFresh("G")); n != 5 {
		t.Fatalf("fresh = %d, want 5", n)
	}
	if n := len(s.DrainFresh("G")); n != 0 {
		t.Fatalf("fresh after drain = %d", n)
	}
	recent := s.Recent("G", 2)
	if len(recent) != 2 || recent[0].Importance < recent[1].Importance {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestRemoveActor(t *testing.T) {
	s := newStore("G")
	_ = s.Record("G", New(Negative, 0.5, world.Vec3{}, "fight", 1, 2), 0)
	s.RemoveActor(1)
	if s.ActorImportance("G", 1) != 0 {
		t.Fatal("actor importance kept")
	}
	if evs := s.Events("G"); len(evs[0].Actors) != 1 || evs[0].Actors[0] != 2 {
		t.Fatalf("actors = %v", evs[0].Actors)
	}
}

func TestRecordBelowThresholdIsDropped(t *testing.T) {
	s := newStore("G")
	if err := s.Record("G", New(Negative, 0.05, world.Vec3{}, "scuffle", 3), 0); err != nil {
		t.Fatal(err)
	}
	if evs := s.Events("G"); len(evs) != 0 {
		t.Fatalf("sub-threshold event stored: %+v", evs)
	}
	if s.ActorImportance("G", 3) != 0 {
		t.Fatal("sub-threshold event indexed its actor")
	}
	if err := s.Record("missing", New(Negative, 0.05, world.Vec3{}, "scuffle"), 0); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("unknown group err = %v", err)
	}
}

func TestCapEvictionReindexes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEvents = 2
	s := NewStore(cfg)
	s.Ensure("G")
	far := world.Vec3{X: 500}
	_ = s.Record("G", New(Threat, 0.75, far, "ambush", 7), 0)
	_ = s.Record("G", New(Positive, 0.9, world.Vec3{}, "feast", 8), 0)
	_ = s.Record("G", New(Positive, 0.95, world.Vec3{}, "feast", 8), 0)

	if n := len(s.Events("G")); n != 2 {
		t.Fatalf("got %d events, want 2", n)
	}
	if got := s.ActorImportance("G", 7); got != 0 {
		t.Fatalf("evicted actor importance = %v, want 0", got)
	}
	for _, loc := range s.SignificantLocations("G") {
		if loc.Dist(far) < 1 {
			t.Fatalf("evicted place still significant: %v", s.SignificantLocations("G"))
		}
	}
	if got := s.ActorImportance("G", 8); got != 0.95 {
		t.Fatalf("surviving actor importance = %v, want 0.95", got)
	}
}
