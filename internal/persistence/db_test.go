package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/talgya/kindred/internal/engine"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEventsRoundTrip(t *testing.T) {
	db := openTest(t)
	err := db.SaveEvents([]engine.Event{
		{Tick: 1, At: time.Second, Category: "alliance", Description: "north and south allied"},
		{Tick: 2, At: 2 * time.Second, Category: "riot", Description: "north riots", Meta: map[string]any{"group": "north"}},
		{Tick: 3, At: 3 * time.Second, Category: "alliance", Description: "pact broken"},
	})
	if err != nil {
		t.Fatal(err)
	}

	recent, err := db.RecentEvents(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Tick != 3 || recent[1].Meta["group"] != "north" {
		t.Fatalf("recent = %+v", recent)
	}

	alliances, err := db.EventsByCategory("alliance", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(alliances) != 2 || alliances[1].At != time.Second {
		t.Fatalf("alliance events = %+v", alliances)
	}

	counts, err := db.CountByCategory()
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 2 || counts[0].Category != "alliance" || counts[0].Count != 2 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestSnapshotCompressed(t *testing.T) {
	db := openTest(t)
	if _, err := db.LatestSnapshot(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty db: err = %v", err)
	}
	for tick := uint64(10); tick <= 20; tick += 10 {
		snap := &engine.Snapshot{Tick: tick, Season: "winter", Groups: []engine.GroupView{{ID: "north", Honor: 0.7}}}
		if err := db.SaveSnapshot(snap); err != nil {
			t.Fatal(err)
		}
	}
	got, err := db.LatestSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got.Tick != 20 || got.Season != "winter" || len(got.Groups) != 1 || got.Groups[0].Honor != 0.7 {
		t.Fatalf("snapshot = %+v", got)
	}
	if n, _ := db.SnapshotCount(); n != 2 {
		t.Fatalf("snapshots = %d, want 2", n)
	}
}

func TestMeta(t *testing.T) {
	db := openTest(t)
	if err := db.SaveMeta("seed", "42"); err != nil {
		t.Fatal(err)
	}
	_ = db.SaveMeta("seed", "43")
	if v, err := db.GetMeta("seed"); err != nil || v != "43" {
		t.Fatalf("seed = %q, %v", v, err)
	}
}

func TestRecordFlushesOnClose(t *testing.T) {
	db := openTest(t)
	ch := make(chan engine.Event, 4)
	ch <- engine.Event{Tick: 1, Category: "social", Description: "a"}
	ch <- engine.Event{Tick: 2, Category: "social", Description: "b"}
	close(ch)
	db.Record(context.Background(), ch, time.Hour)
	got, _ := db.RecentEvents(10)
	if len(got) != 2 {
		t.Fatalf("recorded = %d, want 2", len(got))
	}
}
