// Package persistence provides the SQLite chronicle: an append-only record of
// notable events and periodic compressed snapshots for later inspection.
// Nothing here is ever loaded back into a running simulation.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/talgya/kindred/internal/engine"
)

// ErrNoSnapshot is returned when the chronicle holds no snapshot yet.
var ErrNoSnapshot = errors.New("no snapshot")

// DB wraps a SQLite connection for the chronicle.
type DB struct {
	conn *sqlx.DB
	Path string
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	return open(path, path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
}

// OpenMemory opens a private in-memory chronicle.
func OpenMemory() (*DB, error) {
	return open(":memory:", ":memory:")
}

func open(path, dsn string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: shared.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, Path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		at INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		meta_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		taken_at TEXT NOT NULL,
		raw_size INTEGER NOT NULL,
		blob BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO events (tick, at, description, category, meta_json) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		meta := []byte("{}")
		if len(e.Meta) > 0 {
			if meta, err = json.Marshal(e.Meta); err != nil {
				return fmt.Errorf("encode meta at tick %d: %w", e.Tick, err)
			}
		}
		if _, err := stmt.Exec(e.Tick, int64(e.At), e.Description, e.Category, string(meta)); err != nil {
			return fmt.Errorf("insert event at tick %d: %w", e.Tick, err)
		}
	}

	return tx.Commit()
}

type eventRow struct {
	Tick        uint64 `db:"tick"`
	At          int64  `db:"at"`
	Description string `db:"description"`
	Category    string `db:"category"`
	Meta        string `db:"meta_json"`
}

func (r eventRow) event() engine.Event {
	e := engine.Event{Tick: r.Tick, At: time.Duration(r.At), Description: r.Description, Category: r.Category}
	if r.Meta != "" && r.Meta != "{}" {
		_ = json.Unmarshal([]byte(r.Meta), &e.Meta)
	}
	return e
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT tick, at, description, category, meta_json FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return toEvents(rows), err
}

// EventsByCategory returns the most recent N events of one category, newest
// first.
func (db *DB) EventsByCategory(category string, limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT tick, at, description, category, meta_json FROM events WHERE category = ? ORDER BY id DESC LIMIT ?",
		category, limit,
	)
	return toEvents(rows), err
}

// CategoryCount is how many events of a category were recorded.
type CategoryCount struct {
	Category string `db:"category" json:"category"`
	Count    int    `db:"n" json:"count"`
}

// CountByCategory tallies the chronicle, largest first.
func (db *DB) CountByCategory() ([]CategoryCount, error) {
	var out []CategoryCount
	err := db.conn.Select(&out, "SELECT category, COUNT(*) AS n FROM events GROUP BY category ORDER BY n DESC, category")
	return out, err
}

func toEvents(rows []eventRow) []engine.Event {
	out := make([]engine.Event, len(rows))
	for i, r := range rows {
		out[i] = r.event()
	}
	return out
}

// SaveSnapshot stores a zstd-compressed JSON snapshot.
func (db *DB) SaveSnapshot(snap *engine.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	blob := enc.EncodeAll(raw, nil)
	enc.Close()

	_, err = db.conn.Exec(
		"INSERT INTO snapshots (tick, taken_at, raw_size, blob) VALUES (?, ?, ?, ?)",
		snap.Tick, time.Now().UTC().Format(time.RFC3339), len(raw), blob,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot at tick %d: %w", snap.Tick, err)
	}
	slog.Debug("snapshot saved", "tick", snap.Tick, "raw", len(raw), "compressed", len(blob))
	return nil
}

// LatestSnapshot loads the newest stored snapshot.
func (db *DB) LatestSnapshot() (*engine.Snapshot, error) {
	var blob []byte
	err := db.conn.Get(&blob, "SELECT blob FROM snapshots ORDER BY id DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// SnapshotCount returns how many snapshots are stored.
func (db *DB) SnapshotCount() (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM snapshots")
	return n, err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// Record drains a chronicle subscription into the database, batching writes
// every interval, until ctx is done or the channel closes.
func (db *DB) Record(ctx context.Context, events <-chan engine.Event, interval time.Duration) {
	var batch []engine.Event
	flush := func() {
		if err := db.SaveEvents(batch); err != nil {
			slog.Error("chronicle write failed", "events", len(batch), "error", err)
		}
		batch = batch[:0]
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
		case <-t.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}
