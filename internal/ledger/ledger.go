// Package ledger records viewport sessions in an embedded SQLite database.
//
// Every replay or live session gets a row in sessions. The daemon appends
// a snapshot of the synchronizer state after each applied batch and one
// row per serviced host event, so `wisp status` can report on a session
// after it ended.
//
// Architecture:
//   - Database file: .wisp/ledger.db
//   - WAL mode: the CLI reads while the daemon writes
//   - Schema: sessions, snapshots, events tables
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scene"
)

// ErrNotFound is returned when no row matches a query.
var ErrNotFound = errors.New("not found")

// DB wraps the ledger database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Session is one recorded viewport session.
type Session struct {
	ID        int64
	Name      string
	StartedAt time.Time
	Snapshots int
	Events    int
}

// Open creates or opens the ledger at path. The caller must call Close.
//
// Example:
//
//	db, err := ledger.Open(".wisp/ledger.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the schema if it doesn't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		started_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		taken_at TEXT NOT NULL,
		objects INTEGER NOT NULL,
		default_objects INTEGER NOT NULL,
		materials INTEGER NOT NULL,
		watches INTEGER NOT NULL,
		callbacks INTEGER NOT NULL,
		color_width INTEGER NOT NULL,
		color_height INTEGER NOT NULL,
		data TEXT NOT NULL,  -- JSON scene.Snapshot
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		node INTEGER NOT NULL DEFAULT 0,
		engine INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		recorded_at TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id, id);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, kind);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

// StartSession records a new session and returns its id.
func (db *DB) StartSession(ctx context.Context, name string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (name, started_at) VALUES (?, ?)`,
		name, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to start session %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read session id: %w", err)
	}
	return id, nil
}

// RecordSnapshot appends snap to a session.
func (db *DB) RecordSnapshot(ctx context.Context, session int64, snap scene.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	taken := snap.Taken
	if taken.IsZero() {
		taken = time.Now().UTC()
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO snapshots (
			session_id, taken_at, objects, default_objects, materials,
			watches, callbacks, color_width, color_height, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session,
		taken.Format(time.RFC3339Nano),
		len(snap.Objects),
		snap.DefaultObjects(),
		snap.BuiltMaterials(),
		snap.Watches,
		snap.Callbacks,
		snap.Color.Width,
		snap.Color.Height,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to record snapshot for session %d: %w", session, err)
	}
	return nil
}

// RecordEvent appends one serviced host event to a session.
func (db *DB) RecordEvent(ctx context.Context, session int64, ev scene.Event) error {
	var errText sql.NullString
	if ev.Error != "" {
		errText = sql.NullString{String: ev.Error, Valid: true}
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO events (session_id, kind, node, engine, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session, string(ev.Kind), int64(ev.Node), int64(ev.Engine), errText,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record event for session %d: %w", session, err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot of a session. A zero session
// selects the newest snapshot of any session.
func (db *DB) LatestSnapshot(ctx context.Context, session int64) (*scene.Snapshot, error) {
	query := `SELECT data FROM snapshots ORDER BY id DESC LIMIT 1`
	args := []any{}
	if session != 0 {
		query = `SELECT data FROM snapshots WHERE session_id = ? ORDER BY id DESC LIMIT 1`
		args = append(args, session)
	}

	var data string
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for session %d: %w", session, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var snap scene.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}

// EventCounts returns the number of recorded events per kind for a session.
func (db *DB) EventCounts(ctx context.Context, session int64) (map[scene.EventKind]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM events WHERE session_id = ? GROUP BY kind`, session)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[scene.EventKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[scene.EventKind(kind)] = n
	}
	return counts, rows.Err()
}

// Sessions lists recorded sessions, newest first.
func (db *DB) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT s.id, s.name, s.started_at,
			(SELECT COUNT(*) FROM snapshots WHERE session_id = s.id),
			(SELECT COUNT(*) FROM events WHERE session_id = s.id)
		FROM sessions s
		ORDER BY s.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started string
		if err := rows.Scan(&s.ID, &s.Name, &started, &s.Snapshots, &s.Events); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			s.StartedAt = t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
