// Package store provides the durable local cache backing the sync queue and
// the dashboard read model.
//
// The store is an embedded SQLite database (WAL mode) organized into named
// collections of JSON records keyed by ID. It is the sole durable owner of
// queue entries and cached dashboard blobs; business entities it holds are
// caches of the remote backend, never the source of truth.
//
// The store survives restarts but offers no cross-process coordination:
// concurrent writers from separate processes race with last-write-wins
// semantics, which is acceptable for this workload.
package store

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
)

// Collection names for the record collections the engine uses.
const (
	BeatPlans  = "beat_plans"
	Visits     = "visits"
	Attendance = "attendance"
	Retailers  = "retailers"
	Orders     = "orders"
	SyncQueue  = "sync_queue"
	Dashboard  = "dashboard"
)

// ErrNotFound is returned by Get when no record exists under the given ID.
var ErrNotFound = errors.New("store: record not found")

// Record is a single entry in a collection: an opaque JSON payload keyed by ID.
type Record struct {
	ID        string
	Payload   json.RawMessage
	UpdatedAt time.Time
}

// Store wraps the embedded SQLite database.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a store at the specified path, creating the schema if needed.
//
// Pass ":memory:" for an ephemeral store (used in tests).
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	connStr := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s", path)
	}

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	s := &Store{conn: conn, path: path}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the store, checkpointing the WAL first.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);

	-- Lightweight key/value flags outside the record model
	-- (cache-warmed-at marker, permissions-requested marker, ...)
	CREATE TABLE IF NOT EXISTS flags (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return nil
}

// GetAll returns every record in a collection, ordered by updated_at ascending.
func (s *Store) GetAll(ctx context.Context, collection string) ([]Record, error) {
	query := `
	SELECT id, payload, updated_at
	FROM records
	WHERE collection = ?
	ORDER BY updated_at ASC, id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var payload, updatedAt string
		if err := rows.Scan(&rec.ID, &payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			rec.UpdatedAt = t
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection %s: %w", collection, err)
	}

	return records, nil
}

// Get retrieves a single record by ID.
// Returns ErrNotFound if no record exists under that ID.
func (s *Store) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var payload string
	err := s.conn.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s/%s: %w", collection, id, err)
	}
	return json.RawMessage(payload), nil
}

// Save upserts a record by ID. The value is marshaled to JSON.
//
// Saving the same ID twice leaves exactly one record holding the latest
// payload. Writers must always go through Save rather than replacing whole
// collections, so concurrent readers only ever see a momentarily stale row.
func (s *Store) Save(ctx context.Context, collection, id string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s/%s: %w", collection, id, err)
	}

	query := `
	INSERT INTO records (collection, id, payload, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at
	`

	_, err = s.conn.ExecContext(ctx, query,
		collection, id, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save record %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes a record by ID. Returns nil if the record is absent
// (idempotent).
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s/%s: %w", collection, id, err)
	}
	return nil
}

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection %s: %w", collection, err)
	}
	return count, nil
}

// GetFlag reads a plain string flag. Returns "" if the flag is unset.
func (s *Store) GetFlag(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM flags WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get flag %s: %w", key, err)
	}
	return value, nil
}

// SetFlag writes a plain string flag (upsert).
func (s *Store) SetFlag(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO flags (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set flag %s: %w", key, err)
	}
	return nil
}
