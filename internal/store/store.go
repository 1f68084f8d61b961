// Package store persists merge request snapshots and the sync watermark
// in a local SQLite database. One process writes at a time; WAL mode and
// a busy timeout cover the overlapping-invocation case without locking.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcin-skalski/gitlab-hud/internal/model"

	_ "modernc.org/sqlite"
)

const watermarkKey = "watermark"

// Store wraps the SQLite database holding cached snapshots and sync state.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS merge_requests (
		id         INTEGER PRIMARY KEY,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put stores a snapshot, replacing any previous snapshot with the same ID.
func (s *Store) Put(mr model.MergeRequest) error {
	data, err := json.Marshal(mr)
	if err != nil {
		return fmt.Errorf("marshal MR %d: %w", mr.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO merge_requests (id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		mr.ID, string(data), mr.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put MR %d: %w", mr.ID, err)
	}
	return nil
}

// Get returns the stored snapshot for id, with ok false when absent.
func (s *Store) Get(id int64) (model.MergeRequest, bool, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM merge_requests WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MergeRequest{}, false, nil
	}
	if err != nil {
		return model.MergeRequest{}, false, fmt.Errorf("get MR %d: %w", id, err)
	}
	var mr model.MergeRequest
	if err := json.Unmarshal([]byte(data), &mr); err != nil {
		return model.MergeRequest{}, false, fmt.Errorf("decode cached MR %d: %w", id, err)
	}
	return mr, true, nil
}

// All returns every cached snapshot in unspecified order. A row that no
// longer decodes fails the whole call; the cache has no partial-recovery
// mode.
func (s *Store) All() ([]model.MergeRequest, error) {
	rows, err := s.db.Query(`SELECT id, data FROM merge_requests`)
	if err != nil {
		return nil, fmt.Errorf("list MRs: %w", err)
	}
	defer rows.Close()

	var mrs []model.MergeRequest
	for rows.Next() {
		var id int64
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan MR row: %w", err)
		}
		var mr model.MergeRequest
		if err := json.Unmarshal([]byte(data), &mr); err != nil {
			return nil, fmt.Errorf("decode cached MR %d: %w", id, err)
		}
		mrs = append(mrs, mr)
	}
	return mrs, rows.Err()
}

// Watermark returns the most recent update time fully covered by prior
// syncs, or the zero time when no sync has completed yet.
func (s *Store) Watermark() (time.Time, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, watermarkKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get watermark: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse watermark %q: %w", value, err)
	}
	return t, nil
}

// AdvanceWatermark raises the watermark to candidate if it is ahead of
// the stored value. The watermark never moves backward.
func (s *Store) AdvanceWatermark(candidate time.Time) error {
	current, err := s.Watermark()
	if err != nil {
		return err
	}
	if !candidate.After(current) {
		return nil
	}
	_, err = s.db.Exec(
		`INSERT INTO sync_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		watermarkKey, candidate.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}
