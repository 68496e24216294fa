// Package local persists the decrypted domain snapshot on the device.
// Local storage is trusted; values are stored as plain JSON under
// owner-scoped keys.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mbruegge/gradesync/internal/errs"
	"github.com/mbruegge/gradesync/internal/model"
)

const subjectsKeyPrefix = "gradeTracker_subjects"

// Store is a SQLite-backed key-value snapshot store.
type Store struct {
	db *sql.DB
}

// Open opens/creates the database file and runs the schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at INTEGER NOT NULL
)`)
	return err
}

func subjectsKey(ownerID string) string {
	return fmt.Sprintf("%s/%s", subjectsKeyPrefix, ownerID)
}

// SaveSnapshot stores the decrypted snapshot for its owner.
func (s *Store) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil || snap.OwnerID == "" {
		return errors.New("snapshot without owner")
	}
	buf, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		subjectsKey(snap.OwnerID), string(buf), time.Now().UnixMilli())
	return err
}

// LoadSnapshot returns the last saved snapshot for the owner, or
// errs.ErrNotFound when the owner has never synced on this device.
func (s *Store) LoadSnapshot(ctx context.Context, ownerID string) (*model.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, subjectsKey(ownerID)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("corrupt local snapshot: %w", err)
	}
	return &snap, nil
}
