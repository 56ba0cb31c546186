// Package sqlite keeps run checkpoints and pause flags in a local SQLite
// file so that CLI runs can be paused and resumed across processes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS run_checkpoints (
    run_id     TEXT PRIMARY KEY,
    book_id    TEXT NOT NULL,
    status     TEXT NOT NULL,
    state      BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS run_checkpoints_status_idx ON run_checkpoints (status, updated_at);
CREATE TABLE IF NOT EXISTS run_pauses (
    run_id       TEXT PRIMARY KEY,
    requested_at INTEGER NOT NULL
);
`

const saveCheckpointSQL = `
INSERT INTO run_checkpoints (run_id, book_id, status, state, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE
SET book_id = excluded.book_id,
    status = excluded.status,
    state = excluded.state,
    updated_at = excluded.updated_at;
`

const loadCheckpointSQL = `
SELECT run_id, book_id, status, state, updated_at FROM run_checkpoints WHERE run_id = ?;
`

const staleCheckpointsSQL = `
SELECT run_id, book_id, status, state, updated_at
FROM run_checkpoints
WHERE status = ? AND updated_at < ?
ORDER BY updated_at;
`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}
	logger.Debug("[Store] Opened checkpoint database", "path", path)
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (store.Checkpoint, error) {
	var (
		cp        store.Checkpoint
		status    string
		state     []byte
		updatedAt int64
	)
	if err := row.Scan(&cp.RunID, &cp.BookID, &status, &state, &updatedAt); err != nil {
		return cp, err
	}
	cp.Status = store.RunStatus(status)
	cp.State = state
	cp.UpdatedAt = time.UnixMilli(updatedAt)
	return cp, nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp store.Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("checkpoint without run id")
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, saveCheckpointSQL,
		cp.RunID, cp.BookID, string(cp.Status), []byte(cp.State), cp.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.RunID, err)
	}
	return nil
}

func (s *Store) LoadCheckpoint(ctx context.Context, runID string) (*store.Checkpoint, error) {
	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, loadCheckpointSQL, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", runID, err)
	}
	return &cp, nil
}

func (s *Store) DeleteCheckpoint(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM run_checkpoints WHERE run_id = ?;", runID)
	return err
}

func (s *Store) ListStale(ctx context.Context, olderThan time.Time) ([]store.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, staleCheckpointsSQL, string(store.StatusRunning), olderThan.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list stale checkpoints: %w", err)
	}
	defer rows.Close()

	var out []store.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *Store) PauseRequested(ctx context.Context, runID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_pauses WHERE run_id = ?;", runID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("read pause flag: %w", err)
	}
	return n > 0, nil
}

func (s *Store) RequestPause(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_pauses (run_id, requested_at) VALUES (?, ?) ON CONFLICT (run_id) DO NOTHING;",
		runID, s.now().UnixMilli())
	return err
}

func (s *Store) ClearPause(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM run_pauses WHERE run_id = ?;", runID)
	return err
}

var (
	_ store.CheckpointStore = (*Store)(nil)
	_ store.PauseController = (*Store)(nil)
)
