package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

const saveCheckpointSQL = `
INSERT INTO run_checkpoints (run_id, book_id, status, state, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (run_id) DO UPDATE
SET book_id    = EXCLUDED.book_id,
    status     = EXCLUDED.status,
    state      = EXCLUDED.state,
    updated_at = EXCLUDED.updated_at;
`

const loadCheckpointSQL = `
SELECT run_id, book_id, status, state, updated_at
FROM run_checkpoints
WHERE run_id = $1;
`

const deleteCheckpointSQL = `
DELETE FROM run_checkpoints WHERE run_id = $1;
`

const staleCheckpointsSQL = `
SELECT run_id, book_id, status, state, updated_at
FROM run_checkpoints
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at;
`

const pauseRequestedSQL = `
SELECT EXISTS (SELECT 1 FROM run_pauses WHERE run_id = $1);
`

const requestPauseSQL = `
INSERT INTO run_pauses (run_id) VALUES ($1)
ON CONFLICT (run_id) DO NOTHING;
`

const clearPauseSQL = `
DELETE FROM run_pauses WHERE run_id = $1;
`

func scanCheckpoint(row pgxv5.Row) (store.Checkpoint, error) {
	var (
		cp     store.Checkpoint
		status string
		state  []byte
	)
	if err := row.Scan(&cp.RunID, &cp.BookID, &status, &state, &cp.UpdatedAt); err != nil {
		return cp, err
	}
	cp.Status = store.RunStatus(status)
	cp.State = state
	return cp, nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp store.Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("checkpoint without run id")
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	_, err := s.conn.Exec(ctx, saveCheckpointSQL, cp.RunID, cp.BookID, string(cp.Status), []byte(cp.State), cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.RunID, err)
	}
	return nil
}

func (s *Store) LoadCheckpoint(ctx context.Context, runID string) (*store.Checkpoint, error) {
	cp, err := scanCheckpoint(s.conn.QueryRow(ctx, loadCheckpointSQL, runID))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", runID, err)
	}
	return &cp, nil
}

func (s *Store) DeleteCheckpoint(ctx context.Context, runID string) error {
	if _, err := s.conn.Exec(ctx, deleteCheckpointSQL, runID); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", runID, err)
	}
	return nil
}

func (s *Store) ListStale(ctx context.Context, olderThan time.Time) ([]store.Checkpoint, error) {
	rows, err := s.conn.Query(ctx, staleCheckpointsSQL, string(store.StatusRunning), olderThan)
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
	var paused bool
	if err := s.conn.QueryRow(ctx, pauseRequestedSQL, runID).Scan(&paused); err != nil {
		return false, fmt.Errorf("read pause flag: %w", err)
	}
	return paused, nil
}

func (s *Store) RequestPause(ctx context.Context, runID string) error {
	_, err := s.conn.Exec(ctx, requestPauseSQL, runID)
	return err
}

func (s *Store) ClearPause(ctx context.Context, runID string) error {
	_, err := s.conn.Exec(ctx, clearPauseSQL, runID)
	return err
}
