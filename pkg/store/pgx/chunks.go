package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/chunker"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

const chunkBatchSize = 200

const deleteChunksSQL = `
DELETE FROM chunks WHERE book_id = $1;
`

const insertChunkSQL = `
INSERT INTO chunks (book_id, chunk_index, text)
VALUES ($1, $2, $3);
`

const getChunkSQL = `
SELECT chunk_index, text FROM chunks WHERE book_id = $1 AND chunk_index = $2;
`

const insertMentionSQL = `
INSERT INTO chunk_mentions (book_id, chunk_index, character_id)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING;
`

// SaveChunks replaces the chunk sequence of a book in one transaction.
func (s *Store) SaveChunks(ctx context.Context, bookID string, chunks []chunker.Chunk) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteChunksSQL, bookID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	err = store.ChunkRange(len(chunks), chunkBatchSize, func(start, end int) error {
		batch := &pgxv5.Batch{}
		for _, c := range chunks[start:end] {
			batch.Queue(insertChunkSQL, bookID, c.Index, util.SanitizePostgresText(c.Text))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Debug("[DB] Saved chunks", "book_id", bookID, "chunks", len(chunks))
	return nil
}

func (s *Store) Get(ctx context.Context, bookID string, index int) (*chunker.Chunk, error) {
	var c chunker.Chunk
	err := s.conn.QueryRow(ctx, getChunkSQL, bookID, index).Scan(&c.Index, &c.Text)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %d: %w", index, err)
	}
	return &c, nil
}

func (s *Store) RecordMentions(ctx context.Context, bookID string, chunkIndex int, characterIDs []string) error {
	ids := store.DedupeStrings(characterIDs)
	if len(ids) == 0 {
		return nil
	}
	batch := &pgxv5.Batch{}
	for _, id := range ids {
		batch.Queue(insertMentionSQL, bookID, chunkIndex, id)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert mentions: %w", err)
	}
	return tx.Commit(ctx)
}
