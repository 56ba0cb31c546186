package pgx

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
)

const upsertEmbeddingSQL = `
INSERT INTO character_embeddings (character_id, book_id, text, embedding)
VALUES ($1, $2, $3, $4)
ON CONFLICT (character_id) DO UPDATE
SET text       = EXCLUDED.text,
    embedding  = EXCLUDED.embedding,
    updated_at = now();
`

const loadEmbeddingsSQL = `
SELECT character_id, text, embedding
FROM character_embeddings
WHERE book_id = $1
ORDER BY character_id;
`

func (s *Store) SaveEmbedding(ctx context.Context, bookID string, e character.StoredEmbedding) error {
	_, err := s.conn.Exec(ctx, upsertEmbeddingSQL, e.CharacterID, bookID, e.Text, pgvector.NewVector(e.Vector))
	if err != nil {
		return fmt.Errorf("save embedding of %s: %w", e.CharacterID, err)
	}
	return nil
}

func (s *Store) LoadEmbeddings(ctx context.Context, bookID string) ([]character.StoredEmbedding, error) {
	rows, err := s.conn.Query(ctx, loadEmbeddingsSQL, bookID)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var out []character.StoredEmbedding
	for rows.Next() {
		var (
			e   character.StoredEmbedding
			vec pgvector.Vector
		)
		if err := rows.Scan(&e.CharacterID, &e.Text, &vec); err != nil {
			return nil, err
		}
		e.Vector = vec.Slice()
		out = append(out, e)
	}
	return out, rows.Err()
}
