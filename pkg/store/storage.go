package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/chunker"
)

var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CharacterStore persists the characters of a book. FindByName matches the
// normalized key of a name or alias and returns nil when nothing matches.
type CharacterStore interface {
	FindByName(ctx context.Context, bookID, name string) (*character.Character, error)
	Create(ctx context.Context, bookID string, profile character.Profile) (character.Character, error)
	UpdateProfile(ctx context.Context, characterID string, profile character.Profile) (bool, error)
	List(ctx context.Context, bookID string) ([]character.Character, error)
}

// RelationshipStore keeps one row per unordered pair of characters. Upsert
// reports whether the row was created.
type RelationshipStore interface {
	Upsert(ctx context.Context, characterA, characterB, kind, bookID string) (character.Relationship, bool, error)
	ListRelationships(ctx context.Context, bookID string) ([]character.Relationship, error)
}

// ChunkStore keeps the chunk sequence of a book so that runs can resume
// without re-chunking. Get returns nil when the chunk does not exist.
type ChunkStore interface {
	SaveChunks(ctx context.Context, bookID string, chunks []chunker.Chunk) error
	Get(ctx context.Context, bookID string, index int) (*chunker.Chunk, error)
}

// Mention records that a character was detected in a chunk.
type Mention struct {
	BookID      string `json:"book_id"`
	ChunkIndex  int    `json:"chunk_index"`
	CharacterID string `json:"character_id"`
}

type MentionStore interface {
	RecordMentions(ctx context.Context, bookID string, chunkIndex int, characterIDs []string) error
}

// EmbeddingStore persists profile embeddings so that a resumed run does not
// embed unchanged profiles again.
type EmbeddingStore interface {
	character.EmbeddingLoader
	character.EmbeddingSaver
}

// BookStore bundles everything a run writes about one book.
type BookStore interface {
	CharacterStore
	RelationshipStore
	ChunkStore
	MentionStore
}

type RunStatus string

const (
	StatusRunning          RunStatus = "running"
	StatusPaused           RunStatus = "paused"
	StatusCompleted        RunStatus = "completed"
	StatusFailed           RunStatus = "failed"
	StatusValidationFailed RunStatus = "validation_failed"
)

// Terminal reports whether a run in this status will not continue.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusValidationFailed:
		return true
	}
	return false
}

// Checkpoint is the persisted session state of a run, written at every
// chunk boundary. State holds the JSON encoded session.
type Checkpoint struct {
	RunID     string          `json:"run_id"`
	BookID    string          `json:"book_id"`
	Status    RunStatus       `json:"status"`
	State     json.RawMessage `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	LoadCheckpoint(ctx context.Context, runID string) (*Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, runID string) error
	// ListStale returns running checkpoints last written before olderThan.
	ListStale(ctx context.Context, olderThan time.Time) ([]Checkpoint, error)
}

// PauseController carries pause requests to a run, which checks them at
// chunk boundaries.
type PauseController interface {
	PauseRequested(ctx context.Context, runID string) (bool, error)
	RequestPause(ctx context.Context, runID string) error
	ClearPause(ctx context.Context, runID string) error
}
